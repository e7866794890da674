// Package sink defines the downstream destinations readings are delivered to.
package sink

import (
	"context"
	"errors"

	"github.com/robertof/go-mijia-exporter/device"
)

var (
	// ErrTransient marks failures that are expected to go away on their own: network
	// timeouts, refused connections, a database that hasn't been created yet.
	ErrTransient = errors.New("transient delivery failure")

	// ErrPermanent marks failures retrying can't fix, e.g. a rejected payload.
	ErrPermanent = errors.New("permanent delivery failure")
)

// Sink delivers a single reading. Implementations must bound the time spent in
// Deliver and wrap failures in ErrTransient or ErrPermanent.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, r device.Reading) error
}

// IsTransient reports whether err is worth retrying. Unclassified errors are not.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
