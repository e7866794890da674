package collector

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/robertof/go-mijia-exporter/device"
	"github.com/robertof/go-mijia-exporter/sink"
)

const (
  pvvxPayload = "1312161a18332211ccbbaa670981108f0b54af04"
  pvvxAddr = "AA:BB:CC:11:22:33"

  atcPayload = "1110161a18332211ccbbaa00f02a540b8faf"
  atcAddr = "33:22:11:CC:BB:AA"
)

var (
  errTransient = fmt.Errorf("%w: connection refused", sink.ErrTransient)
  errPermanent = fmt.Errorf("%w: bad request", sink.ErrPermanent)
)

func mustHex(t *testing.T, s string) []byte {
  t.Helper()

  b, err := hex.DecodeString(s)

  if err != nil {
    t.Fatalf("hex.DecodeString(%q): %v", s, err)
  }

  return b
}

func reading(name string, counter uint8) device.Reading {
  return device.Reading{
    Temperature: 21.5,
    Humidity: 40,
    Voltage: 3,
    Battery: 90,
    Counter: counter,
    Sensor: &device.Thermometer{Address: pvvxAddr, Name: name},
  }
}

// fakeSink fails with the queued errors, in order, then succeeds.
type fakeSink struct {
  name string

  mu sync.Mutex
  errs []error
  calls int
  attempted []device.Reading
  delivered []device.Reading
}

func (s *fakeSink) Name() string {
  return s.name
}

func (s *fakeSink) Deliver(_ context.Context, r device.Reading) error {
  s.mu.Lock()
  defer s.mu.Unlock()

  s.calls++
  s.attempted = append(s.attempted, r)

  var err error

  if len(s.errs) > 0 {
    err, s.errs = s.errs[0], s.errs[1:]
  }

  if err == nil {
    s.delivered = append(s.delivered, r)
  }

  return err
}

func (s *fakeSink) Calls() int {
  s.mu.Lock()
  defer s.mu.Unlock()

  return s.calls
}

func (s *fakeSink) Attempted() []device.Reading {
  s.mu.Lock()
  defer s.mu.Unlock()

  return append([]device.Reading(nil), s.attempted...)
}

func (s *fakeSink) Delivered() []device.Reading {
  s.mu.Lock()
  defer s.mu.Unlock()

  return append([]device.Reading(nil), s.delivered...)
}

// alwaysFailing fails every delivery with err.
type alwaysFailing struct {
  fakeSink
  err error
}

func (s *alwaysFailing) Deliver(ctx context.Context, r device.Reading) error {
  s.mu.Lock()
  s.errs = []error{s.err}
  s.mu.Unlock()

  return s.fakeSink.Deliver(ctx, r)
}

type panickingBackend struct{}

func (panickingBackend) Classify(addr string, data []byte) (device.Advertisement, bool) {
  return device.Advertisement{Addr: addr, Data: data}, true
}

func (panickingBackend) Decode(device.Advertisement, time.Time) (device.Reading, error) {
  panic(errors.New("boom"))
}
