package device

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/rs/zerolog"
)

var (
	ErrInvalidData   = errors.New("invalid data")
	ErrInvalidDevice = errors.New("invalid device")
)

// Thermometer is an allow-listed sensor. Readings get a pointer to the matching entry
// attached before they are queued for delivery.
type Thermometer struct {
	Address string            `yaml:"address" json:"address"`
	Name    string            `yaml:"name" json:"name"`
	Tags    map[string]string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// ReservedTags are set from the thermometer itself on every stored reading.
var ReservedTags = []string{"name", "address"}

// NormalizeAddress returns the canonical textual form of a MAC address: upper case,
// colon separated.
func NormalizeAddress(addr string) (string, error) {
	hwAddr, err := net.ParseMAC(addr)
	if err != nil {
		return "", fmt.Errorf("%w: bad address %q: %w", ErrInvalidDevice, addr, err)
	}

	if len(hwAddr) != 6 {
		return "", fmt.Errorf("%w: address %q is not 6 bytes long", ErrInvalidDevice, addr)
	}

	return strings.ToUpper(hwAddr.String()), nil
}

// Validate checks the entry and rewrites its address to canonical form.
func (t *Thermometer) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: thermometer %q has no name", ErrInvalidDevice, t.Address)
	}

	addr, err := NormalizeAddress(t.Address)
	if err != nil {
		return err
	}

	for k, v := range t.Tags {
		switch {
		case strings.TrimSpace(k) == "":
			return fmt.Errorf("%w: thermometer %q has a tag with no key", ErrInvalidDevice, t.Name)
		case slices.Contains(ReservedTags, k):
			return fmt.Errorf("%w: thermometer %q: tag %q is reserved", ErrInvalidDevice, t.Name, k)
		case strings.TrimSpace(v) == "":
			return fmt.Errorf("%w: thermometer %q: tag %q has no value", ErrInvalidDevice, t.Name, k)
		}
	}

	t.Address = addr

	return nil
}

func (t Thermometer) Addr() net.HardwareAddr {
	hwAddr, _ := net.ParseMAC(t.Address)
	return hwAddr
}

func (t Thermometer) String() string {
	return fmt.Sprintf("thermometer[name=%q, addr=%v]", t.Name, t.Address)
}

func (t Thermometer) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Name", t.Name).Str("Addr", t.Address)

	if len(t.Tags) > 0 {
		e.Interface("Tags", t.Tags)
	}
}
