package device

import "time"

// Advertisement is a raw advertisement that has been recognized as coming from one of
// our thermometers, with its embedded address checked against the reporting one.
type Advertisement struct {
	Addr     string
	Firmware Firmware
	Data     []byte
}

// PassiveBackend turns raw advertisement bytes into readings without ever connecting
// to the device.
type PassiveBackend interface {
	// Classify returns false when the advertisement doesn't belong to this backend's
	// protocol. That's not an error: most of the traffic in range ends up here.
	Classify(addr string, data []byte) (Advertisement, bool)
	Decode(a Advertisement, now time.Time) (Reading, error)
}
