package collector

import (
	"strings"

	"github.com/robertof/go-mijia-exporter/device"
)

// DeviceFilter matches decoded readings against the configured thermometers.
type DeviceFilter struct {
	byAddr map[string]*device.Thermometer
}

func NewDeviceFilter(thermometers []device.Thermometer) *DeviceFilter {
	f := &DeviceFilter{
		byAddr: make(map[string]*device.Thermometer, len(thermometers)),
	}

	for i := range thermometers {
		t := thermometers[i]
		key := strings.ToUpper(t.Address)

		// first entry wins, like a linear scan would
		if _, ok := f.byAddr[key]; !ok {
			f.byAddr[key] = &t
		}
	}

	return f
}

// Match looks addr up case-insensitively. An empty allow-list matches nothing.
func (f *DeviceFilter) Match(addr string) (*device.Thermometer, bool) {
	t, ok := f.byAddr[strings.ToUpper(addr)]
	return t, ok
}

func (f *DeviceFilter) Len() int {
	return len(f.byAddr)
}
