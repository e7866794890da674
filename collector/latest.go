package collector

import (
	"sync"
	"time"

	"github.com/robertof/go-mijia-exporter/device"
)

// Latest keeps the most recent reading for every matched thermometer, keyed by
// address. It backs the Prometheus collector.
type Latest struct {
  readings map[string]device.Reading
  updateTime time.Time

  mu sync.Mutex
}

func NewLatest() *Latest {
  return &Latest{
    readings: make(map[string]device.Reading),
  }
}

func (s *Latest) Update(r device.Reading) {
  if r.Sensor == nil {
    panic("attempted to store a reading with no sensor")
  }

  s.mu.Lock()
  defer s.mu.Unlock()

  // copy on write, so that maps handed out by Latest() are never mutated.
  update := make(map[string]device.Reading, len(s.readings) + 1)

  for addr, reading := range s.readings {
    update[addr] = reading
  }

  update[r.Sensor.Address] = r

  s.readings = update
  s.updateTime = time.Now()
}

// Retrieve the latest readings and the time of the last update. The returned map must
// not be modified.
func (s *Latest) Latest() (map[string]device.Reading, time.Time) {
  s.mu.Lock()
  defer s.mu.Unlock()

  return s.readings, s.updateTime
}
