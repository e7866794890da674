package device

import (
  "fmt"
  "strconv"
)

// Firmware is the custom firmware flavour a thermometer is running. Both flavours
// advertise on the Environmental Sensing service but use different payload layouts.
type Firmware uint8

const (
  FirmwareATC1441 Firmware = iota
  FirmwarePVVX
)

func (f Firmware) String() string {
  switch f {
  case FirmwareATC1441:
    return "atc1441"
  case FirmwarePVVX:
    return "pvvx"
  default:
    panic("Unknown firmware: " + strconv.Itoa(int(f)))
  }
}

func (f Firmware) MarshalText() ([]byte, error) {
  return []byte(f.String()), nil
}

type Reading struct {
  Temperature float64 `json:"temperature"`
  Humidity float64 `json:"humidity"`
  Voltage float64 `json:"voltage"`
  Battery uint8 `json:"battery"`
  // ingestion time, unix seconds. The sensor doesn't send a clock.
  Timestamp int64 `json:"timestamp"`
  Counter uint8 `json:"counter"`
  Firmware Firmware `json:"firmware"`

  Sensor *Thermometer `json:"sensor"`
}

func (r Reading) Name() string {
  if r.Sensor == nil {
    return ""
  }

  return r.Sensor.Name
}

func (r Reading) String() string {
  return fmt.Sprintf("Reading[Temperature=%vc,Humidity=%v%%,Battery=%d%%,Voltage=%vv,Counter=%d,Firmware=%v,Sensor=%q]",
    r.Temperature, r.Humidity, r.Battery, r.Voltage, r.Counter, r.Firmware, r.Name())
}
