package mijia

import (
  "fmt"
  "strings"

  "github.com/robertof/go-mijia-exporter/device"
  "github.com/rs/zerolog/log"
)

type Factory struct{}

func (f *Factory) FromSpec(spec device.DeviceSpec) (device.Thermometer, error) {
  t := device.Thermometer{
    Address: spec.Addr(),
    Name: spec.Name(),
    Tags: spec.Tags(),
  }

  if t.Name == "" {
    t.Name = "mijia-" + strings.ToLower(strings.ReplaceAll(t.Address, ":", ""))
  }

  if err := t.Validate(); err != nil {
    return t, fmt.Errorf("invalid thermometer: %w", err)
  }

  log.Debug().Stringer("Device", t).Msg("mijia: thermometer added from command line")

  return t, nil
}

func (f *Factory) Help() string {
  return `Supported parameters:
addr (string, required): MAC address of this thermometer
name (string): Name of this thermometer, defaults to mijia-<addr>
tag.<key> (string): Extra tag attached to every reading, e.g. tag.room=kitchen`
}
