package main

import (
	"flag"
	"fmt"

	"github.com/robertof/go-mijia-exporter/config"
	"github.com/robertof/go-mijia-exporter/device"
	"github.com/robertof/go-mijia-exporter/device/mijia"
)

type options struct {
  Debug, Trace bool
  ConfigPath string
  DiscoverDevices bool
  // appended to the ones in the configuration file.
  Thermometers []device.Thermometer
}

type boundDeviceList struct {
  device.Factory
  name string
  list *[]device.Thermometer
}

var deviceFactories = map[string]device.Factory {
  "thermometer": &mijia.Factory{},
}

func (d *boundDeviceList) String() string {
  return ""
}

func (d *boundDeviceList) Set(v string) error {
  ds := device.NewDeviceSpec(v)

  t, err := d.FromSpec(ds)
  if err != nil {
    return fmt.Errorf("failed to create %s: %w", d.name, err)
  }

  *d.list = append(*d.list, t)

  return nil
}

func newFlagSet(opts *options) *flag.FlagSet {
  fs := flag.NewFlagSet("mijia-exporter", flag.ExitOnError)

  fs.StringVar(&opts.ConfigPath, "config", "",
    fmt.Sprintf("Configuration file. Defaults to merging %v, when present", config.DefaultPaths))
  fs.BoolVar(&opts.DiscoverDevices, "discover", false, "Discover thermometers in range and quit")
  fs.BoolVar(&opts.Debug, "debug", false, "Enable debug logs")
  fs.BoolVar(&opts.Trace, "trace", false, "Enable trace logs")

  for deviceName, deviceFactory := range deviceFactories {
    boundList := &boundDeviceList{
      name:    deviceName,
      Factory: deviceFactory,
      list:    &opts.Thermometers,
    }

    help := "Thermometer spec in the form of `key=value,key=value`."

    if docs, ok := deviceFactory.(device.FactoryDocs); ok {
      help += "\n" + docs.Help()
    }

    fs.Var(boundList, deviceName, help)
  }

  return fs
}

func ParseArgs(args []string) options {
  var opts options

  // ExitOnError: never returns an error.
  _ = newFlagSet(&opts).Parse(args)

  return opts
}

// loadConfig reads the configuration and adds the thermometers given on the command
// line.
func loadConfig(opts options) (cfg *config.Config, err error) {
  if opts.ConfigPath != "" {
    cfg, err = config.Load(opts.ConfigPath)
  } else {
    cfg, err = config.LoadDefault()
  }

  if err != nil {
    return nil, err
  }

  if len(opts.Thermometers) > 0 {
    cfg.Thermometers = append(cfg.Thermometers, opts.Thermometers...)

    if err := cfg.Validate(); err != nil {
      return nil, err
    }
  }

  return cfg, nil
}
