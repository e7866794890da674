package main

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/maps"

	"github.com/robertof/go-mijia-exporter/ble"
	"github.com/robertof/go-mijia-exporter/config"
	"github.com/robertof/go-mijia-exporter/device"
	"github.com/robertof/go-mijia-exporter/device/mijia"
)

const discoveryDuration = 5 * time.Second

func doDeviceDiscovery(cfg *config.Config) {
  log.Info().
    Dur("DurationSec", discoveryDuration).
    Msg("Starting in device discovery mode - looking for thermometers...")

  var scanParams ble.ScanParams

  if err := scanParams.Set(cfg.BLE.ScanParams); err != nil {
    log.Fatal().Err(err).Msg("Invalid Bluetooth scan params")
  }

  flags := ble.FlagsFor(cfg.BLE.ActiveScan, false)
  handle, err := ble.InitWithScanParams(cfg.BLE.DeviceID, scanParams, flags)

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
  }

  defer handle.Stop()

  ctx := ble.WrapContextWithSigHandler(
    context.WithTimeout(
      context.Background(),
      discoveryDuration,
    ),
  )

  results := newDiscoveryResults()

  err = handle.ScanAll(ctx, func(a ble.Advertisement) {
    payload := ble.RawPayload(a)

    if !results.add(a.Addr().String(), payload) {
      log.Debug().
        Stringer("Addr", a.Addr()).
        Str("Name", a.LocalName()).
        Hex("Payload", payload).
        Msg("Ignoring advertisement from non-thermometer device")
    }
  })

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to initiate scan")
  }

  thermometers, others := results.snapshot()

  log.Info().
    Int("Thermometers", len(thermometers)).
    Int("OtherDevices", others).
    Msg("Finished device discovery")

  configured := make(map[string]string, len(cfg.Thermometers))

  for _, t := range cfg.Thermometers {
    configured[t.Address] = t.Name
  }

  addrs := maps.Keys(thermometers)
  sort.Strings(addrs)

  for _, addr := range addrs {
    info := thermometers[addr]

    log.Info().
      Str("Addr", addr).
      Str("ConfiguredAs", configured[addr]).
      Stringer("Firmware", info.reading.Firmware).
      Int("Advertisements", info.seen).
      Stringer("Reading", info.reading).
      Msg("Found thermometer")
  }
}

type discoveredThermometer struct {
  reading device.Reading
  seen int
}

// discoveryResults aggregates what the scanner reports. The scanner calls add from
// its own goroutine, possibly even after ScanAll returned.
type discoveryResults struct {
  mu sync.Mutex
  backend mijia.Backend
  now func() time.Time

  thermometers map[string]discoveredThermometer
  others map[string]bool
}

func newDiscoveryResults() *discoveryResults {
  return &discoveryResults{
    now: time.Now,
    thermometers: make(map[string]discoveredThermometer),
    others: make(map[string]bool),
  }
}

// add records an advertisement, returns false if it's not from a thermometer.
func (d *discoveryResults) add(addr string, payload []byte) bool {
  adv, ok := d.backend.Classify(addr, payload)

  d.mu.Lock()
  defer d.mu.Unlock()

  if !ok {
    d.others[addr] = true
    return false
  }

  reading, err := d.backend.Decode(adv, d.now())

  if err != nil {
    log.Warn().Err(err).Str("Addr", adv.Addr).Msg("Failed to decode advertisement")
    return true
  }

  info := d.thermometers[adv.Addr]
  info.reading = reading
  info.seen++

  d.thermometers[adv.Addr] = info

  return true
}

// snapshot returns a copy of the thermometers found and the number of other devices.
func (d *discoveryResults) snapshot() (map[string]discoveredThermometer, int) {
  d.mu.Lock()
  defer d.mu.Unlock()

  out := make(map[string]discoveredThermometer, len(d.thermometers))

  for addr, info := range d.thermometers {
    out[addr] = info
  }

  return out, len(d.others)
}
