package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/robertof/go-mijia-exporter/device"
	"github.com/rs/zerolog/log"
)

// Ingestor runs on the scanner's callback: it classifies, decodes and filters every
// advertisement and enqueues readings from known thermometers. It must never block
// on delivery.
type Ingestor struct {
  backend device.PassiveBackend
  filter *DeviceFilter
  queue *Queue
  latest *Latest

  // log every decoded reading, matched or not.
  DiscoveryMode bool

  now func() time.Time
}

func NewIngestor(
  backend device.PassiveBackend,
  filter *DeviceFilter,
  queue *Queue,
  latest *Latest,
) *Ingestor {
  return &Ingestor{
    backend: backend,
    filter: filter,
    queue: queue,
    latest: latest,
    now: time.Now,
  }
}

// HandleAdvertisement processes one raw advertisement. Returns whether scanning should
// continue, which is the case until ctx is cancelled. Errors are logged and swallowed.
func (i *Ingestor) HandleAdvertisement(ctx context.Context, addr string, data []byte) (keepScanning bool) {
  defer func() {
    if r := recover(); r != nil {
      log.Error().
        Str("Addr", addr).
        Hex("Data", data).
        Str("Panic", fmt.Sprint(r)).
        Msg("Recovered from panic while handling advertisement")

      keepScanning = ctx.Err() == nil
    }
  }()

  // the dispatcher may already have drained the queue.
  if ctx.Err() != nil {
    return false
  }

  i.handle(addr, data)

  return ctx.Err() == nil
}

func (i *Ingestor) handle(addr string, data []byte) {
  adv, ok := i.backend.Classify(addr, data)

  if !ok {
    return
  }

  reading, err := i.backend.Decode(adv, i.now())

  if err != nil {
    decodeErrorsCounter.Inc()

    log.Warn().
      Err(err).
      Str("Addr", addr).
      Hex("Data", data).
      Msg("Failed to decode advertisement")

    return
  }

  readingsCounter.WithLabelValues(reading.Firmware.String()).Inc()

  sensor, matched := i.filter.Match(adv.Addr)

  if i.DiscoveryMode {
    log.Info().
      Str("Addr", adv.Addr).
      Stringer("Firmware", reading.Firmware).
      Bool("Configured", matched).
      Stringer("Reading", reading).
      Msg("Discovered thermometer")
  }

  if !matched {
    unmatchedCounter.Inc()
    return
  }

  reading.Sensor = sensor

  i.queue.PushBack(reading)
  enqueuedCounter.Inc()

  if i.latest != nil {
    i.latest.Update(reading)
  }

  log.Trace().
    Stringer("Reading", reading).
    Int("QueueDepth", i.queue.Len()).
    Msg("Enqueued reading")
}
