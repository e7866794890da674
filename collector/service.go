package collector

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robertof/go-mijia-exporter/device"
	"github.com/robertof/go-mijia-exporter/sink"
	"github.com/robertof/go-mijia-exporter/utils"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Scanner delivers raw advertisements, framed as [report length][AD structures...],
// until ctx is cancelled or the handler returns false.
type Scanner interface {
  ScanRaw(ctx context.Context, onPayload func(addr string, payload []byte) bool) error
}

type Options struct {
  Backend device.PassiveBackend
  Thermometers []device.Thermometer
  DiscoveryMode bool

  MaxItems int
  IdleInterval time.Duration
  RetryCooldown time.Duration

  // Either can be nil when disabled. Don't assign typed nil pointers.
  TimeSeries sink.Sink
  PubSub sink.Sink
}

// Service owns the state shared by the advertisement handler and the dispatcher.
type Service struct {
  Queue *Queue
  Latest *Latest

  ingestor *Ingestor
  dispatcher *Dispatcher
}

func NewService(opts Options) *Service {
  queue := NewQueue(opts.MaxItems)
  latest := NewLatest()

  ingestor := NewIngestor(opts.Backend, NewDeviceFilter(opts.Thermometers), queue, latest)
  ingestor.DiscoveryMode = opts.DiscoveryMode

  dispatcher := NewDispatcher(queue, opts.TimeSeries, opts.PubSub)

  if opts.IdleInterval > 0 {
    dispatcher.IdleInterval = opts.IdleInterval
  }

  if opts.RetryCooldown > 0 {
    dispatcher.RetryCooldown = opts.RetryCooldown
  }

  if len(opts.Thermometers) == 0 {
    log.Warn().Msg("No thermometers configured, readings will not be delivered anywhere")
  }

  return &Service{
    Queue: queue,
    Latest: latest,
    ingestor: ingestor,
    dispatcher: dispatcher,
  }
}

func (s *Service) RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(newQueueDepthGauge(s.Queue))
}

func (s *Service) HandleAdvertisement(ctx context.Context, addr string, payload []byte) bool {
  return s.ingestor.HandleAdvertisement(ctx, addr, payload)
}

// Run scans and dispatches until ctx is cancelled or the scanner fails. When either
// side stops, the other one is stopped too; the dispatcher discards what's left in the
// queue on the way out.
func (s *Service) Run(parentCtx context.Context, scanner Scanner) error {
  ctx, cancel := context.WithCancel(parentCtx)
  defer cancel()

  var eg errgroup.Group

  eg.Go(func() error {
    s.dispatcher.Run(ctx)
    return nil
  })

  eg.Go(func() error {
    defer cancel()

    err := scanner.ScanRaw(ctx, func(addr string, payload []byte) bool {
      return s.HandleAdvertisement(ctx, addr, payload)
    })

    if err != nil && !utils.IsContextDone(err) {
      log.Error().Err(err).Msg("Scanner stopped with an error")
      return err
    }

    return nil
  })

  return eg.Wait()
}
