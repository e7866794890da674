package collector

import (
	"context"
	"time"

	"github.com/robertof/go-mijia-exporter/collector/model"
	"github.com/robertof/go-mijia-exporter/device"
	"github.com/robertof/go-mijia-exporter/sink"
	"github.com/rs/zerolog/log"
)

const (
  DefaultIdleInterval = time.Second
  DefaultRetryCooldown = 5 * time.Second
)

// Dispatcher drains the queue one reading at a time. The time-series sink is
// authoritative: a transient failure there puts the reading back at the front of the
// queue and pauses dispatching for RetryCooldown. The pub/sub sink is best effort and
// only sees a reading once the time-series sink is done with it.
type Dispatcher struct {
  // Pause when the queue is empty.
  IdleInterval time.Duration
  // Pause after a transient time-series failure.
  RetryCooldown time.Duration

  queue *Queue
  timeseries sink.Sink
  pubsub sink.Sink
}

// NewDispatcher returns a dispatcher for q. Either sink can be nil when disabled.
func NewDispatcher(q *Queue, timeseries, pubsub sink.Sink) *Dispatcher {
  return &Dispatcher{
    IdleInterval: DefaultIdleInterval,
    RetryCooldown: DefaultRetryCooldown,
    queue: q,
    timeseries: timeseries,
    pubsub: pubsub,
  }
}

func sinkName(s sink.Sink) string {
  if s == nil {
    return "none"
  }

  return s.Name()
}

// Run dispatches until ctx is cancelled. Anything still queued at that point is
// logged and discarded.
func (d *Dispatcher) Run(ctx context.Context) {
  log.Info().
    Str("TimeSeries", sinkName(d.timeseries)).
    Str("PubSub", sinkName(d.pubsub)).
    Int("MaxItems", d.queue.MaxItems()).
    Dur("IdleInterval", d.IdleInterval).
    Dur("RetryCooldown", d.RetryCooldown).
    Msg("Starting dispatcher")

  for ctx.Err() == nil {
    r, ok := d.queue.PopFront()

    if !ok {
      sleep(ctx, d.IdleInterval)
      continue
    }

    res := d.dispatch(ctx, r)

    log.Trace().
      Stringer("Result", res).
      Int("QueueDepth", d.queue.Len()).
      Msg("Dispatched reading")

    // back off after a transient failure, whether the retry fit in the queue or not.
    if sink.IsTransient(res.Error) {
      sleep(ctx, d.RetryCooldown)
    }
  }

  d.discardPending()
}

func (d *Dispatcher) dispatch(ctx context.Context, r device.Reading) model.Result {
  res := model.Result{Reading: r, Outcome: model.OutcomeDelivered}

  if d.timeseries != nil {
    err := d.timeseries.Deliver(ctx, r)

    switch {
    case err == nil:
      deliveredCounter.WithLabelValues(d.timeseries.Name()).Inc()
    case sink.IsTransient(err):
      sinkErrorsCounter.WithLabelValues(d.timeseries.Name()).Inc()

      log.Warn().
        Err(err).
        Stringer("Reading", r).
        Dur("RetryCooldown", d.RetryCooldown).
        Msg("Failed to store reading, will retry")

      res.Error = err
      res.Outcome = d.requeue(r)

      return res
    default:
      sinkErrorsCounter.WithLabelValues(d.timeseries.Name()).Inc()
      droppedCounter.WithLabelValues(dropReasonRejected).Inc()

      log.Error().
        Err(err).
        Stringer("Reading", r).
        Msg("Reading rejected by time-series database, dropping it")

      res.Error = err
      res.Outcome = model.OutcomeDropped
    }
  }

  if d.pubsub != nil {
    if err := d.pubsub.Deliver(ctx, r); err != nil {
      sinkErrorsCounter.WithLabelValues(d.pubsub.Name()).Inc()

      log.Warn().
        Err(err).
        Stringer("Reading", r).
        Msg("Failed to publish reading")
    } else {
      deliveredCounter.WithLabelValues(d.pubsub.Name()).Inc()
    }
  }

  return res
}

func (d *Dispatcher) requeue(r device.Reading) model.Outcome {
  if err := d.queue.PushFront(r); err != nil {
    droppedCounter.WithLabelValues(dropReasonQueueFull).Inc()

    log.Warn().
      Err(err).
      Int("MaxItems", d.queue.MaxItems()).
      Stringer("Reading", r).
      Msg("Retry queue is full, discarding reading")

    return model.OutcomeDropped
  }

  requeuedCounter.Inc()

  return model.OutcomeRequeued
}

func (d *Dispatcher) discardPending() {
  pending := d.queue.Drain()

  if len(pending) == 0 {
    log.Info().Msg("Dispatcher stopped")
    return
  }

  droppedCounter.WithLabelValues(dropReasonShutdown).Add(float64(len(pending)))

  log.Warn().
    Int("Count", len(pending)).
    Msg("Dispatcher stopped with unsaved readings, discarding them")

  for _, r := range pending {
    log.Debug().Stringer("Reading", r).Msg("Discarded unsaved reading")
  }
}

func sleep(ctx context.Context, d time.Duration) {
  t := time.NewTimer(d)
  defer t.Stop()

  select {
  case <-ctx.Done():
  case <-t.C:
  }
}
