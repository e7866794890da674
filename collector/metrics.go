package collector

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
  dropReasonRejected = "rejected"
  dropReasonQueueFull = "queue_full"
  dropReasonShutdown = "shutdown"
)

var (
  readingsCounter = prometheus.NewCounterVec(
    prometheus.CounterOpts{
      Name: "mijia_exporter_readings_total",
      Help: "Number of advertisements decoded into a reading, by firmware.",
    },
    []string{"firmware"},
  )

  decodeErrorsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "mijia_exporter_decode_errors_total",
    Help: "Number of advertisements that looked like a thermometer but could not be decoded.",
  })

  unmatchedCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "mijia_exporter_unmatched_readings_total",
    Help: "Number of readings from thermometers that are not in the allow-list.",
  })

  enqueuedCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "mijia_exporter_enqueued_total",
    Help: "Number of readings queued for delivery.",
  })

  deliveredCounter = prometheus.NewCounterVec(
    prometheus.CounterOpts{
      Name: "mijia_exporter_delivered_total",
      Help: "Number of readings accepted by a sink.",
    },
    []string{"sink"},
  )

  sinkErrorsCounter = prometheus.NewCounterVec(
    prometheus.CounterOpts{
      Name: "mijia_exporter_sink_errors_total",
      Help: "Number of failed deliveries, by sink.",
    },
    []string{"sink"},
  )

  requeuedCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "mijia_exporter_requeued_total",
    Help: "Number of readings put back in the retry queue after a transient failure.",
  })

  droppedCounter = prometheus.NewCounterVec(
    prometheus.CounterOpts{
      Name: "mijia_exporter_dropped_total",
      Help: "Number of readings never stored in the time-series database, by reason.",
    },
    []string{"reason"},
  )
)

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(
    readingsCounter,
    decodeErrorsCounter,
    unmatchedCounter,
    enqueuedCounter,
    deliveredCounter,
    sinkErrorsCounter,
    requeuedCounter,
    droppedCounter,
  )
}

func newQueueDepthGauge(q *Queue) prometheus.GaugeFunc {
  return prometheus.NewGaugeFunc(
    prometheus.GaugeOpts{
      Name: "mijia_exporter_queue_depth",
      Help: "Number of readings waiting for delivery.",
    },
    func() float64 { return float64(q.Len()) },
  )
}
