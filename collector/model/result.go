package model

import (
	"fmt"

	"github.com/robertof/go-mijia-exporter/device"
)

// Outcome is what happened to a reading after one dispatch attempt.
type Outcome uint8

const (
  // Accepted by the time-series sink (or no time-series sink is configured).
  OutcomeDelivered Outcome = iota
  // Transient failure, back at the head of the retry queue.
  OutcomeRequeued
  // Discarded, either rejected by the sink or the queue was full.
  OutcomeDropped
)

func (o Outcome) String() string {
  switch o {
  case OutcomeDelivered:
    return "delivered"
  case OutcomeRequeued:
    return "requeued"
  case OutcomeDropped:
    return "dropped"
  default:
    return fmt.Sprintf("outcome(%d)", uint8(o))
  }
}

type Result struct {
  Reading device.Reading
  Outcome Outcome
  Error error
}

func (c Result) String() string {
  if c.Error != nil {
    return fmt.Sprintf("result:%v(%v, %v)", c.Outcome, c.Reading, c.Error)
  } else {
    return fmt.Sprintf("result:%v(%v)", c.Outcome, c.Reading)
  }
}
