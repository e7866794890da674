package ble

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/robertof/go-mijia-exporter/utils"
	"github.com/rs/zerolog/log"
)

func WrapContextWithSigHandler(ctx context.Context, cancel func()) context.Context {
  return ble.WithSigHandler(ctx, cancel)
}

// Perform an active or passive scan and return every advertisement found, duplicates
// included.
func (h *Handle) ScanAll(ctx context.Context, onDevice func(Advertisement)) error {
  err := h.dev.Scan(ctx, true, onDevice)

  if err != nil && !utils.IsContextDone(err) {
    return fmt.Errorf("failed to initiate scan: %w", err)
  }

  return nil
}

// Scan until ctx is done or onPayload returns false, passing the address and raw
// payload (see RawPayload) of every advertisement to onPayload. Duplicates are never
// filtered: thermometers repeat the same advertisement until the reading changes, and
// each repetition is a fresh sample.
func (h *Handle) ScanRaw(
  parentCtx context.Context,
  onPayload func(addr string, payload []byte) bool,
) error {
  ctx, cancel := context.WithCancel(parentCtx)
  defer cancel()

  callback := func(a Advertisement) {
    // the BLE lib could send an advertisement even after `Scan()` returns. do not waste
    // time on it if we're done.
    select {
    case <-ctx.Done():
      return
    default:
    }

    advertisementsCounter.Inc()

    payload := RawPayload(a)

    if payload == nil {
      unframedAdvertisementsCounter.Inc()
      return
    }

    log.Trace().
      Stringer("Addr", a.Addr()).
      Hex("Payload", payload).
      Msg("ble: received advertisement")

    if !onPayload(a.Addr().String(), payload) {
      cancel()
    }
  }

  err := h.dev.Scan(ctx, true, callback)

  // swallow context.Canceled errors which are caused by our explicit cancellations.
  if errors.Is(err, context.Canceled) {
    err = nil
  }

  return err
}
