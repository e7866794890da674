package collector

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/robertof/go-mijia-exporter/device"
	"github.com/robertof/go-mijia-exporter/device/mijia"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Unix(1700000000, 0)

func newTestIngestor(thermometers ...device.Thermometer) (*Ingestor, *Queue, *Latest) {
  q := NewQueue(10)
  l := NewLatest()

  i := NewIngestor(mijia.Backend{}, NewDeviceFilter(thermometers), q, l)
  i.now = func() time.Time { return testNow }

  return i, q, l
}

func TestIngestor_MatchedReading(t *testing.T) {
  i, q, l := newTestIngestor(device.Thermometer{Address: pvvxAddr, Name: "kitchen"})
  enqueued := testutil.ToFloat64(enqueuedCounter)

  ok := i.HandleAdvertisement(context.Background(), "aa:bb:cc:11:22:33", mustHex(t, pvvxPayload))
  assert.True(t, ok)

  require.Equal(t, 1, q.Len())

  r, _ := q.PopFront()
  assert.Equal(t, 24.07, r.Temperature)
  assert.Equal(t, 42.25, r.Humidity)
  assert.Equal(t, 2.959, r.Voltage)
  assert.Equal(t, testNow.Unix(), r.Timestamp)
  assert.Equal(t, device.FirmwarePVVX, r.Firmware)
  require.NotNil(t, r.Sensor)
  assert.Equal(t, "kitchen", r.Sensor.Name)

  latest, _ := l.Latest()
  assert.Contains(t, latest, pvvxAddr)

  assert.Equal(t, enqueued + 1, testutil.ToFloat64(enqueuedCounter))
}

func TestIngestor_ATCReading(t *testing.T) {
  i, q, _ := newTestIngestor(device.Thermometer{Address: atcAddr, Name: "garage"})

  i.HandleAdvertisement(context.Background(), atcAddr, mustHex(t, atcPayload))

  r, ok := q.PopFront()
  require.True(t, ok)
  assert.Equal(t, 24.0, r.Temperature)
  assert.Equal(t, 42.0, r.Humidity)
  assert.Equal(t, device.FirmwareATC1441, r.Firmware)
}

func TestIngestor_Ignored(t *testing.T) {
  tests := []struct {
    name string
    addr string
    payload string
  }{
    {name: "not in allow-list", addr: atcAddr, payload: atcPayload},
    {name: "other service", addr: pvvxAddr, payload: "1312160f18332211ccbbaa670981108f0b54af04"},
    {name: "embedded address mismatch", addr: "11:11:11:11:11:11", payload: pvvxPayload},
    {name: "truncated", addr: pvvxAddr, payload: "0302"},
  }

  for _, tt := range tests {
    t.Run(tt.name, func(t *testing.T) {
      i, q, _ := newTestIngestor(device.Thermometer{Address: pvvxAddr, Name: "kitchen"})

      assert.True(t, i.HandleAdvertisement(context.Background(), tt.addr, mustHex(t, tt.payload)))
      assert.Zero(t, q.Len())
    })
  }
}

func TestIngestor_EmptyAllowList(t *testing.T) {
  i, q, _ := newTestIngestor()
  unmatched := testutil.ToFloat64(unmatchedCounter)

  i.HandleAdvertisement(context.Background(), pvvxAddr, mustHex(t, pvvxPayload))
  i.HandleAdvertisement(context.Background(), atcAddr, mustHex(t, atcPayload))

  assert.Zero(t, q.Len())
  assert.Equal(t, unmatched + 2, testutil.ToFloat64(unmatchedCounter))
}

func TestIngestor_DiscoveryMode(t *testing.T) {
  i, q, _ := newTestIngestor()
  i.DiscoveryMode = true

  assert.True(t, i.HandleAdvertisement(context.Background(), pvvxAddr, mustHex(t, pvvxPayload)))
  assert.Zero(t, q.Len())
}

func TestIngestor_DecodeError(t *testing.T) {
  // right service and address, but cut off in the middle of the reading.
  i, q, _ := newTestIngestor(device.Thermometer{Address: atcAddr, Name: "garage"})
  decodeErrors := testutil.ToFloat64(decodeErrorsCounter)

  assert.True(t, i.HandleAdvertisement(context.Background(), atcAddr, mustHex(t, "1110161a18332211ccbbaa00f0")))
  assert.Zero(t, q.Len())
  assert.Equal(t, decodeErrors + 1, testutil.ToFloat64(decodeErrorsCounter))
}

func TestIngestor_RecoversFromPanic(t *testing.T) {
  q := NewQueue(10)
  i := NewIngestor(panickingBackend{}, NewDeviceFilter(nil), q, nil)

  assert.NotPanics(t, func() {
    assert.True(t, i.HandleAdvertisement(context.Background(), pvvxAddr, []byte{0x01}))
  })
}

func TestIngestor_StopsWhenCancelled(t *testing.T) {
  i, q, _ := newTestIngestor(device.Thermometer{Address: pvvxAddr, Name: "kitchen"})

  ctx, cancel := context.WithCancel(context.Background())
  cancel()

  assert.False(t, i.HandleAdvertisement(ctx, pvvxAddr, mustHex(t, pvvxPayload)))
  assert.Zero(t, q.Len())
}
