package ble

import (
  "fmt"
  "net"

  "github.com/go-ble/ble"
  "github.com/go-ble/ble/linux"
  "github.com/go-ble/ble/linux/hci/cmd"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/go-mijia-exporter/utils"
  "github.com/rs/zerolog/log"
)

type Advertisement = ble.Advertisement
type ServiceData = ble.ServiceData

var (
  advertisementsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "mijia_exporter_ble_advertisements_total",
    Help: "Number of advertisements received from the Bluetooth adapter.",
  })
  unframedAdvertisementsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "mijia_exporter_ble_unframed_advertisements_total",
    Help: "Number of advertisements whose raw payload could not be reconstructed.",
  })
)

type Handle struct {
  dev *linux.Device
}

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(
    advertisementsCounter,
    unframedAdvertisementsCounter,
  )
}

func InitWithScanParams(deviceId int, scanParams ScanParams, flags Flags) (*Handle, error) {
  var scanType scanType = scanTypePassive
  var filterPolicy filterPolicy = filterPolicyAcceptAll

  if flags.Has(FlagScanTypeActive) {
    scanType = scanTypeActive
  }

  if flags.Has(FlagEnableDeviceAllowList) {
    filterPolicy = filterPolicyAllowListedOnly
  }

  log.Debug().
    Stringer("ScanType", scanType).
    Stringer("FilterPolicy", filterPolicy).
    Stringer("ScanParams", &scanParams).
    Stringer("Flags", flags).
    Int("DeviceID", deviceId).
    Msg("Initializing Bluetooth device")

  dev, err := linux.NewDevice(
    ble.OptDeviceID(deviceId),
    ble.OptScanParams(scanParams.adapterOptions(scanType, filterPolicy)),
  )

  if err != nil {
    return nil, fmt.Errorf("failed to init bluetooth device: %w", err)
  }

  ble.SetDefaultDevice(dev)

  return &Handle{
    dev: dev,
  }, nil
}

// SetAllowListedAddresses programs the controller's allow-list, so that it drops
// advertisements from everything else before they reach us. Only effective when the
// handle was created with FlagEnableDeviceAllowList.
func (h *Handle) SetAllowListedAddresses(a []net.HardwareAddr) error {
  log.Debug().
    Array("DeviceAddresses", utils.ToZeroLogArray(a)).
    Msg("Allow-listing the requested Bluetooth devices")

  // clear the white list to make sure we're starting from an empty slate.
  var res cmd.LEClearWhiteListRP

  err := h.dev.HCI.Send(&cmd.LEClearWhiteList{}, &res)

  if err != nil {
    return fmt.Errorf("failed to clear allow-list: %w", err)
  }

  if res.Status != 0 {
    return fmt.Errorf("failed to clear allow-list: got status: %v", res.Status)
  }

  for _, addr := range a {
    if len(addr) != 6 {
      return fmt.Errorf("failed to allow-list device %q: not a 6 byte address", addr.String())
    }

    var res cmd.LEAddDeviceToWhiteListRP
    var hciAddr [6]byte

    // HCI wants the address least significant byte first.
    copy(hciAddr[:], utils.Reverse(addr))

    err := h.dev.HCI.Send(&cmd.LEAddDeviceToWhiteList{
      AddressType: 0x00, // public
      Address:     hciAddr,
    }, &res)

    if err != nil {
      return fmt.Errorf("failed to allow-list device %q: %w", addr.String(), err)
    }

    if res.Status != 0 {
      return fmt.Errorf("failed to allow-list device %q: got status: %v", addr.String(), res.Status)
    }
  }

  return nil
}

func (h *Handle) Stop() {
  h.dev.Stop()
}
