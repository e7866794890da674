package ble

import (
  "fmt"
  "slices"

  "github.com/go-ble/ble/linux/hci/cmd"
)

// ScanParams selects how aggressively the adapter listens for advertisements.
type ScanParams string

const (
  // Listen continuously. Catches every advertisement, at the cost of keeping the
  // radio busy.
  ScanParamsDefault     ScanParams = "default"
  // Listen for 30ms every 1.28s. Thermometers advertise every few seconds, so
  // readings still come in, just fewer of them.
  ScanParamsPowerSaving ScanParams = "power-saving"
)

var allScanParams = []ScanParams{ScanParamsDefault, ScanParamsPowerSaving}

// *flag.Value
func (p *ScanParams) String() string {
  return string(*p)
}

func (p *ScanParams) Set(v string) error {
  if v == "" {
    *p = ScanParamsDefault
    return nil
  }

  sp := ScanParams(v)

  if !slices.Contains(allScanParams, sp) {
    return fmt.Errorf("unknown scan params %v (must be one of %v)", sp, allScanParams)
  }

  *p = sp
  return nil
}

func (p ScanParams) adapterOptions(scanType scanType, filterPolicy filterPolicy) cmd.LESetScanParameters {
  sp := cmd.LESetScanParameters{
    LEScanType:           uint8(scanType),     // 0x00: passive, 0x01: active
    LEScanInterval:       0x0004,              // 0x0004 - 0x4000; N * 0.625msec
    LEScanWindow:         0x0004,              // 0x0004 - 0x4000; N * 0.625msec
    OwnAddressType:       0x00,                // 0x00: public, 0x01: random
    ScanningFilterPolicy: uint8(filterPolicy), // 0x00: accept all, 0x01: ignore non-allow-listed.
  }

  switch p {
  case ScanParamsDefault, "":
    break
  case ScanParamsPowerSaving:
    sp.LEScanInterval = 0x0800 // 1.28s
    sp.LEScanWindow   = 0x0030 // 30ms
  default:
    panic("unknown Bluetooth scan params: " + p)
  }

  return sp
}
