package mijia

import (
  "encoding/binary"
  "net"
  "strings"
  "time"

  "github.com/pkg/errors"
  "github.com/robertof/go-mijia-exporter/device"
  "github.com/robertof/go-mijia-exporter/utils"
)

// Both atc1441 and pvvx advertise on GATT service 0x181A (Environmental Sensing).
// The raw payload starts with the report length byte followed by the AD structure:
//
//   [0] len [1] ad len [2] 0x16 [3:5] service uuid (LE) [5:11] mac [11:] reading
//
// see https://github.com/pvvx/ATC_MiThermometer#bluetooth-advertising-formats
const (
  EnvironmentalSensingUUID = 0x181a

  serviceOffset = 3
  addrOffset = 5
  readingOffset = 11

  atcReadingLen = 7
  pvvxReadingLen = 8
)

// Backend is the passive backend for both firmware flavours.
type Backend struct{}

// There is no version marker in the payload: pvvx is told apart by its length only.
// Lengths 19..21 are pvvx (address bytes are little endian), anything else is atc1441.
func firmwareForLength(n int) device.Firmware {
  if n > 18 && n < 22 {
    return device.FirmwarePVVX
  }

  return device.FirmwareATC1441
}

// Classify checks that data is an advertisement from one of our thermometers sent by
// addr. Unrelated advertisements are rejected without error.
func Classify(addr string, data []byte) (a device.Advertisement, ok bool) {
  if len(data) < addrOffset || binary.LittleEndian.Uint16(data[serviceOffset:]) != EnvironmentalSensingUUID {
    return a, false
  }

  if len(data) < readingOffset {
    return a, false
  }

  firmware := firmwareForLength(len(data))
  mac := data[addrOffset:readingOffset]

  if firmware == device.FirmwarePVVX {
    mac = utils.Reverse(mac)
  }

  // the address is also embedded into the data. make sure it matches, it's the only
  // thing telling us apart from anything else on 0x181A.
  dataAddr := strings.ToUpper(net.HardwareAddr(mac).String())

  if dataAddr != strings.ToUpper(addr) {
    return a, false
  }

  return device.Advertisement{
    Addr: dataAddr,
    Firmware: firmware,
    Data: data,
  }, true
}

// Decode extracts the reading from a classified advertisement. The timestamp is the
// ingestion time.
func Decode(a device.Advertisement, now time.Time) (reading device.Reading, err error) {
  switch a.Firmware {
  case device.FirmwarePVVX:
    reading, err = decodePVVX(a.Data)
  case device.FirmwareATC1441:
    reading, err = decodeATC(a.Data)
  default:
    return reading, errors.Wrapf(device.ErrInvalidData, "unknown firmware %d", a.Firmware)
  }

  if err != nil {
    return device.Reading{}, err
  }

  reading.Firmware = a.Firmware
  reading.Timestamp = now.Unix()

  return reading, nil
}

func decodeATC(data []byte) (reading device.Reading, err error) {
  if len(data) < readingOffset + atcReadingLen {
    return reading, errors.Wrapf(device.ErrInvalidData,
      "atc1441: unexpected data length (%d), want >= %d", len(data), readingOffset + atcReadingLen)
  }

  bo := binary.BigEndian
  payload := data[readingOffset:]

  rawTemp := int16(bo.Uint16(payload))

  reading.Temperature = float64(rawTemp) / 10.0
  reading.Humidity = float64(payload[2])
  reading.Battery = payload[3]
  reading.Voltage = float64(bo.Uint16(payload[4:])) / 1000
  reading.Counter = payload[6]

  return reading, nil
}

func decodePVVX(data []byte) (reading device.Reading, err error) {
  if len(data) < readingOffset + pvvxReadingLen {
    return reading, errors.Wrapf(device.ErrInvalidData,
      "pvvx: unexpected data length (%d), want >= %d", len(data), readingOffset + pvvxReadingLen)
  }

  bo := binary.LittleEndian
  payload := data[readingOffset:]

  rawTemp := int16(bo.Uint16(payload)) // signed, Go does 2's complement when casting.

  reading.Temperature = float64(rawTemp) / 100.0
  reading.Humidity = float64(bo.Uint16(payload[2:])) / 100.0
  reading.Voltage = float64(bo.Uint16(payload[4:])) / 1000
  reading.Battery = payload[6]
  reading.Counter = payload[7]

  return reading, nil
}

func (Backend) Classify(addr string, data []byte) (device.Advertisement, bool) {
  return Classify(addr, data)
}

func (Backend) Decode(a device.Advertisement, now time.Time) (device.Reading, error) {
  return Decode(a, now)
}
