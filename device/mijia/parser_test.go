package mijia_test

import (
  "encoding/hex"
  "errors"
  "reflect"
  "testing"
  "time"

  "github.com/robertof/go-mijia-exporter/device"
  "github.com/robertof/go-mijia-exporter/device/mijia"
)

var now = time.Unix(1700000000, 0)

func mustHex(t *testing.T, s string) []byte {
  t.Helper()

  b, err := hex.DecodeString(s)
  if err != nil {
    t.Fatalf("bad test vector %q: %v", s, err)
  }

  return b
}

// test vectors captured from real thermometers
func TestPVVXAdvertisement(t *testing.T) {
  data := mustHex(t, "1312161a18332211ccbbaa670981108f0b54af04")

  adv, ok := mijia.Classify("aa:bb:cc:11:22:33", data)
  if !ok {
    t.Fatalf("Classify(%x) rejected a pvvx advertisement", data)
  }

  if adv.Firmware != device.FirmwarePVVX || adv.Addr != "AA:BB:CC:11:22:33" {
    t.Fatalf("Classify(%x): got %+v, wanted pvvx from AA:BB:CC:11:22:33", data, adv)
  }

  got, err := mijia.Decode(adv, now)
  if err != nil {
    t.Fatalf("Decode(%x) got error: %v", data, err)
  }

  want := device.Reading{
    Temperature: 24.07,
    Humidity:    42.25,
    Voltage:     2.959,
    Battery:     84,
    Counter:     175,
    Timestamp:   now.Unix(),
    Firmware:    device.FirmwarePVVX,
  }

  if !reflect.DeepEqual(got, want) {
    t.Fatalf("Decode(%x): got %+#v, wanted %+#v", data, got, want)
  }
}

func TestATCAdvertisement(t *testing.T) {
  data := mustHex(t, "1110161a18332211ccbbaa00f02a540b8faf")

  adv, ok := mijia.Classify("33:22:11:cc:bb:aa", data)
  if !ok {
    t.Fatalf("Classify(%x) rejected an atc1441 advertisement", data)
  }

  if adv.Firmware != device.FirmwareATC1441 || adv.Addr != "33:22:11:CC:BB:AA" {
    t.Fatalf("Classify(%x): got %+v, wanted atc1441 from 33:22:11:CC:BB:AA", data, adv)
  }

  got, err := mijia.Decode(adv, now)
  if err != nil {
    t.Fatalf("Decode(%x) got error: %v", data, err)
  }

  want := device.Reading{
    Temperature: 24.0,
    Humidity:    42,
    Voltage:     2.959,
    Battery:     84,
    Counter:     175,
    Timestamp:   now.Unix(),
    Firmware:    device.FirmwareATC1441,
  }

  if !reflect.DeepEqual(got, want) {
    t.Fatalf("Decode(%x): got %+#v, wanted %+#v", data, got, want)
  }
}

func TestATCAdvertisement_NegativeTemperature(t *testing.T) {
  // -5.3c
  data := mustHex(t, "1110161a18332211ccbbaaffcb2a540b8f01")

  adv, ok := mijia.Classify("33:22:11:CC:BB:AA", data)
  if !ok {
    t.Fatalf("Classify(%x) rejected an atc1441 advertisement", data)
  }

  got, err := mijia.Decode(adv, now)
  if err != nil {
    t.Fatalf("Decode(%x) got error: %v", data, err)
  }

  if got.Temperature != -5.3 {
    t.Fatalf("Decode(%x): got temperature %v, wanted -5.3", data, got.Temperature)
  }
}

func TestClassify_WrongService(t *testing.T) {
  base := mustHex(t, "1312161a18332211ccbbaa670981108f0b54af04")

  for _, uuid := range [][2]byte{{0x1b, 0x18}, {0x18, 0x1a}, {0x00, 0x00}, {0xff, 0xfe}} {
    data := append([]byte(nil), base...)
    data[3], data[4] = uuid[0], uuid[1]

    if adv, ok := mijia.Classify("AA:BB:CC:11:22:33", data); ok {
      t.Fatalf("Classify(%x): accepted service %x, got %+v", data, uuid, adv)
    }
  }
}

func TestClassify_AddressMismatch(t *testing.T) {
  data := mustHex(t, "1312161a18332211ccbbaa670981108f0b54af04")

  // not reversed: that's how atc1441 would send it, pvvx sends it little endian.
  if adv, ok := mijia.Classify("33:22:11:CC:BB:AA", data); ok {
    t.Fatalf("Classify(%x): accepted a mismatching address, got %+v", data, adv)
  }

  if adv, ok := mijia.Classify("AA:BB:CC:11:22:34", data); ok {
    t.Fatalf("Classify(%x): accepted a mismatching address, got %+v", data, adv)
  }
}

func TestClassify_TooShort(t *testing.T) {
  for _, s := range []string{"", "13", "1312161a", "1312161a18", "1312161a18332211ccbb"} {
    data := mustHex(t, s)

    if adv, ok := mijia.Classify("33:22:11:CC:BB:AA", data); ok {
      t.Fatalf("Classify(%x): accepted a truncated advertisement, got %+v", data, adv)
    }
  }
}

func TestClassify_FirmwareByLength(t *testing.T) {
  header := mustHex(t, "1110161a18332211ccbbaa")

  for n := len(header); n <= 31; n += 1 {
    data := make([]byte, n)
    copy(data, header)

    wantFirmware := device.FirmwareATC1441
    addr := "33:22:11:CC:BB:AA"

    if n == 19 || n == 20 || n == 21 {
      wantFirmware = device.FirmwarePVVX
      addr = "AA:BB:CC:11:22:33"
    }

    adv, ok := mijia.Classify(addr, data)

    if !ok {
      t.Fatalf("Classify(len=%d) rejected the advertisement", n)
    }

    if adv.Firmware != wantFirmware {
      t.Fatalf("Classify(len=%d): got firmware %v, wanted %v", n, adv.Firmware, wantFirmware)
    }
  }
}

func TestDecode_ShortPayload(t *testing.T) {
  header := mustHex(t, "1110161a18332211ccbbaa")

  // everything up to 17 bytes is atc1441 but can't hold a full reading.
  for n := len(header); n < 18; n += 1 {
    data := make([]byte, n)
    copy(data, header)

    adv, ok := mijia.Classify("33:22:11:CC:BB:AA", data)
    if !ok {
      t.Fatalf("Classify(len=%d) rejected the advertisement", n)
    }

    got, err := mijia.Decode(adv, now)

    if !errors.Is(err, device.ErrInvalidData) {
      t.Fatalf("Decode(len=%d): got error %v, wanted %v", n, err, device.ErrInvalidData)
    }

    if !reflect.DeepEqual(got, device.Reading{}) {
      t.Fatalf("Decode(len=%d): got partial reading %+v", n, got)
    }
  }
}

func TestFactory_FromSpec(t *testing.T) {
  f := mijia.Factory{}

  got, err := f.FromSpec(device.NewDeviceSpec("addr=a4:c1:38:01:02:03,tag.room=kitchen"))
  if err != nil {
    t.Fatalf("FromSpec got error: %v", err)
  }

  want := device.Thermometer{
    Address: "A4:C1:38:01:02:03",
    Name:    "mijia-a4c138010203",
    Tags:    map[string]string{"room": "kitchen"},
  }

  if !reflect.DeepEqual(got, want) {
    t.Fatalf("FromSpec: got %+#v, wanted %+#v", got, want)
  }

  if _, err := f.FromSpec(device.NewDeviceSpec("addr=nope,name=x")); !errors.Is(err, device.ErrInvalidDevice) {
    t.Fatalf("FromSpec with a bad address: got error %v, wanted %v", err, device.ErrInvalidDevice)
  }
}
