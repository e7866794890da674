package ble

const (
  adTypeServiceData16 = 0x16

  // length byte of an AD structure and of the whole report.
  maxADLength = 0xff
)

// rawAdvertisement is implemented by advertisements coming straight from the HCI
// layer, which keep the undecoded AD structures around.
type rawAdvertisement interface {
  Data() []byte
}

// RawPayload rebuilds the advertising report the way it came off the air: one length
// byte followed by the AD structures. Returns nil if there's nothing to frame.
//
// Advertisements that don't expose their raw data are rebuilt from their first 16-bit
// service data element, which is the only structure thermometers care about.
func RawPayload(a Advertisement) []byte {
  var ad []byte

  if raw, ok := a.(rawAdvertisement); ok {
    ad = raw.Data()
  }

  if len(ad) == 0 {
    ad = serviceDataStructure(a.ServiceData())
  }

  if len(ad) == 0 || len(ad) > maxADLength {
    return nil
  }

  payload := make([]byte, 0, len(ad) + 1)
  payload = append(payload, byte(len(ad)))

  return append(payload, ad...)
}

func serviceDataStructure(sds []ServiceData) []byte {
  for _, sd := range sds {
    // UUIDs are stored little endian, same as on the air.
    if len(sd.UUID) != 2 || len(sd.Data) + 3 > maxADLength {
      continue
    }

    ad := make([]byte, 0, len(sd.Data) + 4)
    ad = append(ad, byte(len(sd.Data) + 3), adTypeServiceData16)
    ad = append(ad, sd.UUID...)

    return append(ad, sd.Data...)
  }

  return nil
}
