package device

import (
  "strings"

  "github.com/rs/zerolog/log"
)

// DeviceSpec is a device definition given on the command line, in the form
// `addr=A4:C1:38:00:00:01,name=kitchen,tag.room=kitchen`.
type DeviceSpec map[string]string

const (
  DeviceSpecFieldName = "name"
  DeviceSpecFieldAddress = "addr"
  DeviceSpecTagPrefix = "tag."
)

func NewDeviceSpec(s string) DeviceSpec {
  spec := DeviceSpec{}
  entries := strings.Split(s, ",")

  for _, entry := range entries {
    parts := strings.SplitN(entry, "=", 2)

    if len(parts) != 2 {
      log.Warn().Str("Entry", entry).Msg("Skipping invalid device spec entry")
      continue
    }

    spec[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
  }

  return spec
}

func (ds DeviceSpec) Name() string {
  return ds[DeviceSpecFieldName]
}

func (ds DeviceSpec) Addr() string {
  return ds[DeviceSpecFieldAddress]
}

// Tags returns every `tag.<key>=<value>` entry with the prefix stripped.
func (ds DeviceSpec) Tags() map[string]string {
  var tags map[string]string

  for k, v := range ds {
    key, ok := strings.CutPrefix(k, DeviceSpecTagPrefix)

    if !ok || key == "" {
      continue
    }

    if tags == nil {
      tags = make(map[string]string)
    }

    tags[key] = v
  }

  return tags
}
