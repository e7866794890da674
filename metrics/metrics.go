package metrics

import (
  "time"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/go-mijia-exporter/device"
)

var (
  labels = []string{"name", "address"}

  descTemperature = prometheus.NewDesc(
    "sensor_temperature_celsius",
    "Temperature reported by the sensor in Celsius.",
    labels,
    nil,
  )

  descHumidity = prometheus.NewDesc(
    "sensor_humidity_ratio",
    "Relative humidity reported by the sensor.",
    labels,
    nil,
  )

  descBattery = prometheus.NewDesc(
    "sensor_battery_ratio",
    "Battery percentage reported by the sensor.",
    labels,
    nil,
  )

  descVoltage = prometheus.NewDesc(
    "sensor_voltage_volts",
    "Battery voltage reported by the sensor.",
    labels,
    nil,
  )

  descFirmware = prometheus.NewDesc(
    "sensor_firmware_info",
    "Custom firmware the sensor is running.",
    []string{"name", "address", "firmware"},
    nil,
  )
)

// CollectFunc returns the latest reading of every thermometer, keyed by address.
type CollectFunc func() (map[string]device.Reading, time.Time)

type collector struct {
  CollectFunc
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
  prometheus.DescribeByCollect(c, ch)
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
  out, _ := c.CollectFunc()

  for addr, reading := range out {
    name := reading.Name()
    // readings carry their own ingestion time, which is more accurate than the time
    // of the last update overall.
    ts := time.Unix(reading.Timestamp, 0)

    gauge := func(desc *prometheus.Desc, value float64, extraLabels ...string) {
      m := prometheus.MustNewConstMetric(
        desc,
        prometheus.GaugeValue,
        value,
        append([]string{name, addr}, extraLabels...)...,
      )

      ch <- prometheus.NewMetricWithTimestamp(ts, m)
    }

    gauge(descTemperature, reading.Temperature)
    gauge(descHumidity, reading.Humidity / 100)
    gauge(descBattery, float64(reading.Battery) / 100)
    gauge(descVoltage, reading.Voltage)
    gauge(descFirmware, 1, reading.Firmware.String())
  }
}

func RegisterCollector(f CollectFunc, reg prometheus.Registerer) {
  c := &collector{f}

  reg.MustRegister(c)
}
