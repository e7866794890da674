package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertof/go-mijia-exporter/ble"
	"github.com/robertof/go-mijia-exporter/collector"
	"github.com/robertof/go-mijia-exporter/config"
	"github.com/robertof/go-mijia-exporter/device/mijia"
	"github.com/robertof/go-mijia-exporter/metrics"
	"github.com/robertof/go-mijia-exporter/sink/influx"
	"github.com/robertof/go-mijia-exporter/sink/mqtt"
	"github.com/robertof/go-mijia-exporter/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
  zerolog.DurationFieldUnit = time.Second
  zerolog.TimeFieldFormat = time.RFC3339Nano

  log.Logger = log.Output(zerolog.ConsoleWriter{
    Out: os.Stderr,
    TimeFormat: "15:04:05.000",
  })

  opts := ParseArgs(os.Args[1:])
  cfg, err := loadConfig(opts)

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to load configuration")
  }

  zerolog.SetGlobalLevel(logLevel(opts, cfg))

  log.Debug().
    Interface("Config", cfg.Redacted()).
    Msg("Loaded configuration")

  if opts.DiscoverDevices {
    doDeviceDiscovery(cfg)
    return
  }

  if err := run(cfg); err != nil {
    log.Fatal().Err(err).Msg("Exporter stopped with an error")
  }
}

func logLevel(opts options, cfg *config.Config) zerolog.Level {
  if opts.Trace || os.Getenv("TRACE") != "" {
    return zerolog.TraceLevel
  } else if opts.Debug || os.Getenv("DEBUG") != "" {
    return zerolog.DebugLevel
  }

  // already validated.
  level, _ := cfg.Logging.ZerologLevel()

  return level
}

func run(cfg *config.Config) error {
  log.Info().
    Array("Thermometers", utils.ToZeroLogObjectArray(cfg.Thermometers)).
    Bool("DiscoveryMode", cfg.DiscoveryMode).
    Bool("InfluxDB", cfg.InfluxDB.Enabled).
    Bool("MQTT", cfg.MQTT.Enabled).
    Int("BluetoothDeviceID", cfg.BLE.DeviceID).
    Msg("Starting with the specified configuration")

  if cfg.DiscoveryMode && zerolog.GlobalLevel() > zerolog.InfoLevel {
    log.Warn().Msg("Discovery mode is enabled but the log level hides discovered thermometers")
  }

  ctx, cancel := context.WithCancel(context.Background())
  defer cancel()

  ctx = ble.WrapContextWithSigHandler(ctx, cancel)

  svcOpts := collector.Options{
    Backend: mijia.Backend{},
    Thermometers: cfg.Thermometers,
    DiscoveryMode: cfg.DiscoveryMode,
    MaxItems: cfg.ErrorBuffer.MaxItems,
    IdleInterval: cfg.Dispatch.IdleInterval,
    RetryCooldown: cfg.Dispatch.RetryCooldown,
  }

  if cfg.InfluxDB.Enabled {
    client, err := influx.New(cfg.InfluxDB, cfg.Dispatch.SinkTimeout)

    if err != nil {
      return err
    }

    log.Info().Str("Endpoint", client.Endpoint()).Msg("Storing readings in InfluxDB")

    svcOpts.TimeSeries = client
  }

  if cfg.MQTT.Enabled {
    publisher, err := mqtt.Connect(cfg.MQTT, cfg.Dispatch.SinkTimeout)

    if err != nil {
      return err
    }

    defer publisher.Close()

    svcOpts.PubSub = publisher
  }

  svc := collector.NewService(svcOpts)

  bleHandle, err := initBle(cfg)

  if err != nil {
    return err
  }

  defer bleHandle.Stop()

  if cfg.Metrics.Enabled {
    srv := startMetricsServer(cfg.Metrics, svc)

    defer func() {
      shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
      defer cancel()

      _ = srv.Shutdown(shutdownCtx)
    }()
  }

  return svc.Run(ctx, bleHandle)
}

func initBle(cfg *config.Config) (*ble.Handle, error) {
  // discovery mode needs to see every thermometer in range.
  useAllowList := cfg.BLE.HWAllowList && !cfg.DiscoveryMode && len(cfg.Thermometers) > 0

  var scanParams ble.ScanParams

  if err := scanParams.Set(cfg.BLE.ScanParams); err != nil {
    return nil, err
  }

  bleHandle, err := ble.InitWithScanParams(
    cfg.BLE.DeviceID,
    scanParams,
    ble.FlagsFor(cfg.BLE.ActiveScan, useAllowList),
  )

  if err != nil {
    return nil, err
  }

  if useAllowList {
    addresses := make([]net.HardwareAddr, len(cfg.Thermometers))

    for i, t := range cfg.Thermometers {
      addresses[i] = t.Addr()
    }

    if err := bleHandle.SetAllowListedAddresses(addresses); err != nil {
      log.Error().Err(err).Msg("Failed to set device allow list")
    }
  }

  return bleHandle, nil
}

func startMetricsServer(cfg config.MetricsConfig, svc *collector.Service) *http.Server {
  registry := prometheus.NewRegistry()

  metrics.RegisterCollector(svc.Latest.Latest, registry)

  if cfg.Metamonitoring {
    registry.MustRegister(
      collectors.NewGoCollector(),
      collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
    )

    ble.RegisterMetrics(registry)
    collector.RegisterMetrics(registry)
    svc.RegisterMetrics(registry)
  }

  mux := http.NewServeMux()
  mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

  srv := &http.Server{
    Addr: cfg.Bind,
    Handler: mux,
    ReadHeaderTimeout: 5 * time.Second,
  }

  log.Info().
    Str("ListenAddress", cfg.Bind).
    Msg("Starting Prometheus server")

  go func() {
    if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
      log.Fatal().Err(err).Msg("Unable to bind on requested address")
    }
  }()

  return srv
}
