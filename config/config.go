// Package config loads the exporter configuration from YAML files and ATC_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/robertof/go-mijia-exporter/device"
)

// DefaultPaths are read in order, missing files are skipped.
var DefaultPaths = []string{"config_default.yaml", "custom.yml"}

// EnvPrefix is the prefix of every environment override, e.g. ATC_INFLUXDB_URL.
const EnvPrefix = "ATC_"

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Logging       LoggingConfig        `yaml:"logging"`
	DiscoveryMode bool                 `yaml:"discovery_mode"`
	BLE           BLEConfig            `yaml:"ble"`
	Thermometers  []device.Thermometer `yaml:"thermometers"`
	ErrorBuffer   ErrorBufferConfig    `yaml:"errorbuffer"`
	Dispatch      DispatchConfig       `yaml:"dispatch"`
	InfluxDB      InfluxDBConfig       `yaml:"influxdb"`
	MQTT          MQTTConfig           `yaml:"mqtt"`
	Metrics       MetricsConfig        `yaml:"metrics"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type BLEConfig struct {
	DeviceID   int  `yaml:"device_id"`
	ActiveScan bool `yaml:"active_scan"`
	// Push the thermometers into the controller allow-list. Discovery mode ignores it.
	HWAllowList bool `yaml:"hw_allowlist"`
	// "default" or "power-saving".
	ScanParams string `yaml:"scan_params"`
}

// ErrorBufferConfig bounds the number of readings waiting for a retry.
type ErrorBufferConfig struct {
	MaxItems int `yaml:"max_items"`
}

type DispatchConfig struct {
	IdleInterval  time.Duration `yaml:"idle_interval"`
	RetryCooldown time.Duration `yaml:"retry_cooldown"`
	SinkTimeout   time.Duration `yaml:"sink_timeout"`
}

type InfluxDBConfig struct {
	Enabled     bool   `yaml:"enabled"`
	URL         string `yaml:"url"`
	Database    string `yaml:"database"`
	Precision   string `yaml:"precision"`
	Measurement string `yaml:"measurement"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	Port        int    `yaml:"port"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	// Export the exporter's own counters along with the readings.
	Metamonitoring bool `yaml:"metamonitoring"`
}

func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		ErrorBuffer: ErrorBufferConfig{
			MaxItems: 1000,
		},
		Dispatch: DispatchConfig{
			IdleInterval:  time.Second,
			RetryCooldown: 5 * time.Second,
			SinkTimeout:   time.Second,
		},
		InfluxDB: InfluxDBConfig{
			URL:         "http://localhost:8086",
			Database:    "sensors",
			Precision:   "s",
			Measurement: "temperature",
		},
		MQTT: MQTTConfig{
			Broker:      "localhost",
			Port:        1883,
			ClientID:    "mijia-exporter",
			TopicPrefix: "mijia",
		},
		BLE: BLEConfig{
			ScanParams: "default",
		},
		Metrics: MetricsConfig{
			Bind:           "localhost:9103",
			Metamonitoring: true,
		},
	}
}

// Load reads the given files on top of the defaults, applies the environment
// overrides and validates the result. Every path must exist.
func Load(paths ...string) (*Config, error) {
	cfg := defaultConfig()

	for _, path := range paths {
		if err := cfg.merge(path); err != nil {
			return nil, err
		}
	}

	return finish(cfg)
}

// LoadDefault behaves like Load with DefaultPaths, skipping the ones that don't exist.
func LoadDefault() (*Config, error) {
	cfg := defaultConfig()

	for _, path := range DefaultPaths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}

		if err := cfg.merge(path); err != nil {
			return nil, err
		}
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) merge(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
	if err != nil {
		return fmt.Errorf("reading config file %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %q: %w", path, err)
	}

	return nil
}

func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"LOGGING_LEVEL":        &cfg.Logging.Level,
		"INFLUXDB_URL":         &cfg.InfluxDB.URL,
		"INFLUXDB_DATABASE":    &cfg.InfluxDB.Database,
		"INFLUXDB_PRECISION":   &cfg.InfluxDB.Precision,
		"INFLUXDB_MEASUREMENT": &cfg.InfluxDB.Measurement,
		"MQTT_BROKER":          &cfg.MQTT.Broker,
		"MQTT_CLIENT_ID":       &cfg.MQTT.ClientID,
		"MQTT_USERNAME":        &cfg.MQTT.Username,
		"MQTT_PASSWORD":        &cfg.MQTT.Password,
		"MQTT_TOPIC_PREFIX":    &cfg.MQTT.TopicPrefix,
		"METRICS_BIND":         &cfg.Metrics.Bind,
		"BLE_SCAN_PARAMS":      &cfg.BLE.ScanParams,
	}

	for name, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"DISCOVERY_MODE":   &cfg.DiscoveryMode,
		"BLE_ACTIVE_SCAN":  &cfg.BLE.ActiveScan,
		"BLE_HW_ALLOWLIST": &cfg.BLE.HWAllowList,
		"INFLUXDB_ENABLED": &cfg.InfluxDB.Enabled,
		"MQTT_ENABLED":     &cfg.MQTT.Enabled,
		"METRICS_ENABLED":  &cfg.Metrics.Enabled,

		"METRICS_METAMONITORING": &cfg.Metrics.Metamonitoring,
	}

	for name, dst := range bools {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%w: %s%s: %w", ErrInvalidConfig, EnvPrefix, name, err)
			}
			*dst = b
		}
	}

	ints := map[string]*int{
		"BLE_DEVICE_ID":         &cfg.BLE.DeviceID,
		"ERRORBUFFER_MAX_ITEMS": &cfg.ErrorBuffer.MaxItems,
		"MQTT_PORT":             &cfg.MQTT.Port,
	}

	for name, dst := range ints {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			i, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s%s: %w", ErrInvalidConfig, EnvPrefix, name, err)
			}
			*dst = i
		}
	}

	return nil
}

// Validate checks the configuration and normalizes thermometer addresses.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Logging.ZerologLevel(); err != nil {
		errs = append(errs, err)
	}

	if c.ErrorBuffer.MaxItems <= 0 {
		errs = append(errs, fmt.Errorf("errorbuffer.max_items must be positive, got %d", c.ErrorBuffer.MaxItems))
	}

	if c.Dispatch.IdleInterval <= 0 || c.Dispatch.RetryCooldown <= 0 || c.Dispatch.SinkTimeout <= 0 {
		errs = append(errs, errors.New("dispatch: intervals and timeouts must be positive"))
	}

	seen := make(map[string]bool, len(c.Thermometers))

	for i := range c.Thermometers {
		t := &c.Thermometers[i]

		if err := t.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("thermometers[%d]: %w", i, err))
			continue
		}

		if seen[t.Address] {
			errs = append(errs, fmt.Errorf("thermometers[%d]: duplicate address %s", i, t.Address))
		}

		seen[t.Address] = true
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" || c.InfluxDB.Database == "" || c.InfluxDB.Measurement == "" {
			errs = append(errs, errors.New("influxdb: url, database and measurement are required"))
		}

		if _, err := c.InfluxDB.PrecisionDuration(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" || c.MQTT.TopicPrefix == "" {
			errs = append(errs, errors.New("mqtt: broker and topic_prefix are required"))
		}

		if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
			errs = append(errs, fmt.Errorf("mqtt.port: out of range: %d", c.MQTT.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	return nil
}

// ZerologLevel parses the level, accepting the python-style "warning" as well.
func (c LoggingConfig) ZerologLevel() (zerolog.Level, error) {
	level := strings.ToLower(strings.TrimSpace(c.Level))

	if level == "warning" {
		level = "warn"
	}

	l, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.NoLevel, fmt.Errorf("logging.level: unknown level %q", c.Level)
	}

	return l, nil
}

// PrecisionDuration maps the InfluxDB precision query parameter to the timestamp unit.
func (c InfluxDBConfig) PrecisionDuration() (time.Duration, error) {
	switch c.Precision {
	case "n", "ns":
		return time.Nanosecond, nil
	case "u", "us":
		return time.Microsecond, nil
	case "ms":
		return time.Millisecond, nil
	case "s":
		return time.Second, nil
	default:
		return 0, fmt.Errorf("influxdb.precision: unsupported precision %q", c.Precision)
	}
}

// Redacted returns a copy that is safe to log.
func (c Config) Redacted() Config {
	if c.MQTT.Password != "" {
		c.MQTT.Password = "********"
	}

	return c
}
