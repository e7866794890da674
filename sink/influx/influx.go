// Package influx writes readings to an InfluxDB 1.x compatible /write endpoint using
// the line protocol.
package influx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog/log"

	"github.com/robertof/go-mijia-exporter/config"
	"github.com/robertof/go-mijia-exporter/device"
	"github.com/robertof/go-mijia-exporter/sink"
)

const (
	defaultTimeout = time.Second

	// cap on how much of an error response ends up in the logs.
	maxErrorBody = 512
)

// Client posts one reading per request. It keeps no buffer of its own: retries are
// up to the caller, based on the error class.
type Client struct {
	endpoint    string
	measurement string
	precision   time.Duration
	httpClient  *http.Client
}

// New builds the client from the configuration. timeout bounds every request, zero
// means one second.
func New(cfg config.InfluxDBConfig, timeout time.Duration) (*Client, error) {
	precision, err := cfg.PrecisionDuration()
	if err != nil {
		return nil, err
	}

	endpoint, err := writeEndpoint(cfg)
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		endpoint:    endpoint,
		measurement: cfg.Measurement,
		precision:   precision,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func writeEndpoint(cfg config.InfluxDBConfig) (string, error) {
	u, err := url.Parse(strings.TrimRight(cfg.URL, "/") + "/write")
	if err != nil {
		return "", fmt.Errorf("influxdb: bad url %q: %w", cfg.URL, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("influxdb: bad url %q: scheme must be http or https", cfg.URL)
	}

	q := u.Query()
	q.Set("db", cfg.Database)
	q.Set("precision", cfg.Precision)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (c *Client) Name() string {
	return "influxdb"
}

// Endpoint is the full write URL, including database and precision.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// LineProtocol renders the reading as
//
//	<measurement>,<tags...>,name=<name>,address=<address> temperature=..,humidity=..,battery=..,voltage=.. <timestamp>
//
// Tags and fields are sorted by key.
func (c *Client) LineProtocol(r device.Reading) string {
	tags := make(map[string]string)

	if r.Sensor != nil {
		for k, v := range r.Sensor.Tags {
			tags[k] = v
		}

		tags["name"] = r.Sensor.Name
		tags["address"] = r.Sensor.Address
	}

	// all floats, battery and humidity included, so that the field types never
	// change between firmware flavours.
	point := write.NewPoint(
		c.measurement,
		tags,
		map[string]interface{}{
			"temperature": r.Temperature,
			"humidity":    r.Humidity,
			"battery":     float64(r.Battery),
			"voltage":     r.Voltage,
		},
		time.Unix(r.Timestamp, 0),
	)

	return write.PointToLineProtocol(point, c.precision)
}

// Deliver posts the reading. 204 and any other 2xx are success, a 404 (missing
// database) and network failures are transient, everything else is permanent.
func (c *Client) Deliver(ctx context.Context, r device.Reading) error {
	payload := c.LineProtocol(r)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: influxdb: %w", sink.ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	log.Trace().
		Str("URL", c.endpoint).
		Str("Payload", payload).
		Msg("influx: posting reading")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// timeouts, refused connections, DNS failures...
		return fmt.Errorf("%w: influxdb: %w", sink.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	// drain the rest to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: influxdb: database missing, create it manually (HTTP 404: %s)",
			sink.ErrTransient, strings.TrimSpace(string(body)))
	default:
		return fmt.Errorf("%w: influxdb: HTTP %d: %s",
			sink.ErrPermanent, resp.StatusCode, strings.TrimSpace(string(body)))
	}
}
