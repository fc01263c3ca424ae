// Package vendorapi is a minimal REST client for the inverter vendor's
// telemetry service. It exposes the two operations the rollup engine
// needs: resolving a device serial to an opaque session key, and fetching
// raw cumulative-counter samples for one metric between two timestamp keys.
package vendorapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"solarops/internal/rollup/domain/series"
)

// MetricLifetimeEnergy is the cumulative lifetime-energy counter in Wh.
const MetricLifetimeEnergy = "energy_lifetime"

var (
	// ErrSessionKeyNotFound is returned when the vendor knows no device
	// for the given serial.
	ErrSessionKeyNotFound = errors.New("vendorapi: session key not found")
	// ErrUpstreamBusy is returned on vendor throttling responses; the
	// caller retries per its policy before treating it as a fetch error.
	ErrUpstreamBusy = errors.New("vendorapi: upstream busy")
)

// Client talks to the vendor telemetry API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// NewClient constructs a vendor client.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("vendorapi: empty base url")
	}
	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type sessionKeyResponse struct {
	DeviceKey string `json:"deviceKey"`
}

// ResolveSessionKey maps a human-assigned device serial to the opaque key
// required by the sample endpoints. This call is noticeably more expensive
// upstream than a sample fetch, which is why callers cache the result.
func (c *Client) ResolveSessionKey(ctx context.Context, serial string) (string, error) {
	if serial == "" {
		return "", errors.New("vendorapi: empty serial")
	}
	path := "/api/v1/device/key?sn=" + url.QueryEscape(serial)
	var resp sessionKeyResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return "", fmt.Errorf("%w: serial %s", ErrSessionKeyNotFound, serial)
		}
		return "", err
	}
	if resp.DeviceKey == "" {
		return "", fmt.Errorf("%w: serial %s", ErrSessionKeyNotFound, serial)
	}
	return resp.DeviceKey, nil
}

// The sample endpoints answer in two shapes depending on granularity:
// fine-grained queries return a "points" array of objects, the historical
// rollup endpoint returns a "rows" array of [timestamp, value] pairs with
// values quoted as strings. Both collapse to RawSample here; the
// normalizer is the only component that interprets them further.
type samplesResponse struct {
	Points []samplePoint        `json:"points"`
	Rows   [][2]json.RawMessage `json:"rows"`
}

type samplePoint struct {
	TS    string          `json:"ts"`
	Value json.RawMessage `json:"value"`
}

// FetchCumulativeSamples returns raw cumulative-counter readings for one
// metric between two timestamp keys at the given granularity.
func (c *Client) FetchCumulativeSamples(ctx context.Context, sessionKey, metricID, startKey, endKey string, g series.Granularity) ([]series.RawSample, error) {
	if sessionKey == "" {
		return nil, errors.New("vendorapi: empty session key")
	}
	if metricID == "" {
		metricID = MetricLifetimeEnergy
	}
	if !g.IsValid() {
		return nil, series.ErrInvalidGranularity
	}

	query := url.Values{}
	query.Set("key", sessionKey)
	query.Set("metric", metricID)
	query.Set("start", startKey)
	query.Set("end", endKey)
	query.Set("granularity", strings.ToLower(string(g)))

	var resp samplesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/device/samples?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	samples := make([]series.RawSample, 0, len(resp.Points)+len(resp.Rows))
	for _, point := range resp.Points {
		samples = append(samples, series.RawSample{Timestamp: point.TS, Value: decodeValue(point.Value)})
	}
	for _, row := range resp.Rows {
		var ts string
		if err := json.Unmarshal(row[0], &ts); err != nil {
			continue
		}
		samples = append(samples, series.RawSample{Timestamp: ts, Value: decodeValue(row[1])})
	}
	return samples, nil
}

// decodeValue keeps the raw JSON scalar as a string or number; anything
// else is passed through and dropped at normalization.
func decodeValue(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil
	}
	return value
}

var errNotFound = errors.New("vendorapi: not found")

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("vendorapi: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return ErrUpstreamBusy
	case resp.StatusCode >= 300:
		return fmt.Errorf("vendorapi: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
