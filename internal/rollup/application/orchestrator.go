// Package application drives fetch/compute cycles over the inverter fleet:
// per-device sample fetches in bounded concurrent batches, session-key
// caching, per-device failure capture and progress reporting. The
// computation itself lives in the series domain package and stays pure.
package application

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"solarops/internal/keycache"
	"solarops/internal/observability/metrics"
	roster "solarops/internal/roster/domain"
	"solarops/internal/rollup/domain/series"
	"solarops/internal/vendorapi"
)

// DefaultBatchSize matches the upstream rate-limit friendly batch width.
const DefaultBatchSize = 10

// DefaultCooldown is the pause between consecutive batches.
const DefaultCooldown = 500 * time.Millisecond

// SampleSource is the telemetry source abstraction (see vendorapi.Client).
type SampleSource interface {
	ResolveSessionKey(ctx context.Context, serial string) (string, error)
	FetchCumulativeSamples(ctx context.Context, sessionKey, metricID, startKey, endKey string, g series.Granularity) ([]series.RawSample, error)
}

// ProgressEvent reports devices processed so far after each batch.
// Within one cycle Processed is monotonically increasing.
type ProgressEvent struct {
	Fingerprint string
	Processed   int
	Total       int
}

// DeviceError is one device's failure inside an otherwise usable cycle.
type DeviceError struct {
	DeviceID string `json:"device_id"`
	Error    string `json:"error"`
}

// Result is the outcome of one fetch/compute cycle. Series preserves the
// caller-supplied device order regardless of completion order, so
// downstream ranking is deterministic for identical inputs.
type Result struct {
	Fingerprint string                `json:"fingerprint"`
	Granularity series.Granularity    `json:"granularity"`
	Window      series.Window         `json:"window"`
	Series      []series.DeviceSeries `json:"series"`
	Errors      []DeviceError         `json:"errors,omitempty"`
}

// Config tunes a fetch cycle.
type Config struct {
	BatchSize int
	Cooldown  time.Duration
	Retry     RetryPolicy
	MetricID  string
	// KeyTTL bounds cached session keys. Zero means no expiry; the cache
	// deliberately outlives fetch cycles.
	KeyTTL time.Duration
}

// Orchestrator runs fetch cycles.
type Orchestrator struct {
	source   SampleSource
	cache    keycache.Cache
	cfg      Config
	logger   *log.Logger
	progress func(ProgressEvent)
	sleep    func(context.Context, time.Duration) error

	mu   sync.Mutex
	last *Result
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithProgress registers a progress consumer. Events are delivered
// synchronously after each batch, on the cycle's goroutine.
func WithProgress(fn func(ProgressEvent)) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func withSleep(fn func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(source SampleSource, cache keycache.Cache, cfg Config, opts ...Option) (*Orchestrator, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	if cache == nil {
		return nil, ErrNilCache
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.MetricID == "" {
		cfg.MetricID = vendorapi.MetricLifetimeEnergy
	}
	o := &Orchestrator{
		source: source,
		cache:  cache,
		cfg:    cfg,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// ComputeDeviceSeries runs one fetch/compute cycle over the roster.
// Configuration problems (empty roster, invalid capacity, bad window) fail
// the cycle before any fetch; individual device failures are recovered and
// attached to that device's entry. A cycle where every device failed
// surfaces a single aggregate error.
//
// Re-invocation with the parameters of the last completed cycle returns
// that cycle's result without fetching.
func (o *Orchestrator) ComputeDeviceSeries(ctx context.Context, devices []roster.Device, window series.Window, g series.Granularity) (*Result, error) {
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}
	if !g.IsValid() {
		return nil, series.ErrInvalidGranularity
	}
	if window.Start.IsZero() || window.End.IsZero() || window.End.Before(window.Start) {
		return nil, series.ErrEmptyWindow
	}
	for _, device := range devices {
		if err := device.Validate(); err != nil {
			return nil, err
		}
	}

	fingerprint := Fingerprint(devices, window, g)
	o.mu.Lock()
	if o.last != nil && o.last.Fingerprint == fingerprint {
		last := o.last
		o.mu.Unlock()
		o.logf("event=cycle_skip fingerprint=%s reason=already_satisfied", fingerprint)
		return last, nil
	}
	o.mu.Unlock()

	started := time.Now()
	result, err := o.runCycle(ctx, devices, window, g, fingerprint)
	if err != nil {
		metrics.ObserveFetchCycle(metrics.ResultError, time.Since(started))
		return nil, err
	}

	cycleResult := metrics.ResultSuccess
	if len(result.Errors) > 0 {
		cycleResult = metrics.ResultPartial
	}
	metrics.ObserveFetchCycle(cycleResult, time.Since(started))

	o.mu.Lock()
	o.last = result
	o.mu.Unlock()
	return result, nil
}

func (o *Orchestrator) runCycle(ctx context.Context, devices []roster.Device, window series.Window, g series.Granularity, fingerprint string) (*Result, error) {
	normalizer, err := series.NewNormalizer(g, series.UnitWhToKWh)
	if err != nil {
		return nil, err
	}
	converter, err := series.NewConverter(g)
	if err != nil {
		return nil, err
	}

	// Extended window: fetch from one granularity step before the window
	// start so the first in-window period has a lookback sample.
	extendedStart, err := series.PreviousPeriodStart(window.Start, g)
	if err != nil {
		return nil, err
	}
	startKey, err := series.PeriodKey(extendedStart, g)
	if err != nil {
		return nil, err
	}
	endKey, err := series.PeriodKey(window.End, g)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Fingerprint: fingerprint,
		Granularity: g,
		Window:      window,
		Series:      make([]series.DeviceSeries, len(devices)),
	}

	total := len(devices)
	o.logf("event=cycle_start fingerprint=%s devices=%d granularity=%s window=%s..%s",
		fingerprint, total, g, startKey, endKey)

	for batchStart := 0; batchStart < total; batchStart += o.cfg.BatchSize {
		batchEnd := batchStart + o.cfg.BatchSize
		if batchEnd > total {
			batchEnd = total
		}

		var wg sync.WaitGroup
		for i := batchStart; i < batchEnd; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				result.Series[i] = o.fetchDevice(ctx, devices[i], normalizer, converter, window, g, startKey, endKey)
			}(i)
		}
		wg.Wait()

		if o.progress != nil {
			o.progress(ProgressEvent{Fingerprint: fingerprint, Processed: batchEnd, Total: total})
		}
		if batchEnd < total && o.cfg.Cooldown > 0 {
			if err := o.sleep(ctx, o.cfg.Cooldown); err != nil {
				return nil, err
			}
		}
	}

	failed := 0
	for _, deviceSeries := range result.Series {
		if deviceSeries.FetchError != "" {
			failed++
			result.Errors = append(result.Errors, DeviceError{DeviceID: deviceSeries.DeviceID, Error: deviceSeries.FetchError})
		}
	}
	if failed == total {
		return nil, fmt.Errorf("%w: %d devices", ErrAllDevicesFailed, total)
	}

	o.logf("event=cycle_done fingerprint=%s devices=%d failed=%d", fingerprint, total, failed)
	return result, nil
}

// fetchDevice never fails the batch: any error is attached to the device's
// entry, which keeps its roster identity and zeroed metrics.
func (o *Orchestrator) fetchDevice(ctx context.Context, device roster.Device, normalizer *series.Normalizer, converter *series.Converter, window series.Window, g series.Granularity, startKey, endKey string) series.DeviceSeries {
	deviceSeries := series.DeviceSeries{
		DeviceID:    device.Serial,
		Beneficiary: device.Beneficiary,
		CapacityKW:  device.CapacityKW,
	}

	sessionKey, err := o.resolveSessionKey(ctx, device.Serial)
	if err != nil {
		deviceSeries.FetchError = err.Error()
		metrics.IncDeviceFetch(metrics.ResultError)
		o.logf("event=device_failed serial=%s stage=session_key error=%v", device.Serial, err)
		return deviceSeries
	}

	var raw []series.RawSample
	err = o.cfg.Retry.do(ctx, o.sleep, func() error {
		var fetchErr error
		raw, fetchErr = o.source.FetchCumulativeSamples(ctx, sessionKey, o.cfg.MetricID, startKey, endKey, g)
		return fetchErr
	})
	if err != nil {
		deviceSeries.FetchError = err.Error()
		metrics.IncDeviceFetch(metrics.ResultError)
		o.logf("event=device_failed serial=%s stage=fetch error=%v", device.Serial, err)
		return deviceSeries
	}

	samples, dropped := normalizer.Normalize(raw)
	records, err := converter.Convert(samples, window)
	if err != nil {
		deviceSeries.FetchError = err.Error()
		metrics.IncDeviceFetch(metrics.ResultError)
		return deviceSeries
	}

	deviceSeries.Samples = samples
	deviceSeries.Periods = records
	deviceSeries.DroppedSamples = dropped
	metrics.IncDeviceFetch(metrics.ResultSuccess)
	return deviceSeries
}

// resolveSessionKey consults the cross-cycle cache before the expensive
// upstream resolution. Each serial is only ever written by the request
// that discovered its cache miss; duplicate writes of the same value are
// harmless.
func (o *Orchestrator) resolveSessionKey(ctx context.Context, serial string) (string, error) {
	cached, ok, err := o.cache.Get(ctx, serial)
	if err == nil && ok {
		metrics.IncKeyCacheLookup(true)
		return cached, nil
	}
	if err != nil {
		o.logf("event=key_cache_error serial=%s error=%v", serial, err)
	}
	metrics.IncKeyCacheLookup(false)

	var sessionKey string
	err = o.cfg.Retry.do(ctx, o.sleep, func() error {
		var resolveErr error
		sessionKey, resolveErr = o.source.ResolveSessionKey(ctx, serial)
		return resolveErr
	})
	if err != nil {
		return "", err
	}
	if cacheErr := o.cache.Set(ctx, serial, sessionKey, o.cfg.KeyTTL); cacheErr != nil {
		o.logf("event=key_cache_error serial=%s error=%v", serial, cacheErr)
	}
	return sessionKey, nil
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.logger == nil {
		return
	}
	o.logger.Printf(format, args...)
}

var _ SampleSource = (*vendorapi.Client)(nil)
