package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"solarops/internal/keycache"
	roster "solarops/internal/roster/domain"
	"solarops/internal/rollup/domain/series"
	"solarops/internal/vendorapi"
)

type stubSource struct {
	mu            sync.Mutex
	keys          map[string]string
	samples       map[string][]series.RawSample
	resolveCalls  map[string]int
	fetchCalls    int
	resolveErr    map[string]error
	busyRemaining map[string]int
}

func newStubSource() *stubSource {
	return &stubSource{
		keys:          make(map[string]string),
		samples:       make(map[string][]series.RawSample),
		resolveCalls:  make(map[string]int),
		resolveErr:    make(map[string]error),
		busyRemaining: make(map[string]int),
	}
}

func (s *stubSource) ResolveSessionKey(ctx context.Context, serial string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolveCalls[serial]++
	if err, ok := s.resolveErr[serial]; ok && err != nil {
		return "", err
	}
	key, ok := s.keys[serial]
	if !ok {
		return "", vendorapi.ErrSessionKeyNotFound
	}
	return key, nil
}

func (s *stubSource) FetchCumulativeSamples(ctx context.Context, sessionKey, metricID, startKey, endKey string, g series.Granularity) ([]series.RawSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchCalls++
	if remaining := s.busyRemaining[sessionKey]; remaining > 0 {
		s.busyRemaining[sessionKey] = remaining - 1
		return nil, vendorapi.ErrUpstreamBusy
	}
	return s.samples[sessionKey], nil
}

func (s *stubSource) totalFetchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCalls
}

func (s *stubSource) resolveCount(serial string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveCalls[serial]
}

func (s *stubSource) addDevice(serial, sessionKey string, samples []series.RawSample) {
	s.keys[serial] = sessionKey
	s.samples[sessionKey] = samples
}

// dailyCounter builds raw lifetime-counter samples in Wh, one per day
// starting at startDay, each day adding stepWh.
func dailyCounter(startDay string, days int, baseWh, stepWh float64) []series.RawSample {
	start, err := time.Parse("20060102", startDay)
	if err != nil {
		panic(err)
	}
	samples := make([]series.RawSample, 0, days)
	for i := 0; i < days; i++ {
		samples = append(samples, series.RawSample{
			Timestamp: start.AddDate(0, 0, i).Format("20060102"),
			Value:     baseWh + float64(i)*stepWh,
		})
	}
	return samples
}

func testWindow(t *testing.T, startDay, endDay string) series.Window {
	t.Helper()
	start, err := time.Parse("20060102", startDay)
	if err != nil {
		t.Fatalf("parse window start: %v", err)
	}
	end, err := time.Parse("20060102", endDay)
	if err != nil {
		t.Fatalf("parse window end: %v", err)
	}
	window, err := series.NewWindow(start, end)
	if err != nil {
		t.Fatalf("new window: %v", err)
	}
	return window
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func newTestOrchestrator(t *testing.T, source SampleSource, cfg Config, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append(opts, withSleep(noSleep))
	orch, err := NewOrchestrator(source, keycache.NewMemory(), cfg, opts...)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return orch
}

func TestComputeDeviceSeriesOrderAndValues(t *testing.T) {
	source := newStubSource()
	// Lookback day included so the first window day is a measured boundary.
	source.addDevice("SN-A", "key-a", dailyCounter("20250131", 4, 10000, 500))
	source.addDevice("SN-B", "key-b", dailyCounter("20250131", 4, 50000, 1200))

	devices := []roster.Device{
		{Serial: "SN-B", Beneficiary: "School B", CapacityKW: 5},
		{Serial: "SN-A", Beneficiary: "School A", CapacityKW: 3},
	}
	window := testWindow(t, "20250201", "20250203")

	orch := newTestOrchestrator(t, source, Config{})
	result, err := orch.ComputeDeviceSeries(context.Background(), devices, window, series.GranularityDay)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(result.Series) != 2 {
		t.Fatalf("series count = %d, want 2", len(result.Series))
	}
	if result.Series[0].DeviceID != "SN-B" || result.Series[1].DeviceID != "SN-A" {
		t.Fatalf("series order = %s, %s; want caller order SN-B, SN-A", result.Series[0].DeviceID, result.Series[1].DeviceID)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected device errors: %v", result.Errors)
	}

	b := result.Series[0]
	if len(b.Periods) != 3 {
		t.Fatalf("SN-B periods = %d, want 3", len(b.Periods))
	}
	for i, record := range b.Periods {
		if math.Abs(record.ProductionKWh-1.2) > 1e-9 {
			t.Fatalf("SN-B period %d production = %f, want 1.2", i, record.ProductionKWh)
		}
	}
	if !b.Periods[0].Boundary || b.Periods[0].Trace != "" {
		t.Fatalf("first period boundary=%v trace=%q, want measured boundary", b.Periods[0].Boundary, b.Periods[0].Trace)
	}
}

func TestComputeDeviceSeriesPartialFailure(t *testing.T) {
	source := newStubSource()
	source.addDevice("SN-1", "key-1", dailyCounter("20250131", 4, 1000, 100))
	source.resolveErr["SN-2"] = vendorapi.ErrSessionKeyNotFound
	source.addDevice("SN-3", "key-3", dailyCounter("20250131", 4, 2000, 200))

	devices := []roster.Device{
		{Serial: "SN-1", Beneficiary: "A", CapacityKW: 1},
		{Serial: "SN-2", Beneficiary: "B", CapacityKW: 1},
		{Serial: "SN-3", Beneficiary: "C", CapacityKW: 1},
	}
	window := testWindow(t, "20250201", "20250203")

	orch := newTestOrchestrator(t, source, Config{})
	result, err := orch.ComputeDeviceSeries(context.Background(), devices, window, series.GranularityDay)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(result.Errors) != 1 || result.Errors[0].DeviceID != "SN-2" {
		t.Fatalf("errors = %v, want single SN-2 entry", result.Errors)
	}
	failed := result.Series[1]
	if failed.DeviceID != "SN-2" || failed.FetchError == "" {
		t.Fatalf("failed entry = %+v, want SN-2 with fetch error", failed)
	}
	if failed.Beneficiary != "B" || failed.CapacityKW != 1 {
		t.Fatalf("failed entry lost roster identity: %+v", failed)
	}
	if len(failed.Periods) != 0 {
		t.Fatalf("failed entry has %d periods, want none", len(failed.Periods))
	}
	if len(result.Series[0].Periods) != 3 || len(result.Series[2].Periods) != 3 {
		t.Fatalf("healthy devices not fetched: %d, %d periods", len(result.Series[0].Periods), len(result.Series[2].Periods))
	}
}

func TestComputeDeviceSeriesAllFailed(t *testing.T) {
	source := newStubSource()
	source.resolveErr["SN-1"] = vendorapi.ErrSessionKeyNotFound
	source.resolveErr["SN-2"] = vendorapi.ErrSessionKeyNotFound

	devices := []roster.Device{
		{Serial: "SN-1", CapacityKW: 1},
		{Serial: "SN-2", CapacityKW: 1},
	}
	window := testWindow(t, "20250201", "20250203")

	orch := newTestOrchestrator(t, source, Config{})
	_, err := orch.ComputeDeviceSeries(context.Background(), devices, window, series.GranularityDay)
	if !errors.Is(err, ErrAllDevicesFailed) {
		t.Fatalf("err = %v, want ErrAllDevicesFailed", err)
	}
}

func TestComputeDeviceSeriesFingerprintNoOp(t *testing.T) {
	source := newStubSource()
	source.addDevice("SN-1", "key-1", dailyCounter("20250131", 4, 1000, 100))

	devices := []roster.Device{{Serial: "SN-1", CapacityKW: 1}}
	window := testWindow(t, "20250201", "20250203")

	orch := newTestOrchestrator(t, source, Config{})
	first, err := orch.ComputeDeviceSeries(context.Background(), devices, window, series.GranularityDay)
	if err != nil {
		t.Fatalf("first compute: %v", err)
	}
	calls := source.totalFetchCalls()

	second, err := orch.ComputeDeviceSeries(context.Background(), devices, window, series.GranularityDay)
	if err != nil {
		t.Fatalf("second compute: %v", err)
	}
	if second != first {
		t.Fatalf("second call did not return the cached result")
	}
	if source.totalFetchCalls() != calls {
		t.Fatalf("fetch calls = %d after no-op call, want %d", source.totalFetchCalls(), calls)
	}

	// A different window supersedes the cached cycle.
	other := testWindow(t, "20250201", "20250204")
	third, err := orch.ComputeDeviceSeries(context.Background(), devices, other, series.GranularityDay)
	if err != nil {
		t.Fatalf("third compute: %v", err)
	}
	if third.Fingerprint == first.Fingerprint {
		t.Fatalf("different window produced same fingerprint %s", third.Fingerprint)
	}
	if source.totalFetchCalls() == calls {
		t.Fatalf("superseding cycle did not fetch")
	}
}

func TestComputeDeviceSeriesSessionKeyCacheReuse(t *testing.T) {
	source := newStubSource()
	source.addDevice("SN-1", "key-1", dailyCounter("20250131", 8, 1000, 100))

	devices := []roster.Device{{Serial: "SN-1", CapacityKW: 1}}
	orch := newTestOrchestrator(t, source, Config{})

	if _, err := orch.ComputeDeviceSeries(context.Background(), devices, testWindow(t, "20250201", "20250203"), series.GranularityDay); err != nil {
		t.Fatalf("first compute: %v", err)
	}
	if _, err := orch.ComputeDeviceSeries(context.Background(), devices, testWindow(t, "20250201", "20250205"), series.GranularityDay); err != nil {
		t.Fatalf("second compute: %v", err)
	}
	if got := source.resolveCount("SN-1"); got != 1 {
		t.Fatalf("resolve calls = %d, want 1 (cached across cycles)", got)
	}
}

func TestComputeDeviceSeriesRetriesBusy(t *testing.T) {
	source := newStubSource()
	source.addDevice("SN-1", "key-1", dailyCounter("20250131", 4, 1000, 100))
	source.busyRemaining["key-1"] = 2

	devices := []roster.Device{{Serial: "SN-1", CapacityKW: 1}}
	orch := newTestOrchestrator(t, source, Config{Retry: RetryPolicy{MaxAttempts: 3}})

	result, err := orch.ComputeDeviceSeries(context.Background(), devices, testWindow(t, "20250201", "20250203"), series.GranularityDay)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("errors = %v, want busy responses absorbed by retry", result.Errors)
	}
	if got := source.totalFetchCalls(); got != 3 {
		t.Fatalf("fetch calls = %d, want 3 (two busy, one success)", got)
	}
}

func TestComputeDeviceSeriesBusyExhausted(t *testing.T) {
	source := newStubSource()
	source.addDevice("SN-1", "key-1", dailyCounter("20250131", 4, 1000, 100))
	source.busyRemaining["key-1"] = 10
	source.addDevice("SN-2", "key-2", dailyCounter("20250131", 4, 2000, 200))

	devices := []roster.Device{
		{Serial: "SN-1", CapacityKW: 1},
		{Serial: "SN-2", CapacityKW: 1},
	}
	orch := newTestOrchestrator(t, source, Config{Retry: RetryPolicy{MaxAttempts: 3}})

	result, err := orch.ComputeDeviceSeries(context.Background(), devices, testWindow(t, "20250201", "20250203"), series.GranularityDay)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(result.Errors) != 1 || result.Errors[0].DeviceID != "SN-1" {
		t.Fatalf("errors = %v, want SN-1 busy exhaustion", result.Errors)
	}
	if !strings.Contains(result.Errors[0].Error, "after 3 attempts") {
		t.Fatalf("error = %q, want attempt count", result.Errors[0].Error)
	}
}

func TestComputeDeviceSeriesProgressMonotonic(t *testing.T) {
	source := newStubSource()
	devices := make([]roster.Device, 0, 5)
	for i := 1; i <= 5; i++ {
		serial := fmt.Sprintf("SN-%d", i)
		source.addDevice(serial, "key-"+serial, dailyCounter("20250131", 4, float64(i)*1000, 100))
		devices = append(devices, roster.Device{Serial: serial, CapacityKW: 1})
	}

	var events []ProgressEvent
	orch := newTestOrchestrator(t, source, Config{BatchSize: 2}, WithProgress(func(ev ProgressEvent) {
		events = append(events, ev)
	}))

	result, err := orch.ComputeDeviceSeries(context.Background(), devices, testWindow(t, "20250201", "20250203"), series.GranularityDay)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	want := []int{2, 4, 5}
	if len(events) != len(want) {
		t.Fatalf("progress events = %d, want %d", len(events), len(want))
	}
	for i, ev := range events {
		if ev.Processed != want[i] || ev.Total != 5 {
			t.Fatalf("event %d = %d/%d, want %d/5", i, ev.Processed, ev.Total, want[i])
		}
		if ev.Fingerprint != result.Fingerprint {
			t.Fatalf("event fingerprint = %s, want %s", ev.Fingerprint, result.Fingerprint)
		}
	}
}

func TestComputeDeviceSeriesValidation(t *testing.T) {
	source := newStubSource()
	orch := newTestOrchestrator(t, source, Config{})
	window := testWindow(t, "20250201", "20250203")
	ctx := context.Background()

	if _, err := orch.ComputeDeviceSeries(ctx, nil, window, series.GranularityDay); !errors.Is(err, ErrNoDevices) {
		t.Fatalf("empty roster err = %v, want ErrNoDevices", err)
	}

	devices := []roster.Device{{Serial: "SN-1", CapacityKW: 0}}
	if _, err := orch.ComputeDeviceSeries(ctx, devices, window, series.GranularityDay); !errors.Is(err, roster.ErrInvalidCapacity) {
		t.Fatalf("zero capacity err = %v, want ErrInvalidCapacity", err)
	}

	devices = []roster.Device{{Serial: "SN-1", CapacityKW: 1}}
	if _, err := orch.ComputeDeviceSeries(ctx, devices, window, series.Granularity("WEEK")); !errors.Is(err, series.ErrInvalidGranularity) {
		t.Fatalf("bad granularity err = %v, want ErrInvalidGranularity", err)
	}

	if _, err := orch.ComputeDeviceSeries(ctx, devices, series.Window{}, series.GranularityDay); !errors.Is(err, series.ErrEmptyWindow) {
		t.Fatalf("zero window err = %v, want ErrEmptyWindow", err)
	}

	if source.totalFetchCalls() != 0 {
		t.Fatalf("validation failures must not fetch, saw %d calls", source.totalFetchCalls())
	}
}

func TestNewOrchestratorValidation(t *testing.T) {
	if _, err := NewOrchestrator(nil, keycache.NewMemory(), Config{}); !errors.Is(err, ErrNilSource) {
		t.Fatalf("nil source err = %v", err)
	}
	if _, err := NewOrchestrator(newStubSource(), nil, Config{}); !errors.Is(err, ErrNilCache) {
		t.Fatalf("nil cache err = %v", err)
	}
}
