// fake_vendor_server emulates the inverter vendor's telemetry API for
// local development and load testing. It hands out deterministic session
// keys and synthesizes a monotonic lifetime-energy counter per device, so
// rollup output is reproducible across runs. Optional latency and busy
// rates exercise the engine's retry path.
package main

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

type fakeVendorServer struct {
	start    time.Time
	latency  time.Duration
	busyRate float64
	rowsMode bool

	mu         sync.Mutex
	bySerial   map[string]int64
	totalCalls int64
	busySent   int64
}

func main() {
	addr := getenvDefault("FAKE_VENDOR_ADDR", ":18080")
	latencyMs := getenvIntDefault("FAKE_VENDOR_LATENCY_MS", 0)
	busyRate := getenvFloatDefault("FAKE_VENDOR_BUSY_RATE", 0)

	srv := &fakeVendorServer{
		start:    time.Now().UTC(),
		latency:  time.Duration(latencyMs) * time.Millisecond,
		busyRate: busyRate,
		bySerial: make(map[string]int64),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/metrics", srv.handleMetrics)
	mux.HandleFunc("/api/v1/device/key", srv.handleDeviceKey)
	mux.HandleFunc("/api/v1/device/samples", srv.handleSamples)

	log.Printf("fake vendor server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

func (s *fakeVendorServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *fakeVendorServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload := map[string]any{
		"started_at": s.start.Format(time.RFC3339),
		"total":      s.totalCalls,
		"busy_sent":  s.busySent,
		"by_serial":  s.bySerial,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *fakeVendorServer) handleDeviceKey(w http.ResponseWriter, r *http.Request) {
	if s.throttle(w) {
		return
	}
	serial := r.URL.Query().Get("sn")
	if serial == "" {
		http.Error(w, "missing sn", http.StatusBadRequest)
		return
	}
	if strings.HasPrefix(serial, "UNKNOWN") {
		http.NotFound(w, r)
		return
	}
	s.recordCall(serial)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"deviceKey": fmt.Sprintf("fvk-%08x", seedFor(serial)),
	})
}

func (s *fakeVendorServer) handleSamples(w http.ResponseWriter, r *http.Request) {
	if s.throttle(w) {
		return
	}
	q := r.URL.Query()
	key := q.Get("key")
	startKey := q.Get("start")
	endKey := q.Get("end")
	granularity := q.Get("granularity")
	if key == "" || startKey == "" || endKey == "" {
		http.Error(w, "missing key/start/end", http.StatusBadRequest)
		return
	}
	s.recordCall(key)

	start, err := parseKey(startKey)
	if err != nil {
		http.Error(w, "bad start", http.StatusBadRequest)
		return
	}
	end, err := parseKey(endKey)
	if err != nil {
		http.Error(w, "bad end", http.StatusBadRequest)
		return
	}

	step, layout := stepFor(granularity)
	seed := seedFor(key)
	rng := rand.New(rand.NewSource(int64(seed)))

	// Lifetime counter: a base offset plus a plausible per-period increment.
	counter := 1_000_000.0 + float64(seed%1000)*500.0
	type sample struct {
		ts    string
		value float64
	}
	var samples []sample
	for t := start; !t.After(end); t = step(t) {
		counter += 2000.0 + rng.Float64()*8000.0
		samples = append(samples, sample{ts: t.Format(layout), value: counter})
	}

	w.Header().Set("Content-Type", "application/json")
	// The real service answers coarse queries from a different store with a
	// rows-of-strings shape; mirror that so clients exercise both decoders.
	if granularity == "month" || granularity == "year" {
		rows := make([][2]any, 0, len(samples))
		for _, sm := range samples {
			rows = append(rows, [2]any{sm.ts, strconv.FormatFloat(sm.value, 'f', 3, 64)})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"rows": rows})
		return
	}
	points := make([]map[string]any, 0, len(samples))
	for _, sm := range samples {
		points = append(points, map[string]any{"ts": sm.ts, "value": sm.value})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"points": points})
}

func (s *fakeVendorServer) throttle(w http.ResponseWriter) bool {
	if s.latency > 0 {
		time.Sleep(s.latency)
	}
	if s.busyRate > 0 && rand.Float64() < s.busyRate {
		s.mu.Lock()
		s.busySent++
		s.mu.Unlock()
		http.Error(w, "busy", http.StatusTooManyRequests)
		return true
	}
	return false
}

func (s *fakeVendorServer) recordCall(id string) {
	s.mu.Lock()
	s.totalCalls++
	s.bySerial[id]++
	s.mu.Unlock()
}

func seedFor(value string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(value))
	return h.Sum32()
}

func parseKey(key string) (time.Time, error) {
	for _, layout := range []string{"20060102150405", "200601021504", "20060102", "200601", "2006"} {
		if len(key) != len(layout) {
			continue
		}
		if t, err := time.ParseInLocation(layout, key, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad key %q", key)
}

func stepFor(granularity string) (func(time.Time) time.Time, string) {
	switch granularity {
	case "minute":
		return func(t time.Time) time.Time { return t.Add(time.Minute) }, "200601021504"
	case "month":
		return func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }, "200601"
	case "year":
		return func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }, "2006"
	default:
		return func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }, "20060102"
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
