package vendorapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"solarops/internal/rollup/domain/series"
)

func TestResolveSessionKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/device/key" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.URL.Query().Get("sn") {
		case "SN-001":
			_ = json.NewEncoder(w).Encode(map[string]string{"deviceKey": "key-001"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "test-token")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	key, err := client.ResolveSessionKey(context.Background(), "SN-001")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if key != "key-001" {
		t.Fatalf("expected key-001, got %s", key)
	}

	if _, err := client.ResolveSessionKey(context.Background(), "SN-999"); !errors.Is(err, ErrSessionKeyNotFound) {
		t.Fatalf("expected ErrSessionKeyNotFound, got %v", err)
	}
}

func TestFetchCumulativeSamplesBothShapes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "key-001" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.URL.Query().Get("granularity") {
		case "day":
			_, _ = w.Write([]byte(`{"points":[{"ts":"20250301","value":1234.5},{"ts":"20250302","value":1300}]}`))
		case "month":
			_, _ = w.Write([]byte(`{"rows":[["202502","1234.5"],["202503","1300"]]}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	daily, err := client.FetchCumulativeSamples(context.Background(), "key-001", "", "20250301", "20250302", series.GranularityDay)
	if err != nil {
		t.Fatalf("fetch day samples: %v", err)
	}
	if len(daily) != 2 || daily[0].Timestamp != "20250301" {
		t.Fatalf("unexpected day samples: %+v", daily)
	}

	monthly, err := client.FetchCumulativeSamples(context.Background(), "key-001", "", "202502", "202503", series.GranularityMonth)
	if err != nil {
		t.Fatalf("fetch month samples: %v", err)
	}
	if len(monthly) != 2 || monthly[1].Timestamp != "202503" {
		t.Fatalf("unexpected month samples: %+v", monthly)
	}

	// Both shapes must normalize identically.
	normalizer, err := series.NewNormalizer(series.GranularityMonth, series.UnitWhToKWh)
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}
	normalized, dropped := normalizer.Normalize(monthly)
	if dropped != 0 || len(normalized) != 2 {
		t.Fatalf("expected both row samples normalized, got %d with %d drops", len(normalized), dropped)
	}
	if normalized[0].CumulativeKWh != 1.2345 {
		t.Fatalf("expected 1.2345 kWh, got %f", normalized[0].CumulativeKWh)
	}
}

func TestFetchCumulativeSamplesBusy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.FetchCumulativeSamples(context.Background(), "key-001", "", "20250301", "20250302", series.GranularityDay); !errors.Is(err, ErrUpstreamBusy) {
		t.Fatalf("expected ErrUpstreamBusy, got %v", err)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient("", ""); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
