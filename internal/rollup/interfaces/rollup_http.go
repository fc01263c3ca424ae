// Package interfaces exposes rollup results over HTTP and as report
// exports. Handlers stay thin: parameter parsing, error mapping and
// encoding; all production math lives in the series domain package.
package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"solarops/internal/observability/metrics"
	roster "solarops/internal/roster/domain"
	"solarops/internal/rollup/application"
	"solarops/internal/rollup/domain/series"
)

// SeriesComputer runs a fetch/compute cycle (see application.Orchestrator).
type SeriesComputer interface {
	ComputeDeviceSeries(ctx context.Context, devices []roster.Device, window series.Window, g series.Granularity) (*application.Result, error)
}

// RollupHandler handles production and yield export APIs.
type RollupHandler struct {
	roster   roster.Repository
	computer SeriesComputer
	logger   *log.Logger
}

// NewRollupHandler constructs a handler.
func NewRollupHandler(repo roster.Repository, computer SeriesComputer, logger *log.Logger) (*RollupHandler, error) {
	if repo == nil {
		return nil, errors.New("rollup handler: nil roster repository")
	}
	if computer == nil {
		return nil, errors.New("rollup handler: nil series computer")
	}
	return &RollupHandler{roster: repo, computer: computer, logger: logger}, nil
}

// ServeHTTP handles rollup routes under /api/v1.
func (h *RollupHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/api/v1/production":
		h.handleProduction(w, r)
	case "/api/v1/exports/yield.csv":
		h.handleYieldExport(w, r, "csv")
	case "/api/v1/exports/yield.xlsx":
		h.handleYieldExport(w, r, "xlsx")
	case "/api/v1/exports/yield.pdf":
		h.handleYieldExport(w, r, "pdf")
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type rollupQuery struct {
	window      series.Window
	granularity series.Granularity
	bucket      series.Granularity
}

func parseRollupQuery(r *http.Request) (rollupQuery, error) {
	q := r.URL.Query()

	start, err := series.DecodeTimestamp(q.Get("start"))
	if err != nil {
		return rollupQuery{}, errors.New("invalid start")
	}
	end, err := series.DecodeTimestamp(q.Get("end"))
	if err != nil {
		return rollupQuery{}, errors.New("invalid end")
	}
	window, err := series.NewWindow(start, end)
	if err != nil {
		return rollupQuery{}, errors.New("invalid window")
	}

	granularity := series.GranularityDay
	if raw := q.Get("granularity"); raw != "" {
		granularity = series.Granularity(strings.ToUpper(raw))
		if !granularity.IsValid() {
			return rollupQuery{}, errors.New("invalid granularity")
		}
	}

	var bucket series.Granularity
	if raw := q.Get("bucket"); raw != "" {
		bucket = series.Granularity(strings.ToUpper(raw))
		if bucket != series.GranularityMonth && bucket != series.GranularityYear {
			return rollupQuery{}, errors.New("invalid bucket")
		}
	}

	return rollupQuery{window: window, granularity: granularity, bucket: bucket}, nil
}

type deviceProduction struct {
	series.DeviceSeries
	Buckets []series.AggregationBucket `json:"buckets,omitempty"`
}

type productionResponse struct {
	Fingerprint string                    `json:"fingerprint"`
	Granularity series.Granularity        `json:"granularity"`
	WindowStart string                    `json:"window_start"`
	WindowEnd   string                    `json:"window_end"`
	Devices     []deviceProduction        `json:"devices"`
	Errors      []application.DeviceError `json:"errors,omitempty"`
}

func (h *RollupHandler) handleProduction(w http.ResponseWriter, r *http.Request) {
	query, err := parseRollupQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.compute(r.Context(), query)
	if err != nil {
		h.respondComputeError(w, err)
		return
	}

	resp := productionResponse{
		Fingerprint: result.Fingerprint,
		Granularity: result.Granularity,
		WindowStart: series.EncodeDate(result.Window.Start),
		WindowEnd:   series.EncodeDate(result.Window.End),
		Devices:     make([]deviceProduction, 0, len(result.Series)),
		Errors:      result.Errors,
	}
	for _, deviceSeries := range result.Series {
		entry := deviceProduction{DeviceSeries: deviceSeries}
		if query.bucket != "" && deviceSeries.FetchError == "" {
			buckets, bucketErr := series.Rebucket(deviceSeries.Periods, query.bucket)
			if bucketErr != nil {
				http.Error(w, "rebucket error", http.StatusInternalServerError)
				return
			}
			entry.Buckets = buckets
		}
		resp.Devices = append(resp.Devices, entry)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *RollupHandler) handleYieldExport(w http.ResponseWriter, r *http.Request, format string) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveExport(format, result, time.Since(start))
	}()

	query, err := parseRollupQuery(r)
	if err != nil {
		result = metrics.ResultError
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cycle, err := h.compute(r.Context(), query)
	if err != nil {
		result = metrics.ResultError
		h.respondComputeError(w, err)
		return
	}

	// Failed devices carry no production data; ranking them would report a
	// zero yield that was never measured.
	fleet := make([]series.DeviceSeries, 0, len(cycle.Series))
	for _, deviceSeries := range cycle.Series {
		if deviceSeries.FetchError == "" {
			fleet = append(fleet, deviceSeries)
		}
	}
	yields, summary, err := series.RankBySpecificYield(fleet, query.window)
	if err != nil {
		result = metrics.ResultError
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var data []byte
	var contentType string
	switch format {
	case "csv":
		data, err = BuildYieldCSV(yields, summary)
		contentType = "text/csv"
	case "xlsx":
		data, err = BuildYieldXLSX(yields, summary)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "pdf":
		data, err = BuildYieldPDF(yields, summary)
		contentType = "application/pdf"
	}
	if err != nil {
		result = metrics.ResultError
		h.logf("event=export_failed format=%s error=%v", format, err)
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="yield.`+format+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *RollupHandler) compute(ctx context.Context, query rollupQuery) (*application.Result, error) {
	devices, err := h.roster.List(ctx)
	if err != nil {
		return nil, err
	}
	return h.computer.ComputeDeviceSeries(ctx, devices, query.window, query.granularity)
}

func (h *RollupHandler) respondComputeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, application.ErrNoDevices),
		errors.Is(err, roster.ErrInvalidCapacity),
		errors.Is(err, roster.ErrEmptySerial),
		errors.Is(err, series.ErrInvalidGranularity),
		errors.Is(err, series.ErrEmptyWindow):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, application.ErrAllDevicesFailed):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		h.logf("event=rollup_error error=%v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *RollupHandler) logf(format string, args ...any) {
	if h.logger == nil {
		return
	}
	h.logger.Printf(format, args...)
}
