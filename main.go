package main

import (
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"solarops/internal/auth"
	"solarops/internal/keycache"
	"solarops/internal/observability/metrics"
	roster "solarops/internal/roster/domain"
	rosterpg "solarops/internal/roster/infrastructure/postgres"
	rosterxlsx "solarops/internal/roster/infrastructure/xlsx"
	"solarops/internal/rollup/application"
	rollupinterfaces "solarops/internal/rollup/interfaces"
	"solarops/internal/vendorapi"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	_ = godotenv.Load()
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	metrics.Init()

	rosterRepo, closeRoster := buildRosterRepository(cfg, logger)
	if closeRoster != nil {
		defer closeRoster()
	}

	cache, closeCache := buildKeyCache(cfg, logger)
	if closeCache != nil {
		defer closeCache()
	}

	client, err := vendorapi.NewClient(cfg.VendorBaseURL, cfg.VendorToken)
	if err != nil {
		logger.Fatalf("vendor client error: %v", err)
	}

	engineCfg, err := application.LoadEngineConfig(cfg.EngineConfigPath)
	if err != nil {
		logger.Fatalf("engine config error: %v", err)
	}

	orchestrator, err := application.NewOrchestrator(
		client,
		cache,
		engineCfg.OrchestratorConfig(),
		application.WithLogger(logger),
		application.WithProgress(func(ev application.ProgressEvent) {
			logger.Printf("event=fetch_progress fingerprint=%s processed=%d total=%d", ev.Fingerprint, ev.Processed, ev.Total)
		}),
	)
	if err != nil {
		logger.Fatalf("orchestrator error: %v", err)
	}

	rollupHandler, err := rollupinterfaces.NewRollupHandler(rosterRepo, orchestrator, logger)
	if err != nil {
		logger.Fatalf("rollup handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/production", rollupHandler)
	mux.Handle("/api/v1/exports/", rollupHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

// buildRosterRepository prefers the operations database; the workbook
// loader covers deployments that only have the hand-maintained sheet.
func buildRosterRepository(cfg config, logger *log.Logger) (roster.Repository, func()) {
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		return rosterpg.NewRepository(db), func() { _ = db.Close() }
	}
	if cfg.RosterXLSXPath != "" {
		loader, err := rosterxlsx.NewLoader(cfg.RosterXLSXPath)
		if err != nil {
			logger.Fatalf("roster loader error: %v", err)
		}
		return loader, nil
	}
	logger.Fatal("DATABASE_URL or ROSTER_XLSX is required")
	return nil, nil
}

func buildKeyCache(cfg config, logger *log.Logger) (keycache.Cache, func()) {
	if cfg.KeyCacheDir == "" {
		return keycache.NewMemory(), nil
	}
	cache, err := keycache.OpenBadger(cfg.KeyCacheDir)
	if err != nil {
		logger.Fatalf("key cache error: %v", err)
	}
	return cache, func() { _ = cache.Close() }
}

type config struct {
	HTTPAddr         string
	DatabaseURL      string
	RosterXLSXPath   string
	KeyCacheDir      string
	VendorBaseURL    string
	VendorToken      string
	EngineConfigPath string
	JWTSecret        string
}

func loadConfig() config {
	cfg := config{
		HTTPAddr:         getenvDefault("HTTP_ADDR", ":8080"),
		DatabaseURL:      getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		RosterXLSXPath:   getenvDefault("ROSTER_XLSX", ""),
		KeyCacheDir:      getenvDefault("KEY_CACHE_DIR", ""),
		VendorBaseURL:    getenvDefault("VENDOR_BASE_URL", ""),
		VendorToken:      getenvDefault("VENDOR_TOKEN", ""),
		EngineConfigPath: getenvDefault("ROLLUP_CONFIG", ""),
		JWTSecret:        getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
	}
	if cfg.VendorBaseURL == "" {
		log.Fatal("VENDOR_BASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
