package application

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig defines fetch engine tuning.
type EngineConfig struct {
	BatchSize     int
	Cooldown      time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
	MetricID      string
	KeyTTL        time.Duration
}

// engineConfigFile is the yaml shape. Durations are Go duration strings
// ("500ms", "2s", "24h").
type engineConfigFile struct {
	BatchSize     int    `yaml:"batch_size"`
	Cooldown      string `yaml:"cooldown"`
	RetryAttempts int    `yaml:"retry_attempts"`
	RetryBackoff  string `yaml:"retry_backoff"`
	MetricID      string `yaml:"metric_id"`
	KeyTTL        string `yaml:"key_ttl"`
}

// DefaultEngineConfig returns the tuning used when no file is provided.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BatchSize:     DefaultBatchSize,
		Cooldown:      DefaultCooldown,
		RetryAttempts: DefaultRetryAttempts,
		RetryBackoff:  DefaultRetryBackoff,
	}
}

// LoadEngineConfig loads tuning from a yaml file, falling back to defaults
// for anything the file leaves unset. An empty path returns the defaults.
func LoadEngineConfig(path string) (EngineConfig, error) {
	cfg := DefaultEngineConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("rollup: read config %s: %w", path, err)
	}
	var file engineConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("rollup: parse config %s: %w", path, err)
	}

	if file.BatchSize > 0 {
		cfg.BatchSize = file.BatchSize
	}
	if file.RetryAttempts > 0 {
		cfg.RetryAttempts = file.RetryAttempts
	}
	if file.MetricID != "" {
		cfg.MetricID = file.MetricID
	}
	if cfg.Cooldown, err = parseDuration(file.Cooldown, cfg.Cooldown); err != nil {
		return cfg, fmt.Errorf("rollup: config %s: cooldown: %w", path, err)
	}
	if cfg.RetryBackoff, err = parseDuration(file.RetryBackoff, cfg.RetryBackoff); err != nil {
		return cfg, fmt.Errorf("rollup: config %s: retry_backoff: %w", path, err)
	}
	if cfg.KeyTTL, err = parseDuration(file.KeyTTL, cfg.KeyTTL); err != nil {
		return cfg, fmt.Errorf("rollup: config %s: key_ttl: %w", path, err)
	}
	return cfg, nil
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}

// OrchestratorConfig converts engine tuning to an orchestrator Config.
func (c EngineConfig) OrchestratorConfig() Config {
	return Config{
		BatchSize: c.BatchSize,
		Cooldown:  c.Cooldown,
		Retry:     RetryPolicy{MaxAttempts: c.RetryAttempts, Backoff: c.RetryBackoff},
		MetricID:  c.MetricID,
		KeyTTL:    c.KeyTTL,
	}
}
