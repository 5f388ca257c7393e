package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ganymede.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

const sampleYAML = `
logging:
  level: debug
  format: text

providers:
  anthropic:
    requests_per_minute: 60
    tokens_per_minute: 100000
    burst_limit: 10
  openai:
    requests_per_minute: 120
    tokens_per_minute: 200000
    enable_token_bucket: false

global:
  requests_per_minute: 500
  tokens_per_minute: 500000

queue:
  max_size: 50
  concurrency: 4
  timeout: 10s

circuit:
  threshold: 3
  timeout: 15s

history:
  enabled: true
  backend: sqlite
  sqlite_path: /tmp/decisions.db
  retention: 72h
`

// ============================================================
// Load Tests
// ============================================================

func TestLoad_FullFile(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}

	if len(cfg.Providers) != 2 {
		t.Fatalf("len(Providers) = %d, want 2", len(cfg.Providers))
	}
	anthropic := cfg.Providers["anthropic"]
	if anthropic.RequestsPerMinute != 60 || anthropic.BurstLimit != 10 {
		t.Errorf("anthropic limits = %+v", anthropic)
	}
	if anthropic.WindowSize != time.Minute {
		t.Errorf("anthropic WindowSize = %v, want defaulted 1m", anthropic.WindowSize)
	}

	openai := cfg.Providers["openai"]
	if openai.EnableTokenBucket == nil || *openai.EnableTokenBucket {
		t.Error("openai enable_token_bucket: false not preserved")
	}
	if openai.EnableSlidingWindow == nil || !*openai.EnableSlidingWindow {
		t.Error("openai enable_sliding_window should default to true")
	}

	if cfg.Global == nil || cfg.Global.RequestsPerMinute != 500 {
		t.Errorf("Global = %+v", cfg.Global)
	}

	if cfg.Queue.MaxSize != 50 || cfg.Queue.Concurrency != 4 || cfg.Queue.Timeout != 10*time.Second {
		t.Errorf("Queue = %+v", cfg.Queue)
	}
	if cfg.Queue.MaxRetries != DefaultQueueMaxRetries {
		t.Errorf("Queue.MaxRetries = %d, want defaulted %d", cfg.Queue.MaxRetries, DefaultQueueMaxRetries)
	}

	if cfg.Circuit.Threshold != 3 || cfg.Circuit.Timeout != 15*time.Second {
		t.Errorf("Circuit = %+v", cfg.Circuit)
	}

	if !cfg.History.Enabled || cfg.History.Backend != "sqlite" || cfg.History.Retention != 72*time.Hour {
		t.Errorf("History = %+v", cfg.History)
	}
	if cfg.History.Schedule != DefaultHistorySchedule {
		t.Errorf("History.Schedule = %q, want defaulted %q", cfg.History.Schedule, DefaultHistorySchedule)
	}
}

func TestLoad_MinimalFile(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, `
providers:
  anthropic:
    requests_per_minute: 60
    tokens_per_minute: 100000
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Queue.MaxSize != DefaultQueueMaxSize {
		t.Errorf("Queue.MaxSize = %d, want defaulted", cfg.Queue.MaxSize)
	}
	if cfg.Global != nil {
		t.Errorf("Global = %+v, want nil when absent", cfg.Global)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load() of missing file succeeded, want error")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfigFile(t, "providers: [not: a: map"))
	if err == nil || !strings.Contains(err.Error(), "parse") {
		t.Errorf("Load() error = %v, want parse failure", err)
	}
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	_, err := Load(writeConfigFile(t, `
providers:
  anthropic:
    requests_per_minute: -5
    tokens_per_minute: 100000
`))
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("Load() error = %v, want validation failure", err)
	}
}

// ============================================================
// Environment Override Tests
// ============================================================

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("GANYMEDE_LOGGING_LEVEL", "error")
	t.Setenv("GANYMEDE_QUEUE_MAX_SIZE", "9")
	t.Setenv("GANYMEDE_CIRCUIT_TIMEOUT", "45s")
	t.Setenv("GANYMEDE_HISTORY_ENABLED", "false")

	cfg, err := LoadWithEnvOverrides(writeConfigFile(t, sampleYAML))
	if err != nil {
		t.Fatalf("LoadWithEnvOverrides() error = %v", err)
	}

	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %q, want env override", cfg.Logging.Level)
	}
	if cfg.Queue.MaxSize != 9 {
		t.Errorf("Queue.MaxSize = %d, want 9", cfg.Queue.MaxSize)
	}
	if cfg.Circuit.Timeout != 45*time.Second {
		t.Errorf("Circuit.Timeout = %v, want 45s", cfg.Circuit.Timeout)
	}
	if cfg.History.Enabled {
		t.Error("History.Enabled = true, want env override false")
	}
	// Untouched fields keep file values.
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want file value", cfg.Logging.Format)
	}
}

func TestLoadWithEnvOverrides_InvalidOverrideRejected(t *testing.T) {
	t.Setenv("GANYMEDE_LOGGING_LEVEL", "loud")

	_, err := LoadWithEnvOverrides(writeConfigFile(t, sampleYAML))
	if err == nil || !strings.Contains(err.Error(), "after environment overrides") {
		t.Errorf("LoadWithEnvOverrides() error = %v, want post-override validation failure", err)
	}
}

func TestLoadWithEnvOverrides_UnparseableValueIgnored(t *testing.T) {
	t.Setenv("GANYMEDE_QUEUE_MAX_SIZE", "many")

	cfg, err := LoadWithEnvOverrides(writeConfigFile(t, sampleYAML))
	if err != nil {
		t.Fatalf("LoadWithEnvOverrides() error = %v", err)
	}
	if cfg.Queue.MaxSize != 50 {
		t.Errorf("Queue.MaxSize = %d, want file value 50", cfg.Queue.MaxSize)
	}
}
