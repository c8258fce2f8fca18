package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/therealutkarshpriyadarshi/logseek/internal/output"
	"github.com/therealutkarshpriyadarshi/logseek/internal/parser"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: debug
  format: console

index:
  granularity: 300
  chunk_size: 1048576
  dir: /var/lib/logseek
  strict: true
  follow_debounce: 2s

parser:
  type: json
  time_field: ts
  time_format: unix_ms

output:
  type: kafka
  rate_limit: 1000
  kafka:
    brokers: [kafka-1:9092, kafka-2:9092]
    topic: ranges

server:
  address: 127.0.0.1:9400
  allowed_dirs: [/var/log]
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Logging.Level)
	}
	if cfg.Index.Granularity != 300 {
		t.Errorf("Expected granularity 300, got %d", cfg.Index.Granularity)
	}
	if cfg.Index.ChunkSize != 1048576 {
		t.Errorf("Expected chunk size 1048576, got %d", cfg.Index.ChunkSize)
	}
	if !cfg.Index.Strict {
		t.Error("Expected strict mode")
	}
	if cfg.Index.FollowDebounce != 2*time.Second {
		t.Errorf("Expected follow debounce 2s, got %v", cfg.Index.FollowDebounce)
	}
	if cfg.Parser.Type != parser.ParserTypeJSON || cfg.Parser.TimeField != "ts" {
		t.Errorf("Unexpected parser config: %+v", cfg.Parser)
	}
	if cfg.Output.Type != output.TypeKafka || len(cfg.Output.Kafka.Brokers) != 2 {
		t.Errorf("Unexpected output config: %+v", cfg.Output)
	}
	if cfg.Output.RateLimit != 1000 {
		t.Errorf("Expected rate limit 1000, got %v", cfg.Output.RateLimit)
	}
	if cfg.Server.Address != "127.0.0.1:9400" {
		t.Errorf("Expected server address 127.0.0.1:9400, got %s", cfg.Server.Address)
	}

	// defaults fill what the file leaves out
	if cfg.Index.Suffix != "idx" || cfg.Index.GzipSuffix != "gzidx" {
		t.Errorf("Expected default suffixes, got %s/%s", cfg.Index.Suffix, cfg.Index.GzipSuffix)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Expected metrics path %s, got %s", DefaultMetricsPath, cfg.Metrics.Path)
	}

	naming := cfg.Index.Naming()
	if got := naming.TimeIndexPath("/var/log/app.log"); got != "/var/lib/logseek/app.log.idx" {
		t.Errorf("TimeIndexPath() = %s", got)
	}
}

func TestLoadConfigWithEnvVars(t *testing.T) {
	t.Setenv("LOGSEEK_GRANULARITY", "120")
	t.Setenv("LOG_LEVEL", "warn")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: ${LOG_LEVEL}
index:
  granularity: ${LOGSEEK_GRANULARITY}
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected log level warn (from env var), got %s", cfg.Logging.Level)
	}
	if cfg.Index.Granularity != 120 {
		t.Errorf("Expected granularity 120 (from env var), got %d", cfg.Index.Granularity)
	}
}

func TestLoadConfigWithDotEnv(t *testing.T) {
	tmpDir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error = %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("Chdir() error = %v", err)
	}
	defer os.Chdir(wd)

	// registered with t.Setenv so the value loaded from .env is undone
	t.Setenv("LOGSEEK_TEST_TOPIC", "")
	os.Unsetenv("LOGSEEK_TEST_TOPIC")

	if err := os.WriteFile(DotEnvFile, []byte("LOGSEEK_TEST_TOPIC=from-dotenv\n"), 0644); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}

	configContent := `
output:
  type: kafka
  kafka:
    brokers: [localhost:9092]
    topic: ${LOGSEEK_TEST_TOPIC}
`
	if err := os.WriteFile("config.yaml", []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load("config.yaml")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Output.Kafka.Topic != "from-dotenv" {
		t.Errorf("Expected topic from .env, got %q", cfg.Output.Kafka.Topic)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "invalid" },
			wantErr: true,
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "invalid" },
			wantErr: true,
		},
		{
			name:    "negative chunk size",
			mutate:  func(c *Config) { c.Index.ChunkSize = -1 },
			wantErr: true,
		},
		{
			name:    "same suffixes",
			mutate:  func(c *Config) { c.Index.GzipSuffix = c.Index.Suffix },
			wantErr: true,
		},
		{
			name: "regex parser without timestamp group",
			mutate: func(c *Config) {
				c.Parser = &parser.ParserConfig{Type: parser.ParserTypeRegex, Pattern: `^(?P<level>\w+)`}
			},
			wantErr: true,
		},
		{
			name:    "unknown output",
			mutate:  func(c *Config) { c.Output.Type = "ftp" },
			wantErr: true,
		},
		{
			name:    "relative allowed dir",
			mutate:  func(c *Config) { c.Server.AllowedDirs = []string{"logs"} },
			wantErr: true,
		},
		{
			name:    "sample rate out of range",
			mutate:  func(c *Config) { c.Tracing.SampleRate = 2 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}

	if cfg.Logging.Level != DefaultLogLevel {
		t.Errorf("Expected default log level %s, got %s", DefaultLogLevel, cfg.Logging.Level)
	}

	if cfg.Index.Granularity != DefaultGranularity {
		t.Errorf("Expected default granularity %d, got %d", DefaultGranularity, cfg.Index.Granularity)
	}

	if cfg.Index.ChunkSize != DefaultChunkSize {
		t.Errorf("Expected default chunk size %d, got %d", DefaultChunkSize, cfg.Index.ChunkSize)
	}

	if cfg.Output.Type != output.TypeStream {
		t.Errorf("Expected default output type stream, got %s", cfg.Output.Type)
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Index.Granularity != DefaultGranularity {
		t.Errorf("Expected default granularity, got %d", cfg.Index.Granularity)
	}

	if _, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}
