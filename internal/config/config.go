package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/therealutkarshpriyadarshi/logseek/internal/index"
	"github.com/therealutkarshpriyadarshi/logseek/internal/logging"
	"github.com/therealutkarshpriyadarshi/logseek/internal/output"
	"github.com/therealutkarshpriyadarshi/logseek/internal/parser"
	"github.com/therealutkarshpriyadarshi/logseek/internal/tracing"
)

// Config represents the main configuration
type Config struct {
	Logging logging.Config       `yaml:"logging"`
	Index   IndexConfig          `yaml:"index"`
	Parser  *parser.ParserConfig `yaml:"parser,omitempty"`
	Output  output.Config        `yaml:"output"`
	Metrics MetricsConfig        `yaml:"metrics"`
	Tracing tracing.Config       `yaml:"tracing"`
	Server  ServerConfig         `yaml:"server"`
	Client  ClientConfig         `yaml:"client"`
}

// IndexConfig controls index building and lookup
type IndexConfig struct {
	// Granularity is the width of a time bucket in seconds
	Granularity uint64 `yaml:"granularity"`

	// ChunkSize is the minimum uncompressed distance between checkpoints
	ChunkSize int `yaml:"chunk_size"`

	Suffix     string `yaml:"suffix,omitempty"`
	GzipSuffix string `yaml:"gzip_suffix,omitempty"`

	// Dir holds the index files instead of the log's own directory
	Dir string `yaml:"dir,omitempty"`

	// Strict makes the first unparseable record fail the build
	Strict bool `yaml:"strict"`

	// FollowDebounce coalesces write events in follow mode
	FollowDebounce time.Duration `yaml:"follow_debounce,omitempty"`
}

// Naming returns the index file naming for this configuration
func (c IndexConfig) Naming() index.Naming {
	return index.Naming{Dir: c.Dir, Suffix: c.Suffix, GzipSuffix: c.GzipSuffix}
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path metrics are served on by serve
	Path string `yaml:"path,omitempty"`

	// Textfile receives a metrics snapshot after one-shot commands
	Textfile string `yaml:"textfile,omitempty"`
}

// ServerConfig configures `logseek serve`
type ServerConfig struct {
	Address         string        `yaml:"address"`
	AllowedDirs     []string      `yaml:"allowed_dirs"`
	ReadTimeout     time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout    time.Duration `yaml:"write_timeout,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// ClientConfig configures remote extraction against a logseek server
type ClientConfig struct {
	Server string `yaml:"server,omitempty"`
	// Timeout bounds connecting and waiting for response headers, not the
	// streamed body
	Timeout    time.Duration `yaml:"timeout,omitempty"`
	RetryCount int           `yaml:"retry_count,omitempty"`
}

// Default values
const (
	DefaultGranularity     = 60
	DefaultChunkSize       = 32768
	DefaultFollowDebounce  = 500 * time.Millisecond
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultMetricsPath     = "/metrics"
	DefaultServerAddress   = ":8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultClientTimeout   = 5 * time.Minute
	DefaultClientRetries   = 2
)

// DotEnvFile is loaded into the environment before configuration files are
// expanded, when present
const DotEnvFile = ".env"

// Load loads configuration from a YAML file with environment variable overrides
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(expandedData, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv loads .env without overriding variables already set
func loadDotEnv() error {
	err := godotenv.Load(DotEnvFile)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", DotEnvFile, err)
}

// applyDefaults sets default values for unspecified configuration
func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}

	if c.Index.Granularity == 0 {
		c.Index.Granularity = DefaultGranularity
	}
	if c.Index.ChunkSize == 0 {
		c.Index.ChunkSize = DefaultChunkSize
	}
	if c.Index.Suffix == "" {
		c.Index.Suffix = index.DefaultSuffix
	}
	if c.Index.GzipSuffix == "" {
		c.Index.GzipSuffix = index.DefaultGzipSuffix
	}
	if c.Index.FollowDebounce == 0 {
		c.Index.FollowDebounce = DefaultFollowDebounce
	}

	if c.Parser == nil {
		c.Parser = parser.DefaultParserConfig()
	}

	if c.Output.Type == "" {
		c.Output.Type = output.TypeStream
	}
	if c.Output.Compression == "" {
		c.Output.Compression = output.CompressionNone
	}
	if c.Output.BatchSize == 0 {
		c.Output.BatchSize = output.DefaultBatchSize
	}
	if c.Output.Timeout == 0 {
		c.Output.Timeout = output.DefaultTimeout
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Server.Address == "" {
		c.Server.Address = DefaultServerAddress
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Client.Timeout == 0 {
		c.Client.Timeout = DefaultClientTimeout
	}
	if c.Client.RetryCount == 0 {
		c.Client.RetryCount = DefaultClientRetries
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true, "console": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Index.Granularity == 0 {
		return fmt.Errorf("index granularity must be positive")
	}
	if c.Index.ChunkSize <= 0 {
		return fmt.Errorf("index chunk_size must be positive")
	}
	if c.Index.Suffix == c.Index.GzipSuffix {
		return fmt.Errorf("index suffix and gzip_suffix must differ")
	}
	if c.Index.FollowDebounce < 0 {
		return fmt.Errorf("index follow_debounce must not be negative")
	}

	if _, err := parser.NewExtractor(c.Parser); err != nil {
		return fmt.Errorf("invalid parser: %w", err)
	}

	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("invalid output: %w", err)
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing sample_rate must be between 0 and 1")
	}

	for i, dir := range c.Server.AllowedDirs {
		if !filepath.IsAbs(dir) {
			return fmt.Errorf("server allowed_dirs[%d] must be absolute: %s", i, dir)
		}
	}

	return nil
}

// LoadOrDefault loads configuration from path, or returns the default
// configuration when path is empty
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		if err := loadDotEnv(); err != nil {
			return nil, err
		}
		return DefaultConfig(), nil
	}
	return Load(path)
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
