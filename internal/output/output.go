package output

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/therealutkarshpriyadarshi/logseek/internal/logging"
	"github.com/therealutkarshpriyadarshi/logseek/internal/metrics"
)

// Sink receives an extracted byte range. Line-oriented sinks split the range
// into lines; byte-oriented sinks store it as is. Close flushes whatever is
// buffered and must always be called.
type Sink interface {
	io.WriteCloser

	// Name returns the name of the sink
	Name() string
}

// Sink types
const (
	TypeStream        = "stream"
	TypeKafka         = "kafka"
	TypeElasticsearch = "elasticsearch"
	TypeS3            = "s3"
)

// Config selects and configures the sink for extracted ranges
type Config struct {
	// Type is the sink type (stream, kafka, elasticsearch, s3)
	Type string `yaml:"type"`

	// Path is the output file for stream sinks, stdout when empty or "-"
	Path string `yaml:"path,omitempty"`

	// Compression applies to stream and s3 sinks
	Compression CompressionType `yaml:"compression,omitempty"`

	// RateLimit caps line sinks at this many lines per second, 0 disables
	RateLimit float64 `yaml:"rate_limit,omitempty"`

	// BatchSize is the number of lines per request for line sinks
	BatchSize int `yaml:"batch_size,omitempty"`

	// Timeout bounds each request made by a remote sink
	Timeout time.Duration `yaml:"timeout,omitempty"`

	Kafka         *KafkaConfig         `yaml:"kafka,omitempty"`
	Elasticsearch *ElasticsearchConfig `yaml:"elasticsearch,omitempty"`
	S3            *S3Config            `yaml:"s3,omitempty"`
}

// Default values
const (
	DefaultBatchSize = 500
	DefaultTimeout   = 30 * time.Second
)

// DefaultConfig writes ranges to stdout uncompressed
func DefaultConfig() Config {
	return Config{
		Type:        TypeStream,
		Compression: CompressionNone,
		BatchSize:   DefaultBatchSize,
		Timeout:     DefaultTimeout,
	}
}

// Validate checks that the selected sink is fully configured
func (c *Config) Validate() error {
	if _, err := c.Compression.Extension(); err != nil {
		return err
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}

	switch c.Type {
	case TypeStream, "":
		return nil
	case TypeKafka:
		if c.Kafka == nil {
			return fmt.Errorf("kafka output requires a kafka section")
		}
		return c.Kafka.Validate()
	case TypeElasticsearch:
		if c.Elasticsearch == nil {
			return fmt.Errorf("elasticsearch output requires an elasticsearch section")
		}
		return c.Elasticsearch.Validate()
	case TypeS3:
		if c.S3 == nil {
			return fmt.Errorf("s3 output requires an s3 section")
		}
		return c.S3.Validate()
	default:
		return fmt.Errorf("unknown output type: %s", c.Type)
	}
}

// NewSink builds the sink named by cfg.Type. source is the log path the range
// comes from; line sinks attach it to every line.
func NewSink(ctx context.Context, cfg Config, source string, logger *logging.Logger, collector *metrics.Collector) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger = logger.WithComponent("output").WithField("sink", cfg.Type)

	switch cfg.Type {
	case TypeKafka:
		return NewKafkaSink(ctx, cfg, source, collector)
	case TypeElasticsearch:
		return NewElasticsearchSink(ctx, cfg, source, collector)
	case TypeS3:
		return NewS3Sink(ctx, cfg, logger, collector)
	default:
		return NewStreamSink(cfg, collector)
	}
}

// observe records one delivery in the sink metrics
func observe(collector *metrics.Collector, sink string, lines, bytes int, start time.Time, err error) {
	collector.OutputDuration.WithLabelValues(sink).Observe(time.Since(start).Seconds())
	if err != nil {
		collector.OutputFailures.WithLabelValues(sink).Inc()
		return
	}
	if lines > 0 {
		collector.OutputLinesSent.WithLabelValues(sink).Add(float64(lines))
	}
	collector.OutputBytesSent.WithLabelValues(sink).Add(float64(bytes))
}
