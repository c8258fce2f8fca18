package output

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/therealutkarshpriyadarshi/logseek/internal/metrics"
)

// KafkaConfig contains Kafka-specific configuration
type KafkaConfig struct {
	// Brokers is the list of Kafka broker addresses
	Brokers []string `yaml:"brokers"`

	// Topic receives one message per line
	Topic string `yaml:"topic"`

	// RequiredAcks specifies the number of acknowledgments required (0, 1, -1)
	RequiredAcks int16 `yaml:"required_acks,omitempty"`

	// CompressionCodec specifies the compression codec (none, gzip, snappy, lz4, zstd)
	CompressionCodec string `yaml:"compression_codec,omitempty"`

	// MaxMessageBytes is the maximum size of a single message
	MaxMessageBytes int `yaml:"max_message_bytes,omitempty"`

	// EnableTLS enables TLS for connections
	EnableTLS bool `yaml:"enable_tls,omitempty"`

	// SASL configuration
	SASLEnabled   bool   `yaml:"sasl_enabled,omitempty"`
	SASLMechanism string `yaml:"sasl_mechanism,omitempty"` // PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	SASLUsername  string `yaml:"sasl_username,omitempty"`
	SASLPassword  string `yaml:"sasl_password,omitempty"`

	// ClientID is the client identifier
	ClientID string `yaml:"client_id,omitempty"`

	// Version is the Kafka protocol version
	Version string `yaml:"version,omitempty"`
}

// Validate checks the required Kafka settings
func (c *KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("no brokers specified")
	}
	if c.Topic == "" {
		return fmt.Errorf("no topic specified")
	}
	return nil
}

// saramaConfig translates the configuration into a producer config
func (c *KafkaConfig) saramaConfig(timeout time.Duration) (*sarama.Config, error) {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	if c.RequiredAcks != 0 {
		sc.Producer.RequiredAcks = sarama.RequiredAcks(c.RequiredAcks)
	}
	sc.Producer.Timeout = timeout
	// lines of one range keep their order on a single partition
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	sc.ClientID = "logseek"
	if c.ClientID != "" {
		sc.ClientID = c.ClientID
	}

	switch c.CompressionCodec {
	case "gzip":
		sc.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		sc.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		sc.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		sc.Producer.Compression = sarama.CompressionZSTD
	default:
		sc.Producer.Compression = sarama.CompressionNone
	}

	if c.MaxMessageBytes > 0 {
		sc.Producer.MaxMessageBytes = c.MaxMessageBytes
	}

	if c.Version != "" {
		version, err := sarama.ParseKafkaVersion(c.Version)
		if err != nil {
			return nil, fmt.Errorf("invalid Kafka version: %w", err)
		}
		sc.Version = version
	}

	if c.SASLEnabled {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User = c.SASLUsername
		sc.Net.SASL.Password = c.SASLPassword

		switch c.SASLMechanism {
		case "SCRAM-SHA-256":
			sc.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		case "SCRAM-SHA-512":
			sc.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		default:
			sc.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		}
	}

	if c.EnableTLS {
		sc.Net.TLS.Enable = true
	}

	return sc, nil
}

// KafkaSink publishes every line of the range as one Kafka message keyed by
// the source log path
type KafkaSink struct {
	*Batcher

	topic     string
	source    string
	producer  sarama.SyncProducer
	collector *metrics.Collector
	closed    bool
}

// NewKafkaSink connects a synchronous producer to the configured brokers
func NewKafkaSink(ctx context.Context, cfg Config, source string, collector *metrics.Collector) (*KafkaSink, error) {
	sc, err := cfg.Kafka.saramaConfig(cfg.Timeout)
	if err != nil {
		return nil, err
	}

	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return newKafkaSink(ctx, cfg, source, producer, collector), nil
}

func newKafkaSink(ctx context.Context, cfg Config, source string, producer sarama.SyncProducer, collector *metrics.Collector) *KafkaSink {
	k := &KafkaSink{
		topic:     cfg.Kafka.Topic,
		source:    source,
		producer:  producer,
		collector: collector,
	}
	k.Batcher = NewBatcher(ctx, BatcherConfig{
		MaxBatchSize: cfg.BatchSize,
		RateLimit:    cfg.RateLimit,
	}, k.send)
	return k
}

// send publishes one batch of lines
func (k *KafkaSink) send(ctx context.Context, lines [][]byte) error {
	start := time.Now()

	var size int
	messages := make([]*sarama.ProducerMessage, len(lines))
	for i, line := range lines {
		messages[i] = &sarama.ProducerMessage{
			Topic: k.topic,
			Key:   sarama.StringEncoder(k.source),
			Value: sarama.ByteEncoder(line),
		}
		size += len(line)
	}

	err := k.producer.SendMessages(messages)
	if err != nil {
		err = fmt.Errorf("failed to send messages to Kafka: %w", err)
	}
	observe(k.collector, TypeKafka, len(lines), size, start, err)
	return err
}

// Close flushes the remaining lines and closes the producer
func (k *KafkaSink) Close() error {
	if k.closed {
		return nil
	}
	k.closed = true

	err := k.Batcher.Close()
	if cerr := k.producer.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close Kafka producer: %w", cerr)
	}
	return err
}

// Name returns the sink name
func (k *KafkaSink) Name() string {
	return TypeKafka
}
