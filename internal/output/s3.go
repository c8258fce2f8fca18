package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/therealutkarshpriyadarshi/logseek/internal/logging"
	"github.com/therealutkarshpriyadarshi/logseek/internal/metrics"
)

// S3Config contains S3-specific configuration
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `yaml:"bucket"`

	// Region is the AWS region
	Region string `yaml:"region"`

	// Prefix is the key prefix for objects
	Prefix string `yaml:"prefix,omitempty"`

	// KeyTemplate is the template for object keys (supports time placeholders)
	KeyTemplate string `yaml:"key_template,omitempty"`

	// StorageClass is the S3 storage class (STANDARD, GLACIER, etc.)
	StorageClass string `yaml:"storage_class,omitempty"`

	// ServerSideEncryption specifies encryption (AES256, aws:kms)
	ServerSideEncryption string `yaml:"server_side_encryption,omitempty"`

	// Endpoint for S3-compatible services (e.g., MinIO)
	Endpoint string `yaml:"endpoint,omitempty"`

	// UsePathStyle forces path-style addressing
	UsePathStyle bool `yaml:"use_path_style,omitempty"`

	// SpoolDir holds the range until upload, os.TempDir() when empty
	SpoolDir string `yaml:"spool_dir,omitempty"`
}

// DefaultKeyTemplate names objects after the upload time
const DefaultKeyTemplate = "{{.Year}}/{{.Month}}/{{.Day}}/{{.Hour}}/{{.Timestamp}}.log"

// Validate checks the required S3 settings
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("no bucket specified")
	}
	if c.Region == "" {
		return fmt.Errorf("no region specified")
	}
	return nil
}

// putObjectAPI is the subset of the S3 client used for uploads
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink spools the range to a temporary file and uploads it as a single
// object on Close
type S3Sink struct {
	ctx         context.Context
	config      S3Config
	compression CompressionType
	client      putObjectAPI
	spool       *os.File
	cw          io.WriteCloser
	bytes       int
	start       time.Time
	logger      *logging.Logger
	collector   *metrics.Collector
	now         func() time.Time
	closed      bool
}

// NewS3Sink loads the AWS configuration and opens the spool file
func NewS3Sink(ctx context.Context, cfg Config, logger *logging.Logger, collector *metrics.Collector) (*S3Sink, error) {
	s3Cfg := cfg.S3
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(s3Cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var opts []func(*s3.Options)
	if s3Cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(s3Cfg.Endpoint)
			o.UsePathStyle = s3Cfg.UsePathStyle
		})
	}

	return newS3Sink(ctx, *s3Cfg, cfg.Compression, s3.NewFromConfig(awsCfg, opts...), logger, collector)
}

func newS3Sink(ctx context.Context, cfg S3Config, compression CompressionType, client putObjectAPI, logger *logging.Logger, collector *metrics.Collector) (*S3Sink, error) {
	spool, err := os.CreateTemp(cfg.SpoolDir, "logseek-s3-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}

	cw, err := NewCompressWriter(spool, compression)
	if err != nil {
		spool.Close()
		os.Remove(spool.Name())
		return nil, err
	}

	return &S3Sink{
		ctx:         ctx,
		config:      cfg,
		compression: compression,
		client:      client,
		spool:       spool,
		cw:          cw,
		start:       time.Now(),
		logger:      logger,
		collector:   collector,
		now:         time.Now,
	}, nil
}

// Write appends p to the spool file
func (s *S3Sink) Write(p []byte) (int, error) {
	n, err := s.cw.Write(p)
	s.bytes += n
	if err != nil {
		return n, fmt.Errorf("failed to write spool file: %w", err)
	}
	return n, nil
}

// Close uploads the spooled range and removes the spool file
func (s *S3Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer os.Remove(s.spool.Name())
	defer s.spool.Close()

	err := s.upload()
	observe(s.collector, TypeS3, 0, s.bytes, s.start, err)
	return err
}

func (s *S3Sink) upload() error {
	if err := s.cw.Close(); err != nil {
		return fmt.Errorf("failed to flush spool file: %w", err)
	}
	if _, err := s.spool.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind spool file: %w", err)
	}

	key := s.generateKey(s.now())
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(key),
		Body:        s.spool,
		ContentType: aws.String("text/plain"),
	}
	if s.config.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(s.config.StorageClass)
	}
	if s.config.ServerSideEncryption != "" {
		input.ServerSideEncryption = s3types.ServerSideEncryption(s.config.ServerSideEncryption)
	}
	if s.compression.Compressed() {
		input.ContentEncoding = aws.String(string(s.compression))
	}

	if _, err := s.client.PutObject(s.ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	s.logger.Info().
		Str("bucket", s.config.Bucket).
		Str("key", key).
		Int("bytes", s.bytes).
		Msg("Uploaded range to S3")
	return nil
}

// generateKey generates an S3 key from the template and timestamp
func (s *S3Sink) generateKey(timestamp time.Time) string {
	key := s.config.KeyTemplate
	if key == "" {
		key = DefaultKeyTemplate
	}

	replacements := map[string]string{
		"{{.Year}}":      fmt.Sprintf("%04d", timestamp.Year()),
		"{{.Month}}":     fmt.Sprintf("%02d", timestamp.Month()),
		"{{.Day}}":       fmt.Sprintf("%02d", timestamp.Day()),
		"{{.Hour}}":      fmt.Sprintf("%02d", timestamp.Hour()),
		"{{.Minute}}":    fmt.Sprintf("%02d", timestamp.Minute()),
		"{{.Second}}":    fmt.Sprintf("%02d", timestamp.Second()),
		"{{.Timestamp}}": fmt.Sprintf("%d", timestamp.Unix()),
		"{{.UnixNano}}":  fmt.Sprintf("%d", timestamp.UnixNano()),
	}
	for placeholder, value := range replacements {
		key = strings.ReplaceAll(key, placeholder, value)
	}

	if s.config.Prefix != "" {
		key = s.config.Prefix + key
	}

	ext, _ := s.compression.Extension()
	return key + ext
}

// Name returns the sink name
func (s *S3Sink) Name() string {
	return TypeS3
}
