package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/therealutkarshpriyadarshi/logseek/internal/metrics"
)

// StreamSink writes the range to stdout or a file, optionally compressed
type StreamSink struct {
	file      *os.File
	cw        io.WriteCloser
	bytes     int
	start     time.Time
	collector *metrics.Collector
	closed    bool
}

// NewStreamSink opens the stream sink described by cfg
func NewStreamSink(cfg Config, collector *metrics.Collector) (*StreamSink, error) {
	var w io.Writer = os.Stdout
	var file *os.File

	if cfg.Path != "" && cfg.Path != "-" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		f, err := os.Create(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file: %w", err)
		}
		file = f
		w = f
	}

	s, err := newStreamSink(w, cfg.Compression, collector)
	if err != nil {
		if file != nil {
			file.Close()
		}
		return nil, err
	}
	s.file = file
	return s, nil
}

func newStreamSink(w io.Writer, compression CompressionType, collector *metrics.Collector) (*StreamSink, error) {
	cw, err := NewCompressWriter(w, compression)
	if err != nil {
		return nil, err
	}
	return &StreamSink{cw: cw, start: time.Now(), collector: collector}, nil
}

// Write writes p through the compressor
func (s *StreamSink) Write(p []byte) (int, error) {
	n, err := s.cw.Write(p)
	s.bytes += n
	return n, err
}

// Close flushes the compressor and closes the output file
func (s *StreamSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.cw.Close()
	if s.file != nil {
		if cerr := s.file.Close(); err == nil {
			err = cerr
		}
	}
	observe(s.collector, s.Name(), 0, s.bytes, s.start, err)
	return err
}

// Name returns the sink name
func (s *StreamSink) Name() string {
	return TypeStream
}
