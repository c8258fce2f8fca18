package output

import (
	"bytes"
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// BatcherConfig configures the batching behavior
type BatcherConfig struct {
	MaxBatchSize  int
	MaxBatchBytes int

	// RateLimit in lines per second, 0 disables
	RateLimit float64
}

// Batcher splits written bytes into lines and hands them to flushFn in
// batches. Lines are passed without their line terminator; blank lines are
// dropped.
type Batcher struct {
	ctx     context.Context
	config  BatcherConfig
	lines   [][]byte
	size    int
	partial []byte
	limiter *rate.Limiter
	flushFn func(ctx context.Context, lines [][]byte) error
}

// NewBatcher creates a new batcher
func NewBatcher(ctx context.Context, config BatcherConfig, flushFn func(ctx context.Context, lines [][]byte) error) *Batcher {
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = DefaultBatchSize
	}
	if config.MaxBatchBytes <= 0 {
		config.MaxBatchBytes = 5 * 1024 * 1024
	}

	b := &Batcher{
		ctx:     ctx,
		config:  config,
		lines:   make([][]byte, 0, config.MaxBatchSize),
		flushFn: flushFn,
	}
	if config.RateLimit > 0 {
		// a whole batch must fit in one WaitN call
		b.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.MaxBatchSize)
	}
	return b
}

// Write splits p into lines. A trailing partial line is kept until the next
// Write or Close.
func (b *Batcher) Write(p []byte) (int, error) {
	data := p
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			b.partial = append(b.partial, data...)
			break
		}

		line := data[:i]
		if len(b.partial) > 0 {
			line = append(b.partial, line...)
			b.partial = b.partial[:0]
		}
		if err := b.add(line); err != nil {
			return len(p) - len(data), err
		}
		data = data[i+1:]
	}
	return len(p), nil
}

func (b *Batcher) add(line []byte) error {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if len(line) == 0 {
		return nil
	}

	b.lines = append(b.lines, append([]byte(nil), line...))
	b.size += len(line)

	if len(b.lines) >= b.config.MaxBatchSize || b.size >= b.config.MaxBatchBytes {
		return b.Flush()
	}
	return nil
}

// Flush hands the current batch to flushFn
func (b *Batcher) Flush() error {
	if len(b.lines) == 0 {
		return nil
	}

	if b.limiter != nil {
		if err := b.limiter.WaitN(b.ctx, len(b.lines)); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	batch := b.lines
	b.lines = make([][]byte, 0, b.config.MaxBatchSize)
	b.size = 0

	return b.flushFn(b.ctx, batch)
}

// Close flushes the partial line and the remaining batch
func (b *Batcher) Close() error {
	if len(b.partial) > 0 {
		line := b.partial
		b.partial = nil
		if err := b.add(line); err != nil {
			return err
		}
	}
	return b.Flush()
}

// Size returns the current number of lines in the batch
func (b *Batcher) Size() int {
	return len(b.lines)
}
