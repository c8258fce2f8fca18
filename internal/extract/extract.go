// Package extract writes the part of a log that starts near a timestamp,
// using the side indexes written by the builder.
package extract

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/therealutkarshpriyadarshi/logseek/internal/builder"
	"github.com/therealutkarshpriyadarshi/logseek/internal/config"
	"github.com/therealutkarshpriyadarshi/logseek/internal/index"
	"github.com/therealutkarshpriyadarshi/logseek/internal/inflate"
	"github.com/therealutkarshpriyadarshi/logseek/internal/logging"
	"github.com/therealutkarshpriyadarshi/logseek/internal/metrics"
	"github.com/therealutkarshpriyadarshi/logseek/internal/tracing"
	"github.com/therealutkarshpriyadarshi/logseek/pkg/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const copyBufferSize = 64 * 1024

// Result describes one extraction
type Result struct {
	Path       string           `json:"path"`
	Mode       types.SourceKind `json:"mode"`
	Timestamp  uint64           `json:"timestamp"`
	Offset     uint64           `json:"offset"`
	Checkpoint uint64           `json:"checkpoint"`
	Skipped    uint64           `json:"skipped"`
	Bytes      uint64           `json:"bytes"`
	NotFound   bool             `json:"not_found"`
	Truncated  bool             `json:"truncated"`
	Duration   time.Duration    `json:"duration"`
}

// Locator is implemented by writers that need the resolved start of a range
// before its first byte is written, e.g. to set response headers
type Locator interface {
	Located(result *Result)
}

// Extractor copies log ranges to a writer. It only reads the log and its
// indexes, so one Extractor may serve concurrent calls.
type Extractor struct {
	naming    index.Naming
	logger    *logging.Logger
	collector *metrics.Collector
	tracer    trace.Tracer
}

// Option configures an Extractor
type Option func(*Extractor)

// WithTracer sets the tracer used for extraction spans
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Extractor) {
		e.tracer = tracer
	}
}

// New creates an extractor reading indexes named after cfg
func New(cfg config.IndexConfig, logger *logging.Logger, collector *metrics.Collector, opts ...Option) *Extractor {
	if collector == nil {
		collector = metrics.NewCollector()
	}
	e := &Extractor{
		naming:    cfg.Naming(),
		logger:    logger.WithComponent("extract"),
		collector: collector,
		tracer:    tracing.Noop().Tracer(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract writes logPath to w starting at the index entry at or before ts.
// Without such an entry the whole log is written and Result.NotFound is set.
func (e *Extractor) Extract(ctx context.Context, logPath string, ts uint64, w io.Writer) (*Result, error) {
	start := time.Now()

	ctx, span := tracing.TraceExtract(ctx, e.tracer, logPath, ts)
	defer span.End()

	result := &Result{Path: logPath, Timestamp: ts}
	err := e.extract(ctx, logPath, ts, w, result)
	result.Duration = time.Since(start)
	e.record(result, err)

	span.SetAttributes(
		attribute.Int64("extract.offset", int64(result.Offset)),
		attribute.Int64("extract.bytes", int64(result.Bytes)),
		attribute.Bool("extract.fallback", result.NotFound),
	)
	if err != nil {
		tracing.RecordError(ctx, err)
		return result, err
	}

	e.logger.Debug().
		Str("path", logPath).
		Uint64("timestamp", ts).
		Uint64("offset", result.Offset).
		Uint64("checkpoint", result.Checkpoint).
		Uint64("skipped", result.Skipped).
		Uint64("bytes", result.Bytes).
		Dur("duration", result.Duration).
		Msg("Range extracted")
	return result, nil
}

func (e *Extractor) extract(ctx context.Context, logPath string, ts uint64, w io.Writer, result *Result) error {
	f, err := os.Open(logPath)
	if err != nil {
		return types.IOError("open", logPath, err)
	}
	defer f.Close()

	kind, err := builder.DetectKind(f)
	if err != nil {
		return types.IOError("read", logPath, err)
	}
	result.Mode = kind

	offset, err := e.lookup(logPath, ts)
	switch {
	case err == nil:
		result.Offset = offset
	case errors.Is(err, types.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		e.logger.Warn().
			Err(err).
			Str("path", logPath).
			Uint64("timestamp", ts).
			Msg("No index entry at or before timestamp, extracting from the start")
		result.NotFound = true
	default:
		return err
	}

	if l, ok := w.(Locator); ok {
		l.Located(result)
	}

	if kind == types.SourceGzip {
		return e.extractGzip(ctx, f, w, result)
	}
	return e.extractPlain(ctx, f, w, result)
}

// lookup resolves ts to an uncompressed offset with the time index
func (e *Extractor) lookup(logPath string, ts uint64) (uint64, error) {
	tidx, err := index.OpenTimeIndex(e.naming.TimeIndexPath(logPath), index.ModeRead)
	if err != nil {
		return 0, err
	}
	defer tidx.Close()
	return tidx.FindAtOrBefore(ts)
}

func (e *Extractor) extractPlain(ctx context.Context, f *os.File, w io.Writer, result *Result) error {
	if _, err := f.Seek(int64(result.Offset), io.SeekStart); err != nil {
		return types.IOError("seek", f.Name(), err)
	}
	n, err := copyContext(ctx, w, f)
	result.Bytes = uint64(n)
	if err != nil && !errors.Is(err, errWrite) && ctx.Err() == nil {
		return types.IOError("read", f.Name(), err)
	}
	return err
}

func (e *Extractor) extractGzip(ctx context.Context, f *os.File, w io.Writer, result *Result) error {
	r := inflate.NewReader(f)

	cp, err := e.checkpoint(f.Name(), result.Offset)
	if err != nil {
		return err
	}
	if cp != nil {
		result.Checkpoint = cp.UncompressedOffset
		err = r.StartFromCheckpoint(cp)
	} else {
		err = r.StartFresh()
	}
	if err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk, err := r.NextChunk()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		chunkStart := r.Offset() - uint64(len(chunk))
		if chunkStart < result.Offset {
			skip := result.Offset - chunkStart
			if skip >= uint64(len(chunk)) {
				result.Skipped += uint64(len(chunk))
				continue
			}
			result.Skipped += skip
			chunk = chunk[skip:]
		}
		if len(chunk) == 0 {
			continue
		}

		n, err := w.Write(chunk)
		result.Bytes += uint64(n)
		if err != nil {
			return fmt.Errorf("%w: %w", errWrite, err)
		}
	}

	result.Truncated = r.Truncated()
	if result.Truncated {
		e.logger.Warn().
			Str("path", f.Name()).
			Uint64("offset", r.Offset()).
			Msg("Compressed stream ends early, output stops at the last complete block")
	}
	return nil
}

// checkpoint returns the resume point at or before offset, or nil when the
// stream has to be decoded from its start
func (e *Extractor) checkpoint(logPath string, offset uint64) (*types.Checkpoint, error) {
	if offset == 0 {
		return nil, nil
	}
	cps, err := index.OpenCheckpointStore(e.naming.CheckpointPath(logPath), index.ModeRead)
	if errors.Is(err, fs.ErrNotExist) {
		e.logger.Warn().
			Str("path", logPath).
			Msg("No checkpoint index, decompressing from the start")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer cps.Close()

	cp, err := cps.FindAtOrBefore(offset)
	if errors.Is(err, types.ErrNotFound) {
		return nil, nil
	}
	return cp, err
}

// ExtractAll writes the whole decompressed log to w without consulting any
// index. Gzip logs are decoded with pgzip, which inflates ahead of the
// writer on several goroutines, one member at a time. Bytes after the last
// member end the stream the same way they do for the resumable reader.
func (e *Extractor) ExtractAll(ctx context.Context, logPath string, w io.Writer) (*Result, error) {
	start := time.Now()
	result := &Result{Path: logPath}
	err := e.extractAll(ctx, logPath, w, result)
	result.Duration = time.Since(start)
	e.record(result, err)
	return result, err
}

func (e *Extractor) extractAll(ctx context.Context, logPath string, w io.Writer, result *Result) error {
	f, err := os.Open(logPath)
	if err != nil {
		return types.IOError("open", logPath, err)
	}
	defer f.Close()

	kind, err := builder.DetectKind(f)
	if err != nil {
		return types.IOError("read", logPath, err)
	}
	result.Mode = kind

	if l, ok := w.(Locator); ok {
		l.Located(result)
	}

	if kind == types.SourcePlain {
		return e.extractPlain(ctx, f, w, result)
	}

	// pgzip only stops at member ends when it reads from an io.ByteReader
	br := bufio.NewReaderSize(f, copyBufferSize)
	zr, err := pgzip.NewReader(br)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			result.Truncated = true
			return nil
		}
		return fmt.Errorf("%w: failed to read gzip header: %w", types.ErrCorruptStream, err)
	}
	defer zr.Close()

	for {
		zr.Multistream(false)
		n, err := copyContext(ctx, w, zr)
		result.Bytes += uint64(n)
		switch {
		case err == nil:
		case errors.Is(err, io.ErrUnexpectedEOF):
			result.Truncated = true
			e.logger.Warn().Str("path", logPath).Msg("Compressed stream ends early")
			return nil
		case errors.Is(err, errWrite), ctx.Err() != nil:
			return err
		default:
			return fmt.Errorf("%w: %w", types.ErrCorruptStream, err)
		}

		err = zr.Reset(br)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, pgzip.ErrHeader):
			// end of file, or trailing bytes that are not another member
			return nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			result.Truncated = true
			e.logger.Warn().Str("path", logPath).Msg("Compressed stream ends early")
			return nil
		default:
			return types.IOError("read", logPath, err)
		}
	}
}

func (e *Extractor) record(result *Result, err error) {
	mode := string(result.Mode)
	if mode == "" {
		mode = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	e.collector.ExtractRequests.WithLabelValues(mode, status).Inc()
	e.collector.ExtractBytes.WithLabelValues(mode).Add(float64(result.Bytes))
	e.collector.ExtractSkippedBytes.WithLabelValues(mode).Add(float64(result.Skipped))
	if result.NotFound {
		e.collector.ExtractFallbacks.Inc()
	}
	e.collector.ExtractDuration.WithLabelValues(mode).Observe(result.Duration.Seconds())
}
