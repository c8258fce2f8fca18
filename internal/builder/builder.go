// Package builder scans a log once and writes its side indexes: the time
// index for every log, plus decompression checkpoints for gzip logs.
package builder

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/therealutkarshpriyadarshi/logseek/internal/config"
	"github.com/therealutkarshpriyadarshi/logseek/internal/index"
	"github.com/therealutkarshpriyadarshi/logseek/internal/inflate"
	"github.com/therealutkarshpriyadarshi/logseek/internal/logging"
	"github.com/therealutkarshpriyadarshi/logseek/internal/metrics"
	"github.com/therealutkarshpriyadarshi/logseek/internal/parser"
	"github.com/therealutkarshpriyadarshi/logseek/internal/tracing"
	"github.com/therealutkarshpriyadarshi/logseek/pkg/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const readBufferSize = 64 * 1024

// Result summarizes one build run
type Result struct {
	Path         string           `json:"path"`
	Mode         types.SourceKind `json:"mode"`
	StartOffset  uint64           `json:"start_offset"`
	Records      int64            `json:"records"`
	Entries      int64            `json:"entries"`
	Checkpoints  int64            `json:"checkpoints"`
	ParseErrors  int64            `json:"parse_errors"`
	BytesScanned uint64           `json:"bytes_scanned"`
	Reset        bool             `json:"reset"`
	Truncated    bool             `json:"truncated"`
	Duration     time.Duration    `json:"duration"`
}

// Builder writes the side indexes of log files
type Builder struct {
	cfg       config.IndexConfig
	naming    index.Naming
	parser    parser.LineParser
	logger    *logging.Logger
	collector *metrics.Collector
	tracer    trace.Tracer
}

// Option configures a Builder
type Option func(*Builder)

// WithTracer sets the tracer used for build spans
func WithTracer(tracer trace.Tracer) Option {
	return func(b *Builder) {
		b.tracer = tracer
	}
}

// New creates a builder. The parser is reset at the start of every build and
// must not be shared with another builder.
func New(cfg config.IndexConfig, p parser.LineParser, logger *logging.Logger, collector *metrics.Collector, opts ...Option) *Builder {
	if cfg.Granularity == 0 {
		cfg.Granularity = config.DefaultGranularity
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = config.DefaultChunkSize
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}

	b := &Builder{
		cfg:       cfg,
		naming:    cfg.Naming(),
		parser:    p,
		logger:    logger.WithComponent("builder"),
		collector: collector,
		tracer:    tracing.Noop().Tracer(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build indexes logPath. Plain logs are indexed incrementally from the last
// time index entry; gzip logs are always rebuilt from the start.
func (b *Builder) Build(ctx context.Context, logPath string) (*Result, error) {
	return b.build(ctx, logPath, false)
}

// Rebuild discards the existing indexes of logPath and indexes it from the
// start
func (b *Builder) Rebuild(ctx context.Context, logPath string) (*Result, error) {
	return b.build(ctx, logPath, true)
}

func (b *Builder) build(ctx context.Context, logPath string, reset bool) (*Result, error) {
	start := time.Now()

	f, err := os.Open(logPath)
	if err != nil {
		return nil, types.IOError("open", logPath, err)
	}
	defer f.Close()

	kind, err := DetectKind(f)
	if err != nil {
		return nil, types.IOError("read", logPath, err)
	}

	ctx, span := tracing.TraceBuild(ctx, b.tracer, logPath, string(kind))
	defer span.End()

	result := &Result{Path: logPath, Mode: kind}
	logger := b.logger.WithField("path", logPath).WithField("mode", kind)

	switch kind {
	case types.SourceGzip:
		err = b.buildGzip(ctx, f, result, logger)
	default:
		err = b.buildPlain(ctx, f, reset, result, logger)
	}
	result.Duration = time.Since(start)

	b.record(result, err)
	span.SetAttributes(
		attribute.Int64("build.records", result.Records),
		attribute.Int64("build.entries", result.Entries),
		attribute.Int64("build.checkpoints", result.Checkpoints),
	)
	if err != nil {
		tracing.RecordError(ctx, err)
		logger.Error().Err(err).
			Uint64("bytes_scanned", result.BytesScanned).
			Msg("Index build failed")
		return result, err
	}

	logger.Info().
		Uint64("start_offset", result.StartOffset).
		Int64("records", result.Records).
		Int64("entries", result.Entries).
		Int64("checkpoints", result.Checkpoints).
		Int64("parse_errors", result.ParseErrors).
		Uint64("bytes_scanned", result.BytesScanned).
		Bool("truncated", result.Truncated).
		Dur("duration", result.Duration).
		Msg("Index build complete")
	return result, nil
}

// DetectKind reports whether f starts with the gzip magic. The file offset is
// left at 0.
func DetectKind(f io.ReadSeeker) (types.SourceKind, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	header := make([]byte, 2)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	if inflate.IsGzip(header[:n]) {
		return types.SourceGzip, nil
	}
	return types.SourcePlain, nil
}

// buildPlain appends to the time index, resuming at its last entry
func (b *Builder) buildPlain(ctx context.Context, f *os.File, reset bool, result *Result, logger *logging.Logger) error {
	mode := index.ModeAppend
	if reset {
		mode = index.ModeTruncate
		result.Reset = true
	}
	tidx, err := index.OpenTimeIndex(b.naming.TimeIndexPath(f.Name()), mode)
	if err != nil {
		return err
	}

	st, err := f.Stat()
	if err != nil {
		tidx.Close()
		return types.IOError("stat", f.Name(), err)
	}

	ix := b.newIndexer(tidx, result, logger)
	if last, ok := tidx.LastEntry(); ok {
		if last.Offset >= uint64(st.Size()) {
			logger.Warn().
				Uint64("index_offset", last.Offset).
				Int64("size", st.Size()).
				Msg("Log is shorter than its index, rebuilding")
			if err := tidx.TruncateAndReset(); err != nil {
				tidx.Close()
				return err
			}
			result.Reset = true
		} else {
			result.StartOffset = last.Offset
			ix.lastIndexTime = last.Timestamp
		}
	}

	if _, err := f.Seek(int64(result.StartOffset), io.SeekStart); err != nil {
		tidx.Close()
		return types.IOError("seek", f.Name(), err)
	}

	err = b.scanPlain(ctx, f, ix)
	if cerr := tidx.Close(); err == nil {
		err = cerr
	}
	return err
}

func (b *Builder) scanPlain(ctx context.Context, f *os.File, ix *indexer) error {
	buf := make([]byte, readBufferSize)
	off := ix.result.StartOffset

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := f.Read(buf)
		if n > 0 {
			ix.result.BytesScanned += uint64(n)
			if ferr := ix.feed(buf[:n], off); ferr != nil {
				return ferr
			}
			off += uint64(n)
		}
		if err == io.EOF {
			// an unterminated last line may still be being written
			return nil
		}
		if err != nil {
			return types.IOError("read", f.Name(), err)
		}
	}
}

// buildGzip rewrites both indexes from the start of the compressed stream
func (b *Builder) buildGzip(ctx context.Context, f *os.File, result *Result, logger *logging.Logger) error {
	tidx, err := index.OpenTimeIndex(b.naming.TimeIndexPath(f.Name()), index.ModeTruncate)
	if err != nil {
		return err
	}
	cps, err := index.OpenCheckpointStore(b.naming.CheckpointPath(f.Name()), index.ModeTruncate)
	if err != nil {
		tidx.Close()
		return err
	}

	err = b.scanGzip(ctx, f, b.newIndexer(tidx, result, logger), cps)
	if cerr := cps.Close(); err == nil {
		err = cerr
	}
	if cerr := tidx.Close(); err == nil {
		err = cerr
	}
	return err
}

func (b *Builder) scanGzip(ctx context.Context, f *os.File, ix *indexer, cps *index.CheckpointStore) error {
	r := inflate.NewReader(f, inflate.WithBlockStops(true))
	if err := r.StartFresh(); err != nil {
		return err
	}

	chunkSize := uint64(b.cfg.ChunkSize)
	var lastCheckpoint uint64
	first := true

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if cp, ok := r.Checkpoint(); ok && (first || cp.UncompressedOffset-lastCheckpoint >= chunkSize) {
			if err := cps.Append(cp); err != nil {
				return err
			}
			ix.result.Checkpoints++
			lastCheckpoint = cp.UncompressedOffset
			first = false
		}

		chunk, err := r.NextChunk()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		ix.result.BytesScanned += uint64(len(chunk))
		if err := ix.feed(chunk, r.Offset()-uint64(len(chunk))); err != nil {
			return err
		}
	}

	ix.result.Truncated = r.Truncated()
	if ix.result.Truncated {
		ix.logger.Warn().
			Uint64("offset", r.Offset()).
			Msg("Compressed stream ends early, indexed up to the last complete block")
		return nil
	}
	// the archive is complete, so its unterminated last line is final
	return ix.flushPartial()
}

// record updates the build metrics for one run
func (b *Builder) record(result *Result, err error) {
	mode := string(result.Mode)
	status := "success"
	if err != nil {
		status = "error"
	}
	b.collector.BuildRuns.WithLabelValues(mode, status).Inc()
	b.collector.BuildRecords.WithLabelValues(mode).Add(float64(result.Records))
	b.collector.BuildParseErrors.WithLabelValues(mode).Add(float64(result.ParseErrors))
	b.collector.BuildIndexEntries.WithLabelValues(mode).Add(float64(result.Entries))
	b.collector.BuildBytesScanned.WithLabelValues(mode).Add(float64(result.BytesScanned))
	b.collector.BuildCheckpoints.Add(float64(result.Checkpoints))
	b.collector.BuildDuration.WithLabelValues(mode).Observe(result.Duration.Seconds())
}
