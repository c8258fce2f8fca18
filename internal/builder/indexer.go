package builder

import (
	"bytes"

	"github.com/therealutkarshpriyadarshi/logseek/internal/index"
	"github.com/therealutkarshpriyadarshi/logseek/internal/logging"
	"github.com/therealutkarshpriyadarshi/logseek/internal/parser"
	"github.com/therealutkarshpriyadarshi/logseek/pkg/types"
)

// maxLoggedLine bounds the line excerpt attached to parse error logs
const maxLoggedLine = 256

// indexer splits decompressed bytes into lines, groups them into records and
// appends one time index entry per new bucket
type indexer struct {
	tidx        *index.TimeIndex
	parser      parser.LineParser
	granularity uint64
	strict      bool
	result      *Result
	logger      *logging.Logger

	lastIndexTime uint64

	partial    []byte
	partialOff uint64
}

func (b *Builder) newIndexer(tidx *index.TimeIndex, result *Result, logger *logging.Logger) *indexer {
	b.parser.Reset()
	return &indexer{
		tidx:        tidx,
		parser:      b.parser,
		granularity: b.cfg.Granularity,
		strict:      b.cfg.Strict,
		result:      result,
		logger:      logger,
	}
}

// feed consumes data whose first byte sits at logical offset off. Complete
// lines go to the parser; a trailing partial line is kept for the next call.
func (ix *indexer) feed(data []byte, off uint64) error {
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			if len(ix.partial) == 0 {
				ix.partialOff = off
			}
			ix.partial = append(ix.partial, data...)
			return nil
		}

		line, lineOff := data[:i+1], off
		if len(ix.partial) > 0 {
			line = append(ix.partial, line...)
			lineOff = ix.partialOff
		}
		if err := ix.line(line, lineOff); err != nil {
			return err
		}
		ix.partial = ix.partial[:0]

		data = data[i+1:]
		off += uint64(i + 1)
	}
	return nil
}

// flushPartial feeds an unterminated last line
func (ix *indexer) flushPartial() error {
	if len(ix.partial) == 0 {
		return nil
	}
	line := ix.partial
	ix.partial = nil
	return ix.line(line, ix.partialOff)
}

func (ix *indexer) line(line []byte, off uint64) error {
	for _, rec := range ix.parser.Parse(line, off) {
		if err := ix.record(&rec); err != nil {
			return err
		}
	}
	return nil
}

// record indexes one closed record. Only the first record of a bucket is
// indexed.
func (ix *indexer) record(rec *types.LogRecord) error {
	ix.result.Records++

	if rec.Err != nil || rec.Timestamp == 0 {
		ix.result.ParseErrors++
		excerpt := rec.FirstLine()
		if len(excerpt) > maxLoggedLine {
			excerpt = excerpt[:maxLoggedLine]
		}
		ix.logger.Warn().
			Err(rec.Err).
			Uint64("offset", rec.Offset).
			Bytes("line", bytes.TrimRight(excerpt, "\r\n")).
			Msg("Record has no parseable timestamp")
		if ix.strict {
			if rec.Err != nil {
				return rec.Err
			}
			return &types.ParseError{Offset: rec.Offset, Line: string(excerpt), Err: parser.ErrNoTimestamp}
		}
		return nil
	}

	bucket := rec.Timestamp - rec.Timestamp%ix.granularity
	if bucket <= ix.lastIndexTime {
		return nil
	}
	if err := ix.tidx.Append(bucket, rec.Offset); err != nil {
		return err
	}
	ix.lastIndexTime = bucket
	ix.result.Entries++
	return nil
}
