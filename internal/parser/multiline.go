package parser

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/therealutkarshpriyadarshi/logseek/pkg/types"
)

const defaultMaxLines = 500

// RecordParser groups lines into records and extracts each record's
// timestamp with an Extractor. Without a multiline configuration every
// non-blank line is a record of its own.
type RecordParser struct {
	extractor Extractor
	pattern   *regexp.Regexp
	negate    bool
	maxLines  int

	pending *types.LogRecord
	lastErr error
}

// NewRecordParser creates a new record parser
func NewRecordParser(extractor Extractor, ml *MultilineConfig) (*RecordParser, error) {
	p := &RecordParser{extractor: extractor, maxLines: 1}
	if ml == nil {
		return p, nil
	}

	if ml.Pattern == "" {
		return nil, fmt.Errorf("multiline pattern is required")
	}
	pattern, err := regexp.Compile(ml.Pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile multiline pattern: %w", err)
	}

	p.pattern = pattern
	p.negate = ml.Negate
	p.maxLines = ml.MaxLines
	if p.maxLines <= 0 {
		p.maxLines = defaultMaxLines
	}
	return p, nil
}

// Parse processes a line starting at offset in the logical stream
func (p *RecordParser) Parse(line []byte, offset uint64) []types.LogRecord {
	blank := len(bytes.TrimSpace(line)) == 0

	if p.pattern == nil {
		if blank {
			return nil
		}
		p.start(line, offset)
		return p.close(nil)
	}

	if blank {
		// blank lines belong to the record they appear in
		if p.pending != nil {
			return p.add(line, nil)
		}
		return nil
	}

	if p.isStart(line) {
		var closed []types.LogRecord
		if p.pending != nil {
			closed = p.close(closed)
		}
		p.start(line, offset)
		return closed
	}

	if p.pending == nil {
		// continuation with nothing to continue, e.g. when resuming mid-record
		p.start(line, offset)
		return nil
	}
	return p.add(line, nil)
}

func (p *RecordParser) isStart(line []byte) bool {
	matches := p.pattern.Match(trimEOL(line))
	if p.negate {
		matches = !matches
	}
	return matches
}

func (p *RecordParser) start(line []byte, offset uint64) {
	p.pending = &types.LogRecord{Offset: offset}
	p.lastErr = nil
	p.append(line)
}

func (p *RecordParser) add(line []byte, closed []types.LogRecord) []types.LogRecord {
	p.append(line)
	if len(p.pending.Lines) >= p.maxLines {
		return p.close(closed)
	}
	return closed
}

// append copies the line into the pending record and extracts a timestamp
// from it if the record has none yet
func (p *RecordParser) append(line []byte) {
	p.pending.Lines = append(p.pending.Lines, append([]byte(nil), line...))
	if p.pending.Timestamp != 0 || len(bytes.TrimSpace(line)) == 0 {
		return
	}
	fields, err := p.extractor.Extract(line)
	if err != nil {
		if p.lastErr == nil {
			p.lastErr = err
		}
		return
	}
	if fields.Timestamp == 0 {
		return
	}
	p.pending.Timestamp = fields.Timestamp
	p.pending.SessionID = fields.SessionID
}

func (p *RecordParser) close(closed []types.LogRecord) []types.LogRecord {
	rec := p.pending
	p.pending = nil
	if rec.Timestamp == 0 {
		cause := p.lastErr
		if cause == nil {
			cause = ErrNoTimestamp
		}
		rec.Err = &types.ParseError{
			Offset: rec.Offset,
			Line:   string(trimEOL(rec.FirstLine())),
			Err:    cause,
		}
	}
	p.lastErr = nil
	return append(closed, *rec)
}

// Reset drops the pending record
func (p *RecordParser) Reset() {
	p.pending = nil
	p.lastErr = nil
}

// Pending reports whether a record is being accumulated
func (p *RecordParser) Pending() bool {
	return p.pending != nil
}

// Name returns the parser name
func (p *RecordParser) Name() string {
	if p.pattern != nil {
		return "multiline+" + p.extractor.Name()
	}
	return p.extractor.Name()
}
