package types

import (
	"errors"
	"fmt"
)

// Error kinds shared by the index, the reader, the builder and the extractor.
// Callers match them with errors.Is; the wrapped cause stays reachable.
var (
	ErrIO            = errors.New("i/o error")
	ErrCorruptStream = errors.New("corrupt compressed stream")
	ErrParse         = errors.New("parse error")
	ErrOutOfOrder    = errors.New("index entry out of order")
	ErrNotFound      = errors.New("no index entry at or before query")
)

// IOError wraps err as an ErrIO for the given operation and path
func IOError(op, path string, err error) error {
	return fmt.Errorf("%w: failed to %s %s: %w", ErrIO, op, path, err)
}

// ParseError reports a record whose timestamp could not be extracted
type ParseError struct {
	Offset uint64
	Line   string
	Err    error
}

func (e *ParseError) Error() string {
	line := e.Line
	if len(line) > 120 {
		line = line[:120] + "..."
	}
	return fmt.Sprintf("parse error at offset %d: %v (line %q)", e.Offset, e.Err, line)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrParse, e.Err}
}
