package parser

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/logseek/pkg/types"
)

// LineParser groups raw log lines into records. Parse is fed every physical
// line in order, together with its offset in the logical stream, and returns
// the records that closed because of it. A record still being accumulated
// when input ends is never returned.
type LineParser interface {
	Parse(line []byte, offset uint64) []types.LogRecord

	// Reset drops any partially accumulated record
	Reset()

	Name() string
}

// Extractor pulls the timestamp and session id out of a single line
type Extractor interface {
	Extract(line []byte) (Fields, error)
	Name() string
}

// Fields extracted from a line. Timestamp is in seconds since the epoch.
type Fields struct {
	Timestamp uint64
	SessionID string
}

// ParserType represents different extractor types
type ParserType string

const (
	ParserTypeRegex ParserType = "regex"
	ParserTypeJSON  ParserType = "json"
	ParserTypeGrok  ParserType = "grok"
)

// Time formats understood besides Go layouts
const (
	TimeFormatUnix   = "unix"
	TimeFormatUnixMs = "unix_ms"
)

var (
	ErrNoMatch     = errors.New("line does not match pattern")
	ErrNoTimestamp = errors.New("no timestamp field")
)

// ParserConfig holds parser configuration
type ParserConfig struct {
	Type         ParserType       `yaml:"type"`
	Pattern      string           `yaml:"pattern,omitempty"`       // For regex/grok parsers
	GrokPattern  string           `yaml:"grok_pattern,omitempty"`  // Named grok pattern
	TimeFormat   string           `yaml:"time_format,omitempty"`   // Go layout, "unix" or "unix_ms"
	TimeField    string           `yaml:"time_field,omitempty"`    // Field containing timestamp
	SessionField string           `yaml:"session_field,omitempty"` // Field containing session id
	Location     string           `yaml:"location,omitempty"`      // Zone for layouts without offset
	Multiline    *MultilineConfig `yaml:"multiline,omitempty"`
}

// MultilineConfig holds configuration for multi-line records
type MultilineConfig struct {
	Pattern  string `yaml:"pattern"`   // Regex matching the first line of a record
	Negate   bool   `yaml:"negate"`    // Lines NOT matching start a record
	MaxLines int    `yaml:"max_lines"` // Records are closed after this many lines
}

// New creates a LineParser from the configuration
func New(cfg *ParserConfig) (LineParser, error) {
	extractor, err := NewExtractor(cfg)
	if err != nil {
		return nil, err
	}
	return NewRecordParser(extractor, cfg.Multiline)
}

// NewExtractor creates the single-line extractor named by cfg.Type
func NewExtractor(cfg *ParserConfig) (Extractor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("parser configuration is nil")
	}

	switch cfg.Type {
	case ParserTypeRegex:
		return NewRegexExtractor(cfg)
	case ParserTypeJSON:
		return NewJSONExtractor(cfg)
	case ParserTypeGrok:
		return NewGrokExtractor(cfg)
	default:
		return nil, fmt.Errorf("unknown parser type: %s", cfg.Type)
	}
}

// DefaultParserConfig matches lines starting with a timestamp, either unix
// seconds or one of DefaultTimeFormats without spaces
func DefaultParserConfig() *ParserConfig {
	return &ParserConfig{
		Type:         ParserTypeRegex,
		Pattern:      `^(?P<timestamp>\S+)(?:\s+sid=(?P<session>\S+))?`,
		TimeField:    "timestamp",
		SessionField: "session",
	}
}

// timeParser converts a captured timestamp to epoch seconds
type timeParser struct {
	format string
	loc    *time.Location
}

func newTimeParser(cfg *ParserConfig) (timeParser, error) {
	tp := timeParser{format: cfg.TimeFormat, loc: time.UTC}
	if cfg.Location != "" {
		loc, err := time.LoadLocation(cfg.Location)
		if err != nil {
			return tp, fmt.Errorf("invalid location %q: %w", cfg.Location, err)
		}
		tp.loc = loc
	}
	return tp, nil
}

func (tp timeParser) parse(value string) (uint64, error) {
	switch tp.format {
	case TimeFormatUnix:
		return parseUnix(value, 1)
	case TimeFormatUnixMs:
		return parseUnix(value, 1000)
	case "":
		if isNumeric(value) {
			return parseUnix(value, 1)
		}
		ts, err := ParseTimestampIn(value, tp.loc)
		if err != nil {
			return 0, err
		}
		return epochSeconds(ts)
	default:
		ts, err := time.ParseInLocation(tp.format, value, tp.loc)
		if err != nil {
			return 0, fmt.Errorf("failed to parse timestamp %q: %w", value, err)
		}
		return epochSeconds(ts)
	}
}

func parseUnix(value string, divisor uint64) (uint64, error) {
	if i := strings.IndexByte(value, '.'); i >= 0 {
		value = value[:i]
	}
	v, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse timestamp %q: %w", value, err)
	}
	return v / divisor, nil
}

func epochSeconds(ts time.Time) (uint64, error) {
	if ts.Unix() <= 0 {
		return 0, fmt.Errorf("timestamp %s before epoch", ts.Format(time.RFC3339))
	}
	return uint64(ts.Unix()), nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	dot := false
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] >= '0' && s[i] <= '9':
		case s[i] == '.' && !dot && i > 0:
			dot = true
		default:
			return false
		}
	}
	return true
}

// ParseTimestamp attempts to parse a timestamp from a string using multiple formats
func ParseTimestamp(ts string, formats ...string) (time.Time, error) {
	return parseTimestamp(ts, time.UTC, formats...)
}

// ParseTimestampIn is ParseTimestamp with layouts lacking a zone read in loc
func ParseTimestampIn(ts string, loc *time.Location, formats ...string) (time.Time, error) {
	return parseTimestamp(ts, loc, formats...)
}

func parseTimestamp(ts string, loc *time.Location, formats ...string) (time.Time, error) {
	if len(formats) == 0 {
		formats = DefaultTimeFormats()
	}

	for _, format := range formats {
		if t, err := time.ParseInLocation(format, ts, loc); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp: %s", ts)
}

// DefaultTimeFormats returns common timestamp formats
func DefaultTimeFormats() []string {
	return []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.000",
		"2006-01-02 15:04:05,000",
		"2006/01/02 15:04:05",
		"02/Jan/2006:15:04:05 -0700",
	}
}

// trimEOL strips the trailing newline (and carriage return) of a raw line
func trimEOL(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte{'\n'})
	return bytes.TrimSuffix(line, []byte{'\r'})
}
