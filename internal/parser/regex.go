package parser

import (
	"fmt"
	"regexp"
)

// RegexExtractor extracts fields using named capture groups
type RegexExtractor struct {
	pattern      *regexp.Regexp
	name         string
	times        timeParser
	timeGroup    int
	sessionGroup int
}

// NewRegexExtractor creates a new regex extractor
func NewRegexExtractor(cfg *ParserConfig) (*RegexExtractor, error) {
	if cfg.Pattern == "" {
		return nil, fmt.Errorf("regex pattern is required")
	}

	pattern, err := regexp.Compile(cfg.Pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile regex pattern: %w", err)
	}
	return newPatternExtractor(pattern, "regex", cfg)
}

func newPatternExtractor(pattern *regexp.Regexp, name string, cfg *ParserConfig) (*RegexExtractor, error) {
	times, err := newTimeParser(cfg)
	if err != nil {
		return nil, err
	}

	timeField := cfg.TimeField
	if timeField == "" {
		timeField = "timestamp"
	}
	sessionField := cfg.SessionField
	if sessionField == "" {
		sessionField = "session"
	}

	e := &RegexExtractor{
		pattern:      pattern,
		name:         name,
		times:        times,
		timeGroup:    pattern.SubexpIndex(timeField),
		sessionGroup: pattern.SubexpIndex(sessionField),
	}
	if e.timeGroup < 0 {
		return nil, fmt.Errorf("pattern has no %q capture group", timeField)
	}
	return e, nil
}

// Extract matches the line and parses the captured timestamp
func (e *RegexExtractor) Extract(line []byte) (Fields, error) {
	match := e.pattern.FindSubmatchIndex(trimEOL(line))
	if match == nil {
		return Fields{}, ErrNoMatch
	}

	group := func(i int) string {
		if i < 0 || match[2*i] < 0 {
			return ""
		}
		return string(line[match[2*i]:match[2*i+1]])
	}

	raw := group(e.timeGroup)
	if raw == "" {
		return Fields{}, ErrNoTimestamp
	}
	ts, err := e.times.parse(raw)
	if err != nil {
		return Fields{}, err
	}
	return Fields{Timestamp: ts, SessionID: group(e.sessionGroup)}, nil
}

// Name returns the extractor name
func (e *RegexExtractor) Name() string {
	return e.name
}
