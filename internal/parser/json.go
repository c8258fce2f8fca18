package parser

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// JSONExtractor reads fields from JSON-formatted lines
type JSONExtractor struct {
	timeField    string
	sessionField string
	times        timeParser
}

// NewJSONExtractor creates a new JSON extractor
func NewJSONExtractor(cfg *ParserConfig) (*JSONExtractor, error) {
	times, err := newTimeParser(cfg)
	if err != nil {
		return nil, err
	}
	return &JSONExtractor{
		timeField:    cfg.TimeField,
		sessionField: cfg.SessionField,
		times:        times,
	}, nil
}

// Extract decodes the line and reads the time and session fields
func (e *JSONExtractor) Extract(line []byte) (Fields, error) {
	var data map[string]interface{}
	if err := json.Unmarshal(trimEOL(line), &data); err != nil {
		return Fields{}, fmt.Errorf("invalid json: %w", err)
	}

	raw, ok := lookup(data, e.timeField, "time", "timestamp", "ts", "@timestamp")
	if !ok {
		return Fields{}, ErrNoTimestamp
	}

	var fields Fields
	switch v := raw.(type) {
	case string:
		ts, err := e.times.parse(v)
		if err != nil {
			return Fields{}, err
		}
		fields.Timestamp = ts
	case float64:
		if v <= 0 {
			return Fields{}, fmt.Errorf("invalid timestamp %v", v)
		}
		ts := uint64(v)
		if e.times.format == TimeFormatUnixMs {
			ts /= 1000
		}
		fields.Timestamp = ts
	default:
		return Fields{}, fmt.Errorf("unsupported timestamp type %T", raw)
	}

	if sid, ok := lookup(data, e.sessionField, "session", "session_id", "request_id"); ok {
		switch v := sid.(type) {
		case string:
			fields.SessionID = v
		case float64:
			fields.SessionID = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return fields, nil
}

// lookup returns the configured field, or the first of the common names
// when no field is configured
func lookup(data map[string]interface{}, field string, common ...string) (interface{}, bool) {
	if field != "" {
		v, ok := data[field]
		return v, ok
	}
	for _, name := range common {
		if v, ok := data[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Name returns the extractor name
func (e *JSONExtractor) Name() string {
	return "json"
}
