package parser

import (
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *ParserConfig
		wantErr bool
	}{
		{
			name: "create regex parser",
			config: &ParserConfig{
				Type:    ParserTypeRegex,
				Pattern: `^(?P<timestamp>\d+) (?P<message>.*)$`,
			},
			wantErr: false,
		},
		{
			name: "create json parser",
			config: &ParserConfig{
				Type: ParserTypeJSON,
			},
			wantErr: false,
		},
		{
			name: "create grok parser",
			config: &ParserConfig{
				Type:        ParserTypeGrok,
				GrokPattern: "java",
			},
			wantErr: false,
		},
		{
			name: "create multiline parser",
			config: &ParserConfig{
				Type:        ParserTypeGrok,
				GrokPattern: "unix",
				Multiline:   &MultilineConfig{Pattern: `^\d+ `},
			},
			wantErr: false,
		},
		{
			name: "regex without timestamp group",
			config: &ParserConfig{
				Type:    ParserTypeRegex,
				Pattern: `^(?P<message>.*)$`,
			},
			wantErr: true,
		},
		{
			name: "invalid location",
			config: &ParserConfig{
				Type:     ParserTypeJSON,
				Location: "Mars/Olympus",
			},
			wantErr: true,
		},
		{
			name:    "nil config",
			config:  nil,
			wantErr: true,
		},
		{
			name: "unknown parser type",
			config: &ParserConfig{
				Type: "unknown",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		formats []string
		wantErr bool
	}{
		{
			name:    "RFC3339 format",
			input:   "2024-01-15T10:30:00Z",
			formats: []string{time.RFC3339},
			wantErr: false,
		},
		{
			name:    "RFC3339Nano format",
			input:   "2024-01-15T10:30:00.123456789Z",
			formats: []string{time.RFC3339Nano},
			wantErr: false,
		},
		{
			name:    "custom format",
			input:   "2024-01-15 10:30:00",
			formats: []string{"2006-01-02 15:04:05"},
			wantErr: false,
		},
		{
			name:    "default formats - RFC3339",
			input:   "2024-01-15T10:30:00Z",
			formats: nil,
			wantErr: false,
		},
		{
			name:    "default formats - apache log",
			input:   "15/Jan/2024:10:30:00 -0700",
			formats: nil,
			wantErr: false,
		},
		{
			name:    "invalid timestamp",
			input:   "invalid-timestamp",
			formats: []string{time.RFC3339},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTimestamp(tt.input, tt.formats...)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseTimestamp() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTimeParser(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("no tzdata: %v", err)
	}

	tests := []struct {
		name    string
		tp      timeParser
		input   string
		want    uint64
		wantErr bool
	}{
		{"unix seconds auto", timeParser{loc: time.UTC}, "1705314600", 1705314600, false},
		{"unix fractional auto", timeParser{loc: time.UTC}, "1705314600.981", 1705314600, false},
		{"unix explicit", timeParser{format: TimeFormatUnix, loc: time.UTC}, "100", 100, false},
		{"unix millis", timeParser{format: TimeFormatUnixMs, loc: time.UTC}, "1705314600123", 1705314600, false},
		{"rfc3339 auto", timeParser{loc: time.UTC}, "2024-01-15T10:30:00Z", 1705314600, false},
		{"layout in utc", timeParser{format: "2006-01-02 15:04:05", loc: time.UTC}, "2024-01-15 10:30:00", 1705314600, false},
		{"layout in location", timeParser{format: "2006-01-02 15:04:05", loc: berlin}, "2024-01-15 11:30:00", 1705314600, false},
		{"garbage", timeParser{loc: time.UTC}, "yesterday", 0, true},
		{"before epoch", timeParser{format: time.RFC3339, loc: time.UTC}, "1960-01-01T00:00:00Z", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.tp.parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parse(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestDefaultParserConfig(t *testing.T) {
	config := DefaultParserConfig()

	if config.Type != ParserTypeRegex {
		t.Errorf("Default parser type = %v, want %v", config.Type, ParserTypeRegex)
	}

	if config.Pattern == "" {
		t.Error("Default pattern should not be empty")
	}

	e, err := NewExtractor(config)
	if err != nil {
		t.Fatalf("NewExtractor() error = %v", err)
	}
	fields, err := e.Extract([]byte("1705314600 sid=abc123 GET /\n"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if fields.Timestamp != 1705314600 || fields.SessionID != "abc123" {
		t.Errorf("Extract() = %+v", fields)
	}
}

func TestDefaultTimeFormats(t *testing.T) {
	formats := DefaultTimeFormats()

	if len(formats) == 0 {
		t.Error("DefaultTimeFormats() should return at least one format")
	}

	// Check that common formats are included
	expectedFormats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	}

	formatMap := make(map[string]bool)
	for _, f := range formats {
		formatMap[f] = true
	}

	for _, expected := range expectedFormats {
		if !formatMap[expected] {
			t.Errorf("Expected format %s not found in default formats", expected)
		}
	}
}
