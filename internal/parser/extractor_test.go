package parser

import (
	"errors"
	"testing"
)

func TestExtractors(t *testing.T) {
	tests := []struct {
		name        string
		config      *ParserConfig
		input       string
		wantTS      uint64
		wantSession string
		wantErr     bool
	}{
		{
			name:        "regex unix timestamp",
			config:      DefaultParserConfig(),
			input:       "100 sid=s1 hello\n",
			wantTS:      100,
			wantSession: "s1",
		},
		{
			name:   "regex rfc3339 timestamp without session",
			config: DefaultParserConfig(),
			input:  "2024-01-15T10:30:00Z started\n",
			wantTS: 1705314600,
		},
		{
			name: "regex with layout",
			config: &ParserConfig{
				Type:       ParserTypeRegex,
				Pattern:    `^\[(?P<timestamp>[^\]]+)\] (?P<session>\w+):`,
				TimeFormat: "2006-01-02 15:04:05",
			},
			input:       "[2024-01-15 10:30:00] req42: GET /users\r\n",
			wantTS:      1705314600,
			wantSession: "req42",
		},
		{
			name: "regex no match",
			config: &ParserConfig{
				Type:    ParserTypeRegex,
				Pattern: `^(?P<timestamp>\d+) `,
			},
			input:   "    at com.example.Main(Main.java:10)\n",
			wantErr: true,
		},
		{
			name:        "json string time",
			config:      &ParserConfig{Type: ParserTypeJSON},
			input:       `{"time":"2024-01-15 10:30:00","session":"abc","msg":"hi"}` + "\n",
			wantTS:      1705314600,
			wantSession: "abc",
		},
		{
			name:   "json numeric time",
			config: &ParserConfig{Type: ParserTypeJSON, TimeField: "ts"},
			input:  `{"ts":1705314600.5,"msg":"hi"}`,
			wantTS: 1705314600,
		},
		{
			name:        "json millis and numeric session",
			config:      &ParserConfig{Type: ParserTypeJSON, TimeField: "ts", TimeFormat: TimeFormatUnixMs, SessionField: "req"},
			input:       `{"ts":1705314600123,"req":17}`,
			wantTS:      1705314600,
			wantSession: "17",
		},
		{
			name:    "json missing time",
			config:  &ParserConfig{Type: ParserTypeJSON},
			input:   `{"msg":"no time here"}`,
			wantErr: true,
		},
		{
			name:    "json invalid",
			config:  &ParserConfig{Type: ParserTypeJSON},
			input:   `not json`,
			wantErr: true,
		},
		{
			name:   "grok java",
			config: &ParserConfig{Type: ParserTypeGrok, GrokPattern: "java"},
			input:  "2024-01-15T10:30:00.123Z INFO [main] com.example.App - Starting application\n",
			wantTS: 1705314600,
		},
		{
			name:   "grok go",
			config: &ParserConfig{Type: ParserTypeGrok, GrokPattern: "go"},
			input:  "2024-01-15T10:30:00Z INFO Server started on port 8080",
			wantTS: 1705314600,
		},
		{
			name:   "grok apache",
			config: &ParserConfig{Type: ParserTypeGrok, GrokPattern: "apache"},
			input:  `127.0.0.1 - frank [15/Jan/2024:10:30:00 -0700] "GET /apache_pb.gif HTTP/1.0" 200 2326`,
			wantTS: 1705339800,
		},
		{
			name:        "grok unix with session",
			config:      &ParserConfig{Type: ParserTypeGrok, GrokPattern: "unix"},
			input:       "1705314600 sid=9f3a GET /healthz 200\n",
			wantTS:      1705314600,
			wantSession: "9f3a",
		},
		{
			name:        "grok rails",
			config:      &ParserConfig{Type: ParserTypeGrok, GrokPattern: "rails"},
			input:       "2024-01-15 10:30:00 [a1b2c3] Processing by UsersController#index\n",
			wantTS:      1705314600,
			wantSession: "a1b2c3",
		},
		{
			name: "grok custom",
			config: &ParserConfig{
				Type:    ParserTypeGrok,
				Pattern: `%{TIMESTAMP_ISO8601:timestamp} %{LOGLEVEL:level} session=%{NOTSPACE:session}`,
			},
			input:       "2024-01-15T10:30:00Z ERROR session=xyz boom",
			wantTS:      1705314600,
			wantSession: "xyz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewExtractor(tt.config)
			if err != nil {
				t.Fatalf("NewExtractor() error = %v", err)
			}

			fields, err := e.Extract([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Extract() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if fields.Timestamp != tt.wantTS {
				t.Errorf("Timestamp = %d, want %d", fields.Timestamp, tt.wantTS)
			}
			if fields.SessionID != tt.wantSession {
				t.Errorf("SessionID = %q, want %q", fields.SessionID, tt.wantSession)
			}
		})
	}
}

func TestRegexExtractor_NoMatch(t *testing.T) {
	e, err := NewRegexExtractor(DefaultParserConfig())
	if err != nil {
		t.Fatalf("NewRegexExtractor() error = %v", err)
	}
	if _, err := e.Extract([]byte("\n")); !errors.Is(err, ErrNoMatch) {
		t.Errorf("Extract() error = %v, want ErrNoMatch", err)
	}
}

func TestGrokParser_InvalidPattern(t *testing.T) {
	tests := []struct {
		name   string
		config *ParserConfig
	}{
		{"unknown named pattern", &ParserConfig{Type: ParserTypeGrok, GrokPattern: "nonexistent"}},
		{"unknown pattern reference", &ParserConfig{Type: ParserTypeGrok, Pattern: "%{NOPE:timestamp}"}},
		{"no pattern", &ParserConfig{Type: ParserTypeGrok}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewGrokExtractor(tt.config); err == nil {
				t.Error("NewGrokExtractor() should fail")
			}
		})
	}
}

func TestExpandGrokPattern(t *testing.T) {
	expanded, err := expandGrokPattern("%{INT:count} items")
	if err != nil {
		t.Fatalf("expandGrokPattern() error = %v", err)
	}
	want := "(?P<count>(?:[+-]?(?:[0-9]+))) items"
	if expanded != want {
		t.Errorf("expandGrokPattern() = %s, want %s", expanded, want)
	}
}

func TestGetAvailableGrokPatterns(t *testing.T) {
	patterns := GetAvailableGrokPatterns()

	for _, name := range []string{"apache", "nginx", "java", "python", "go", "unix", "rails"} {
		found := false
		for _, p := range patterns {
			if p == name {
				found = true
			}
		}
		if !found {
			t.Errorf("pattern %s not available", name)
		}
	}
}
