package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Common Grok patterns (subset of popular patterns)
var grokPatterns = map[string]string{
	// Base patterns
	"USERNAME":   `[a-zA-Z0-9._-]+`,
	"USER":       `%{USERNAME}`,
	"INT":        `(?:[+-]?(?:[0-9]+))`,
	"NUMBER":     `(?:%{INT})`,
	"WORD":       `\b\w+\b`,
	"NOTSPACE":   `\S+`,
	"SPACE":      `\s*`,
	"DATA":       `.*?`,
	"GREEDYDATA": `.*`,

	// Date/Time patterns
	"MONTHNUM":          `(?:0?[1-9]|1[0-2])`,
	"MONTHDAY":          `(?:(?:0[1-9])|(?:[12][0-9])|(?:3[01])|[1-9])`,
	"MONTH":             `\b(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|Jun(?:e)?|Jul(?:y)?|Aug(?:ust)?|Sep(?:tember)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\b`,
	"YEAR":              `(\d\d){1,2}`,
	"HOUR":              `(?:2[0123]|[01]?[0-9])`,
	"MINUTE":            `(?:[0-5][0-9])`,
	"SECOND":            `(?:(?:[0-5]?[0-9]|60)(?:[:.,][0-9]+)?)`,
	"TIME":              `%{HOUR}:%{MINUTE}(?::%{SECOND})?`,
	"TIMESTAMP_ISO8601": `%{YEAR}-%{MONTHNUM}-%{MONTHDAY}[T ]%{HOUR}:?%{MINUTE}(?::?%{SECOND})?%{ISO8601_TIMEZONE}?`,
	"ISO8601_TIMEZONE":  `(?:Z|[+-]%{HOUR}(?::?%{MINUTE}))`,

	// Network patterns
	"IP":       `(?:%{IPV4}|%{IPV6})`,
	"IPV4":     `(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)`,
	"IPV6":     `((([0-9A-Fa-f]{1,4}:){7}([0-9A-Fa-f]{1,4}|:))|(([0-9A-Fa-f]{1,4}:){6}(:[0-9A-Fa-f]{1,4}|((25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)(\.(25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)){3})|:))|(([0-9A-Fa-f]{1,4}:){5}(((:[0-9A-Fa-f]{1,4}){1,2})|:((25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)(\.(25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)){3})|:))|(([0-9A-Fa-f]{1,4}:){4}(((:[0-9A-Fa-f]{1,4}){1,3})|((:[0-9A-Fa-f]{1,4})?:((25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)(\.(25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)){3}))|:))|(([0-9A-Fa-f]{1,4}:){3}(((:[0-9A-Fa-f]{1,4}){1,4})|((:[0-9A-Fa-f]{1,4}){0,2}:((25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)(\.(25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)){3}))|:))|(([0-9A-Fa-f]{1,4}:){2}(((:[0-9A-Fa-f]{1,4}){1,5})|((:[0-9A-Fa-f]{1,4}){0,3}:((25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)(\.(25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)){3}))|:))|(([0-9A-Fa-f]{1,4}:){1}(((:[0-9A-Fa-f]{1,4}){1,6})|((:[0-9A-Fa-f]{1,4}){0,4}:((25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)(\.(25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)){3}))|:))|(:(((:[0-9A-Fa-f]{1,4}){1,7})|((:[0-9A-Fa-f]{1,4}){0,5}:((25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)(\.(25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)){3}))|:)))`,
	"HOSTNAME": `\b(?:[0-9A-Za-z][0-9A-Za-z-]{0,62})(?:\.(?:[0-9A-Za-z][0-9A-Za-z-]{0,62}))*(\.?|\b)`,

	// Log level patterns
	"LOGLEVEL": `(?:DEBUG|TRACE|INFO|WARN(?:ING)?|ERROR|FATAL|CRITICAL)`,

	// Common log formats
	"SYSLOGBASE":      `%{MONTH} +%{MONTHDAY} %{TIME} %{HOSTNAME} %{DATA:program}(?:\[%{POSINT:pid}\])?:`,
	"COMMONAPACHELOG": `%{IPORHOST:clientip} %{USER:ident} %{USER:auth} \[%{HTTPDATE:timestamp}\] "(?:%{WORD:verb} %{NOTSPACE:request}(?: HTTP/%{NUMBER:httpversion})?|%{DATA:rawrequest})" %{NUMBER:response} (?:%{NUMBER:bytes}|-)`,
	"HTTPDATE":        `%{MONTHDAY}/%{MONTH}/%{YEAR}:%{TIME} %{INT}`,
	"IPORHOST":        `(?:%{IP}|%{HOSTNAME})`,
	"POSINT":          `\b(?:[1-9][0-9]*)\b`,
	"UNIXTIME":        `\b[1-9][0-9]{8,10}(?:\.[0-9]+)?\b`,
}

// Named Grok pattern templates
var namedGrokPatterns = map[string]string{
	"apache": `%{COMMONAPACHELOG}`,
	"nginx":  `%{IPORHOST:clientip} - %{USER:ident} \[%{HTTPDATE:timestamp}\] "(?:%{WORD:verb} %{NOTSPACE:request}(?: HTTP/%{NUMBER:httpversion})?|%{DATA:rawrequest})" %{NUMBER:response} %{NUMBER:bytes} "%{DATA:referrer}" "%{DATA:agent}"`,
	"java":   `%{TIMESTAMP_ISO8601:timestamp} %{LOGLEVEL:level} \[%{DATA:thread}\] %{DATA:logger} - %{GREEDYDATA:message}`,
	"python": `%{TIMESTAMP_ISO8601:timestamp} - %{DATA:logger} - %{LOGLEVEL:level} - %{GREEDYDATA:message}`,
	"go":     `%{TIMESTAMP_ISO8601:timestamp} %{LOGLEVEL:level} %{GREEDYDATA:message}`,
	"unix":   `^%{UNIXTIME:timestamp}(?: sid=%{NOTSPACE:session})? %{GREEDYDATA:message}`,
	"rails":  `^%{TIMESTAMP_ISO8601:timestamp} \[%{NOTSPACE:session}\] %{GREEDYDATA:message}`,
}

// NewGrokExtractor creates a new Grok extractor
func NewGrokExtractor(cfg *ParserConfig) (*RegexExtractor, error) {
	var pattern string
	var patternName string

	if cfg.GrokPattern != "" {
		// Use named pattern
		var ok bool
		pattern, ok = namedGrokPatterns[cfg.GrokPattern]
		if !ok {
			return nil, fmt.Errorf("unknown grok pattern: %s", cfg.GrokPattern)
		}
		patternName = cfg.GrokPattern
	} else if cfg.Pattern != "" {
		// Use custom pattern
		pattern = cfg.Pattern
		patternName = "custom"
	} else {
		return nil, fmt.Errorf("grok pattern or custom pattern is required")
	}

	// Expand grok pattern to regex
	expandedPattern, err := expandGrokPattern(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to expand grok pattern: %w", err)
	}

	regex, err := regexp.Compile(expandedPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile expanded pattern: %w", err)
	}

	return newPatternExtractor(regex, fmt.Sprintf("grok(%s)", patternName), cfg)
}

var grokRef = regexp.MustCompile(`%\{([A-Z0-9_]+)(?::([a-z0-9_]+))?\}`)

// expandGrokPattern expands grok pattern syntax to regex
func expandGrokPattern(pattern string) (string, error) {
	// Pattern syntax: %{PATTERN:field_name} or %{PATTERN}
	expanded := pattern
	maxIterations := 100 // Prevent infinite loops

	for i := 0; i < maxIterations; i++ {
		matches := grokRef.FindAllStringSubmatch(expanded, -1)
		if len(matches) == 0 {
			return expanded, nil
		}

		for _, match := range matches {
			patternName := match[1]
			fieldName := match[2]

			replacement, ok := grokPatterns[patternName]
			if !ok {
				return "", fmt.Errorf("unknown grok pattern: %s", patternName)
			}

			// If field name is specified, make it a named capture group
			if fieldName != "" {
				replacement = fmt.Sprintf("(?P<%s>%s)", fieldName, replacement)
			}

			expanded = strings.Replace(expanded, match[0], replacement, 1)
		}
	}

	return "", fmt.Errorf("grok pattern nests too deeply")
}

// GetAvailableGrokPatterns returns list of available named grok patterns
func GetAvailableGrokPatterns() []string {
	patterns := make([]string, 0, len(namedGrokPatterns))
	for name := range namedGrokPatterns {
		patterns = append(patterns, name)
	}
	sort.Strings(patterns)
	return patterns
}
