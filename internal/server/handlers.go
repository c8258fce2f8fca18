package server

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/therealutkarshpriyadarshi/logseek/internal/extract"
	"github.com/therealutkarshpriyadarshi/logseek/pkg/types"
)

var errForbidden = errors.New("path is outside the allowed directories")

// handleExtract streams the range of ?path= starting near ?ts=, or the whole
// log when ts is omitted
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	query := r.URL.Query()
	raw := query.Get("path")
	if raw == "" {
		http.Error(w, "missing path parameter", http.StatusBadRequest)
		return
	}
	logPath, err := s.authorize(raw)
	switch {
	case errors.Is(err, errForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	case errors.Is(err, fs.ErrNotExist):
		http.Error(w, "log not found", http.StatusNotFound)
		return
	case err != nil:
		logger.Error().Err(err).Str("path", raw).Msg("Failed to resolve log path")
		http.Error(w, "failed to resolve path", http.StatusInternalServerError)
		return
	}

	rw := &rangeWriter{ResponseWriter: w}
	var result *extract.Result
	if tsParam := query.Get("ts"); tsParam != "" {
		ts, err := ParseTimestamp(tsParam)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, err = s.extractor.Extract(r.Context(), logPath, ts, rw)
		if err != nil {
			s.extractFailed(rw, logger, logPath, err)
			return
		}
	} else {
		result, err = s.extractor.ExtractAll(r.Context(), logPath, rw)
		if err != nil {
			s.extractFailed(rw, logger, logPath, err)
			return
		}
	}

	if !rw.started {
		rw.WriteHeader(http.StatusOK)
	}
	logger.Debug().
		Str("path", logPath).
		Uint64("offset", result.Offset).
		Uint64("bytes", result.Bytes).
		Bool("fallback", result.NotFound).
		Bool("truncated", result.Truncated).
		Msg("Range streamed")
}

func (s *Server) extractFailed(rw *rangeWriter, logger *zerolog.Logger, logPath string, err error) {
	logger.Error().Err(err).Str("path", logPath).Msg("Extraction failed")
	if rw.started {
		// the status line is gone; the client sees a short body
		return
	}
	code := http.StatusInternalServerError
	if errors.Is(err, types.ErrCorruptStream) {
		code = http.StatusUnprocessableEntity
	}
	http.Error(rw.ResponseWriter, "extraction failed", code)
}

// rangeWriter sets the range headers once the extractor has located the
// start, before the first body byte
type rangeWriter struct {
	http.ResponseWriter
	started bool
}

func (rw *rangeWriter) Located(result *extract.Result) {
	h := rw.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set(HeaderMode, string(result.Mode))
	h.Set(HeaderOffset, strconv.FormatUint(result.Offset, 10))
	if result.NotFound {
		h.Set(HeaderFallback, "true")
	}
}

func (rw *rangeWriter) WriteHeader(code int) {
	rw.started = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *rangeWriter) Write(p []byte) (int, error) {
	rw.started = true
	return rw.ResponseWriter.Write(p)
}

// authorize resolves raw to a regular file inside one of the allowed
// directories, following symlinks
func (s *Server) authorize(raw string) (string, error) {
	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", err
	}
	if !s.within(abs) {
		return "", fmt.Errorf("%w: %s", errForbidden, raw)
	}
	target, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	if !s.within(target) {
		return "", fmt.Errorf("%w: %s", errForbidden, raw)
	}

	info, err := os.Stat(target)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", errForbidden, raw)
	}
	return target, nil
}

func (s *Server) within(path string) bool {
	for _, dir := range s.allowed {
		prefix := dir
		if !strings.HasSuffix(prefix, string(filepath.Separator)) {
			prefix += string(filepath.Separator)
		}
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// resolveDirs makes the allowed directories absolute with symlinks resolved
func resolveDirs(dirs []string) ([]string, error) {
	resolved := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve allowed dir %s: %w", dir, err)
		}
		target, err := filepath.EvalSymlinks(abs)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// reported by the readiness probe
			target = filepath.Clean(abs)
		case err != nil:
			return nil, fmt.Errorf("failed to resolve allowed dir %s: %w", dir, err)
		}
		resolved = append(resolved, target)
	}
	return resolved, nil
}

// ParseTimestamp accepts unix seconds or an RFC 3339 time
func ParseTimestamp(value string) (uint64, error) {
	if ts, err := strconv.ParseUint(value, 10, 64); err == nil {
		return ts, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: want unix seconds or RFC 3339", value)
	}
	if t.Unix() < 0 {
		return 0, fmt.Errorf("timestamp %q is before the epoch", value)
	}
	return uint64(t.Unix()), nil
}
