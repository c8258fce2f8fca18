package index

import (
	"path/filepath"
	"strings"
)

const (
	DefaultSuffix     = "idx"
	DefaultGzipSuffix = "gzidx"
)

// Naming derives index file paths from a log path. With Dir empty the
// indexes sit next to the log.
type Naming struct {
	Dir        string
	Suffix     string
	GzipSuffix string
}

// TimeIndexPath returns the time index path for logPath
func (n Naming) TimeIndexPath(logPath string) string {
	return n.path(logPath, n.Suffix, DefaultSuffix)
}

// CheckpointPath returns the checkpoint store path for logPath
func (n Naming) CheckpointPath(logPath string) string {
	return n.path(logPath, n.GzipSuffix, DefaultGzipSuffix)
}

func (n Naming) path(logPath, suffix, def string) string {
	if suffix == "" {
		suffix = def
	}
	suffix = "." + strings.TrimPrefix(suffix, ".")
	if n.Dir == "" {
		return logPath + suffix
	}
	return filepath.Join(n.Dir, filepath.Base(logPath)+suffix)
}
