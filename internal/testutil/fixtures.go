// Package testutil builds log and gzip fixtures for package tests.
package testutil

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// StartTime is the timestamp of the first line produced by LogLines
const StartTime = 1700000000

// LogLines returns exactly n bytes of timestamped log lines ending in a
// newline. Timestamps start at StartTime and advance by 0 to 2 seconds per
// line.
func LogLines(n int, seed int64) []byte {
	rng := rand.New(rand.NewSource(seed))
	paths := []string{"/api/v1/users", "/api/v1/orders", "/healthz", "/login", "/static/app.js"}
	var buf bytes.Buffer
	ts := StartTime
	for buf.Len() < n {
		fmt.Fprintf(&buf, "%d sid=%04x %s %s %d %dms\n",
			ts, rng.Intn(1<<16),
			[]string{"GET", "POST"}[rng.Intn(2)],
			paths[rng.Intn(len(paths))],
			[]int{200, 200, 200, 404, 500}[rng.Intn(5)],
			rng.Intn(2000))
		ts += rng.Intn(3)
	}
	data := buf.Bytes()[:n]
	data[n-1] = '\n'
	return data
}

// Gzip compresses data, flushing the deflate stream every flushEvery bytes
// so that block boundaries fall exactly on multiples of flushEvery. The
// header carries a file name.
func Gzip(tb testing.TB, data []byte, level, flushEvery int) []byte {
	tb.Helper()
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		tb.Fatalf("NewWriterLevel() error = %v", err)
	}
	zw.Name = "fixture.log"
	for off := 0; off < len(data); {
		end := len(data)
		if flushEvery > 0 && off+flushEvery < end {
			end = off + flushEvery
		}
		if _, err := zw.Write(data[off:end]); err != nil {
			tb.Fatalf("Write() error = %v", err)
		}
		if flushEvery > 0 && end < len(data) {
			if err := zw.Flush(); err != nil {
				tb.Fatalf("Flush() error = %v", err)
			}
		}
		off = end
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("Close() error = %v", err)
	}
	return buf.Bytes()
}

// WriteFile writes data to dir/name and returns the path
func WriteFile(tb testing.TB, dir, name string, data []byte) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		tb.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

// AppendFile appends data to path
func AppendFile(tb testing.TB, path string, data []byte) {
	tb.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		tb.Fatalf("OpenFile() error = %v", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		tb.Fatalf("Write() error = %v", err)
	}
}
