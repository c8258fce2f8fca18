package builder

import (
	"bytes"
	"context"
	"errors"
	"os"
	"reflect"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/therealutkarshpriyadarshi/logseek/internal/config"
	"github.com/therealutkarshpriyadarshi/logseek/internal/index"
	"github.com/therealutkarshpriyadarshi/logseek/internal/logging"
	"github.com/therealutkarshpriyadarshi/logseek/internal/metrics"
	"github.com/therealutkarshpriyadarshi/logseek/internal/parser"
	"github.com/therealutkarshpriyadarshi/logseek/internal/testutil"
	"github.com/therealutkarshpriyadarshi/logseek/pkg/types"
)

func newTestBuilder(t *testing.T, cfg config.IndexConfig, collector *metrics.Collector) *Builder {
	t.Helper()
	p, err := parser.New(parser.DefaultParserConfig())
	if err != nil {
		t.Fatalf("parser.New() error = %v", err)
	}
	return New(cfg, p, logging.Nop(), collector)
}

func timeEntries(t *testing.T, path string) []types.TimeIndexEntry {
	t.Helper()
	tidx, err := index.OpenTimeIndex(path, index.ModeRead)
	if err != nil {
		t.Fatalf("OpenTimeIndex() error = %v", err)
	}
	defer tidx.Close()
	entries, err := tidx.Entries()
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	return entries
}

func checkpointOffsets(t *testing.T, path string) []uint64 {
	t.Helper()
	cps, err := index.OpenCheckpointStore(path, index.ModeRead)
	if err != nil {
		t.Fatalf("OpenCheckpointStore() error = %v", err)
	}
	defer cps.Close()
	infos, err := cps.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	offsets := make([]uint64, len(infos))
	for i, info := range infos {
		offsets[i] = info.UncompressedOffset
	}
	return offsets
}

func TestBuild_Plain(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "app.log", []byte("100 a\n101 b\n130 c\n200 d\n"))
	b := newTestBuilder(t, config.IndexConfig{Granularity: 60}, nil)

	result, err := b.Build(context.Background(), path)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if result.Mode != types.SourcePlain {
		t.Errorf("Mode = %s, want plain", result.Mode)
	}
	if result.Records != 4 || result.Entries != 3 {
		t.Errorf("Records = %d, Entries = %d, want 4 and 3", result.Records, result.Entries)
	}
	if result.BytesScanned != 24 {
		t.Errorf("BytesScanned = %d, want 24", result.BytesScanned)
	}

	want := []types.TimeIndexEntry{
		{Timestamp: 60, Offset: 0},
		{Timestamp: 120, Offset: 12},
		{Timestamp: 180, Offset: 18},
	}
	if got := timeEntries(t, path+".idx"); !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}
}

func TestBuild_PlainIncremental(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "app.log", []byte("100 a\n101 b\n130 c\n200 d\n"))
	b := newTestBuilder(t, config.IndexConfig{Granularity: 60}, nil)

	if _, err := b.Build(context.Background(), path); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	testutil.AppendFile(t, path, []byte("260 e\n270 f\n"))

	result, err := b.Build(context.Background(), path)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if result.StartOffset != 18 {
		t.Errorf("StartOffset = %d, want 18", result.StartOffset)
	}
	if result.Reset {
		t.Error("incremental build should not reset the index")
	}
	if result.Records != 3 || result.Entries != 1 {
		t.Errorf("Records = %d, Entries = %d, want 3 and 1", result.Records, result.Entries)
	}

	want := []types.TimeIndexEntry{
		{Timestamp: 60, Offset: 0},
		{Timestamp: 120, Offset: 12},
		{Timestamp: 180, Offset: 18},
		{Timestamp: 240, Offset: 24},
	}
	if got := timeEntries(t, path+".idx"); !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}

	// nothing new: the build is a no-op
	result, err = b.Build(context.Background(), path)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if result.Entries != 0 {
		t.Errorf("Entries = %d, want 0", result.Entries)
	}
	if got := timeEntries(t, path+".idx"); len(got) != 4 {
		t.Errorf("len(entries) = %d, want 4", len(got))
	}
}

func TestBuild_PlainUnterminatedLine(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "app.log", []byte("100 a\n200 b"))
	b := newTestBuilder(t, config.IndexConfig{Granularity: 60}, nil)

	result, err := b.Build(context.Background(), path)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if result.Records != 1 {
		t.Errorf("Records = %d, want 1", result.Records)
	}

	// completing the line indexes it on the next run
	testutil.AppendFile(t, path, []byte("\n"))
	if _, err := b.Build(context.Background(), path); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := []types.TimeIndexEntry{
		{Timestamp: 60, Offset: 0},
		{Timestamp: 180, Offset: 6},
	}
	if got := timeEntries(t, path+".idx"); !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}
}

func TestBuild_PlainShrunkLogResets(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "app.log", []byte("100 a\n101 b\n130 c\n200 d\n"))
	b := newTestBuilder(t, config.IndexConfig{Granularity: 60}, nil)

	if _, err := b.Build(context.Background(), path); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if err := os.WriteFile(path, []byte("300 x\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	result, err := b.Build(context.Background(), path)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !result.Reset {
		t.Error("expected the index to be reset")
	}
	want := []types.TimeIndexEntry{{Timestamp: 300, Offset: 0}}
	if got := timeEntries(t, path+".idx"); !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}
}

func TestRebuild_Plain(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "app.log", []byte("100 a\n200 b\n"))
	b := newTestBuilder(t, config.IndexConfig{Granularity: 60}, nil)

	for i := 0; i < 2; i++ {
		result, err := b.Rebuild(context.Background(), path)
		if err != nil {
			t.Fatalf("Rebuild() error = %v", err)
		}
		if result.StartOffset != 0 || !result.Reset {
			t.Errorf("StartOffset = %d, Reset = %v, want 0 and true", result.StartOffset, result.Reset)
		}
	}
	if got := timeEntries(t, path+".idx"); len(got) != 2 {
		t.Errorf("len(entries) = %d, want 2", len(got))
	}
}

func TestBuild_ParseErrors(t *testing.T) {
	content := []byte("100 a\ngarbage here\n200 b\n")

	tests := []struct {
		name        string
		strict      bool
		wantErr     bool
		wantEntries int
	}{
		{name: "lenient", strict: false, wantErr: false, wantEntries: 2},
		{name: "strict", strict: true, wantErr: true, wantEntries: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testutil.WriteFile(t, t.TempDir(), "app.log", content)
			b := newTestBuilder(t, config.IndexConfig{Granularity: 60, Strict: tt.strict}, nil)

			result, err := b.Build(context.Background(), path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Build() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, types.ErrParse) {
					t.Errorf("Build() error = %v, want ErrParse", err)
				}
				var pe *types.ParseError
				if !errors.As(err, &pe) || pe.Offset != 6 {
					t.Errorf("Build() error = %v, want ParseError at offset 6", err)
				}
			}
			if result.ParseErrors != 1 {
				t.Errorf("ParseErrors = %d, want 1", result.ParseErrors)
			}
			if got := timeEntries(t, path+".idx"); len(got) != tt.wantEntries {
				t.Errorf("len(entries) = %d, want %d", len(got), tt.wantEntries)
			}
		})
	}
}

func TestBuild_MissingFile(t *testing.T) {
	b := newTestBuilder(t, config.IndexConfig{}, nil)
	_, err := b.Build(context.Background(), t.TempDir()+"/missing.log")
	if !errors.Is(err, types.ErrIO) {
		t.Errorf("Build() error = %v, want ErrIO", err)
	}
}

func TestBuild_GzipCheckpoints(t *testing.T) {
	dir := t.TempDir()
	data := testutil.LogLines(100000, 4)
	plainPath := testutil.WriteFile(t, dir, "app.log", data)
	gzPath := testutil.WriteFile(t, dir, "app.log.gz", testutil.Gzip(t, data, flate.DefaultCompression, 32768))

	b := newTestBuilder(t, config.IndexConfig{Granularity: 10, ChunkSize: 32768}, nil)

	result, err := b.Build(context.Background(), gzPath)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if result.Mode != types.SourceGzip {
		t.Errorf("Mode = %s, want gzip", result.Mode)
	}
	if result.Truncated {
		t.Error("complete archive reported as truncated")
	}
	if result.BytesScanned != uint64(len(data)) {
		t.Errorf("BytesScanned = %d, want %d", result.BytesScanned, len(data))
	}

	wantCps := []uint64{0, 32768, 65536, 98304}
	if got := checkpointOffsets(t, gzPath+".gzidx"); !reflect.DeepEqual(got, wantCps) {
		t.Errorf("checkpoints = %v, want %v", got, wantCps)
	}
	if result.Checkpoints != int64(len(wantCps)) {
		t.Errorf("Checkpoints = %d, want %d", result.Checkpoints, len(wantCps))
	}

	// the time index of the archive matches the one of its plain content
	if _, err := b.Build(context.Background(), plainPath); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	gzEntries := timeEntries(t, gzPath+".idx")
	if len(gzEntries) == 0 {
		t.Fatal("gzip time index is empty")
	}
	if plainEntries := timeEntries(t, plainPath+".idx"); !reflect.DeepEqual(gzEntries, plainEntries) {
		t.Errorf("gzip entries differ from plain entries: %d vs %d", len(gzEntries), len(plainEntries))
	}
}

func TestBuild_GzipRebuildIsStable(t *testing.T) {
	data := testutil.LogLines(60000, 8)
	gzPath := testutil.WriteFile(t, t.TempDir(), "app.log.gz", testutil.Gzip(t, data, flate.BestSpeed, 8192))
	b := newTestBuilder(t, config.IndexConfig{Granularity: 10, ChunkSize: 16384}, nil)

	if _, err := b.Build(context.Background(), gzPath); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	firstEntries := timeEntries(t, gzPath+".idx")
	firstCps := checkpointOffsets(t, gzPath+".gzidx")

	if _, err := b.Build(context.Background(), gzPath); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got := timeEntries(t, gzPath+".idx"); !reflect.DeepEqual(got, firstEntries) {
		t.Errorf("second build changed the time index")
	}
	if got := checkpointOffsets(t, gzPath+".gzidx"); !reflect.DeepEqual(got, firstCps) {
		t.Errorf("checkpoints = %v, want %v", got, firstCps)
	}
	for i := 1; i < len(firstCps); i++ {
		if firstCps[i]-firstCps[i-1] < 16384 {
			t.Errorf("checkpoints %d and %d are closer than the chunk size", firstCps[i-1], firstCps[i])
		}
	}
}

func TestBuild_GzipUnterminatedLine(t *testing.T) {
	gzPath := testutil.WriteFile(t, t.TempDir(), "app.log.gz",
		testutil.Gzip(t, []byte("100 a\n200 b"), flate.DefaultCompression, 0))
	b := newTestBuilder(t, config.IndexConfig{Granularity: 60}, nil)

	result, err := b.Build(context.Background(), gzPath)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if result.Records != 2 {
		t.Errorf("Records = %d, want 2", result.Records)
	}
	want := []types.TimeIndexEntry{
		{Timestamp: 60, Offset: 0},
		{Timestamp: 180, Offset: 6},
	}
	if got := timeEntries(t, gzPath+".idx"); !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}
}

func TestBuild_GzipTruncated(t *testing.T) {
	dir := t.TempDir()
	data := testutil.LogLines(100000, 4)
	comp := testutil.Gzip(t, data, flate.DefaultCompression, 32768)
	fullPath := testutil.WriteFile(t, dir, "full.log.gz", comp)
	cutPath := testutil.WriteFile(t, dir, "cut.log.gz", comp[:len(comp)*3/4])

	b := newTestBuilder(t, config.IndexConfig{Granularity: 10, ChunkSize: 32768}, nil)

	result, err := b.Build(context.Background(), cutPath)
	if err != nil {
		t.Fatalf("Build() on truncated archive error = %v", err)
	}
	if !result.Truncated {
		t.Error("expected Truncated")
	}
	if result.BytesScanned == 0 || result.BytesScanned >= uint64(len(data)) {
		t.Errorf("BytesScanned = %d, want a proper prefix of %d", result.BytesScanned, len(data))
	}

	if _, err := b.Build(context.Background(), fullPath); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	full := timeEntries(t, fullPath+".idx")
	cut := timeEntries(t, cutPath+".idx")
	if len(cut) == 0 || len(cut) > len(full) {
		t.Fatalf("len(cut entries) = %d, full has %d", len(cut), len(full))
	}
	if !reflect.DeepEqual(cut, full[:len(cut)]) {
		t.Error("truncated archive entries are not a prefix of the full entries")
	}
}

func TestDetectKind(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want types.SourceKind
	}{
		{name: "plain", data: []byte("100 a\n"), want: types.SourcePlain},
		{name: "gzip", data: testutil.Gzip(t, []byte("100 a\n"), flate.DefaultCompression, 0), want: types.SourceGzip},
		{name: "empty", data: nil, want: types.SourcePlain},
		{name: "single byte", data: []byte{0x1f}, want: types.SourcePlain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bytes.NewReader(tt.data)
			got, err := DetectKind(r)
			if err != nil {
				t.Fatalf("DetectKind() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DetectKind() = %s, want %s", got, tt.want)
			}
			if r.Len() != len(tt.data) {
				t.Error("DetectKind() did not rewind the reader")
			}
		})
	}
}

func TestBuild_Metrics(t *testing.T) {
	collector := metrics.NewCollector()
	path := testutil.WriteFile(t, t.TempDir(), "app.log", []byte("100 a\nnope\n200 b\n"))
	b := newTestBuilder(t, config.IndexConfig{Granularity: 60}, collector)

	if _, err := b.Build(context.Background(), path); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	counter := func(c prometheus.Counter) float64 {
		t.Helper()
		metric := &dto.Metric{}
		if err := c.Write(metric); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		return metric.GetCounter().GetValue()
	}

	if got := counter(collector.BuildRuns.WithLabelValues("plain", "success")); got != 1 {
		t.Errorf("build runs = %v, want 1", got)
	}
	if got := counter(collector.BuildRecords.WithLabelValues("plain")); got != 3 {
		t.Errorf("records = %v, want 3", got)
	}
	if got := counter(collector.BuildParseErrors.WithLabelValues("plain")); got != 1 {
		t.Errorf("parse errors = %v, want 1", got)
	}
	if got := counter(collector.BuildIndexEntries.WithLabelValues("plain")); got != 2 {
		t.Errorf("index entries = %v, want 2", got)
	}
}
