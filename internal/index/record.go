package index

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/therealutkarshpriyadarshi/logseek/pkg/types"
)

// Mode selects how an index file is opened
type Mode int

const (
	// ModeRead opens an existing index for lookups only
	ModeRead Mode = iota
	// ModeAppend opens or creates an index and appends after its last
	// complete record
	ModeAppend
	// ModeTruncate creates an index or empties an existing one
	ModeTruncate
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeAppend:
		return "append"
	case ModeTruncate:
		return "truncate"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

var (
	// ErrReadOnly is returned when writing to an index opened with ModeRead
	ErrReadOnly = errors.New("index opened read-only")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("index is closed")
)

// recordFile is a headerless file of fixed-width records. Appends go through
// a buffered writer; reads flush it first and use ReadAt, so lookups touch
// only the records they need.
type recordFile struct {
	path    string
	mode    Mode
	size    int64
	file    *os.File
	writer  *bufio.Writer
	count   int64
	pending bool
	closed  bool
}

func openRecordFile(path string, size int64, mode Mode) (*recordFile, error) {
	var (
		file *os.File
		err  error
	)
	switch mode {
	case ModeRead:
		file, err = os.Open(path)
	case ModeAppend, ModeTruncate:
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, types.IOError("create index directory for", path, err)
		}
		flags := os.O_RDWR | os.O_CREATE
		if mode == ModeTruncate {
			flags |= os.O_TRUNC
		}
		file, err = os.OpenFile(path, flags, 0644)
	default:
		return nil, fmt.Errorf("unknown index mode %v", mode)
	}
	if err != nil {
		return nil, types.IOError("open index", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, types.IOError("stat index", path, err)
	}

	f := &recordFile{
		path:  path,
		mode:  mode,
		size:  size,
		file:  file,
		count: info.Size() / size,
	}

	if mode != ModeRead {
		// a torn trailing record from an interrupted run is dropped
		if info.Size()%size != 0 {
			if err := file.Truncate(f.count * size); err != nil {
				file.Close()
				return nil, types.IOError("truncate torn record in", path, err)
			}
		}
		if _, err := file.Seek(f.count*size, io.SeekStart); err != nil {
			file.Close()
			return nil, types.IOError("seek index", path, err)
		}
		f.writer = bufio.NewWriterSize(file, 64*1024)
	}
	return f, nil
}

func (f *recordFile) append(rec []byte) error {
	if f.closed {
		return ErrClosed
	}
	if f.writer == nil {
		return ErrReadOnly
	}
	if _, err := f.writer.Write(rec); err != nil {
		return types.IOError("write index", f.path, err)
	}
	f.count++
	f.pending = true
	return nil
}

func (f *recordFile) flush() error {
	if !f.pending {
		return nil
	}
	if err := f.writer.Flush(); err != nil {
		return types.IOError("flush index", f.path, err)
	}
	f.pending = false
	return nil
}

// readAt reads len(buf) bytes of record i
func (f *recordFile) readAt(i int64, buf []byte) error {
	if f.closed {
		return ErrClosed
	}
	if err := f.flush(); err != nil {
		return err
	}
	if _, err := f.file.ReadAt(buf, i*f.size); err != nil {
		return types.IOError("read index", f.path, err)
	}
	return nil
}

// floor returns the index of the last record whose key is <= target, or -1.
// Keys must be non-decreasing.
func (f *recordFile) floor(target uint64, key func(i int64) (uint64, error)) (int64, error) {
	lo, hi := int64(0), f.count
	for lo < hi {
		mid := lo + (hi-lo)/2
		k, err := key(mid)
		if err != nil {
			return -1, err
		}
		if k <= target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo - 1, nil
}

// scan calls fn for every record in order
func (f *recordFile) scan(fn func(rec []byte) error) error {
	if f.closed {
		return ErrClosed
	}
	if err := f.flush(); err != nil {
		return err
	}
	r := bufio.NewReaderSize(io.NewSectionReader(f.file, 0, f.count*f.size), 64*1024)
	rec := make([]byte, f.size)
	for i := int64(0); i < f.count; i++ {
		if _, err := io.ReadFull(r, rec); err != nil {
			return types.IOError("read index", f.path, err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (f *recordFile) truncate() error {
	if f.closed {
		return ErrClosed
	}
	if f.writer == nil {
		return ErrReadOnly
	}
	f.writer.Reset(f.file)
	f.pending = false
	if err := f.file.Truncate(0); err != nil {
		return types.IOError("truncate index", f.path, err)
	}
	if _, err := f.file.Seek(0, io.SeekStart); err != nil {
		return types.IOError("seek index", f.path, err)
	}
	f.count = 0
	return nil
}

func (f *recordFile) close() error {
	if f.closed {
		return nil
	}
	var firstErr error
	if f.writer != nil {
		if err := f.flush(); err != nil {
			firstErr = err
		}
		if err := f.file.Sync(); err != nil && firstErr == nil {
			firstErr = types.IOError("sync index", f.path, err)
		}
	}
	if err := f.file.Close(); err != nil && firstErr == nil {
		firstErr = types.IOError("close index", f.path, err)
	}
	f.closed = true
	return firstErr
}
