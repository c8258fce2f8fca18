package index

import (
	"encoding/binary"
	"fmt"

	"github.com/therealutkarshpriyadarshi/logseek/pkg/types"
)

// timeRecordSize is u64 bucketed timestamp followed by u64 byte offset
const timeRecordSize = 16

// TimeIndex maps bucketed timestamps to byte offsets in the logical stream.
// Entries are strictly increasing in timestamp and non-decreasing in offset.
type TimeIndex struct {
	f    *recordFile
	last types.TimeIndexEntry
	buf  [timeRecordSize]byte
}

// OpenTimeIndex opens the time index at path
func OpenTimeIndex(path string, mode Mode) (*TimeIndex, error) {
	f, err := openRecordFile(path, timeRecordSize, mode)
	if err != nil {
		return nil, err
	}
	idx := &TimeIndex{f: f}
	if f.count > 0 {
		e, err := idx.entry(f.count - 1)
		if err != nil {
			f.close()
			return nil, err
		}
		idx.last = e
	}
	return idx, nil
}

func (idx *TimeIndex) entry(i int64) (types.TimeIndexEntry, error) {
	if err := idx.f.readAt(i, idx.buf[:]); err != nil {
		return types.TimeIndexEntry{}, err
	}
	return decodeTimeEntry(idx.buf[:]), nil
}

func decodeTimeEntry(rec []byte) types.TimeIndexEntry {
	return types.TimeIndexEntry{
		Timestamp: binary.LittleEndian.Uint64(rec[0:8]),
		Offset:    binary.LittleEndian.Uint64(rec[8:16]),
	}
}

// Append adds an entry. ts must be greater than the last timestamp and off
// must not be smaller than the last offset.
func (idx *TimeIndex) Append(ts, off uint64) error {
	if idx.f.count > 0 && (ts <= idx.last.Timestamp || off < idx.last.Offset) {
		return fmt.Errorf("%w: entry (%d, %d) after (%d, %d)",
			types.ErrOutOfOrder, ts, off, idx.last.Timestamp, idx.last.Offset)
	}
	var rec [timeRecordSize]byte
	binary.LittleEndian.PutUint64(rec[0:8], ts)
	binary.LittleEndian.PutUint64(rec[8:16], off)
	if err := idx.f.append(rec[:]); err != nil {
		return err
	}
	idx.last = types.TimeIndexEntry{Timestamp: ts, Offset: off}
	return nil
}

// FindAtOrBefore returns the offset of the entry with the greatest timestamp
// <= ts. ErrNotFound is returned when the index is empty or ts precedes the
// first entry.
func (idx *TimeIndex) FindAtOrBefore(ts uint64) (uint64, error) {
	i, err := idx.f.floor(ts, func(i int64) (uint64, error) {
		e, err := idx.entry(i)
		return e.Timestamp, err
	})
	if err != nil {
		return 0, err
	}
	if i < 0 {
		return 0, fmt.Errorf("%w: timestamp %d", types.ErrNotFound, ts)
	}
	e, err := idx.entry(i)
	if err != nil {
		return 0, err
	}
	return e.Offset, nil
}

// LastEntry returns the most recent entry, if any
func (idx *TimeIndex) LastEntry() (types.TimeIndexEntry, bool) {
	return idx.last, idx.f.count > 0
}

// Entries returns every entry in order
func (idx *TimeIndex) Entries() ([]types.TimeIndexEntry, error) {
	entries := make([]types.TimeIndexEntry, 0, idx.f.count)
	err := idx.f.scan(func(rec []byte) error {
		entries = append(entries, decodeTimeEntry(rec))
		return nil
	})
	return entries, err
}

// TruncateAndReset drops every entry
func (idx *TimeIndex) TruncateAndReset() error {
	if err := idx.f.truncate(); err != nil {
		return err
	}
	idx.last = types.TimeIndexEntry{}
	return nil
}

func (idx *TimeIndex) Len() int64 {
	return idx.f.count
}

func (idx *TimeIndex) Path() string {
	return idx.f.path
}

func (idx *TimeIndex) Flush() error {
	return idx.f.flush()
}

func (idx *TimeIndex) Close() error {
	return idx.f.close()
}
