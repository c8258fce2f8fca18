package index

import (
	"encoding/binary"
	"fmt"

	"github.com/therealutkarshpriyadarshi/logseek/pkg/types"
)

// checkpointRecordSize is u64 uncompressed offset, u64 compressed offset,
// u8 bit offset and the window
const checkpointRecordSize = 8 + 8 + 1 + types.WindowSize

// CheckpointInfo is a checkpoint without its window
type CheckpointInfo struct {
	UncompressedOffset uint64 `json:"uncompressed_offset"`
	CompressedOffset   uint64 `json:"compressed_offset"`
	BitOffset          uint8  `json:"bit_offset"`
}

// CheckpointStore persists decompression checkpoints of one gzip log
type CheckpointStore struct {
	f    *recordFile
	last uint64
	key  [8]byte
}

// OpenCheckpointStore opens the checkpoint store at path
func OpenCheckpointStore(path string, mode Mode) (*CheckpointStore, error) {
	f, err := openRecordFile(path, checkpointRecordSize, mode)
	if err != nil {
		return nil, err
	}
	s := &CheckpointStore{f: f}
	if f.count > 0 {
		last, err := s.offsetAt(f.count - 1)
		if err != nil {
			f.close()
			return nil, err
		}
		s.last = last
	}
	return s, nil
}

func (s *CheckpointStore) offsetAt(i int64) (uint64, error) {
	if err := s.f.readAt(i, s.key[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(s.key[:]), nil
}

// Append stores cp. The first checkpoint must be at offset 0 and offsets
// must strictly increase.
func (s *CheckpointStore) Append(cp *types.Checkpoint) error {
	if cp.BitOffset > 7 {
		return fmt.Errorf("invalid checkpoint bit offset %d", cp.BitOffset)
	}
	if s.f.count == 0 && cp.UncompressedOffset != 0 {
		return fmt.Errorf("%w: first checkpoint at %d, want 0", types.ErrOutOfOrder, cp.UncompressedOffset)
	}
	if s.f.count > 0 && cp.UncompressedOffset <= s.last {
		return fmt.Errorf("%w: checkpoint at %d after %d", types.ErrOutOfOrder, cp.UncompressedOffset, s.last)
	}

	rec := make([]byte, checkpointRecordSize)
	binary.LittleEndian.PutUint64(rec[0:8], cp.UncompressedOffset)
	binary.LittleEndian.PutUint64(rec[8:16], cp.CompressedOffset)
	rec[16] = cp.BitOffset
	copy(rec[17:], cp.Window[:])
	if err := s.f.append(rec); err != nil {
		return err
	}
	s.last = cp.UncompressedOffset
	return nil
}

// FindAtOrBefore returns the checkpoint with the greatest uncompressed
// offset <= off
func (s *CheckpointStore) FindAtOrBefore(off uint64) (*types.Checkpoint, error) {
	i, err := s.f.floor(off, s.offsetAt)
	if err != nil {
		return nil, err
	}
	if i < 0 {
		return nil, fmt.Errorf("%w: uncompressed offset %d", types.ErrNotFound, off)
	}

	rec := make([]byte, checkpointRecordSize)
	if err := s.f.readAt(i, rec); err != nil {
		return nil, err
	}
	cp := &types.Checkpoint{
		UncompressedOffset: binary.LittleEndian.Uint64(rec[0:8]),
		CompressedOffset:   binary.LittleEndian.Uint64(rec[8:16]),
		BitOffset:          rec[16],
	}
	copy(cp.Window[:], rec[17:])
	if cp.BitOffset > 7 {
		return nil, fmt.Errorf("%w: checkpoint %d has bit offset %d", types.ErrCorruptStream, i, cp.BitOffset)
	}
	return cp, nil
}

// List returns the positions of every checkpoint, without windows
func (s *CheckpointStore) List() ([]CheckpointInfo, error) {
	infos := make([]CheckpointInfo, 0, s.f.count)
	err := s.f.scan(func(rec []byte) error {
		infos = append(infos, CheckpointInfo{
			UncompressedOffset: binary.LittleEndian.Uint64(rec[0:8]),
			CompressedOffset:   binary.LittleEndian.Uint64(rec[8:16]),
			BitOffset:          rec[16],
		})
		return nil
	})
	return infos, err
}

// TruncateAndReset drops every checkpoint
func (s *CheckpointStore) TruncateAndReset() error {
	if err := s.f.truncate(); err != nil {
		return err
	}
	s.last = 0
	return nil
}

func (s *CheckpointStore) Len() int64 {
	return s.f.count
}

func (s *CheckpointStore) Path() string {
	return s.f.path
}

func (s *CheckpointStore) Flush() error {
	return s.f.flush()
}

func (s *CheckpointStore) Close() error {
	return s.f.close()
}
