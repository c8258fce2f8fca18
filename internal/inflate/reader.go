package inflate

import (
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/therealutkarshpriyadarshi/logseek/pkg/types"
)

// DefaultChunkSize is the default amount of output produced per NextChunk
const DefaultChunkSize = 32768

// State of a Reader
type State int

const (
	StateUninitialized State = iota
	StateStreaming
	StateExhausted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStreaming:
		return "streaming"
	case StateExhausted:
		return "exhausted"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var errNotStarted = errors.New("reader not started")

// Option configures a Reader
type Option func(*Reader)

// WithChunkSize sets the maximum number of bytes returned by NextChunk
func WithChunkSize(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

// WithBlockStops makes NextChunk return early at the end of every non-final
// deflate block, so that Checkpoint can be taken at each boundary.
func WithBlockStops(on bool) Option {
	return func(r *Reader) {
		r.blockStops = on
	}
}

// Reader decompresses a gzip stream chunk by chunk and can resume decoding
// from a Checkpoint instead of the start of the file.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	src        io.ReadSeeker
	chunkSize  int
	blockStops bool

	state     State
	err       error
	truncated bool

	br  *bitReader
	inf *inflater
	out uint64

	// set while positioned where a raw inflate could resume
	boundary bool

	// CRC and size of the current member, only checked when the member was
	// decoded from its header
	verify    bool
	crc       hash.Hash32
	memberLen uint64

	leftover []byte
}

// NewReader returns an uninitialized Reader over src
func NewReader(src io.ReadSeeker, opts ...Option) *Reader {
	r := &Reader{
		src:       src,
		chunkSize: DefaultChunkSize,
		crc:       crc32.NewIEEE(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StartFresh positions the reader at the first gzip member header
func (r *Reader) StartFresh() error {
	r.reset()
	if _, err := r.src.Seek(0, io.SeekStart); err != nil {
		return r.fail(fmt.Errorf("%w: failed to seek to stream start: %w", types.ErrIO, err))
	}
	r.br = newBitReader(r.src, 0)
	r.inf = newInflater(r.br, r.chunkSize, nil)

	if eof, err := r.br.atEOF(); err != nil {
		return r.fail(err)
	} else if eof {
		r.state = StateExhausted
		return nil
	}
	if err := r.startMember(); err != nil {
		if err == io.ErrUnexpectedEOF {
			r.truncated = true
			r.state = StateExhausted
			return nil
		}
		if err == errNotGzip {
			err = corruptf("missing gzip header")
		}
		return r.fail(err)
	}
	r.state = StateStreaming
	return nil
}

// StartFromCheckpoint resumes raw inflation at cp. The member CRC cannot be
// verified on this path.
func (r *Reader) StartFromCheckpoint(cp *types.Checkpoint) error {
	r.reset()
	if cp.BitOffset > 7 {
		return r.fail(corruptf("invalid checkpoint bit offset %d", cp.BitOffset))
	}
	if _, err := r.src.Seek(int64(cp.CompressedOffset), io.SeekStart); err != nil {
		return r.fail(fmt.Errorf("%w: failed to seek to checkpoint: %w", types.ErrIO, err))
	}
	r.br = newBitReader(r.src, cp.CompressedOffset)
	if cp.BitOffset > 0 {
		b, err := r.br.readByte()
		if err != nil {
			if err == io.ErrUnexpectedEOF {
				r.truncated = true
				r.state = StateExhausted
				return nil
			}
			return r.fail(err)
		}
		r.br.prime(b, uint(cp.BitOffset))
	}

	var dict []byte
	if cp.UncompressedOffset > 0 {
		dict = cp.Dictionary()
	}
	r.inf = newInflater(r.br, r.chunkSize, dict)
	r.out = cp.UncompressedOffset
	r.boundary = true
	r.state = StateStreaming
	return nil
}

func (r *Reader) reset() {
	r.state = StateUninitialized
	r.err = nil
	r.truncated = false
	r.out = 0
	r.boundary = false
	r.verify = false
	r.crc.Reset()
	r.memberLen = 0
	r.leftover = nil
}

// startMember parses a member header and prepares to inflate its body
func (r *Reader) startMember() error {
	if err := readHeader(r.br); err != nil {
		return err
	}
	r.inf.resetStream()
	r.verify = true
	r.crc.Reset()
	r.memberLen = 0
	r.boundary = true
	return nil
}

// NextChunk returns the next run of decompressed bytes. The slice is only
// valid until the next call. It returns io.EOF once the stream is exhausted.
// With block stops enabled a chunk may be empty when a block ends exactly
// where the previous chunk did.
func (r *Reader) NextChunk() ([]byte, error) {
	switch r.state {
	case StateUninitialized:
		return nil, errNotStarted
	case StateExhausted:
		return nil, io.EOF
	case StateFailed:
		return nil, r.err
	}

	r.inf.compact()
	for {
		boundary, err := r.inf.fill(r.chunkSize, r.blockStops)
		chunk := r.inf.pending()
		r.out += uint64(len(chunk))
		r.memberLen += uint64(len(chunk))
		if r.verify {
			r.crc.Write(chunk)
		}
		if err != nil {
			if err == io.ErrUnexpectedEOF {
				return r.truncate(chunk)
			}
			return nil, r.fail(err)
		}
		r.boundary = boundary

		if r.inf.state != stateEnd {
			return chunk, nil
		}
		if err := r.endMember(); err != nil {
			if err == io.ErrUnexpectedEOF {
				return r.truncate(chunk)
			}
			return nil, r.fail(err)
		}
		if len(chunk) > 0 || (r.blockStops && r.boundary) {
			return chunk, nil
		}
		if r.state == StateExhausted {
			return nil, io.EOF
		}
	}
}

// endMember reads the trailer of the finished member and either starts the
// next member or marks the stream exhausted
func (r *Reader) endMember() error {
	r.boundary = false
	crc, size, err := readTrailer(r.br)
	if err != nil {
		return err
	}
	if r.verify {
		if crc != r.crc.Sum32() {
			return corruptf("gzip crc mismatch (stored %08x, computed %08x)", crc, r.crc.Sum32())
		}
		if size != uint32(r.memberLen) {
			return corruptf("gzip size mismatch (stored %d, computed %d)", size, uint32(r.memberLen))
		}
	}

	eof, err := r.br.atEOF()
	if err != nil {
		return err
	}
	if eof {
		r.state = StateExhausted
		return nil
	}
	switch err := r.startMember(); err {
	case nil:
		return nil
	case errNotGzip:
		// trailing garbage after the last member
		r.state = StateExhausted
		return nil
	default:
		return err
	}
}

func (r *Reader) truncate(chunk []byte) ([]byte, error) {
	r.truncated = true
	r.boundary = false
	r.state = StateExhausted
	if len(chunk) == 0 {
		return nil, io.EOF
	}
	return chunk, nil
}

func (r *Reader) fail(err error) error {
	if !errors.Is(err, types.ErrCorruptStream) && !errors.Is(err, types.ErrIO) {
		err = fmt.Errorf("%w: failed to read compressed stream: %w", types.ErrIO, err)
	}
	r.boundary = false
	r.state = StateFailed
	r.err = err
	return err
}

// Checkpoint returns a resume point when the reader sits on a deflate block
// boundary: the stream start, a member start, or the end of a non-final
// block.
func (r *Reader) Checkpoint() (*types.Checkpoint, bool) {
	if r.state != StateStreaming || !r.boundary {
		return nil, false
	}
	cp := &types.Checkpoint{UncompressedOffset: r.out}
	cp.CompressedOffset, cp.BitOffset = r.br.position()
	cp.SetWindow(r.inf.hist)
	return cp, true
}

// Offset returns the uncompressed offset of the next byte to be produced
func (r *Reader) Offset() uint64 {
	return r.out
}

func (r *Reader) State() State {
	return r.state
}

func (r *Reader) Err() error {
	return r.err
}

// Truncated reports whether the stream ended at a physical EOF inside
// compressed data
func (r *Reader) Truncated() bool {
	return r.truncated
}

// Read implements io.Reader on top of NextChunk
func (r *Reader) Read(p []byte) (int, error) {
	for len(r.leftover) == 0 {
		chunk, err := r.NextChunk()
		if err != nil {
			return 0, err
		}
		r.leftover = chunk
	}
	n := copy(p, r.leftover)
	r.leftover = r.leftover[n:]
	return n, nil
}
