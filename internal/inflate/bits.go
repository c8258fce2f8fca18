package inflate

import (
	"bufio"
	"io"
)

// bitReader pulls bits LSB-first from a byte source and tracks the physical
// position of the next byte it would read. Bytes are fetched one at a time
// and only when needed, so between calls fewer than 8 bits are buffered:
// the buffered bits are always the unread high bits of byte pos-1.
type bitReader struct {
	r   *bufio.Reader
	pos uint64 // physical offset of the next byte to fetch
	buf uint32
	n   uint
}

func newBitReader(r io.Reader, pos uint64) *bitReader {
	return &bitReader{r: bufio.NewReaderSize(r, 64*1024), pos: pos}
}

// prime loads the high count bits of b as already-fetched input
func (br *bitReader) prime(b byte, count uint) {
	br.buf = uint32(b) >> (8 - count)
	br.n = count
}

func (br *bitReader) need(n uint) error {
	for br.n < n {
		b, err := br.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		br.buf |= uint32(b) << br.n
		br.n += 8
		br.pos++
	}
	return nil
}

func (br *bitReader) bits(n uint) (uint32, error) {
	if err := br.need(n); err != nil {
		return 0, err
	}
	v := br.buf & (1<<n - 1)
	br.buf >>= n
	br.n -= n
	return v, nil
}

// align discards the bits left in the current byte
func (br *bitReader) align() {
	br.buf = 0
	br.n = 0
}

// readByte reads a whole byte; only valid after align
func (br *bitReader) readByte() (byte, error) {
	b, err := br.r.ReadByte()
	if err != nil {
		if err == io.EOF {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, err
	}
	br.pos++
	return b, nil
}

// readFull reads len(p) bytes; only valid after align
func (br *bitReader) readFull(p []byte) (int, error) {
	n, err := io.ReadFull(br.r, p)
	br.pos += uint64(n)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

// position returns the byte holding the next unread bit and how many of its
// high bits are still unread
func (br *bitReader) position() (uint64, uint8) {
	if br.n == 0 {
		return br.pos, 0
	}
	return br.pos - 1, uint8(br.n)
}

// atEOF reports whether the source has no more bytes
func (br *bitReader) atEOF() (bool, error) {
	_, err := br.r.Peek(1)
	if err == io.EOF {
		return true, nil
	}
	return false, err
}
