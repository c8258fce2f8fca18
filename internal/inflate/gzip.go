package inflate

import (
	"encoding/binary"
	"errors"
	"io"
)

const (
	gzipID1     = 0x1f
	gzipID2     = 0x8b
	gzipDeflate = 8

	flagText    = 1 << 0
	flagHdrCrc  = 1 << 1
	flagExtra   = 1 << 2
	flagName    = 1 << 3
	flagComment = 1 << 4
)

var errNotGzip = errors.New("not a gzip member")

// IsGzip reports whether header starts with the gzip magic bytes
func IsGzip(header []byte) bool {
	return len(header) >= 2 && header[0] == gzipID1 && header[1] == gzipID2
}

// readHeader consumes a gzip member header. The bit reader must be
// byte-aligned. errNotGzip is returned when the magic bytes do not match.
func readHeader(br *bitReader) error {
	var fixed [10]byte
	if _, err := br.readFull(fixed[:]); err != nil {
		return err
	}
	if !IsGzip(fixed[:]) {
		return errNotGzip
	}
	if fixed[2] != gzipDeflate {
		return corruptf("unsupported gzip compression method %d", fixed[2])
	}
	flg := fixed[3]
	if flg&^(flagText|flagHdrCrc|flagExtra|flagName|flagComment) != 0 {
		return corruptf("reserved gzip header flags set (%#x)", flg)
	}

	if flg&flagExtra != 0 {
		var xlen [2]byte
		if _, err := br.readFull(xlen[:]); err != nil {
			return err
		}
		if err := br.skip(int(binary.LittleEndian.Uint16(xlen[:]))); err != nil {
			return err
		}
	}
	if flg&flagName != 0 {
		if err := br.skipString(); err != nil {
			return err
		}
	}
	if flg&flagComment != 0 {
		if err := br.skipString(); err != nil {
			return err
		}
	}
	if flg&flagHdrCrc != 0 {
		if err := br.skip(2); err != nil {
			return err
		}
	}
	return nil
}

// readTrailer consumes the CRC-32 and ISIZE fields that close a member
func readTrailer(br *bitReader) (uint32, uint32, error) {
	br.align()
	var trailer [8]byte
	if _, err := br.readFull(trailer[:]); err != nil {
		return 0, 0, err
	}
	return binary.LittleEndian.Uint32(trailer[:4]), binary.LittleEndian.Uint32(trailer[4:]), nil
}

func (br *bitReader) skip(n int) error {
	d, err := br.r.Discard(n)
	br.pos += uint64(d)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// skipString discards a zero-terminated header field
func (br *bitReader) skipString() error {
	for {
		b, err := br.readByte()
		if err != nil {
			return err
		}
		if b == 0 {
			return nil
		}
	}
}
