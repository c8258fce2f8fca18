package inflate

import (
	"fmt"

	"github.com/therealutkarshpriyadarshi/logseek/pkg/types"
)

const (
	stateHeader = iota // next bits are a block header
	stateStored        // inside a stored block
	stateCodes         // inside a fixed or dynamic Huffman block
	stateEnd           // final block finished
)

var (
	lengthBase = [29]uint16{3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31,
		35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258}
	lengthExtra = [29]uint8{0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2,
		3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0}
	distBase = [30]uint16{1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193,
		257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145, 8193, 12289, 16385, 24577}
	distExtra = [30]uint8{0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6,
		7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13}

	// order in which code length code lengths are transmitted
	codeLengthOrder = [19]uint8{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}
)

func corruptf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", types.ErrCorruptStream, fmt.Sprintf(format, args...))
}

// inflater decodes one raw deflate stream. Output is appended to hist, which
// holds at least the last WindowSize bytes of history followed by the chunk
// currently being produced (hist[start:]). Back-references may not reach
// before hist[origin], the start of the current stream or its dictionary.
type inflater struct {
	br        *bitReader
	hist      []byte
	start     int
	origin    int
	chunkSize int

	state  int
	final  bool
	stored int

	lit, dist       *huffman
	dynLit, dynDist huffman

	copyLen  int
	copyDist int
}

func newInflater(br *bitReader, chunkSize int, dict []byte) *inflater {
	f := &inflater{
		br:        br,
		hist:      make([]byte, 0, 2*types.WindowSize+chunkSize),
		chunkSize: chunkSize,
	}
	if len(dict) > types.WindowSize {
		dict = dict[len(dict)-types.WindowSize:]
	}
	f.hist = append(f.hist, dict...)
	f.start = len(f.hist)
	return f
}

// resetStream prepares for a new deflate stream (next gzip member), keeping
// the history so the window stays available for checkpoints
func (f *inflater) resetStream() {
	f.origin = len(f.hist)
	f.state = stateHeader
	f.final = false
	f.stored = 0
	f.copyLen = 0
	f.copyDist = 0
}

// compact drops the chunk already handed out from the pending range and,
// when the next chunk would not fit, slides the history down to the last
// WindowSize bytes
func (f *inflater) compact() {
	if len(f.hist)+f.chunkSize > cap(f.hist) {
		shift := len(f.hist) - types.WindowSize
		n := copy(f.hist, f.hist[shift:])
		f.hist = f.hist[:n]
		f.origin = max(f.origin-shift, 0)
	}
	f.start = len(f.hist)
}

func (f *inflater) pending() []byte {
	return f.hist[f.start:]
}

// fill decodes until limit bytes are pending or the stream ends. With
// stopAtBlock it also returns, reporting true, right after a non-final
// block ends.
func (f *inflater) fill(limit int, stopAtBlock bool) (bool, error) {
	for len(f.hist)-f.start < limit {
		switch f.state {
		case stateEnd:
			return false, nil

		case stateHeader:
			if err := f.readBlockHeader(); err != nil {
				return false, err
			}

		case stateStored:
			if f.stored == 0 {
				if f.endBlock() && stopAtBlock {
					return true, nil
				}
				continue
			}
			n := limit - (len(f.hist) - f.start)
			if n > f.stored {
				n = f.stored
			}
			l := len(f.hist)
			f.hist = append(f.hist, make([]byte, n)...)
			got, err := f.br.readFull(f.hist[l : l+n])
			f.hist = f.hist[:l+got]
			f.stored -= got
			if err != nil {
				return false, err
			}

		case stateCodes:
			if f.copyLen > 0 {
				f.copyMatch(limit)
				continue
			}
			sym, err := f.br.decode(f.lit)
			if err != nil {
				return false, f.codeErr(err)
			}
			switch {
			case sym < 256:
				f.hist = append(f.hist, byte(sym))
			case sym == 256:
				if f.endBlock() && stopAtBlock {
					return true, nil
				}
			default:
				if err := f.readMatch(sym); err != nil {
					return false, err
				}
			}
		}
	}
	return false, nil
}

// endBlock moves past a finished block and reports whether it was a
// non-final one, i.e. whether the reader now sits on a resumable boundary
func (f *inflater) endBlock() bool {
	if f.final {
		f.state = stateEnd
		return false
	}
	f.state = stateHeader
	return true
}

func (f *inflater) readBlockHeader() error {
	final, err := f.br.bits(1)
	if err != nil {
		return err
	}
	typ, err := f.br.bits(2)
	if err != nil {
		return err
	}
	f.final = final == 1

	switch typ {
	case 0:
		f.br.align()
		length, err := f.br.bits(16)
		if err != nil {
			return err
		}
		nlength, err := f.br.bits(16)
		if err != nil {
			return err
		}
		if uint16(length) != ^uint16(nlength) {
			return corruptf("stored block length %d does not match its complement", length)
		}
		f.stored = int(length)
		f.state = stateStored
	case 1:
		f.lit, f.dist = &fixedLit, &fixedDist
		f.state = stateCodes
	case 2:
		if err := f.readDynamicTables(); err != nil {
			return err
		}
		f.lit, f.dist = &f.dynLit, &f.dynDist
		f.state = stateCodes
	default:
		return corruptf("invalid block type %d", typ)
	}
	return nil
}

func (f *inflater) readDynamicTables() error {
	hlit, err := f.br.bits(5)
	if err != nil {
		return err
	}
	hdist, err := f.br.bits(5)
	if err != nil {
		return err
	}
	hclen, err := f.br.bits(4)
	if err != nil {
		return err
	}
	nlen, ndist, ncode := int(hlit)+257, int(hdist)+1, int(hclen)+4
	if nlen > 286 || ndist > maxDistCodes {
		return corruptf("too many length or distance codes (%d, %d)", nlen, ndist)
	}

	var clens [19]uint8
	for i := 0; i < ncode; i++ {
		v, err := f.br.bits(3)
		if err != nil {
			return err
		}
		clens[codeLengthOrder[i]] = uint8(v)
	}
	var lencode huffman
	if left, err := lencode.build(clens[:]); err != nil || left != 0 {
		return corruptf("invalid code length code")
	}

	var lengths [286 + maxDistCodes]uint8
	for i := 0; i < nlen+ndist; {
		sym, err := f.br.decode(&lencode)
		if err != nil {
			return f.codeErr(err)
		}
		if sym < 16 {
			lengths[i] = uint8(sym)
			i++
			continue
		}

		var l uint8
		var rep uint32
		switch sym {
		case 16:
			if i == 0 {
				return corruptf("repeat with no previous length")
			}
			l = lengths[i-1]
			rep, err = f.br.bits(2)
			rep += 3
		case 17:
			rep, err = f.br.bits(3)
			rep += 3
		default:
			rep, err = f.br.bits(7)
			rep += 11
		}
		if err != nil {
			return err
		}
		if i+int(rep) > nlen+ndist {
			return corruptf("code lengths overflow")
		}
		for ; rep > 0; rep-- {
			lengths[i] = l
			i++
		}
	}

	if lengths[256] == 0 {
		return corruptf("missing end-of-block code")
	}
	if err := f.dynLit.buildDynamic(lengths[:nlen]); err != nil {
		return corruptf("literal/length code: %v", err)
	}
	if err := f.dynDist.buildDynamic(lengths[nlen : nlen+ndist]); err != nil {
		return corruptf("distance code: %v", err)
	}
	return nil
}

func (f *inflater) readMatch(sym int) error {
	sym -= 257
	if sym >= len(lengthBase) {
		return corruptf("invalid length symbol %d", sym+257)
	}
	extra, err := f.br.bits(uint(lengthExtra[sym]))
	if err != nil {
		return err
	}
	length := int(lengthBase[sym]) + int(extra)

	dsym, err := f.br.decode(f.dist)
	if err != nil {
		return f.codeErr(err)
	}
	if dsym >= len(distBase) {
		return corruptf("invalid distance symbol %d", dsym)
	}
	extra, err = f.br.bits(uint(distExtra[dsym]))
	if err != nil {
		return err
	}
	dist := int(distBase[dsym]) + int(extra)
	if dist > len(f.hist)-f.origin {
		return corruptf("distance %d too far back", dist)
	}

	f.copyLen = length
	f.copyDist = dist
	return nil
}

// copyMatch copies the pending back-reference byte by byte, since source and
// destination may overlap, stopping at limit
func (f *inflater) copyMatch(limit int) {
	for f.copyLen > 0 && len(f.hist)-f.start < limit {
		f.hist = append(f.hist, f.hist[len(f.hist)-f.copyDist])
		f.copyLen--
	}
}

func (f *inflater) codeErr(err error) error {
	if err == errBadCode {
		return corruptf("%v", err)
	}
	return err
}
