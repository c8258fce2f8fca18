package inflate

import "errors"

const (
	maxCodeBits  = 15
	maxLitCodes  = 288
	maxDistCodes = 30
)

var (
	errOverSubscribed = errors.New("over-subscribed huffman code")
	errIncomplete     = errors.New("incomplete huffman code")
	errBadCode        = errors.New("invalid huffman code")
)

// huffman is a canonical Huffman decoding table: the number of codes of each
// length and the symbols ordered by code.
type huffman struct {
	count  [maxCodeBits + 1]uint16
	symbol [maxLitCodes]uint16
}

// build fills h from per-symbol code lengths. It returns the number of
// unused codes: zero for a complete code, positive for an incomplete one.
func (h *huffman) build(lengths []uint8) (int, error) {
	h.count = [maxCodeBits + 1]uint16{}
	for _, l := range lengths {
		h.count[l]++
	}
	if int(h.count[0]) == len(lengths) {
		return 1 << maxCodeBits, nil
	}

	left := 1
	for l := 1; l <= maxCodeBits; l++ {
		left <<= 1
		left -= int(h.count[l])
		if left < 0 {
			return 0, errOverSubscribed
		}
	}

	var offs [maxCodeBits + 1]uint16
	for l := 1; l < maxCodeBits; l++ {
		offs[l+1] = offs[l] + h.count[l]
	}
	for sym, l := range lengths {
		if l != 0 {
			h.symbol[offs[l]] = uint16(sym)
			offs[l]++
		}
	}
	return left, nil
}

// buildDynamic builds a literal/length or distance table. An incomplete
// code is only accepted when it is a single one-bit code (or no code at all).
func (h *huffman) buildDynamic(lengths []uint8) error {
	left, err := h.build(lengths)
	if err != nil {
		return err
	}
	if left > 0 && len(lengths) != int(h.count[0])+int(h.count[1]) {
		return errIncomplete
	}
	return nil
}

// decode reads one symbol. Codes are packed MSB-first, so bits are consumed
// one at a time and compared against the first code of each length.
func (br *bitReader) decode(h *huffman) (int, error) {
	code, first, index := 0, 0, 0
	for l := 1; l <= maxCodeBits; l++ {
		b, err := br.bits(1)
		if err != nil {
			return 0, err
		}
		code |= int(b)
		count := int(h.count[l])
		if code-count < first {
			return int(h.symbol[index+(code-first)]), nil
		}
		index += count
		first += count
		first <<= 1
		code <<= 1
	}
	return 0, errBadCode
}

var (
	fixedLit  huffman
	fixedDist huffman
)

func init() {
	var lengths [maxLitCodes]uint8
	for i := range lengths {
		switch {
		case i < 144:
			lengths[i] = 8
		case i < 256:
			lengths[i] = 9
		case i < 280:
			lengths[i] = 7
		default:
			lengths[i] = 8
		}
	}
	if _, err := fixedLit.build(lengths[:]); err != nil {
		panic(err)
	}

	var dist [maxDistCodes]uint8
	for i := range dist {
		dist[i] = 5
	}
	if _, err := fixedDist.build(dist[:]); err != nil {
		panic(err)
	}
}
