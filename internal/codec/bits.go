// Package codec parses the elementary stream syntax the demuxer needs to
// describe and gate tracks: H.264 and H.265 NAL units and parameter sets,
// AAC ADTS headers, and the decoder configuration records built from them.
package codec

import "errors"

// ErrShortData is returned when a syntax element runs past the end of its
// NAL unit or header.
var ErrShortData = errors.New("codec: data too short")

// bitReader reads MSB-first bit fields. The first read past the end sets err
// and every later read returns zero, so parsers check err once per section.
type bitReader struct {
	data []byte
	pos  int
	bit  int
	err  error
}

func newBitReader(data []byte) *bitReader {
	return &bitReader{data: data}
}

func (br *bitReader) u1() uint {
	if br.err != nil {
		return 0
	}
	if br.pos >= len(br.data) {
		br.err = ErrShortData
		return 0
	}
	v := uint(br.data[br.pos]>>(7-br.bit)) & 1
	br.bit++
	if br.bit == 8 {
		br.bit = 0
		br.pos++
	}
	return v
}

func (br *bitReader) flag() bool { return br.u1() == 1 }

func (br *bitReader) u(n int) uint {
	var v uint
	for i := 0; i < n; i++ {
		v = v<<1 | br.u1()
	}
	return v
}

func (br *bitReader) skip(n int) {
	for n > 0 {
		step := n
		if step > 32 {
			step = 32
		}
		br.u(step)
		n -= step
	}
}

// ue reads an Exp-Golomb coded unsigned integer.
func (br *bitReader) ue() uint {
	zeros := 0
	for br.u1() == 0 {
		if br.err != nil {
			return 0
		}
		zeros++
		if zeros > 31 {
			br.err = ErrShortData
			return 0
		}
	}
	if zeros == 0 {
		return 0
	}
	return (1 << zeros) - 1 + br.u(zeros)
}

// se reads an Exp-Golomb coded signed integer.
func (br *bitReader) se() int {
	v := br.ue()
	if v%2 == 0 {
		return -int(v / 2)
	}
	return int((v + 1) / 2)
}

// unescapeRBSP strips emulation prevention bytes (the 0x03 in 00 00 03 0x)
// from a NAL payload.
func unescapeRBSP(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if i+2 < len(data) && data[i] == 0 && data[i+1] == 0 && data[i+2] == 3 &&
			(i+3 >= len(data) || data[i+3] <= 3) {
			out = append(out, 0, 0)
			i += 2
			continue
		}
		out = append(out, data[i])
	}
	return out
}
