package tsgen

// CEA-608 channel 1 control codes. Each is sent twice.
var (
	rollUp2     = [2]byte{0x14, 0x25}
	carriageRet = [2]byte{0x14, 0x2D}
	nullPair    = [2]byte{0x00, 0x00}
)

// captionQueue yields one CEA-608 byte pair per video frame.
type captionQueue struct {
	pairs [][2]byte
}

func newCaptionQueue(lines []string) *captionQueue {
	q := &captionQueue{}
	for _, line := range lines {
		q.pairs = append(q.pairs, rollUp2, rollUp2, carriageRet, carriageRet)
		text := []byte(line)
		for i := 0; i < len(text); i += 2 {
			p := [2]byte{text[i] & 0x7F, 0}
			if i+1 < len(text) {
				p[1] = text[i+1] & 0x7F
			}
			q.pairs = append(q.pairs, p)
		}
	}
	if len(q.pairs) > 0 {
		q.pairs = append(q.pairs, carriageRet, carriageRet)
	}
	return q
}

// next returns the pair for the next frame. Once the lines are sent it
// keeps returning padding so decoders see a steady caption service.
func (q *captionQueue) next() ([2]byte, bool) {
	if q.pairs == nil {
		return nullPair, false
	}
	if len(q.pairs) == 0 {
		return nullPair, true
	}
	p := q.pairs[0]
	q.pairs = q.pairs[1:]
	return p, true
}

// captionSEI wraps one field 1 cc_data pair in an A/53 user data SEI NAL.
func captionSEI(cc [2]byte) []byte {
	payload := []byte{
		0xB5, 0x00, 0x31, // United States, ATSC
		'G', 'A', '9', '4',
		0x03,     // cc_data
		0x40 | 1, // process_cc_data_flag, cc_count
		0xFF,     // em_data
		0xFC, parity(cc[0]), parity(cc[1]),
		0xFF,
	}
	nal := []byte{0x06, 0x04, byte(len(payload))}
	nal = append(nal, payload...)
	return append(nal, 0x80)
}

// parity sets the high bit for odd parity.
func parity(b byte) byte {
	b &= 0x7F
	ones := 0
	for v := b; v != 0; v >>= 1 {
		ones += int(v & 1)
	}
	if ones%2 == 0 {
		return b | 0x80
	}
	return b
}
