package scte35

// bitReader reads bits MSB-first. Reading past the end sets overflow and
// yields zeros.
type bitReader struct {
	data     []byte
	bitPos   int
	overflow bool
}

func newBitReader(data []byte) *bitReader {
	return &bitReader{data: data}
}

func (r *bitReader) bitsLeft() int {
	if left := len(r.data)*8 - r.bitPos; left > 0 {
		return left
	}
	return 0
}

func (r *bitReader) flag() bool {
	if r.bitPos >= len(r.data)*8 {
		r.overflow = true
		return false
	}
	b := r.data[r.bitPos/8] >> (7 - r.bitPos%8) & 1
	r.bitPos++
	return b == 1
}

func (r *bitReader) uint(n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v <<= 1
		if r.flag() {
			v |= 1
		}
	}
	return v
}

func (r *bitReader) bytes(n int) []byte {
	if n > r.bitsLeft()/8 {
		r.overflow = true
		r.bitPos = len(r.data) * 8
		return nil
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(r.uint(8))
	}
	return out
}

func (r *bitReader) skip(n int) {
	r.bitPos += n
	if r.bitPos > len(r.data)*8 {
		r.overflow = true
	}
}

// bitWriter appends bits MSB-first.
type bitWriter struct {
	data []byte
	n    int
}

func (w *bitWriter) flag(b bool) {
	if w.n%8 == 0 {
		w.data = append(w.data, 0)
	}
	if b {
		w.data[len(w.data)-1] |= 1 << (7 - w.n%8)
	}
	w.n++
}

func (w *bitWriter) uint(n int, v uint64) {
	for i := n - 1; i >= 0; i-- {
		w.flag(v>>i&1 == 1)
	}
}

// ones writes n reserved bits set to one.
func (w *bitWriter) ones(n int) { w.uint(n, 1<<n-1) }

func (w *bitWriter) bytes(b []byte) {
	for _, v := range b {
		w.uint(8, uint64(v))
	}
}
