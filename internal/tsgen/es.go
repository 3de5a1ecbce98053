package tsgen

// Placeholder 1280x720 High profile parameter sets and slices.
var (
	sps720p = []byte{
		0x67, 0x64, 0x00, 0x1f, 0xac, 0xd9, 0x40, 0x50,
		0x05, 0xbb, 0xff, 0x00, 0x03, 0x00, 0x04, 0x6a,
		0x02, 0x02, 0x02, 0x80, 0x00, 0x01, 0xf4, 0x80,
		0x00, 0x5d, 0xc0, 0x07, 0x8c, 0x18, 0xcb,
	}
	pps720p  = []byte{0x68, 0xeb, 0xe3, 0xcb, 0x22, 0xc0}
	audNAL   = []byte{0x09, 0xf0}
	idrNAL   = []byte{0x65, 0x88, 0x84, 0x21}
	sliceNAL = []byte{0x41, 0x9a, 0x02, 0x03}
)

var adtsSampleRates = []int{96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050, 16000, 12000, 11025, 8000}

func sampleRateIndex(rate int) int {
	for i, r := range adtsSampleRates {
		if r == rate {
			return i
		}
	}
	return -1
}

// adtsFrame builds an AAC-LC ADTS frame without CRC.
func adtsFrame(sampleRate, channels int, payload []byte) []byte {
	idx := sampleRateIndex(sampleRate)
	size := 7 + len(payload)
	h := []byte{
		0xFF,
		0xF1,
		byte(1<<6 | idx<<2 | channels>>2),
		byte((channels&0x03)<<6 | (size>>11)&0x03),
		byte(size >> 3),
		byte((size&0x07)<<5 | 0x1F),
		0xFC,
	}
	return append(h, payload...)
}
