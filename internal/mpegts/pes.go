package mpegts

import "fmt"

func isPESStart(data []byte) bool {
	return len(data) >= 3 && data[0] == 0x00 && data[1] == 0x00 && data[2] == 0x01
}

// hasOptionalHeader reports whether a stream id carries the PES optional
// header. Padding, private_stream_2, ECM, EMM, DSMCC, H.222.1 type E and the
// program stream directory do not.
func hasOptionalHeader(streamID uint8) bool {
	switch streamID {
	case 0xBE, 0xBF, 0xF0, 0xF1, 0xF2, 0xF8, 0xFF:
		return false
	}
	return true
}

func parsePES(payload []byte) (*PES, error) {
	if len(payload) < 6 {
		return nil, fmt.Errorf("mpegts: PES packet too short (%d bytes)", len(payload))
	}
	if !isPESStart(payload) {
		return nil, fmt.Errorf("mpegts: invalid PES start code")
	}

	pes := &PES{StreamID: payload[3], PTS: NoTimestamp, DTS: NoTimestamp}
	end := len(payload)
	if n := int(payload[4])<<8 | int(payload[5]); n > 0 && 6+n < end {
		end = 6 + n
	}

	if !hasOptionalHeader(pes.StreamID) {
		pes.Data = payload[6:end]
		return pes, nil
	}
	if len(payload) < 9 {
		return nil, fmt.Errorf("mpegts: PES optional header too short")
	}

	flags := payload[7] >> 6
	start := 9 + int(payload[8])
	if start > end {
		return nil, fmt.Errorf("mpegts: PES header length %d overruns packet", payload[8])
	}
	if flags&0x02 != 0 && len(payload) >= 14 {
		pes.PTS = parseTimestamp(payload[9:14])
	}
	if flags == 0x03 && len(payload) >= 19 {
		pes.DTS = parseTimestamp(payload[14:19])
	}
	pes.Data = payload[start:end]
	return pes, nil
}

// parseTimestamp extracts a 33-bit PTS or DTS from its 5-byte encoding.
func parseTimestamp(b []byte) int64 {
	return int64(b[0]>>1&0x07)<<30 |
		int64(b[1])<<22 |
		int64(b[2]>>1)<<15 |
		int64(b[3])<<7 |
		int64(b[4]>>1)
}
