package mpegts

import (
	"errors"
	"fmt"
)

// PacketSize is the size of a transport stream packet.
const PacketSize = 188

const syncByte = 0x47

// ErrSync is returned for a packet that does not start with the sync byte.
var ErrSync = errors.New("mpegts: lost sync")

// ParsePacket parses one transport stream packet. The payload aliases buf.
func ParsePacket(buf []byte) (*Packet, error) {
	if len(buf) != PacketSize {
		return nil, fmt.Errorf("mpegts: packet size %d, expected %d", len(buf), PacketSize)
	}
	if buf[0] != syncByte {
		return nil, ErrSync
	}

	p := &Packet{
		TransportError:    buf[1]&0x80 != 0,
		PayloadStart:      buf[1]&0x40 != 0,
		PID:               uint16(buf[1]&0x1F)<<8 | uint16(buf[2]),
		HasPayload:        buf[3]&0x10 != 0,
		ContinuityCounter: buf[3] & 0x0F,
		PCR:               NoTimestamp,
	}

	offset := 4
	if buf[3]&0x20 != 0 {
		afLen := int(buf[4])
		if afLen > 0 {
			flags := buf[5]
			p.Discontinuity = flags&0x80 != 0
			p.RandomAccess = flags&0x40 != 0
			if flags&0x10 != 0 && afLen >= 7 {
				p.PCR = parsePCR(buf[6:12])
			}
		}
		offset += 1 + afLen
	}

	if p.HasPayload && offset < PacketSize {
		p.Payload = buf[offset:]
	}
	return p, nil
}

// parsePCR decodes a 33-bit base and 9-bit extension into 27 MHz units.
func parsePCR(b []byte) int64 {
	base := int64(b[0])<<25 | int64(b[1])<<17 | int64(b[2])<<9 | int64(b[3])<<1 | int64(b[4]>>7)
	ext := int64(b[4]&0x01)<<8 | int64(b[5])
	return base*300 + ext
}
