package mpegts

import (
	"encoding/binary"
	"io"
	"sort"
)

// Writer packetizes tables, sections and PES packets into a transport
// stream. It tracks continuity counters per PID.
type Writer struct {
	w   io.Writer
	cc  map[uint16]uint8
	pkt [PacketSize]byte
}

// NewWriter returns a Writer emitting packets to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, cc: make(map[uint16]uint8)}
}

// WritePAT writes a PAT mapping program numbers to PMT PIDs.
func (w *Writer) WritePAT(programs map[uint16]uint16) error {
	numbers := make([]int, 0, len(programs))
	for n := range programs {
		numbers = append(numbers, int(n))
	}
	sort.Ints(numbers)

	body := make([]byte, 0, 4*len(numbers))
	for _, n := range numbers {
		pid := programs[uint16(n)]
		body = append(body, byte(n>>8), byte(n), 0xE0|byte(pid>>8)&0x1F, byte(pid))
	}
	return w.WriteSection(pidPAT, psiSection(tableIDPAT, 1, body))
}

// WritePMT writes p on its PMT PID.
func (w *Writer) WritePMT(p *Program) error {
	body := []byte{0xE0 | byte(p.PCRPID>>8)&0x1F, byte(p.PCRPID), 0xF0, 0x00}
	for _, es := range p.Streams {
		var info []byte
		if len(es.Language) == 3 {
			info = append(info, descriptorISO639, 4)
			info = append(info, es.Language...)
			info = append(info, 0x00)
		}
		body = append(body, es.StreamType, 0xE0|byte(es.PID>>8)&0x1F, byte(es.PID),
			0xF0|byte(len(info)>>8)&0x0F, byte(len(info)))
		body = append(body, info...)
	}
	return w.WriteSection(p.PMTPID, psiSection(tableIDPMT, p.Number, body))
}

// WriteSection writes one complete section, CRC included, on pid.
func (w *Writer) WriteSection(pid uint16, section []byte) error {
	payload := make([]byte, 0, 1+len(section))
	payload = append(payload, 0x00) // pointer_field
	return w.writePayload(pid, append(payload, section...), false)
}

// WritePES writes a PES packet. Timestamps are in 90 kHz units; pass
// NoTimestamp to omit one. randomAccess sets the adaptation field flag on
// the first packet.
func (w *Writer) WritePES(pid uint16, streamID uint8, pts, dts int64, data []byte, randomAccess bool) error {
	var flags byte
	var opt []byte
	switch {
	case pts != NoTimestamp && dts != NoTimestamp && dts != pts:
		flags = 0x03
		opt = append(EncodeTimestamp(0x03, pts), EncodeTimestamp(0x01, dts)...)
	case pts != NoTimestamp:
		flags = 0x02
		opt = EncodeTimestamp(0x02, pts)
	}

	length := 3 + len(opt) + len(data)
	if length > 0xFFFF || streamID&0xF0 == 0xE0 {
		length = 0
	}
	pes := make([]byte, 0, 9+len(opt)+len(data))
	pes = append(pes, 0x00, 0x00, 0x01, streamID, byte(length>>8), byte(length),
		0x80, flags<<6, byte(len(opt)))
	pes = append(pes, opt...)
	return w.writePayload(pid, append(pes, data...), randomAccess)
}

func (w *Writer) writePayload(pid uint16, payload []byte, randomAccess bool) error {
	first := true
	for first || len(payload) > 0 {
		pkt := w.pkt[:]
		for i := range pkt {
			pkt[i] = 0
		}
		pkt[0] = syncByte
		pkt[1] = byte(pid>>8) & 0x1F
		pkt[2] = byte(pid)
		if first {
			pkt[1] |= 0x40
		}
		cc := w.cc[pid]
		w.cc[pid] = (cc + 1) & 0x0F
		pkt[3] = 0x10 | cc

		var afFlags byte
		if first && randomAccess {
			afFlags = 0x40
		}
		n, hdr := min(len(payload), 184), 4
		if len(payload) < 184 || afFlags != 0 {
			afLen := 0
			if afFlags != 0 {
				afLen = 1
			}
			if len(payload) < 183-afLen {
				afLen = 183 - len(payload)
			}
			n = min(len(payload), 183-afLen)
			pkt[3] |= 0x20
			pkt[4] = byte(afLen)
			if afLen > 0 {
				pkt[5] = afFlags
				for i := 6; i < 5+afLen; i++ {
					pkt[i] = 0xFF
				}
			}
			hdr = 5 + afLen
		}
		copy(pkt[hdr:], payload[:n])
		payload = payload[n:]
		first = false

		if _, err := w.w.Write(pkt); err != nil {
			return err
		}
	}
	return nil
}

// psiSection wraps a table body in a long-form section header and CRC.
func psiSection(tableID uint8, idExt uint16, body []byte) []byte {
	length := 5 + len(body) + 4
	s := make([]byte, 0, 3+length)
	s = append(s, tableID, 0xB0|byte(length>>8)&0x0F, byte(length),
		byte(idExt>>8), byte(idExt), 0xC1, 0x00, 0x00)
	s = append(s, body...)
	return binary.BigEndian.AppendUint32(s, CRC32(s))
}

// EncodeTimestamp encodes a 33-bit PTS or DTS with the given 4-bit prefix.
func EncodeTimestamp(prefix byte, ts int64) []byte {
	return []byte{
		prefix<<4 | byte(ts>>29)&0x0E | 0x01,
		byte(ts >> 22),
		byte(ts>>14)&0xFE | 0x01,
		byte(ts >> 7),
		byte(ts<<1)&0xFE | 0x01,
	}
}
