// Package mpegts reads MPEG-2 transport streams. A Reader reassembles the
// packets of each PID into program tables, PES packets and private sections,
// remembering the byte offset each unit started at so callers can seek and
// report positions.
package mpegts

// NoTimestamp marks an absent PTS, DTS or PCR.
const NoTimestamp int64 = -1

// Stream types carried in the PMT (ISO/IEC 13818-1 Table 2-34 and SCTE 35).
const (
	StreamTypeMPEG2Video uint8 = 0x02
	StreamTypeADTS       uint8 = 0x0F
	StreamTypeH264       uint8 = 0x1B
	StreamTypeH265       uint8 = 0x24
	StreamTypeSCTE35     uint8 = 0x86
)

// Packet is a parsed 188-byte transport stream packet.
type Packet struct {
	PID               uint16
	ContinuityCounter uint8
	PayloadStart      bool
	TransportError    bool
	HasPayload        bool
	Discontinuity     bool
	RandomAccess      bool
	// PCR in 27 MHz units, NoTimestamp when the packet carries none.
	PCR     int64
	Payload []byte
	// Offset of the packet in the input.
	Offset int64
}

// Program is a PMT: the elementary streams making up one program.
type Program struct {
	Number  uint16
	PMTPID  uint16
	PCRPID  uint16
	Version uint8
	Streams []ElementaryStream
}

// ElementaryStream is one PMT entry.
type ElementaryStream struct {
	PID        uint16
	StreamType uint8
	// Language from an ISO 639 descriptor, empty when absent.
	Language string
}

// PES is a reassembled packetized elementary stream packet.
type PES struct {
	StreamID uint8
	// PTS and DTS in 90 kHz units, NoTimestamp when absent.
	PTS  int64
	DTS  int64
	Data []byte
}

// Unit is one item produced by a Reader. Exactly one of PAT, PMT, PES or
// Section is set.
type Unit struct {
	PID uint16
	// Offset of the first packet of the unit.
	Offset int64
	// RandomAccess is set when the first packet flagged a random access point.
	RandomAccess bool

	PAT     map[uint16]uint16 // program number -> PMT PID
	PMT     *Program
	PES     *PES
	Section []byte
}
