package mpegts

import (
	"errors"
	"fmt"
)

const (
	pidPAT = 0x0000

	tableIDPAT = 0x00
	tableIDPMT = 0x02

	descriptorISO639 = 0x0A
)

var errShortSection = errors.New("mpegts: section too short")

// splitSections returns the complete sections in a pointer-field-prefixed
// payload.
func splitSections(payload []byte, strict bool) ([][]byte, error) {
	if len(payload) < 1 {
		return nil, errShortSection
	}
	offset := 1 + int(payload[0])
	if offset >= len(payload) {
		return nil, fmt.Errorf("mpegts: pointer field %d out of range", payload[0])
	}

	var sections [][]byte
	for offset+3 <= len(payload) && payload[offset] != 0xFF {
		if strict && payload[offset+1]&0x80 == 0 {
			break
		}
		end := offset + 3 + (int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2]))
		if end > len(payload) {
			break
		}
		sections = append(sections, payload[offset:end])
		offset = end
	}
	return sections, nil
}

// parsePAT returns program number -> PMT PID, skipping the NIT entry.
func parsePAT(section []byte) (map[uint16]uint16, error) {
	if len(section) < 12 {
		return nil, errShortSection
	}
	if err := verifyCRC(section); err != nil {
		return nil, fmt.Errorf("mpegts: PAT: %w", err)
	}

	programs := make(map[uint16]uint16)
	for i := 8; i+4 <= len(section)-4; i += 4 {
		number := uint16(section[i])<<8 | uint16(section[i+1])
		if number == 0 {
			continue
		}
		programs[number] = uint16(section[i+2]&0x1F)<<8 | uint16(section[i+3])
	}
	return programs, nil
}

func parsePMT(section []byte, pid uint16) (*Program, error) {
	if len(section) < 16 {
		return nil, errShortSection
	}
	if err := verifyCRC(section); err != nil {
		return nil, fmt.Errorf("mpegts: PMT: %w", err)
	}

	prog := &Program{
		Number:  uint16(section[3])<<8 | uint16(section[4]),
		PMTPID:  pid,
		Version: (section[5] >> 1) & 0x1F,
		PCRPID:  uint16(section[8]&0x1F)<<8 | uint16(section[9]),
	}

	end := len(section) - 4
	offset := 12 + (int(section[10]&0x0F)<<8 | int(section[11]))
	for offset+5 <= end {
		es := ElementaryStream{
			StreamType: section[offset],
			PID:        uint16(section[offset+1]&0x1F)<<8 | uint16(section[offset+2]),
		}
		infoLen := int(section[offset+3]&0x0F)<<8 | int(section[offset+4])
		offset += 5
		if offset+infoLen > end {
			return nil, fmt.Errorf("mpegts: PMT: ES info for PID %d overruns section", es.PID)
		}
		es.Language = languageOf(section[offset : offset+infoLen])
		prog.Streams = append(prog.Streams, es)
		offset += infoLen
	}
	return prog, nil
}

// languageOf returns the first ISO 639 code in a descriptor loop.
func languageOf(descriptors []byte) string {
	for len(descriptors) >= 2 {
		tag, n := descriptors[0], int(descriptors[1])
		if 2+n > len(descriptors) {
			return ""
		}
		if tag == descriptorISO639 && n >= 3 {
			return string(descriptors[2:5])
		}
		descriptors = descriptors[2+n:]
	}
	return ""
}
