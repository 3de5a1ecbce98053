// Package scte35 decodes SCTE-35 splice_info_sections carried in a
// transport stream. It understands splice_null, splice_insert and
// time_signal commands and the segmentation descriptor; other commands and
// descriptors are reported without detail.
package scte35

import (
	"errors"
	"fmt"

	"github.com/zsiec/esdemux/internal/mpegts"
)

const tableID = 0xFC

// Command types (SCTE 35 Table 7).
const (
	SpliceNullType   uint8 = 0x00
	SpliceInsertType uint8 = 0x05
	TimeSignalType   uint8 = 0x06
)

// NoPTS marks a splice without a signaled time.
const NoPTS int64 = -1

var (
	ErrTableID   = errors.New("scte35: not a splice_info_section")
	ErrEncrypted = errors.New("scte35: encrypted sections are not supported")
	ErrTruncated = errors.New("scte35: section truncated")
)

// Splice is a decoded splice_info_section.
type Splice struct {
	CommandType   uint8
	PTSAdjustment uint64
	Tier          uint16

	EventID      uint32
	Cancel       bool
	OutOfNetwork bool
	Immediate    bool
	// PTS of the splice point in 90 kHz units with pts_adjustment applied,
	// NoPTS when the command signals no time.
	PTS int64
	// BreakDuration in 90 kHz units, zero when absent.
	BreakDuration uint64
	AutoReturn    bool

	Segments []Segmentation
}

// Command names the splice command.
func (s *Splice) Command() string {
	switch s.CommandType {
	case SpliceNullType:
		return "splice_null"
	case SpliceInsertType:
		return "splice_insert"
	case TimeSignalType:
		return "time_signal"
	default:
		return "unknown"
	}
}

// Decode parses a complete section, CRC_32 included.
func Decode(section []byte) (*Splice, error) {
	if len(section) < 3 || section[0] != tableID {
		return nil, ErrTableID
	}
	if mpegts.CRC32(section) != 0 {
		return nil, mpegts.ErrCRC
	}

	r := newBitReader(section)
	r.skip(8 + 1 + 1 + 2) // table_id, section_syntax_indicator, private_indicator, sap_type
	sectionLength := int(r.uint(12))
	if 3+sectionLength > len(section) {
		return nil, ErrTruncated
	}

	s := &Splice{PTS: NoPTS}
	r.skip(8) // protocol_version
	if r.flag() {
		return nil, ErrEncrypted
	}
	r.skip(6) // encryption_algorithm
	s.PTSAdjustment = r.uint(33)
	r.skip(8) // cw_index
	s.Tier = uint16(r.uint(12))
	cmdLen := int(r.uint(12))
	s.CommandType = uint8(r.uint(8))

	if cmdLen == 0xFFF {
		// Legacy streams leave the length unset; decode the command in place.
		if err := s.decodeCommand(r); err != nil {
			return nil, err
		}
	} else {
		cmd := r.bytes(cmdLen)
		if r.overflow {
			return nil, ErrTruncated
		}
		if err := s.decodeCommand(newBitReader(cmd)); err != nil {
			return nil, err
		}
	}

	loopLen := int(r.uint(16))
	loop := r.bytes(loopLen)
	if r.overflow {
		return nil, ErrTruncated
	}
	s.Segments = decodeDescriptors(loop)

	if s.PTS != NoPTS {
		s.PTS = int64((uint64(s.PTS) + s.PTSAdjustment) & (1<<33 - 1))
	}
	return s, nil
}

func (s *Splice) decodeCommand(r *bitReader) error {
	switch s.CommandType {
	case SpliceInsertType:
		s.decodeSpliceInsert(r)
	case TimeSignalType:
		s.PTS = spliceTime(r)
	default:
		return nil
	}
	if r.overflow {
		return fmt.Errorf("scte35: %s: %w", s.Command(), ErrTruncated)
	}
	return nil
}

func (s *Splice) decodeSpliceInsert(r *bitReader) {
	s.EventID = uint32(r.uint(32))
	s.Cancel = r.flag()
	r.skip(7)
	if s.Cancel {
		return
	}

	s.OutOfNetwork = r.flag()
	programSplice := r.flag()
	hasDuration := r.flag()
	s.Immediate = r.flag()
	r.skip(4)

	if programSplice {
		if !s.Immediate {
			s.PTS = spliceTime(r)
		}
	} else {
		n := int(r.uint(8))
		for i := 0; i < n; i++ {
			r.skip(8) // component_tag
			if !s.Immediate {
				spliceTime(r)
			}
		}
	}

	if hasDuration {
		s.AutoReturn = r.flag()
		r.skip(6)
		s.BreakDuration = r.uint(33)
	}
	r.skip(16 + 8 + 8) // unique_program_id, avail_num, avails_expected
}

// spliceTime reads a splice_time() structure.
func spliceTime(r *bitReader) int64 {
	if !r.flag() {
		r.skip(7)
		return NoPTS
	}
	r.skip(6)
	return int64(r.uint(33))
}
