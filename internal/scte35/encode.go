package scte35

import (
	"encoding/binary"
	"fmt"

	"github.com/zsiec/esdemux/internal/mpegts"
)

// Encode builds a splice_info_section for s, CRC_32 included. Only
// splice_null, program splice_insert and time_signal can be encoded.
// Segments are written as program segmentation descriptors. A PTS is stored
// relative to PTSAdjustment so Decode returns it unchanged.
func Encode(s *Splice) ([]byte, error) {
	var cmd bitWriter
	switch s.CommandType {
	case SpliceNullType:
	case SpliceInsertType:
		encodeSpliceInsert(&cmd, s)
	case TimeSignalType:
		encodeSpliceTime(&cmd, s.PTS, s.PTSAdjustment)
	default:
		return nil, fmt.Errorf("scte35: cannot encode command 0x%02x", s.CommandType)
	}

	var loop []byte
	for _, seg := range s.Segments {
		d, err := encodeSegmentation(seg)
		if err != nil {
			return nil, err
		}
		loop = append(loop, d...)
	}

	var w bitWriter
	w.uint(8, 0) // protocol_version
	w.flag(false)
	w.uint(6, 0) // encryption_algorithm
	w.uint(33, s.PTSAdjustment)
	w.uint(8, 0) // cw_index
	w.uint(12, uint64(s.Tier))
	w.uint(12, uint64(len(cmd.data)))
	w.uint(8, uint64(s.CommandType))
	w.bytes(cmd.data)
	w.uint(16, uint64(len(loop)))
	w.bytes(loop)

	length := len(w.data) + 4
	section := make([]byte, 0, 3+length)
	section = append(section, tableID, 0x30|byte(length>>8)&0x0F, byte(length))
	section = append(section, w.data...)
	return binary.BigEndian.AppendUint32(section, mpegts.CRC32(section)), nil
}

func encodeSpliceInsert(w *bitWriter, s *Splice) {
	w.uint(32, uint64(s.EventID))
	w.flag(s.Cancel)
	w.ones(7)
	if s.Cancel {
		return
	}
	w.flag(s.OutOfNetwork)
	w.flag(true) // program_splice_flag
	w.flag(s.BreakDuration > 0)
	w.flag(s.Immediate)
	w.ones(4)
	if !s.Immediate {
		encodeSpliceTime(w, s.PTS, s.PTSAdjustment)
	}
	if s.BreakDuration > 0 {
		w.flag(s.AutoReturn)
		w.ones(6)
		w.uint(33, s.BreakDuration)
	}
	w.uint(16, 0) // unique_program_id
	w.uint(8, 0)  // avail_num
	w.uint(8, 0)  // avails_expected
}

func encodeSpliceTime(w *bitWriter, pts int64, adjustment uint64) {
	if pts == NoPTS {
		w.flag(false)
		w.ones(7)
		return
	}
	w.flag(true)
	w.ones(6)
	w.uint(33, (uint64(pts)-adjustment)&(1<<33-1))
}

func encodeSegmentation(seg Segmentation) ([]byte, error) {
	if len(seg.UPID) > 0xFF {
		return nil, fmt.Errorf("scte35: segmentation upid of %d bytes", len(seg.UPID))
	}
	var w bitWriter
	w.uint(32, cueIdentifier)
	w.uint(32, uint64(seg.EventID))
	w.flag(seg.Cancel)
	w.ones(7)
	if !seg.Cancel {
		w.flag(true) // program_segmentation_flag
		w.flag(seg.Duration > 0)
		w.flag(true) // delivery_not_restricted_flag
		w.ones(5)
		if seg.Duration > 0 {
			w.uint(40, seg.Duration)
		}
		w.uint(8, uint64(seg.UPIDType))
		w.uint(8, uint64(len(seg.UPID)))
		w.bytes(seg.UPID)
		w.uint(8, uint64(seg.TypeID))
		w.uint(8, uint64(seg.SegmentNum))
		w.uint(8, uint64(seg.SegmentsExpected))
	}
	return append([]byte{segmentationDescriptorTag, byte(len(w.data))}, w.data...), nil
}
