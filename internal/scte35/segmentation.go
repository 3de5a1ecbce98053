package scte35

const (
	segmentationDescriptorTag = 0x02
	cueIdentifier             = 0x43554549 // "CUEI"
)

// Segmentation is a segmentation_descriptor (SCTE 35 10.3.3).
type Segmentation struct {
	EventID uint32
	Cancel  bool
	TypeID  uint8
	// Duration in 90 kHz units, zero when absent.
	Duration         uint64
	UPIDType         uint8
	UPID             []byte
	SegmentNum       uint8
	SegmentsExpected uint8
}

// Segmentation type ids (SCTE 35 Table 22).
const (
	SegmentationTypeContentIdentification uint8 = 0x01
	SegmentationTypeProgramStart          uint8 = 0x10
	SegmentationTypeProgramEnd            uint8 = 0x11
	SegmentationTypeChapterStart          uint8 = 0x20
	SegmentationTypeChapterEnd            uint8 = 0x21
	SegmentationTypeBreakStart            uint8 = 0x22
	SegmentationTypeBreakEnd              uint8 = 0x23
	SegmentationTypeProviderAdStart       uint8 = 0x30
	SegmentationTypeProviderAdEnd         uint8 = 0x31
	SegmentationTypeDistributorAdStart    uint8 = 0x32
	SegmentationTypeDistributorAdEnd      uint8 = 0x33
	SegmentationTypeProviderPOStart       uint8 = 0x34
	SegmentationTypeProviderPOEnd         uint8 = 0x35
	SegmentationTypeUnscheduledEventStart uint8 = 0x40
	SegmentationTypeUnscheduledEventEnd   uint8 = 0x41
	SegmentationTypeNetworkStart          uint8 = 0x50
	SegmentationTypeNetworkEnd            uint8 = 0x51
)

var segmentationNames = map[uint8]string{
	0x00: "Not Indicated",
	0x01: "Content Identification",
	0x10: "Program Start",
	0x11: "Program End",
	0x12: "Program Early Termination",
	0x13: "Program Breakaway",
	0x14: "Program Resumption",
	0x15: "Program Runover Planned",
	0x16: "Program Runover Unplanned",
	0x17: "Program Overlap Start",
	0x18: "Program Blackout Override",
	0x19: "Program Start - In Progress",
	0x20: "Chapter Start",
	0x21: "Chapter End",
	0x22: "Break Start",
	0x23: "Break End",
	0x24: "Opening Credit Start",
	0x25: "Opening Credit End",
	0x26: "Closing Credit Start",
	0x27: "Closing Credit End",
	0x30: "Provider Advertisement Start",
	0x31: "Provider Advertisement End",
	0x32: "Distributor Advertisement Start",
	0x33: "Distributor Advertisement End",
	0x34: "Provider Placement Opportunity Start",
	0x35: "Provider Placement Opportunity End",
	0x36: "Distributor Placement Opportunity Start",
	0x37: "Distributor Placement Opportunity End",
	0x38: "Provider Overlay Placement Opportunity Start",
	0x39: "Provider Overlay Placement Opportunity End",
	0x3a: "Distributor Overlay Placement Opportunity Start",
	0x3b: "Distributor Overlay Placement Opportunity End",
	0x3c: "Provider Promo Start",
	0x3d: "Provider Promo End",
	0x3e: "Distributor Promo Start",
	0x3f: "Distributor Promo End",
	0x40: "Unscheduled Event Start",
	0x41: "Unscheduled Event End",
	0x42: "Alternate Content Opportunity Start",
	0x43: "Alternate Content Opportunity End",
	0x44: "Provider Ad Block Start",
	0x45: "Provider Ad Block End",
	0x46: "Distributor Ad Block Start",
	0x47: "Distributor Ad Block End",
	0x50: "Network Start",
	0x51: "Network End",
}

// Name returns the human-readable segmentation type.
func (s Segmentation) Name() string {
	if name, ok := segmentationNames[s.TypeID]; ok {
		return name
	}
	return "Unknown"
}

// decodeDescriptors returns the segmentation descriptors in a descriptor
// loop, skipping other tags and malformed entries.
func decodeDescriptors(loop []byte) []Segmentation {
	var segs []Segmentation
	for len(loop) >= 2 {
		tag, n := loop[0], int(loop[1])
		if 2+n > len(loop) {
			break
		}
		body := loop[2 : 2+n]
		loop = loop[2+n:]

		if tag != segmentationDescriptorTag || n < 4 {
			continue
		}
		if uint32(body[0])<<24|uint32(body[1])<<16|uint32(body[2])<<8|uint32(body[3]) != cueIdentifier {
			continue
		}
		if seg, ok := decodeSegmentation(newBitReader(body[4:])); ok {
			segs = append(segs, seg)
		}
	}
	return segs
}

func decodeSegmentation(r *bitReader) (Segmentation, bool) {
	var seg Segmentation
	seg.EventID = uint32(r.uint(32))
	seg.Cancel = r.flag()
	r.skip(7) // segmentation_event_id_compliance_indicator, reserved
	if seg.Cancel {
		return seg, !r.overflow
	}

	programSegmentation := r.flag()
	hasDuration := r.flag()
	r.skip(6) // delivery_not_restricted_flag and restriction flags or reserved

	if !programSegmentation {
		n := int(r.uint(8))
		r.skip(n * (8 + 7 + 33)) // component_tag, reserved, pts_offset
	}
	if hasDuration {
		seg.Duration = r.uint(40)
	}
	seg.UPIDType = uint8(r.uint(8))
	seg.UPID = r.bytes(int(r.uint(8)))
	seg.TypeID = uint8(r.uint(8))
	seg.SegmentNum = uint8(r.uint(8))
	seg.SegmentsExpected = uint8(r.uint(8))
	return seg, !r.overflow
}
