package codec

import (
	"fmt"

	"github.com/zsiec/esdemux/media"
)

// H.264 NAL unit types (ITU-T H.264 Table 7-1).
const (
	H264NALSlice = 1
	H264NALIDR   = 5
	H264NALSEI   = 6
	H264NALSPS   = 7
	H264NALPPS   = 8
	H264NALAUD   = 9
)

// NALUnit is one NAL unit of an Annex B byte stream.
type NALUnit struct {
	// Type is the codec-specific NAL unit type.
	Type byte
	// Data holds the NAL header and payload, without the start code.
	Data []byte
}

// splitAnnexB cuts an Annex B stream at its 3- or 4-byte start codes. Units
// shorter than headerLen bytes are dropped.
func splitAnnexB(data []byte, headerLen int, typeOf func([]byte) byte) []NALUnit {
	n := len(data)
	if n < 4 {
		return nil
	}

	// starts[i] is where a start code begins, bodies[i] where its NAL begins.
	var starts, bodies []int
	for i := 0; i+2 < n; {
		if data[i] != 0 || data[i+1] != 0 {
			i++
			continue
		}
		switch {
		case i+3 < n && data[i+2] == 0 && data[i+3] == 1:
			starts, bodies = append(starts, i), append(bodies, i+4)
			i += 4
		case data[i+2] == 1:
			starts, bodies = append(starts, i), append(bodies, i+3)
			i += 3
		default:
			i++
		}
	}

	units := make([]NALUnit, 0, len(bodies))
	for k, begin := range bodies {
		end := n
		if k+1 < len(starts) {
			end = starts[k+1]
		}
		if end-begin < headerLen {
			continue
		}
		nal := data[begin:end]
		units = append(units, NALUnit{Type: typeOf(nal), Data: nal})
	}
	return units
}

// SplitH264 parses an H.264 Annex B access unit into NAL units.
func SplitH264(data []byte) []NALUnit {
	return splitAnnexB(data, 1, func(d []byte) byte { return d[0] & 0x1F })
}

// H264SPS holds the sequence parameter set fields needed to describe a
// track.
type H264SPS struct {
	ProfileIDC      byte
	ConstraintFlags byte
	LevelIDC        byte
	ChromaFormatIDC uint
	BitDepthLuma    uint

	// CodedWidth and CodedHeight are the macroblock-aligned picture size.
	CodedWidth  int
	CodedHeight int
	// Visible area after frame cropping.
	CropLeft int
	CropTop  int
	Width    int
	Height   int
}

// CodecString returns the RFC 6381 codec string, e.g. "avc1.64001F".
func (s H264SPS) CodecString() string {
	return fmt.Sprintf("avc1.%02X%02X%02X", s.ProfileIDC, s.ConstraintFlags, s.LevelIDC)
}

// PixelFormat maps chroma format and bit depth to a media pixel format.
func (s H264SPS) PixelFormat() media.PixelFormat {
	return pixelFormat(s.ChromaFormatIDC, s.BitDepthLuma)
}

func pixelFormat(chroma, depth uint) media.PixelFormat {
	high := depth > 8
	switch chroma {
	case 0:
		return media.PixelFormatGray
	case 1:
		if high {
			return media.PixelFormatYUV420P10
		}
		return media.PixelFormatYUV420P
	case 2:
		if high {
			return media.PixelFormatYUV422P10
		}
		return media.PixelFormatYUV422P
	case 3:
		if high {
			return media.PixelFormatYUV444P10
		}
		return media.PixelFormatYUV444P
	}
	return media.PixelFormatUnknown
}

// High profiles that carry chroma format and bit depth in the SPS.
var h264HighProfiles = map[uint]bool{
	100: true, 110: true, 122: true, 244: true, 44: true, 83: true,
	86: true, 118: true, 128: true, 138: true, 139: true, 134: true,
}

// ParseH264SPS parses an SPS NAL unit, header byte included, start code
// excluded. VUI parameters are not needed and are left unread.
func ParseH264SPS(nal []byte) (H264SPS, error) {
	if len(nal) < 4 {
		return H264SPS{}, ErrShortData
	}
	br := newBitReader(unescapeRBSP(nal[1:]))

	sps := H264SPS{
		ProfileIDC:      byte(br.u(8)),
		ConstraintFlags: byte(br.u(8)),
		LevelIDC:        byte(br.u(8)),
		ChromaFormatIDC: 1,
		BitDepthLuma:    8,
	}
	br.ue() // seq_parameter_set_id

	separatePlanes := false
	if h264HighProfiles[uint(sps.ProfileIDC)] {
		sps.ChromaFormatIDC = br.ue()
		if sps.ChromaFormatIDC == 3 {
			separatePlanes = br.flag()
		}
		sps.BitDepthLuma = br.ue() + 8
		// bit_depth_chroma_minus8, qpprime_y_zero_transform_bypass_flag
		br.ue()
		br.u1()
		if scalingMatrix := br.flag(); scalingMatrix {
			lists := 8
			if sps.ChromaFormatIDC == 3 {
				lists = 12
			}
			for i := 0; i < lists; i++ {
				if !br.flag() {
					continue
				}
				size := 16
				if i >= 6 {
					size = 64
				}
				skipScalingList(br, size)
			}
		}
	}

	br.ue() // log2_max_frame_num_minus4
	pocType := br.ue()
	switch pocType {
	case 0:
		br.ue()
	case 1:
		br.u1()
		br.se()
		br.se()
		for n := br.ue(); n > 0 && br.err == nil; n-- {
			br.se()
		}
	}
	br.ue() // max_num_ref_frames
	br.u1() // gaps_in_frame_num_value_allowed_flag

	widthMbs := br.ue() + 1
	heightUnits := br.ue() + 1
	frameMbsOnly := br.u1()
	if frameMbsOnly == 0 {
		br.u1() // mb_adaptive_frame_field_flag
	}
	br.u1() // direct_8x8_inference_flag

	var cropL, cropR, cropT, cropB uint
	if br.flag() {
		cropL, cropR, cropT, cropB = br.ue(), br.ue(), br.ue(), br.ue()
	}
	if br.err != nil {
		return H264SPS{}, fmt.Errorf("codec: h264 sps: %w", br.err)
	}

	subW, subH := uint(2), uint(2)
	chroma := sps.ChromaFormatIDC
	if separatePlanes {
		chroma = 0
	}
	switch chroma {
	case 0, 3:
		subW, subH = 1, 1
	case 2:
		subW, subH = 2, 1
	}
	unitX := subW
	unitY := subH * (2 - frameMbsOnly)

	sps.CodedWidth = int(widthMbs * 16)
	sps.CodedHeight = int(heightUnits * 16 * (2 - frameMbsOnly))
	sps.CropLeft = int(unitX * cropL)
	sps.CropTop = int(unitY * cropT)
	sps.Width = sps.CodedWidth - int(unitX*(cropL+cropR))
	sps.Height = sps.CodedHeight - int(unitY*(cropT+cropB))
	if sps.Width <= 0 || sps.Height <= 0 {
		return H264SPS{}, fmt.Errorf("codec: h264 sps: invalid crop %dx%d", sps.Width, sps.Height)
	}
	return sps, nil
}

func skipScalingList(br *bitReader, size int) {
	last, next := 8, 8
	for j := 0; j < size && br.err == nil; j++ {
		if next != 0 {
			next = (last + br.se() + 256) % 256
		}
		if next != 0 {
			last = next
		}
	}
}

// AccessUnit summarizes the NAL units of one coded picture.
type AccessUnit struct {
	KeyFrame bool
	// Parameter sets found in the access unit, without start codes.
	VPS, SPS, PPS []byte
	// SEI NAL units, header included.
	SEI [][]byte
}

// ScanH264 classifies the NAL units of an H.264 access unit.
func ScanH264(data []byte) AccessUnit {
	var au AccessUnit
	for _, nal := range SplitH264(data) {
		switch nal.Type {
		case H264NALIDR:
			au.KeyFrame = true
		case H264NALSPS:
			au.SPS = nal.Data
		case H264NALPPS:
			au.PPS = nal.Data
		case H264NALSEI:
			au.SEI = append(au.SEI, nal.Data)
		}
	}
	return au
}

// H264VideoConfig describes an H.264 track from its parameter sets. The
// extra data is an AVCDecoderConfigurationRecord.
func H264VideoConfig(sps, pps []byte) (*media.VideoDecoderConfig, error) {
	info, err := ParseH264SPS(sps)
	if err != nil {
		return nil, err
	}
	return &media.VideoDecoderConfig{
		Codec:       media.CodecH264,
		Profile:     int(info.ProfileIDC),
		Format:      info.PixelFormat(),
		CodedSize:   media.Size{Width: info.CodedWidth, Height: info.CodedHeight},
		VisibleRect: media.Rect{X: info.CropLeft, Y: info.CropTop, Width: info.Width, Height: info.Height},
		NaturalSize: media.Size{Width: info.Width, Height: info.Height},
		ExtraData:   AVCDecoderConfigRecord(sps, pps),
	}, nil
}
