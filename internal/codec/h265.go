package codec

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/zsiec/esdemux/media"
)

// H.265 NAL unit types (ITU-T H.265 Table 7-1).
const (
	HEVCNALBlaWLP    = 16
	HEVCNALIDRWRadl  = 19
	HEVCNALIDRNLP    = 20
	HEVCNALCRA       = 21
	HEVCNALVPS       = 32
	HEVCNALSPS       = 33
	HEVCNALPPS       = 34
	HEVCNALAUD       = 35
	HEVCNALSEIPrefix = 39
)

// HEVCNALType extracts the type from the first byte of a two-byte HEVC NAL
// header.
func HEVCNALType(b byte) byte { return (b >> 1) & 0x3F }

// IsHEVCRandomAccess reports whether an HEVC NAL type is a BLA, IDR or CRA
// picture, any of which can start decoding.
func IsHEVCRandomAccess(t byte) bool {
	return t >= HEVCNALBlaWLP && t <= HEVCNALCRA
}

// SplitHEVC parses an H.265 Annex B access unit into NAL units.
func SplitHEVC(data []byte) []NALUnit {
	return splitAnnexB(data, 2, func(d []byte) byte { return HEVCNALType(d[0]) })
}

// HEVCSPS holds the sequence parameter set fields needed to describe a
// track and build its configuration record.
type HEVCSPS struct {
	ProfileSpace byte
	TierFlag     byte
	ProfileIDC   byte
	LevelIDC     byte

	ProfileCompatibilityFlags uint32
	ConstraintIndicatorFlags  uint64

	ChromaFormatIDC    uint
	BitDepthLuma       uint
	BitDepthChroma     uint
	MaxSubLayersMinus1 uint
	TemporalIDNested   bool

	CodedWidth  int
	CodedHeight int
	CropLeft    int
	CropTop     int
	Width       int
	Height      int
}

// CodecString returns the RFC 6381 codec string, e.g. "hev1.1.6.L93.B0".
func (s HEVCSPS) CodecString() string {
	tier := "L"
	if s.TierFlag == 1 {
		tier = "H"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "hev1.%d.%X.%s%d", s.ProfileIDC, bits.Reverse32(s.ProfileCompatibilityFlags), tier, s.LevelIDC)

	var constraints [6]byte
	last := -1
	for i := range constraints {
		constraints[i] = byte(s.ConstraintIndicatorFlags >> uint((5-i)*8))
		if constraints[i] != 0 {
			last = i
		}
	}
	for i := 0; i <= last; i++ {
		fmt.Fprintf(&sb, ".%X", constraints[i])
	}
	return sb.String()
}

// PixelFormat maps chroma format and bit depth to a media pixel format.
func (s HEVCSPS) PixelFormat() media.PixelFormat {
	return pixelFormat(s.ChromaFormatIDC, s.BitDepthLuma)
}

// ParseHEVCSPS parses an SPS NAL unit, two-byte header included, start code
// excluded.
func ParseHEVCSPS(nal []byte) (HEVCSPS, error) {
	if len(nal) < 4 {
		return HEVCSPS{}, ErrShortData
	}
	br := newBitReader(unescapeRBSP(nal[2:]))

	var sps HEVCSPS
	br.u(4) // sps_video_parameter_set_id
	sps.MaxSubLayersMinus1 = br.u(3)
	sps.TemporalIDNested = br.flag()
	readProfileTierLevel(br, &sps)

	br.ue() // sps_seq_parameter_set_id
	sps.ChromaFormatIDC = br.ue()
	if sps.ChromaFormatIDC == 3 {
		br.u1() // separate_colour_plane_flag
	}
	sps.CodedWidth = int(br.ue())
	sps.CodedHeight = int(br.ue())
	if br.err != nil {
		return HEVCSPS{}, fmt.Errorf("codec: hevc sps: %w", br.err)
	}

	// A truncated tail leaves an uncropped 8-bit picture.
	var left, right, top, bottom uint
	if br.flag() { // conformance_window_flag
		left, right, top, bottom = br.ue(), br.ue(), br.ue(), br.ue()
	}
	sps.BitDepthLuma = br.ue() + 8
	sps.BitDepthChroma = br.ue() + 8
	if br.err != nil {
		left, right, top, bottom = 0, 0, 0, 0
		sps.BitDepthLuma, sps.BitDepthChroma = 8, 8
	}

	subW, subH := uint(1), uint(1)
	switch sps.ChromaFormatIDC {
	case 1:
		subW, subH = 2, 2
	case 2:
		subW, subH = 2, 1
	}
	sps.CropLeft = int(left * subW)
	sps.CropTop = int(top * subH)
	sps.Width = sps.CodedWidth - int((left+right)*subW)
	sps.Height = sps.CodedHeight - int((top+bottom)*subH)
	if sps.Width <= 0 || sps.Height <= 0 {
		return HEVCSPS{}, fmt.Errorf("codec: hevc sps: invalid size %dx%d", sps.Width, sps.Height)
	}
	return sps, nil
}

func readProfileTierLevel(br *bitReader, sps *HEVCSPS) {
	sps.ProfileSpace = byte(br.u(2))
	sps.TierFlag = byte(br.u1())
	sps.ProfileIDC = byte(br.u(5))
	sps.ProfileCompatibilityFlags = uint32(br.u(32))
	for i := 0; i < 6; i++ {
		sps.ConstraintIndicatorFlags = sps.ConstraintIndicatorFlags<<8 | uint64(br.u(8))
	}
	sps.LevelIDC = byte(br.u(8))

	n := sps.MaxSubLayersMinus1
	if n == 0 {
		return
	}
	profilePresent := make([]bool, n)
	levelPresent := make([]bool, n)
	for i := uint(0); i < n; i++ {
		profilePresent[i] = br.flag()
		levelPresent[i] = br.flag()
	}
	for i := n; i < 8; i++ {
		br.u(2) // reserved_zero_2bits
	}
	for i := uint(0); i < n; i++ {
		if profilePresent[i] {
			br.skip(88)
		}
		if levelPresent[i] {
			br.skip(8)
		}
	}
}

// ScanHEVC classifies the NAL units of an H.265 access unit.
func ScanHEVC(data []byte) AccessUnit {
	var au AccessUnit
	for _, nal := range SplitHEVC(data) {
		switch {
		case IsHEVCRandomAccess(nal.Type):
			au.KeyFrame = true
		case nal.Type == HEVCNALVPS:
			au.VPS = nal.Data
		case nal.Type == HEVCNALSPS:
			au.SPS = nal.Data
		case nal.Type == HEVCNALPPS:
			au.PPS = nal.Data
		case nal.Type == HEVCNALSEIPrefix:
			au.SEI = append(au.SEI, nal.Data)
		}
	}
	return au
}

// HEVCVideoConfig describes an H.265 track from its parameter sets. The
// extra data is an HEVCDecoderConfigurationRecord.
func HEVCVideoConfig(vps, sps, pps []byte) (*media.VideoDecoderConfig, error) {
	info, err := ParseHEVCSPS(sps)
	if err != nil {
		return nil, err
	}
	return &media.VideoDecoderConfig{
		Codec:       media.CodecHEVC,
		Profile:     int(info.ProfileIDC),
		Format:      info.PixelFormat(),
		CodedSize:   media.Size{Width: info.CodedWidth, Height: info.CodedHeight},
		VisibleRect: media.Rect{X: info.CropLeft, Y: info.CropTop, Width: info.Width, Height: info.Height},
		NaturalSize: media.Size{Width: info.Width, Height: info.Height},
		ExtraData:   HEVCDecoderConfigRecord(vps, sps, pps),
	}, nil
}
