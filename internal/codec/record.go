package codec

import "encoding/binary"

// AVCDecoderConfigRecord builds an AVCDecoderConfigurationRecord (ISO/IEC
// 14496-15 5.3.3.1) with one SPS and one PPS, both given without start
// codes. It returns nil when either parameter set is missing.
func AVCDecoderConfigRecord(sps, pps []byte) []byte {
	if len(sps) < 4 || len(pps) == 0 {
		return nil
	}
	rec := make([]byte, 0, 11+len(sps)+len(pps))
	rec = append(rec,
		1,      // configurationVersion
		sps[1], // AVCProfileIndication
		sps[2], // profile_compatibility
		sps[3], // AVCLevelIndication
		0xFF,   // reserved | lengthSizeMinusOne = 3
		0xE1,   // reserved | numOfSequenceParameterSets = 1
	)
	rec = appendParamSet(rec, sps)
	rec = append(rec, 1)
	return appendParamSet(rec, pps)
}

// HEVCDecoderConfigRecord builds an HEVCDecoderConfigurationRecord (ISO/IEC
// 14496-15 8.3.3.1) with one VPS, SPS and PPS, given without start codes. It
// returns nil when a parameter set is missing or the SPS does not parse.
func HEVCDecoderConfigRecord(vps, sps, pps []byte) []byte {
	if len(vps) == 0 || len(sps) < 4 || len(pps) == 0 {
		return nil
	}
	info, err := ParseHEVCSPS(sps)
	if err != nil {
		return nil
	}

	rec := make([]byte, 0, 23+3*5+len(vps)+len(sps)+len(pps))
	rec = append(rec, 1, info.ProfileSpace<<6|info.TierFlag<<5|info.ProfileIDC)
	rec = binary.BigEndian.AppendUint32(rec, info.ProfileCompatibilityFlags)
	for i := 5; i >= 0; i-- {
		rec = append(rec, byte(info.ConstraintIndicatorFlags>>(i*8)))
	}

	nested := byte(0)
	if info.TemporalIDNested {
		nested = 1
	}
	rec = append(rec,
		info.LevelIDC,
		0xF0, 0x00, // reserved | min_spatial_segmentation_idc
		0xFC, // reserved | parallelismType
		0xFC|byte(info.ChromaFormatIDC&0x03),
		0xF8|byte((info.BitDepthLuma-8)&0x07),
		0xF8|byte((info.BitDepthChroma-8)&0x07),
		0x00, 0x00, // avgFrameRate
		// constantFrameRate | numTemporalLayers | temporalIdNested | lengthSizeMinusOne
		byte(info.MaxSubLayersMinus1+1)<<3|nested<<2|0x03,
		3, // numOfArrays
	)
	for _, ps := range []struct {
		typ  byte
		data []byte
	}{{HEVCNALVPS, vps}, {HEVCNALSPS, sps}, {HEVCNALPPS, pps}} {
		rec = append(rec, 0x80|ps.typ, 0x00, 0x01) // array_completeness | type, numNalus
		rec = appendParamSet(rec, ps.data)
	}
	return rec
}

func appendParamSet(b, ps []byte) []byte {
	b = binary.BigEndian.AppendUint16(b, uint16(len(ps)))
	return append(b, ps...)
}
