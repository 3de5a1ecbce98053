package codec

import (
	"testing"

	"github.com/zsiec/esdemux/media"
)

// Main profile, level 3.1, 320x240 SPS with the tail after the picture size
// omitted.
var hevcSPS320 = []byte{
	0x42, 0x01,
	0x01,
	0x01,
	0x40, 0x00, 0x00, 0x00,
	0xB0, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x5D,
	0xA0, 0x0A, 0x08, 0x0F, 0x10,
}

func TestHEVCNALType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		firstByte byte
		want      byte
		key       bool
	}{
		{"VPS", 0x40, HEVCNALVPS, false},
		{"SPS", 0x42, HEVCNALSPS, false},
		{"PPS", 0x44, HEVCNALPPS, false},
		{"IDR_W_RADL", 0x26, HEVCNALIDRWRadl, true},
		{"IDR_N_LP", 0x28, HEVCNALIDRNLP, true},
		{"CRA", 0x2A, HEVCNALCRA, true},
		{"BLA_W_LP", 0x20, HEVCNALBlaWLP, true},
		{"TRAIL_R", 0x02, 1, false},
		{"SEI prefix", 0x4E, HEVCNALSEIPrefix, false},
		{"AUD", 0x46, HEVCNALAUD, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := HEVCNALType(tt.firstByte)
			if got != tt.want {
				t.Errorf("HEVCNALType(0x%02X) = %d, want %d", tt.firstByte, got, tt.want)
			}
			if IsHEVCRandomAccess(got) != tt.key {
				t.Errorf("IsHEVCRandomAccess(%d) = %v, want %v", got, !tt.key, tt.key)
			}
		})
	}
}

func TestParseHEVCSPS(t *testing.T) {
	t.Parallel()
	info, err := ParseHEVCSPS(hevcSPS320)
	if err != nil {
		t.Fatalf("ParseHEVCSPS: %v", err)
	}
	if info.Width != 320 || info.Height != 240 {
		t.Errorf("size: got %dx%d, want 320x240", info.Width, info.Height)
	}
	if info.ProfileIDC != 1 || info.TierFlag != 0 || info.LevelIDC != 93 {
		t.Errorf("ptl: profile %d tier %d level %d", info.ProfileIDC, info.TierFlag, info.LevelIDC)
	}
	if info.ChromaFormatIDC != 1 || info.BitDepthLuma != 8 {
		t.Errorf("chroma %d depth %d", info.ChromaFormatIDC, info.BitDepthLuma)
	}
	if !info.TemporalIDNested {
		t.Error("expected temporal id nesting")
	}
	if got := info.CodecString(); got != "hev1.1.2.L93.B0" {
		t.Errorf("codec string: got %q", got)
	}
	if info.PixelFormat() != media.PixelFormatYUV420P {
		t.Errorf("pixel format: got %s", info.PixelFormat())
	}
}

func TestParseHEVCSPSTooShort(t *testing.T) {
	t.Parallel()
	for _, in := range [][]byte{nil, {0x42, 0x01, 0x01}, hevcSPS320[:10]} {
		if _, err := ParseHEVCSPS(in); err == nil {
			t.Errorf("expected error for % x", in)
		}
	}
}

func TestScanHEVC(t *testing.T) {
	t.Parallel()
	vps := []byte{0x40, 0x01, 0x0c, 0x01}
	pps := []byte{0x44, 0x01, 0xc1, 0x72}
	var au []byte
	for _, nal := range [][]byte{vps, hevcSPS320, pps, {0x4e, 0x01, 0x05}, {0x26, 0x01, 0xaf}} {
		au = append(au, 0x00, 0x00, 0x00, 0x01)
		au = append(au, nal...)
	}

	got := ScanHEVC(au)
	if !got.KeyFrame {
		t.Error("expected key frame")
	}
	if got.VPS == nil || got.SPS == nil || got.PPS == nil {
		t.Fatal("parameter sets not captured")
	}
	if len(got.SEI) != 1 {
		t.Errorf("SEI count: got %d", len(got.SEI))
	}

	cfg, err := HEVCVideoConfig(got.VPS, got.SPS, got.PPS)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.IsValidConfig() || cfg.Codec != media.CodecHEVC {
		t.Errorf("unexpected config: %s", cfg)
	}
	wantLen := 23 + 15 + len(vps) + len(hevcSPS320) + len(pps)
	if len(cfg.ExtraData) != wantLen {
		t.Errorf("record length: got %d, want %d", len(cfg.ExtraData), wantLen)
	}
	if cfg.ExtraData[1] != 0x01 || cfg.ExtraData[12] != 93 {
		t.Errorf("record header: % x", cfg.ExtraData[:13])
	}
}

func TestHEVCRecordMissingParameterSets(t *testing.T) {
	t.Parallel()
	if rec := HEVCDecoderConfigRecord(nil, hevcSPS320, []byte{0x44, 0x01}); rec != nil {
		t.Error("expected nil record without VPS")
	}
	if rec := AVCDecoderConfigRecord(sps720p, nil); rec != nil {
		t.Error("expected nil record without PPS")
	}
}
