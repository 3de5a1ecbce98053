package codec

import (
	"bytes"
	"testing"

	"github.com/zsiec/esdemux/media"
)

// 1280x720 High profile SPS captured from an x264 encode.
var sps720p = []byte{
	0x67, 0x64, 0x00, 0x1f, 0xac, 0xd9, 0x40, 0x50,
	0x05, 0xbb, 0xff, 0x00, 0x03, 0x00, 0x04, 0x6a,
	0x02, 0x02, 0x02, 0x80, 0x00, 0x01, 0xf4, 0x80,
	0x00, 0x5d, 0xc0, 0x07, 0x8c, 0x18, 0xcb,
}

var pps720p = []byte{0x68, 0xeb, 0xe3, 0xcb, 0x22, 0xc0}

func TestSplitH264(t *testing.T) {
	t.Parallel()
	data := []byte{
		0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0xE0, 0x1E,
		0x00, 0x00, 0x00, 0x01, 0x68, 0xCE, 0x38, 0x80,
		0x00, 0x00, 0x01, 0x65, 0x88, 0x84, 0x00, 0xFF, 0xFE,
	}

	nalus := SplitH264(data)
	if len(nalus) != 3 {
		t.Fatalf("expected 3 NAL units, got %d", len(nalus))
	}
	want := []byte{H264NALSPS, H264NALPPS, H264NALIDR}
	for i, nal := range nalus {
		if nal.Type != want[i] {
			t.Errorf("nal %d: type %d, want %d", i, nal.Type, want[i])
		}
	}
	if !bytes.Equal(nalus[2].Data, []byte{0x65, 0x88, 0x84, 0x00, 0xFF, 0xFE}) {
		t.Errorf("IDR data: got % x", nalus[2].Data)
	}
}

func TestSplitH264TrailingZeroBelongsToStartCode(t *testing.T) {
	t.Parallel()
	data := []byte{
		0x00, 0x00, 0x00, 0x01, 0x06, 0xAA, 0xBB, 0x00,
		0x00, 0x00, 0x01, 0x41, 0x9A,
	}

	nalus := SplitH264(data)
	if len(nalus) != 2 {
		t.Fatalf("expected 2 NAL units, got %d", len(nalus))
	}
	if len(nalus[0].Data) != 3 {
		t.Errorf("SEI length: got %d, want 3", len(nalus[0].Data))
	}
	if nalus[1].Type != H264NALSlice {
		t.Errorf("expected slice, got %d", nalus[1].Type)
	}
}

func TestSplitH264Short(t *testing.T) {
	t.Parallel()
	if got := SplitH264(nil); got != nil {
		t.Errorf("nil input: got %d units", len(got))
	}
	if got := SplitH264([]byte{0x00, 0x01}); got != nil {
		t.Errorf("short input: got %d units", len(got))
	}
}

func TestParseH264SPS(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name          string
		sps           []byte
		width, height int
		coded         int
		profile       byte
	}{
		{"720p high", sps720p, 1280, 720, 720, 100},
		{"256x192 main", []byte{
			0x67, 0x4d, 0x40, 0x1f, 0xb9, 0x08, 0x08, 0x0c,
			0xd8, 0x0b, 0x50, 0x10, 0x10, 0x14, 0x00, 0x00,
			0x0f, 0xa4, 0x00, 0x02, 0xee, 0x03, 0x81, 0x80,
			0x04, 0x93, 0xc0, 0x02, 0x49, 0xe8, 0xa0, 0xc0,
			0x3a, 0x8e, 0x18, 0xc9,
		}, 256, 192, 192, 77},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			info, err := ParseH264SPS(tt.sps)
			if err != nil {
				t.Fatalf("ParseH264SPS: %v", err)
			}
			if info.Width != tt.width || info.Height != tt.height {
				t.Errorf("size: got %dx%d, want %dx%d", info.Width, info.Height, tt.width, tt.height)
			}
			if info.CodedHeight != tt.coded {
				t.Errorf("coded height: got %d, want %d", info.CodedHeight, tt.coded)
			}
			if info.ProfileIDC != tt.profile {
				t.Errorf("profile: got %d, want %d", info.ProfileIDC, tt.profile)
			}
			if info.PixelFormat() != media.PixelFormatYUV420P {
				t.Errorf("pixel format: got %s", info.PixelFormat())
			}
		})
	}
}

func TestParseH264SPSErrors(t *testing.T) {
	t.Parallel()
	for _, in := range [][]byte{nil, {}, {0x67, 0x64, 0x00}, sps720p[:6]} {
		if _, err := ParseH264SPS(in); err == nil {
			t.Errorf("expected error for % x", in)
		}
	}
}

func TestH264CodecString(t *testing.T) {
	t.Parallel()
	info, err := ParseH264SPS(sps720p)
	if err != nil {
		t.Fatal(err)
	}
	if got := info.CodecString(); got != "avc1.64001F" {
		t.Errorf("codec string: got %q", got)
	}
}

func TestScanH264(t *testing.T) {
	t.Parallel()
	var au []byte
	for _, nal := range [][]byte{{0x09, 0xf0}, sps720p, pps720p, {0x06, 0x04, 0x01, 0xff, 0x80}, {0x65, 0x88, 0x84}} {
		au = append(au, 0x00, 0x00, 0x00, 0x01)
		au = append(au, nal...)
	}

	got := ScanH264(au)
	if !got.KeyFrame {
		t.Error("expected key frame")
	}
	if !bytes.Equal(got.SPS, sps720p) || !bytes.Equal(got.PPS, pps720p) {
		t.Error("parameter sets not captured")
	}
	if len(got.SEI) != 1 {
		t.Errorf("SEI count: got %d", len(got.SEI))
	}

	if ScanH264([]byte{0x00, 0x00, 0x01, 0x41, 0x9a, 0x00}).KeyFrame {
		t.Error("non-IDR slice reported as key frame")
	}
}

func TestH264VideoConfig(t *testing.T) {
	t.Parallel()
	cfg, err := H264VideoConfig(sps720p, pps720p)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.IsValidConfig() {
		t.Errorf("config not valid: %s", cfg)
	}
	if cfg.Codec != media.CodecH264 || cfg.NaturalSize != (media.Size{Width: 1280, Height: 720}) {
		t.Errorf("unexpected config: %s", cfg)
	}
	rec := cfg.ExtraData
	if len(rec) != 11+len(sps720p)+len(pps720p) || rec[0] != 1 || rec[1] != 0x64 || rec[3] != 0x1f {
		t.Errorf("bad AVC record: % x", rec)
	}

	again, _ := H264VideoConfig(sps720p, pps720p)
	if !cfg.Matches(again) {
		t.Error("configs from the same parameter sets should match")
	}
}

func TestUnescapeRBSP(t *testing.T) {
	t.Parallel()
	got := unescapeRBSP([]byte{0x00, 0x00, 0x03, 0x01, 0x00, 0x00, 0x03, 0x04})
	want := []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x03, 0x04}
	if !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
}
