package media

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validVideoConfig() *VideoDecoderConfig {
	return &VideoDecoderConfig{
		Codec:       CodecH264,
		Profile:     100,
		Format:      PixelFormatYUV420P,
		CodedSize:   Size{Width: 1280, Height: 720},
		VisibleRect: Rect{Width: 1280, Height: 720},
		NaturalSize: Size{Width: 1280, Height: 720},
		ExtraData:   []byte{0x01, 0x64, 0x00, 0x1f, 0xff},
	}
}

func validAudioConfig() *AudioDecoderConfig {
	return &AudioDecoderConfig{
		Codec:        CodecAAC,
		SampleFormat: SampleFormatPlanarF32,
		Channels:     2,
		SampleRate:   48000,
		ExtraData:    []byte{0x11, 0x90},
	}
}

func TestVideoDecoderConfigMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(c *VideoDecoderConfig)
		want   bool
	}{
		{"identical", func(*VideoDecoderConfig) {}, true},
		{"codec", func(c *VideoDecoderConfig) { c.Codec = CodecHEVC }, false},
		{"format", func(c *VideoDecoderConfig) { c.Format = PixelFormatYUV444P }, false},
		{"coded size", func(c *VideoDecoderConfig) { c.CodedSize.Width = 1920 }, false},
		{"visible rect", func(c *VideoDecoderConfig) { c.VisibleRect.Y = 8 }, false},
		{"natural size", func(c *VideoDecoderConfig) { c.NaturalSize.Height = 1080 }, false},
		{"extra data one byte differs", func(c *VideoDecoderConfig) { c.ExtraData[2] = 0x01 }, false},
		{"extra data length", func(c *VideoDecoderConfig) { c.ExtraData = c.ExtraData[:4] }, false},
		{"encrypted", func(c *VideoDecoderConfig) { c.Encrypted = true }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := validVideoConfig()
			b := validVideoConfig()
			tt.mutate(b)
			require.Equal(t, tt.want, a.Matches(b))
			require.Equal(t, tt.want, b.Matches(a))
		})
	}
}

func TestVideoDecoderConfigIsValid(t *testing.T) {
	t.Parallel()

	require.True(t, validVideoConfig().IsValidConfig())

	c := validVideoConfig()
	c.Codec = UnknownVideoCodec
	require.False(t, c.IsValidConfig())

	c = validVideoConfig()
	c.Format = PixelFormatUnknown
	require.False(t, c.IsValidConfig())

	c = validVideoConfig()
	c.NaturalSize = Size{Width: 0, Height: 720}
	require.False(t, c.IsValidConfig())

	var nilConfig *VideoDecoderConfig
	require.False(t, nilConfig.IsValidConfig())
}

func TestVideoDecoderConfigCloneIsDeep(t *testing.T) {
	t.Parallel()

	a := validVideoConfig()
	b := a.Clone()
	require.True(t, a.Matches(b))

	b.ExtraData[0] = 0xAA
	require.False(t, a.Matches(b))
	require.Equal(t, byte(0x01), a.ExtraData[0])
}

func TestAudioDecoderConfigMatches(t *testing.T) {
	t.Parallel()

	a := validAudioConfig()
	b := validAudioConfig()
	require.True(t, a.Matches(b))

	b.ExtraData[1] = 0x88
	require.False(t, a.Matches(b), "equal-length extra data differing by one byte must not match")

	b = validAudioConfig()
	b.SampleRate = 44100
	require.False(t, a.Matches(b))

	b = validAudioConfig()
	b.ExtraData = nil
	require.False(t, a.Matches(b))

	var nilConfig *AudioDecoderConfig
	require.True(t, nilConfig.Matches(nil))
	require.False(t, nilConfig.Matches(a))
}

func TestAudioDecoderConfigIsValid(t *testing.T) {
	t.Parallel()

	require.True(t, validAudioConfig().IsValidConfig())

	c := validAudioConfig()
	c.SampleFormat = SampleFormatUnknown
	require.False(t, c.IsValidConfig())

	c = validAudioConfig()
	c.Channels = 0
	require.False(t, c.IsValidConfig())

	c = validAudioConfig()
	c.Codec = UnknownAudioCodec
	require.False(t, c.IsValidConfig())
}

func TestPipelineStatus(t *testing.T) {
	t.Parallel()

	require.True(t, StatusOK.OK())
	require.NoError(t, StatusOK.Err())

	err := DemuxerErrorReadFailed.Err()
	require.Error(t, err)
	require.Equal(t, "demuxer: read failed", err.Error())
	require.Equal(t, "unknown status", PipelineStatus(99).String())
}

func TestEOSBuffer(t *testing.T) {
	t.Parallel()

	eos := NewEOSBuffer()
	require.True(t, eos.IsEOS())
	require.Nil(t, eos.Data())
	require.Equal(t, "EOS", eos.String())

	b := NewBuffer([]byte{1, 2, 3}, 0)
	require.False(t, b.IsEOS())
	require.Equal(t, NoTimestamp, b.Duration())
}
