package media

import (
	"bytes"
	"fmt"
	"time"
)

// AudioCodec identifies a compressed audio format.
type AudioCodec int

// Supported audio codecs.
const (
	UnknownAudioCodec AudioCodec = iota
	CodecAAC
)

func (c AudioCodec) String() string {
	if c == CodecAAC {
		return "aac"
	}
	return "unknown"
}

// SampleFormat is the layout of decoded samples.
type SampleFormat int

// Sample formats.
const (
	SampleFormatUnknown SampleFormat = iota
	SampleFormatS16
	SampleFormatS32
	SampleFormatF32
	SampleFormatPlanarF32
)

func (f SampleFormat) String() string {
	switch f {
	case SampleFormatS16:
		return "s16"
	case SampleFormatS32:
		return "s32"
	case SampleFormatF32:
		return "f32"
	case SampleFormatPlanarF32:
		return "fltp"
	default:
		return "unknown"
	}
}

// AudioDecoderConfig describes how to initialize an audio decoder.
type AudioDecoderConfig struct {
	Codec        AudioCodec
	SampleFormat SampleFormat
	Channels     int
	SampleRate   int
	// ExtraData is the codec initialization record, e.g. the
	// AudioSpecificConfig for AAC.
	ExtraData []byte
	Encrypted bool
	// SeekPreroll is the amount of audio a decoder needs before output is
	// valid after a seek.
	SeekPreroll time.Duration
}

// IsValidConfig reports whether c names a known codec, a defined sample
// format and a positive channel count and sample rate.
func (c *AudioDecoderConfig) IsValidConfig() bool {
	return c != nil &&
		c.Codec != UnknownAudioCodec &&
		c.SampleFormat != SampleFormatUnknown &&
		c.Channels > 0 &&
		c.SampleRate > 0 &&
		c.SeekPreroll >= 0
}

// Matches reports whether every field of c equals the corresponding field of
// other. Extra data is compared byte for byte.
func (c *AudioDecoderConfig) Matches(other *AudioDecoderConfig) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.Codec == other.Codec &&
		c.SampleFormat == other.SampleFormat &&
		c.Channels == other.Channels &&
		c.SampleRate == other.SampleRate &&
		bytes.Equal(c.ExtraData, other.ExtraData) &&
		c.Encrypted == other.Encrypted &&
		c.SeekPreroll == other.SeekPreroll
}

// Clone returns a deep copy of c.
func (c *AudioDecoderConfig) Clone() *AudioDecoderConfig {
	if c == nil {
		return nil
	}
	out := *c
	if c.ExtraData != nil {
		out.ExtraData = append([]byte(nil), c.ExtraData...)
	}
	return &out
}

func (c *AudioDecoderConfig) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("codec: %s sample format: %s channels: %d sample rate: %d extra data: %d bytes encryption: [%t] seek preroll: %s",
		c.Codec, c.SampleFormat, c.Channels, c.SampleRate, len(c.ExtraData), c.Encrypted, c.SeekPreroll)
}
