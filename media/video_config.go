package media

import (
	"bytes"
	"fmt"
)

// VideoCodec identifies a compressed video format.
type VideoCodec int

// Supported video codecs.
const (
	UnknownVideoCodec VideoCodec = iota
	CodecH264
	CodecHEVC
)

func (c VideoCodec) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecHEVC:
		return "hevc"
	default:
		return "unknown"
	}
}

// PixelFormat is the layout of decoded pictures.
type PixelFormat int

// Pixel formats reported by the sequence parameter set parsers.
const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatGray
	PixelFormatYUV420P
	PixelFormatYUV422P
	PixelFormatYUV444P
	PixelFormatYUV420P10
	PixelFormatYUV422P10
	PixelFormatYUV444P10
)

var pixelFormatNames = map[PixelFormat]string{
	PixelFormatGray:      "gray",
	PixelFormatYUV420P:   "yuv420p",
	PixelFormatYUV422P:   "yuv422p",
	PixelFormatYUV444P:   "yuv444p",
	PixelFormatYUV420P10: "yuv420p10",
	PixelFormatYUV422P10: "yuv422p10",
	PixelFormatYUV444P10: "yuv444p10",
}

func (f PixelFormat) String() string {
	if name, ok := pixelFormatNames[f]; ok {
		return name
	}
	return "unknown"
}

// Size is a width and height in pixels.
type Size struct {
	Width  int
	Height int
}

// IsEmpty reports whether either dimension is not positive.
func (s Size) IsEmpty() bool { return s.Width <= 0 || s.Height <= 0 }

// Rect is a pixel rectangle.
type Rect struct {
	X, Y          int
	Width, Height int
}

// VideoDecoderConfig describes how to initialize a video decoder. Values are
// treated as immutable; use Clone before modifying a shared config.
type VideoDecoderConfig struct {
	Codec       VideoCodec
	Profile     int
	Format      PixelFormat
	CodedSize   Size
	VisibleRect Rect
	NaturalSize Size
	// ExtraData is the codec initialization record, e.g. an
	// AVCDecoderConfigurationRecord for H.264.
	ExtraData []byte
	Encrypted bool
}

// IsValidConfig reports whether c names a known codec, a defined pixel format
// and positive natural dimensions.
func (c *VideoDecoderConfig) IsValidConfig() bool {
	return c != nil &&
		c.Codec != UnknownVideoCodec &&
		c.Format != PixelFormatUnknown &&
		!c.NaturalSize.IsEmpty()
}

// Matches reports whether every field of c equals the corresponding field of
// other. Extra data is compared byte for byte.
func (c *VideoDecoderConfig) Matches(other *VideoDecoderConfig) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.Codec == other.Codec &&
		c.Profile == other.Profile &&
		c.Format == other.Format &&
		c.CodedSize == other.CodedSize &&
		c.VisibleRect == other.VisibleRect &&
		c.NaturalSize == other.NaturalSize &&
		bytes.Equal(c.ExtraData, other.ExtraData) &&
		c.Encrypted == other.Encrypted
}

// Clone returns a deep copy of c.
func (c *VideoDecoderConfig) Clone() *VideoDecoderConfig {
	if c == nil {
		return nil
	}
	out := *c
	if c.ExtraData != nil {
		out.ExtraData = append([]byte(nil), c.ExtraData...)
	}
	return &out
}

func (c *VideoDecoderConfig) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("codec: %s profile: %d format: %s coded size: [%d,%d] visible rect: [%d,%d,%d,%d] natural size: [%d,%d] extra data: %d bytes encryption: [%t]",
		c.Codec, c.Profile, c.Format,
		c.CodedSize.Width, c.CodedSize.Height,
		c.VisibleRect.X, c.VisibleRect.Y, c.VisibleRect.Width, c.VisibleRect.Height,
		c.NaturalSize.Width, c.NaturalSize.Height,
		len(c.ExtraData), c.Encrypted)
}
