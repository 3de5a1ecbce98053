// Package media defines the value types that flow from the demuxer to its
// consumers: timestamped buffers, decoder configurations, track descriptions
// and pipeline status codes.
package media

import (
	"fmt"
	"math"
	"time"
)

const (
	// NoTimestamp marks an undefined presentation or decode time.
	NoTimestamp = time.Duration(math.MinInt64)
	// InfiniteDuration is the duration of live or unbounded media.
	InfiniteDuration = time.Duration(math.MaxInt64)
)

// StreamType identifies the kind of elementary stream.
type StreamType int

// Elementary stream kinds.
const (
	Unknown StreamType = iota
	Audio
	Video
)

func (t StreamType) String() string {
	switch t {
	case Audio:
		return "audio"
	case Video:
		return "video"
	default:
		return "unknown"
	}
}

// Buffer is one unit of encoded data delivered to a stream reader, or the
// end-of-stream marker. Buffers are immutable once handed to a reader.
type Buffer struct {
	data      []byte
	timestamp time.Duration
	duration  time.Duration
	keyFrame  bool
	eos       bool

	audioConfig *AudioDecoderConfig
	videoConfig *VideoDecoderConfig
}

// NewBuffer wraps data and its presentation timestamp. The data slice is
// retained, not copied.
func NewBuffer(data []byte, timestamp time.Duration) *Buffer {
	return &Buffer{data: data, timestamp: timestamp, duration: NoTimestamp}
}

// NewEOSBuffer returns the end-of-stream marker. It carries no payload.
func NewEOSBuffer() *Buffer {
	return &Buffer{eos: true, timestamp: NoTimestamp, duration: NoTimestamp}
}

// IsEOS reports whether b is the end-of-stream marker.
func (b *Buffer) IsEOS() bool { return b.eos }

// Data returns the encoded payload. It is nil for the EOS marker.
func (b *Buffer) Data() []byte { return b.data }

// Timestamp returns the presentation timestamp.
func (b *Buffer) Timestamp() time.Duration { return b.timestamp }

// Duration returns the media duration of the buffer, or NoTimestamp if the
// container did not provide one.
func (b *Buffer) Duration() time.Duration { return b.duration }

// IsKeyFrame reports whether the buffer can be decoded independently.
func (b *Buffer) IsKeyFrame() bool { return b.keyFrame }

// AudioConfigChange returns the audio decoder configuration that takes
// effect with this buffer, or nil when the configuration is unchanged.
func (b *Buffer) AudioConfigChange() *AudioDecoderConfig { return b.audioConfig }

// VideoConfigChange returns the video decoder configuration that takes
// effect with this buffer, or nil when the configuration is unchanged.
func (b *Buffer) VideoConfigChange() *VideoDecoderConfig { return b.videoConfig }

// SetDuration records the media duration of a buffer that has not yet been
// handed to a reader.
func (b *Buffer) SetDuration(d time.Duration) { b.duration = d }

// SetKeyFrame marks a buffer that has not yet been handed to a reader.
func (b *Buffer) SetKeyFrame(key bool) { b.keyFrame = key }

// SetAudioConfigChange attaches a new audio configuration as side data.
func (b *Buffer) SetAudioConfigChange(c *AudioDecoderConfig) { b.audioConfig = c }

// SetVideoConfigChange attaches a new video configuration as side data.
func (b *Buffer) SetVideoConfigChange(c *VideoDecoderConfig) { b.videoConfig = c }

func (b *Buffer) String() string {
	if b.eos {
		return "EOS"
	}
	return fmt.Sprintf("timestamp=%s duration=%s size=%d key=%t",
		FormatTimestamp(b.timestamp), FormatTimestamp(b.duration), len(b.data), b.keyFrame)
}

// FormatTimestamp renders t for logs, printing "none" for NoTimestamp.
func FormatTimestamp(t time.Duration) string {
	if t == NoTimestamp {
		return "none"
	}
	return t.String()
}
