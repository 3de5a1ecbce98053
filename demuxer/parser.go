package demuxer

import (
	"context"
	"time"

	"github.com/zsiec/ccx"

	"github.com/zsiec/esdemux/media"
	"github.com/zsiec/esdemux/source"
)

// ContainerParser extracts packets from a container format. A Demuxer calls
// every method from its own sequence, never concurrently.
type ContainerParser interface {
	// Open probes src and describes the tracks it carries. It may block on I/O.
	Open(ctx context.Context, src source.Source) (*ContainerInfo, error)

	// NextPacket returns the next packet in container order, or io.EOF once
	// the input is exhausted.
	NextPacket(ctx context.Context) (*Packet, error)

	// Seek repositions the parser near t on the presentation timeline. The
	// first packets returned afterwards need not be key frames.
	Seek(ctx context.Context, t time.Duration) error

	// Close releases parser resources. It does not close the source.
	Close() error
}

// ContainerInfo is the result of a successful Open.
type ContainerInfo struct {
	FormatName string
	Tracks     []TrackInfo
	// Duration is media.NoTimestamp when the container does not know it.
	Duration time.Duration
	// StartTime is the first presentation timestamp, or media.NoTimestamp.
	StartTime time.Duration
	// Bitrate in bits per second, 0 when unknown.
	Bitrate int
}

// TrackInfo describes one elementary track. Index is the track's position in
// ContainerInfo.Tracks and the value Packet.TrackIndex refers to.
type TrackInfo struct {
	Index    int
	ID       uint16
	Type     media.StreamType
	Codec    string
	Language string
	// Duration of the track, media.NoTimestamp when unknown.
	Duration time.Duration

	AudioConfig *media.AudioDecoderConfig
	VideoConfig *media.VideoDecoderConfig
}

// Packet is one unit of encoded data read from a container.
type Packet struct {
	TrackIndex int
	Data       []byte
	// PTS and DTS are media.NoTimestamp when the container left them undefined.
	PTS      time.Duration
	DTS      time.Duration
	Duration time.Duration
	KeyFrame bool
	// Pos is the byte offset of the packet in the source, -1 when unknown.
	Pos int64

	// A new decoder configuration observed with this packet, if any.
	AudioConfig *media.AudioDecoderConfig
	VideoConfig *media.VideoDecoderConfig

	// Captions decoded from side data carried with this packet.
	Captions []*ccx.CaptionFrame

	// Splice points signaled since the previous packet.
	Splices []*media.SpliceEvent
}
