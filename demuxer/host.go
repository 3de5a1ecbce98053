package demuxer

import (
	"time"

	"github.com/zsiec/ccx"

	"github.com/zsiec/esdemux/media"
)

// Host receives pipeline-level notifications from a Demuxer. Every field is
// optional and every call is made on the demuxer sequence.
type Host struct {
	// SetDuration is called at most once, after a successful Initialize.
	// The duration is media.InfiniteDuration for live or unbounded input.
	SetDuration func(d time.Duration)

	// OnDemuxerError is called at most once per Demuxer when demuxing stops
	// because of a fatal error. It is never called with media.StatusOK.
	OnDemuxerError func(status media.PipelineStatus)

	// OnCaption receives closed captions carried in the video stream.
	OnCaption func(frame *ccx.CaptionFrame)

	// OnSplice receives SCTE-35 splice points signaled in the program.
	OnSplice func(event *media.SpliceEvent)

	// OnBufferingChanged reports the presentation time up to which every
	// active stream has data queued.
	OnBufferingChanged func(bufferedEnd time.Duration)
}
