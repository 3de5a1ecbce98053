package demuxer

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/zsiec/esdemux/internal/sequence"
	"github.com/zsiec/esdemux/media"
)

// streamCapacity is the amount of encoded media each stream tries to keep
// queued ahead of its reader.
const streamCapacity = 2 * time.Second

// ReadFunc receives the result of a Stream.Read: a media buffer or the EOS
// marker. It runs on the demuxer sequence unless bound elsewhere with
// sequence.Bind.
type ReadFunc func(*media.Buffer)

// capacityNotifier is the demuxer as seen from a stream.
type capacityNotifier interface {
	notifyCapacityAvailable()
	notifyBufferingChanged()
}

// Stream buffers the packets of one elementary track and hands them out one
// Read at a time. Apart from Read, NewReader and the config accessors, every
// method must be called on the demuxer sequence.
type Stream struct {
	log     *slog.Logger
	seq     sequence.TaskRunner
	demuxer capacityNotifier
	track   *TrackInfo
	typ     media.StreamType

	// Configs as probed at creation; read-only, safe from any goroutine.
	audioConfig *media.AudioDecoderConfig
	videoConfig *media.VideoDecoderConfig
	// Latest configs seen in the packet flow, for change detection.
	currentAudio *media.AudioDecoderConfig
	currentVideo *media.VideoDecoderConfig
	duration     time.Duration

	queue  *BufferQueue
	readCB ReadFunc
	// readInFlight spans Read to completion and is the only state touched
	// from the caller's goroutine.
	readInFlight atomic.Bool

	endOfStream        bool
	aborted            bool
	waitingForKeyFrame bool

	lastPacketPos int64
	lastPacketDTS time.Duration
	lastTimestamp time.Duration
}

func newStream(seq sequence.TaskRunner, d capacityNotifier, track TrackInfo, log *slog.Logger) *Stream {
	if log == nil {
		log = slog.Default()
	}
	t := track
	return &Stream{
		log:           log.With("stream", track.Type.String(), "track", track.Index),
		seq:           seq,
		demuxer:       d,
		track:         &t,
		typ:           track.Type,
		audioConfig:   track.AudioConfig,
		videoConfig:   track.VideoConfig,
		currentAudio:  track.AudioConfig,
		currentVideo:  track.VideoConfig,
		duration:      track.Duration,
		queue:         NewBufferQueue(),
		lastPacketPos: -1,
		lastPacketDTS: media.NoTimestamp,
		lastTimestamp: media.NoTimestamp,
	}
}

// Type returns the kind of media the stream carries.
func (s *Stream) Type() media.StreamType { return s.typ }

// Duration returns the track duration, media.NoTimestamp if unknown.
func (s *Stream) Duration() time.Duration { return s.duration }

// AudioDecoderConfig returns the configuration probed when the stream was
// created. It panics on a non-audio stream.
func (s *Stream) AudioDecoderConfig() *media.AudioDecoderConfig {
	if s.typ != media.Audio {
		panic(fmt.Sprintf("demuxer: audio config requested from %s stream", s.typ))
	}
	return s.audioConfig
}

// VideoDecoderConfig returns the configuration probed when the stream was
// created. It panics on a non-video stream.
func (s *Stream) VideoDecoderConfig() *media.VideoDecoderConfig {
	if s.typ != media.Video {
		panic(fmt.Sprintf("demuxer: video config requested from %s stream", s.typ))
	}
	return s.videoConfig
}

// Read requests the next buffer. cb is always invoked asynchronously, exactly
// once, with either a media buffer or the EOS marker. Read may be called from
// any goroutine but panics if the previous read has not completed yet.
func (s *Stream) Read(cb ReadFunc) {
	if !s.readInFlight.CompareAndSwap(false, true) {
		panic("demuxer: overlapping reads are not supported")
	}
	if !s.seq.Post(func() { s.readTask(cb) }) {
		// The demuxer sequence is gone; nothing will ever be queued again.
		go func() {
			s.readInFlight.Store(false)
			cb(media.NewEOSBuffer())
		}()
	}
}

func (s *Stream) readTask(cb ReadFunc) {
	s.readCB = cb
	if s.track == nil || s.aborted {
		s.completeRead(media.NewEOSBuffer())
		return
	}
	s.SatisfyPendingRead()
}

func (s *Stream) completeRead(b *media.Buffer) {
	cb := s.readCB
	s.readCB = nil
	s.readInFlight.Store(false)
	cb(b)
}

// EnqueuePacket converts pkt into a buffer and queues it, satisfying a
// pending read if there is one. Packets without any timestamp, and non-key
// packets while waiting for a key frame, are dropped. Enqueueing after end of
// stream is a programming error and panics.
func (s *Stream) EnqueuePacket(pkt *Packet) {
	if s.endOfStream {
		panic("demuxer: attempt to enqueue packet on a stream that has ended")
	}

	timestamp := pkt.PTS
	if timestamp == media.NoTimestamp {
		timestamp = pkt.DTS
	}
	if timestamp == media.NoTimestamp {
		s.log.Debug("dropping packet without timestamp", "pos", pkt.Pos, "size", len(pkt.Data))
		return
	}

	if s.waitingForKeyFrame {
		if !pkt.KeyFrame {
			s.log.Debug("dropping non-keyframe", "pts", media.FormatTimestamp(timestamp))
			return
		}
		s.waitingForKeyFrame = false
	}

	buf := media.NewBuffer(pkt.Data, timestamp)
	buf.SetKeyFrame(pkt.KeyFrame)
	if pkt.Duration > 0 {
		buf.SetDuration(pkt.Duration)
	}
	s.applyConfigChange(pkt, buf)

	s.queue.Push(buf)

	s.lastPacketPos = pkt.Pos
	s.lastPacketDTS = pkt.DTS
	if s.lastPacketDTS == media.NoTimestamp {
		s.lastPacketDTS = pkt.PTS
	}
	s.lastTimestamp = timestamp

	if s.demuxer != nil {
		s.demuxer.notifyBufferingChanged()
	}
	s.SatisfyPendingRead()
}

func (s *Stream) applyConfigChange(pkt *Packet, buf *media.Buffer) {
	switch s.typ {
	case media.Audio:
		if pkt.AudioConfig != nil && !pkt.AudioConfig.Matches(s.currentAudio) {
			s.currentAudio = pkt.AudioConfig.Clone()
			buf.SetAudioConfigChange(s.currentAudio)
			s.log.Info("audio config changed", "config", s.currentAudio.String())
		}
	case media.Video:
		if pkt.VideoConfig != nil && !pkt.VideoConfig.Matches(s.currentVideo) {
			s.currentVideo = pkt.VideoConfig.Clone()
			buf.SetVideoConfigChange(s.currentVideo)
			s.log.Info("video config changed", "config", s.currentVideo.String())
		}
	}
}

// SatisfyPendingRead completes the pending read, if any, from the queue or
// with EOS, then tells the demuxer when the stream can take more data.
func (s *Stream) SatisfyPendingRead() {
	if s.aborted {
		if s.readCB != nil {
			s.completeRead(media.NewEOSBuffer())
		}
		return
	}

	if s.readCB != nil {
		if !s.queue.IsEmpty() {
			s.completeRead(s.queue.Pop())
		} else if s.endOfStream {
			s.completeRead(media.NewEOSBuffer())
		}
	}

	if !s.endOfStream && s.HasAvailableCapacity() && s.demuxer != nil {
		s.demuxer.notifyCapacityAvailable()
	}
}

// HasAvailableCapacity reports whether the demuxer should pull more data for
// this stream: either a reader is starved, or less than two seconds of media
// is queued.
func (s *Stream) HasAvailableCapacity() bool {
	starved := !s.aborted && s.readCB != nil && s.queue.IsEmpty()
	return starved || s.queue.Duration() < streamCapacity
}

// hasPendingRead reports whether a read is waiting on the sequence.
func (s *Stream) hasPendingRead() bool { return s.readCB != nil }

// SetEndOfStream marks the stream as ended. Queued buffers are still
// delivered; reads after that receive EOS.
func (s *Stream) SetEndOfStream() {
	s.endOfStream = true
	s.SatisfyPendingRead()
}

// SetWaitingForKeyFrame makes the stream drop packets until the next key
// frame, used after a flush for seeking.
func (s *Stream) SetWaitingForKeyFrame() {
	s.waitingForKeyFrame = true
}

// Stop detaches the stream from its track and demuxer, drops queued data and
// ends the stream. A pending read receives EOS.
func (s *Stream) Stop() {
	s.queue.Clear()
	s.track = nil
	s.demuxer = nil
	s.endOfStream = true

	if s.readCB != nil {
		s.completeRead(media.NewEOSBuffer())
	}
}

// FlushBuffers drops queued data and clears the end-of-stream and aborted
// flags. It panics if a read is pending.
func (s *Stream) FlushBuffers() {
	if s.readCB != nil {
		panic("demuxer: flush with a pending read")
	}
	s.queue.Clear()
	s.endOfStream = false
	s.aborted = false
}

// Abort completes any pending read with EOS right away and keeps answering
// reads with EOS until the next FlushBuffers.
func (s *Stream) Abort() {
	s.aborted = true
	s.SatisfyPendingRead()
}

func (s *Stream) String() string {
	return fmt.Sprintf("type: %s queued: %d bytes: %d buffered: %s end_of_stream: %t read_pending: %t aborted: %t waiting_for_key_frame: %t last_pos: %d last_dts: %s",
		s.typ, s.queue.Len(), s.queue.DataSize(), s.queue.Duration(),
		s.endOfStream, s.readCB != nil, s.aborted, s.waitingForKeyFrame,
		s.lastPacketPos, media.FormatTimestamp(s.lastPacketDTS))
}
