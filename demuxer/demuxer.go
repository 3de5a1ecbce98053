// Package demuxer pulls packets from a container parser and hands them to
// per-track Streams on demand. All state is confined to one sequence; reads
// are callback based and demuxing only runs while some stream wants data.
package demuxer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zsiec/esdemux/internal/sequence"
	"github.com/zsiec/esdemux/media"
	"github.com/zsiec/esdemux/source"
)

const tracerName = "github.com/zsiec/esdemux/demuxer"

// Option configures a Demuxer.
type Option func(*Demuxer)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(d *Demuxer) {
		if log != nil {
			d.log = log
		}
	}
}

// WithMediaTracksUpdated registers fn to receive the enabled tracks once
// initialization succeeds. fn runs on the demuxer sequence.
func WithMediaTracksUpdated(fn func(*media.Tracks)) Option {
	return func(d *Demuxer) { d.tracksUpdated = fn }
}

// WithTracer overrides the OpenTelemetry tracer used for lifecycle spans.
func WithTracer(t trace.Tracer) Option {
	return func(d *Demuxer) {
		if t != nil {
			d.tracer = t
		}
	}
}

// Demuxer orchestrates a ContainerParser and its Streams. Public methods may
// be called from any goroutine; they post work to the sequence passed to New.
type Demuxer struct {
	id            uuid.UUID
	log           *slog.Logger
	seq           sequence.TaskRunner
	src           source.Source
	parser        ContainerParser
	tracer        trace.Tracer
	tracksUpdated func(*media.Tracks)

	// ctx is cancelled by Stop to unblock parser I/O.
	ctx    context.Context
	cancel context.CancelFunc

	// Everything below is owned by the sequence.
	host       Host
	formatName string
	streams    []*Stream
	byTrackID  map[uint16]*Stream
	duration   time.Duration
	startTime  time.Duration
	bitrate    int

	bufferedEnd    time.Duration
	demuxScheduled bool
	ended          bool
	errorReported  bool
	initialized    bool
	stopped        bool
	parserClosed   bool
}

// New returns a Demuxer reading src through parser. Nothing happens until
// Initialize is called.
func New(seq sequence.TaskRunner, src source.Source, parser ContainerParser, opts ...Option) *Demuxer {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Demuxer{
		id:          uuid.New(),
		log:         slog.Default(),
		seq:         seq,
		src:         src,
		parser:      parser,
		tracer:      otel.Tracer(tracerName),
		ctx:         ctx,
		cancel:      cancel,
		byTrackID:   make(map[uint16]*Stream),
		duration:    media.NoTimestamp,
		startTime:   media.NoTimestamp,
		bufferedEnd: media.NoTimestamp,
	}
	for _, o := range opts {
		o(d)
	}
	d.log = d.log.With("component", "demuxer", "demuxer_id", d.id.String())
	return d
}

// ID returns the unique id used to tag this demuxer's logs and spans.
func (d *Demuxer) ID() uuid.UUID { return d.id }

// Initialize opens the container on the demuxer sequence, creates streams
// for the first supported audio and video tracks, and reports the outcome to
// done. On success host.SetDuration is called before done and demuxing
// starts right after.
func (d *Demuxer) Initialize(host Host, done func(media.PipelineStatus)) {
	_, span := d.tracer.Start(d.ctx, "demuxer.Initialize",
		trace.WithAttributes(attribute.String("demuxer.id", d.id.String())))
	finish := func(status media.PipelineStatus) {
		if !status.OK() {
			span.SetStatus(codes.Error, status.String())
		}
		span.End()
		done(status)
	}
	if !d.seq.Post(func() { d.initializeTask(host, finish) }) {
		go finish(media.PipelineErrorAbort)
	}
}

func (d *Demuxer) initializeTask(host Host, done func(media.PipelineStatus)) {
	if d.stopped || d.initialized || d.parserClosed {
		d.log.Warn("initialize rejected", "stopped", d.stopped, "initialized", d.initialized)
		done(media.PipelineErrorAbort)
		return
	}
	d.host = host

	info, err := d.parser.Open(d.ctx, d.src)
	if err != nil {
		d.log.Warn("failed to open container", "error", err)
		d.failInit(media.DemuxerErrorCouldNotOpen, done)
		return
	}
	d.formatName = info.FormatName

	var tracks []media.Track
	d.streams = make([]*Stream, len(info.Tracks))
	var haveAudio, haveVideo bool
	for i := range info.Tracks {
		t := info.Tracks[i]
		t.Index = i
		switch {
		case t.Type == media.Audio && !haveAudio && t.AudioConfig.IsValidConfig():
			haveAudio = true
		case t.Type == media.Video && !haveVideo && t.VideoConfig.IsValidConfig():
			haveVideo = true
		default:
			d.log.Debug("skipping track", "index", i, "id", t.ID, "type", t.Type.String(), "codec", t.Codec)
			continue
		}
		s := newStream(d.seq, d, t, d.log)
		d.streams[i] = s
		d.byTrackID[t.ID] = s
		tracks = append(tracks, media.Track{
			ID:       t.ID,
			Index:    i,
			Type:     t.Type,
			Codec:    t.Codec,
			Kind:     "main",
			Label:    t.Codec,
			Language: t.Language,
		})
	}
	if len(tracks) == 0 {
		d.log.Warn("no supported streams", "tracks", len(info.Tracks))
		d.failInit(media.DemuxerErrorNoSupportedStreams, done)
		return
	}

	d.duration = info.Duration
	if d.duration == media.NoTimestamp {
		for _, t := range info.Tracks {
			if t.Duration != media.NoTimestamp && t.Duration > d.duration {
				d.duration = t.Duration
			}
		}
	}
	if d.duration == media.NoTimestamp || d.src.IsStreaming() {
		d.duration = media.InfiniteDuration
	}

	d.startTime = info.StartTime
	if d.startTime == media.NoTimestamp {
		d.startTime = 0
	}

	d.bitrate = info.Bitrate
	if d.bitrate <= 0 && d.duration != media.InfiniteDuration && d.duration > 0 {
		if size, ok := d.src.Size(); ok {
			d.bitrate = int(math.Round(float64(size) * 8 / d.duration.Seconds()))
		}
	}

	d.initialized = true
	d.log.Info("demuxer initialized",
		"format", d.formatName,
		"streams", len(tracks),
		"duration", d.durationString(),
		"start_time", d.startTime,
		"bitrate", d.bitrate,
	)

	if d.host.SetDuration != nil {
		d.host.SetDuration(d.duration)
	}
	if d.tracksUpdated != nil {
		d.tracksUpdated(media.NewTracks(tracks))
	}
	done(media.StatusOK)
	d.scheduleDemux()
}

func (d *Demuxer) failInit(status media.PipelineStatus, done func(media.PipelineStatus)) {
	d.closeParser()
	d.streams = nil
	d.byTrackID = make(map[uint16]*Stream)
	d.ended = true
	done(status)
}

// PostDemuxTask schedules one demux iteration unless one is already pending.
func (d *Demuxer) PostDemuxTask() {
	d.seq.Post(d.scheduleDemux)
}

// NotifyCapacityAvailable tells the demuxer that a stream can accept more
// packets.
func (d *Demuxer) NotifyCapacityAvailable() {
	d.PostDemuxTask()
}

// NotifyBufferingChanged recomputes the buffered range on the sequence.
func (d *Demuxer) NotifyBufferingChanged() {
	d.seq.Post(d.notifyBufferingChanged)
}

func (d *Demuxer) notifyCapacityAvailable() { d.scheduleDemux() }

func (d *Demuxer) notifyBufferingChanged() {
	end := media.NoTimestamp
	for _, s := range d.streams {
		if s == nil || s.lastTimestamp == media.NoTimestamp {
			continue
		}
		if end == media.NoTimestamp || s.lastTimestamp < end {
			end = s.lastTimestamp
		}
	}
	if end == d.bufferedEnd {
		return
	}
	d.bufferedEnd = end
	if d.host.OnBufferingChanged != nil {
		d.host.OnBufferingChanged(end)
	}
}

func (d *Demuxer) scheduleDemux() {
	if d.demuxScheduled || d.ended || d.stopped || !d.initialized {
		return
	}
	if d.seq.Post(d.demuxTask) {
		d.demuxScheduled = true
	}
}

func (d *Demuxer) demuxTask() {
	d.demuxScheduled = false
	if d.ended || d.stopped {
		return
	}

	pkt, err := d.parser.NextPacket(d.ctx)
	switch {
	case errors.Is(err, io.EOF):
		d.streamHasEnded()
		return
	case err != nil:
		if d.ctx.Err() != nil {
			return
		}
		d.log.Error("demux read failed", "error", err)
		d.ended = true
		d.reportError(media.DemuxerErrorReadFailed)
		for _, s := range d.streams {
			if s != nil {
				s.Abort()
			}
		}
		return
	}

	if d.host.OnCaption != nil {
		for _, c := range pkt.Captions {
			d.host.OnCaption(c)
		}
	}
	if d.host.OnSplice != nil {
		for _, e := range pkt.Splices {
			d.host.OnSplice(e)
		}
	}

	if pkt.TrackIndex >= 0 && pkt.TrackIndex < len(d.streams) {
		// Aborted streams drop everything until the next seek flushes them.
		if s := d.streams[pkt.TrackIndex]; s != nil && !s.aborted {
			s.EnqueuePacket(pkt)
		}
	}

	if d.streamsHavePendingReads() {
		d.scheduleDemux()
	}
}

// streamsHavePendingReads reports whether any live stream is waiting on a
// read or still below its buffering target.
func (d *Demuxer) streamsHavePendingReads() bool {
	for _, s := range d.streams {
		if s == nil || s.endOfStream || s.aborted {
			continue
		}
		if s.hasPendingRead() || s.HasAvailableCapacity() {
			return true
		}
	}
	return false
}

func (d *Demuxer) streamHasEnded() {
	d.log.Debug("end of input")
	d.ended = true
	for _, s := range d.streams {
		if s != nil {
			s.SetEndOfStream()
		}
	}
}

func (d *Demuxer) reportError(status media.PipelineStatus) {
	if d.errorReported {
		return
	}
	d.errorReported = true
	if d.host.OnDemuxerError != nil {
		d.host.OnDemuxerError(status)
	}
}

// Seek repositions every stream near t. Pending reads complete with EOS,
// queued data is dropped, and each stream resumes at the next key frame.
// Streaming sources cannot seek and report media.PipelineErrorSeekFailed.
func (d *Demuxer) Seek(t time.Duration, done func(media.PipelineStatus)) {
	_, span := d.tracer.Start(d.ctx, "demuxer.Seek", trace.WithAttributes(
		attribute.String("demuxer.id", d.id.String()),
		attribute.Int64("seek.target_ms", t.Milliseconds()),
	))
	finish := func(status media.PipelineStatus) {
		if !status.OK() {
			span.SetStatus(codes.Error, status.String())
		}
		span.End()
		done(status)
	}
	if !d.seq.Post(func() { d.seekTask(t, finish) }) {
		go finish(media.PipelineErrorAbort)
	}
}

func (d *Demuxer) seekTask(t time.Duration, done func(media.PipelineStatus)) {
	if d.stopped || !d.initialized {
		done(media.PipelineErrorAbort)
		return
	}
	// Streams stay aborted after a fatal read error so reads keep getting EOS.
	if d.errorReported {
		d.log.Warn("seek after demux error", "target", t)
		done(media.PipelineErrorAbort)
		return
	}
	if d.src.IsStreaming() {
		d.log.Warn("seek on streaming source", "target", t)
		done(media.PipelineErrorSeekFailed)
		return
	}

	for _, s := range d.streams {
		if s != nil {
			s.Abort()
		}
	}

	if err := d.parser.Seek(d.ctx, d.startTime+t); err != nil {
		d.log.Warn("seek failed", "target", t, "error", err)
		done(media.PipelineErrorSeekFailed)
		return
	}

	for _, s := range d.streams {
		if s != nil {
			s.FlushBuffers()
			s.SetWaitingForKeyFrame()
		}
	}
	d.bufferedEnd = media.NoTimestamp
	d.ended = false
	d.log.Debug("seek complete", "target", t)
	done(media.StatusOK)
	d.scheduleDemux()
}

// Stop stops every stream, closes the parser and the source, then calls
// done. Blocking parser I/O is interrupted first.
func (d *Demuxer) Stop(done func()) {
	_, span := d.tracer.Start(context.Background(), "demuxer.Stop",
		trace.WithAttributes(attribute.String("demuxer.id", d.id.String())))
	finish := func() {
		span.End()
		if done != nil {
			done()
		}
	}

	d.cancel()
	if a, ok := d.src.(source.Aborter); ok {
		a.Abort()
	}
	if !d.seq.Post(func() { d.stopTask(finish) }) {
		go finish()
	}
}

func (d *Demuxer) stopTask(done func()) {
	if d.stopped {
		d.log.Warn("demuxer already stopped")
		done()
		return
	}
	for _, s := range d.streams {
		if s != nil {
			s.Stop()
		}
	}
	d.closeParser()
	if err := d.src.Close(); err != nil {
		d.log.Debug("source close failed", "error", err)
	}
	d.stopped = true
	d.log.Info("demuxer stopped")
	done()
}

func (d *Demuxer) closeParser() {
	if d.parserClosed {
		return
	}
	d.parserClosed = true
	if err := d.parser.Close(); err != nil {
		d.log.Debug("parser close failed", "error", err)
	}
}

// GetFirstStream returns the stream of the given type, or nil. Call it after
// Initialize has completed.
func (d *Demuxer) GetFirstStream(typ media.StreamType) *Stream {
	for _, s := range d.streams {
		if s != nil && s.Type() == typ {
			return s
		}
	}
	return nil
}

// GetAllStreams returns every enabled stream in track order.
func (d *Demuxer) GetAllStreams() []*Stream {
	var out []*Stream
	for _, s := range d.streams {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// StreamForTrack returns the stream for the container track id, or nil.
func (d *Demuxer) StreamForTrack(id uint16) *Stream {
	return d.byTrackID[id]
}

// Duration returns the media duration, media.InfiniteDuration for live or
// unbounded input.
func (d *Demuxer) Duration() time.Duration { return d.duration }

// StartTime returns the presentation time of the first frame.
func (d *Demuxer) StartTime() time.Duration { return d.startTime }

// Bitrate returns the overall bitrate in bits per second, 0 when unknown.
func (d *Demuxer) Bitrate() int { return d.bitrate }

// DisplayName names the container format for logs and diagnostics.
func (d *Demuxer) DisplayName() string {
	if d.formatName == "" {
		return "demuxer"
	}
	return fmt.Sprintf("%s demuxer", d.formatName)
}

func (d *Demuxer) durationString() string {
	if d.duration == media.InfiniteDuration {
		return "infinite"
	}
	return media.FormatTimestamp(d.duration)
}
