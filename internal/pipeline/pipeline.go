// Package pipeline runs a Demuxer end to end for the esdemux command: it
// initializes the demuxer, optionally seeks, drains every stream into a
// Sink and collects telemetry along the way.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/ccx"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/esdemux/demuxer"
	"github.com/zsiec/esdemux/internal/sequence"
	"github.com/zsiec/esdemux/media"
	"github.com/zsiec/esdemux/source"
)

// stopTimeout bounds how long Run waits for the demuxer to stop.
const stopTimeout = 5 * time.Second

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// WithSeek starts demuxing at t from the start of the media.
func WithSeek(t time.Duration) Option {
	return func(p *Pipeline) { p.seek = t }
}

// WithSinks sets the factory that creates one Sink per stream. By default
// buffers are counted and dropped.
func WithSinks(f SinkFactory) Option {
	return func(p *Pipeline) { p.newSink = f }
}

// WithStatsInterval logs a Snapshot at this period while running.
func WithStatsInterval(d time.Duration) Option {
	return func(p *Pipeline) { p.statsInterval = d }
}

// WithCaptionHandler receives every caption frame. Handlers run in order on
// a pipeline event sequence, never on the demuxer's, and have all run by the
// time Run returns.
func WithCaptionHandler(fn func(*ccx.CaptionFrame)) Option {
	return func(p *Pipeline) { p.onCaption = fn }
}

// WithSpliceHandler receives every splice event. It runs on the same event
// sequence as the caption handler.
func WithSpliceHandler(fn func(*media.SpliceEvent)) Option {
	return func(p *Pipeline) { p.onSplice = fn }
}

// WithDemuxerOptions passes options through to demuxer.New.
func WithDemuxerOptions(opts ...demuxer.Option) Option {
	return func(p *Pipeline) { p.demuxerOpts = append(p.demuxerOpts, opts...) }
}

// Pipeline bridges a source, a container parser and per-stream sinks.
type Pipeline struct {
	log           *slog.Logger
	src           source.Source
	parser        demuxer.ContainerParser
	seek          time.Duration
	newSink       SinkFactory
	statsInterval time.Duration
	onCaption     func(*ccx.CaptionFrame)
	onSplice      func(*media.SpliceEvent)
	demuxerOpts   []demuxer.Option

	demuxer *demuxer.Demuxer
	events  *sequence.Sequence
	start   time.Time
	errs    chan media.PipelineStatus

	duration    atomic.Int64
	bufferedEnd atomic.Int64
	captions    atomic.Int64
	splices     atomic.Int64

	mu      sync.Mutex
	streams []*streamCounters
}

// New returns a Pipeline that demuxes src with parser. Nothing is read until
// Run.
func New(src source.Source, parser demuxer.ContainerParser, opts ...Option) *Pipeline {
	p := &Pipeline{
		log:    slog.Default(),
		src:    src,
		parser: parser,
		errs:   make(chan media.PipelineStatus, 1),
		start:  time.Now(),
	}
	for _, o := range opts {
		o(p)
	}
	p.log = p.log.With("component", "pipeline")
	p.duration.Store(int64(media.NoTimestamp))
	p.bufferedEnd.Store(int64(media.NoTimestamp))
	return p
}

// Run initializes the demuxer and drains every stream until end of input,
// a demuxer error or cancellation of ctx. Cancellation is not an error. The
// demuxer is stopped, which closes the source, before Run returns.
func (p *Pipeline) Run(ctx context.Context) error {
	seq := sequence.New("demuxer", p.log)
	defer seq.Close()

	// Closed after the demuxer stops, then drained so no handler outlives Run.
	p.events = sequence.New("pipeline-events", p.log)
	defer func() {
		p.events.Close()
		<-p.events.Done()
	}()

	opts := append([]demuxer.Option{demuxer.WithLogger(p.log)}, p.demuxerOpts...)
	p.demuxer = demuxer.New(seq, p.src, p.parser, opts...)
	defer p.stop()

	status, err := p.await(ctx, func(done func(media.PipelineStatus)) {
		p.demuxer.Initialize(p.host(), done)
	})
	if err != nil {
		return nil
	}
	if !status.OK() {
		return fmt.Errorf("pipeline: initialize: %w", status.Err())
	}

	if p.seek > 0 {
		status, err := p.await(ctx, func(done func(media.PipelineStatus)) {
			p.demuxer.Seek(p.seek, done)
		})
		if err != nil {
			return nil
		}
		if !status.OK() {
			return fmt.Errorf("pipeline: seek to %s: %w", p.seek, status.Err())
		}
	}

	if p.statsInterval > 0 {
		statsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go p.logStats(statsCtx)
	}

	if err := p.drain(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			p.log.Info("pipeline cancelled")
			return nil
		}
		return err
	}

	select {
	case status := <-p.errs:
		return fmt.Errorf("pipeline: demux: %w", status.Err())
	default:
	}
	p.log.Info("pipeline finished", "stats", p.Snapshot().String())
	return nil
}

// await runs an asynchronous demuxer call and waits for its status.
func (p *Pipeline) await(ctx context.Context, call func(done func(media.PipelineStatus))) (media.PipelineStatus, error) {
	ch := make(chan media.PipelineStatus, 1)
	call(func(s media.PipelineStatus) { ch <- s })
	select {
	case s := <-ch:
		return s, nil
	case <-ctx.Done():
		return media.PipelineErrorAbort, ctx.Err()
	}
}

func (p *Pipeline) drain(ctx context.Context) error {
	streams := p.demuxer.GetAllStreams()
	sinks := make([]Sink, 0, len(streams))
	for _, s := range streams {
		sink, err := p.sinkFor(s)
		if err != nil {
			for _, created := range sinks {
				created.Close()
			}
			return err
		}
		sinks = append(sinks, sink)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range streams {
		sink := sinks[i]
		c := p.addCounters(s)
		g.Go(func() error {
			defer func() {
				if err := sink.Close(); err != nil {
					p.log.Warn("closing sink failed", "stream", s.Type().String(), "error", err)
				}
			}()
			r := s.NewReader()
			for {
				b, err := r.Next(gctx)
				if err != nil {
					return err
				}
				if b.IsEOS() {
					p.log.Debug("end of stream", "stream", s.Type().String(), "buffers", c.buffers.Load())
					return nil
				}
				c.observe(b)
				if err := sink.WriteBuffer(b); err != nil {
					return fmt.Errorf("pipeline: %s sink: %w", s.Type(), err)
				}
			}
		})
	}
	return g.Wait()
}

func (p *Pipeline) sinkFor(s *demuxer.Stream) (Sink, error) {
	if p.newSink == nil {
		return discard{}, nil
	}
	sink, err := p.newSink(s)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %s sink: %w", s.Type(), err)
	}
	return sink, nil
}

func (p *Pipeline) stop() {
	done := make(chan struct{})
	p.demuxer.Stop(func() { close(done) })
	select {
	case <-done:
	case <-time.After(stopTimeout):
		p.log.Warn("demuxer did not stop in time")
	}
}

func (p *Pipeline) host() demuxer.Host {
	var onCaption func(*ccx.CaptionFrame)
	if p.onCaption != nil {
		onCaption = sequence.Bind(p.events, p.onCaption)
	}
	var onSplice func(*media.SpliceEvent)
	if p.onSplice != nil {
		onSplice = sequence.Bind(p.events, p.onSplice)
	}
	return demuxer.Host{
		SetDuration: func(d time.Duration) {
			p.duration.Store(int64(d))
		},
		OnDemuxerError: func(s media.PipelineStatus) {
			p.log.Error("demuxer error", "status", s.String())
			select {
			case p.errs <- s:
			default:
			}
		},
		OnCaption: func(f *ccx.CaptionFrame) {
			p.captions.Add(1)
			p.log.Debug("caption", "channel", f.Channel, "pts_us", f.PTS, "text", f.Text)
			if onCaption != nil {
				onCaption(f)
			}
		},
		OnSplice: func(e *media.SpliceEvent) {
			p.splices.Add(1)
			p.log.Info("splice", "event", e.String())
			if onSplice != nil {
				onSplice(e)
			}
		},
		OnBufferingChanged: func(end time.Duration) {
			p.bufferedEnd.Store(int64(end))
		},
	}
}

func (p *Pipeline) logStats(ctx context.Context) {
	t := time.NewTicker(p.statsInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.log.Info("pipeline stats", "stats", p.Snapshot().String())
		}
	}
}
