package pipeline

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/zsiec/esdemux/demuxer"
	"github.com/zsiec/esdemux/media"
	"github.com/zsiec/esdemux/source"
)

type streamCounters struct {
	typ       media.StreamType
	codec     string
	buffers   atomic.Int64
	bytes     atomic.Int64
	keyFrames atomic.Int64
	lastTS    atomic.Int64
}

func (c *streamCounters) observe(b *media.Buffer) {
	c.buffers.Add(1)
	c.bytes.Add(int64(len(b.Data())))
	if b.IsKeyFrame() {
		c.keyFrames.Add(1)
	}
	c.lastTS.Store(int64(b.Timestamp()))
}

func (p *Pipeline) addCounters(s *demuxer.Stream) *streamCounters {
	c := &streamCounters{typ: s.Type()}
	switch {
	case s.VideoDecoderConfig() != nil:
		c.codec = s.VideoDecoderConfig().Codec.String()
	case s.AudioDecoderConfig() != nil:
		c.codec = s.AudioDecoderConfig().Codec.String()
	}
	c.lastTS.Store(int64(media.NoTimestamp))
	p.mu.Lock()
	p.streams = append(p.streams, c)
	p.mu.Unlock()
	return c
}

// StreamStats counts what one stream delivered.
type StreamStats struct {
	Type          media.StreamType
	Codec         string
	Buffers       int64
	Bytes         int64
	KeyFrames     int64
	LastTimestamp time.Duration
}

// Snapshot is a point-in-time view of a running pipeline.
type Snapshot struct {
	Uptime      time.Duration
	Duration    time.Duration
	BufferedEnd time.Duration
	Captions    int64
	Splices     int64
	Streams     []StreamStats
	// Source is set for live network sources.
	Source *source.Stats
}

// Snapshot returns the current counters. It is safe to call at any time.
func (p *Pipeline) Snapshot() Snapshot {
	s := Snapshot{
		Duration:    time.Duration(p.duration.Load()),
		BufferedEnd: time.Duration(p.bufferedEnd.Load()),
		Captions:    p.captions.Load(),
		Splices:     p.splices.Load(),
		Uptime:      time.Since(p.start),
	}
	p.mu.Lock()
	for _, c := range p.streams {
		s.Streams = append(s.Streams, StreamStats{
			Type:          c.typ,
			Codec:         c.codec,
			Buffers:       c.buffers.Load(),
			Bytes:         c.bytes.Load(),
			KeyFrames:     c.keyFrames.Load(),
			LastTimestamp: time.Duration(c.lastTS.Load()),
		})
	}
	p.mu.Unlock()
	if st, ok := p.src.(interface{ Stats() source.Stats }); ok {
		stats := st.Stats()
		s.Source = &stats
	}
	return s
}

// Stream returns the stats of the first stream of typ.
func (s Snapshot) Stream(typ media.StreamType) (StreamStats, bool) {
	for _, st := range s.Streams {
		if st.Type == typ {
			return st, true
		}
	}
	return StreamStats{}, false
}

func (s Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "uptime: %s duration: %s buffered_end: %s captions: %d splices: %d",
		s.Uptime.Truncate(time.Millisecond), media.FormatTimestamp(s.Duration),
		media.FormatTimestamp(s.BufferedEnd), s.Captions, s.Splices)
	for _, st := range s.Streams {
		fmt.Fprintf(&b, " %s(%s): buffers=%d bytes=%d key_frames=%d last=%s",
			st.Type, st.Codec, st.Buffers, st.Bytes, st.KeyFrames, media.FormatTimestamp(st.LastTimestamp))
	}
	if s.Source != nil {
		fmt.Fprintf(&b, " source: bytes=%d reads=%d remote=%s",
			s.Source.BytesReceived, s.Source.ReadCount, s.Source.RemoteAddr)
	}
	return b.String()
}
