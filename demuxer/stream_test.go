package demuxer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/esdemux/internal/sequence"
	"github.com/zsiec/esdemux/media"
)

type fakeNotifier struct {
	capacity  int
	buffering int
}

func (n *fakeNotifier) notifyCapacityAvailable() { n.capacity++ }
func (n *fakeNotifier) notifyBufferingChanged()  { n.buffering++ }

func newTestSequence(t *testing.T) *sequence.Sequence {
	t.Helper()
	seq := sequence.New(t.Name(), nil)
	t.Cleanup(seq.Close)
	return seq
}

func newTestStream(t *testing.T, typ media.StreamType) (*Stream, *sequence.Sequence, *fakeNotifier) {
	t.Helper()
	seq := newTestSequence(t)
	n := &fakeNotifier{}
	track := TrackInfo{ID: 256, Type: typ, Duration: media.NoTimestamp}
	switch typ {
	case media.Audio:
		track.AudioConfig = testAudioConfig()
	case media.Video:
		track.VideoConfig = testVideoConfig()
	}
	return newStream(seq, n, track, nil), seq, n
}

// onSeq runs fn on seq and waits for it.
func onSeq(t *testing.T, seq *sequence.Sequence, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, seq.Run(ctx, fn))
}

func flush(t *testing.T, seq *sequence.Sequence) {
	t.Helper()
	onSeq(t, seq, func() {})
}

func testPacket(ts time.Duration, key bool) *Packet {
	return &Packet{
		Data:     []byte{0x00, 0x00, 0x01, 0x09},
		PTS:      ts,
		DTS:      ts,
		Duration: media.NoTimestamp,
		KeyFrame: key,
		Pos:      -1,
	}
}

func testVideoConfig() *media.VideoDecoderConfig {
	return &media.VideoDecoderConfig{
		Codec:       media.CodecH264,
		Profile:     100,
		Format:      media.PixelFormatYUV420P,
		CodedSize:   media.Size{Width: 1280, Height: 720},
		VisibleRect: media.Rect{Width: 1280, Height: 720},
		NaturalSize: media.Size{Width: 1280, Height: 720},
		ExtraData:   []byte{0x01, 0x64, 0x00, 0x1f},
	}
}

func testAudioConfig() *media.AudioDecoderConfig {
	return &media.AudioDecoderConfig{
		Codec:        media.CodecAAC,
		SampleFormat: media.SampleFormatPlanarF32,
		Channels:     2,
		SampleRate:   48000,
		ExtraData:    []byte{0x11, 0x90},
	}
}

// readResult collects completions of Stream.Read.
type readResult struct {
	ch chan *media.Buffer
}

func newReadResult() *readResult {
	return &readResult{ch: make(chan *media.Buffer, 8)}
}

func (r *readResult) cb(b *media.Buffer) { r.ch <- b }

func (r *readResult) wait(t *testing.T) *media.Buffer {
	t.Helper()
	select {
	case b := <-r.ch:
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("read did not complete")
		return nil
	}
}

func (r *readResult) empty(t *testing.T) {
	t.Helper()
	select {
	case b := <-r.ch:
		t.Fatalf("unexpected read completion: %s", b)
	default:
	}
}

func TestStreamOverlappingReadPanics(t *testing.T) {
	t.Parallel()
	s, seq, _ := newTestStream(t, media.Video)

	r := newReadResult()
	s.Read(r.cb)
	require.PanicsWithValue(t, "demuxer: overlapping reads are not supported", func() {
		s.Read(r.cb)
	})

	flush(t, seq)
	r.empty(t)
	onSeq(t, seq, func() { s.EnqueuePacket(testPacket(0, true)) })
	require.Equal(t, time.Duration(0), r.wait(t).Timestamp())

	// The slot is free again once the read has completed.
	require.NotPanics(t, func() { s.Read(r.cb) })
}

func TestStreamReadNeverCompletesSynchronously(t *testing.T) {
	t.Parallel()
	s, seq, _ := newTestStream(t, media.Video)
	onSeq(t, seq, func() { s.EnqueuePacket(testPacket(0, true)) })

	// Block the sequence so the posted read cannot run yet.
	release := make(chan struct{})
	require.True(t, seq.Post(func() { <-release }))

	completed := false
	s.Read(func(*media.Buffer) { completed = true })
	require.False(t, completed)

	close(release)
	flush(t, seq)
	require.True(t, completed)
}

func TestStreamPendingReadThenBuffered(t *testing.T) {
	t.Parallel()
	s, seq, _ := newTestStream(t, media.Video)

	r := newReadResult()
	s.Read(r.cb)
	flush(t, seq)
	r.empty(t)

	onSeq(t, seq, func() {
		s.EnqueuePacket(testPacket(0, true))
		s.EnqueuePacket(testPacket(time.Second, false))
		s.EnqueuePacket(testPacket(2*time.Second, false))
	})

	b := r.wait(t)
	require.Equal(t, time.Duration(0), b.Timestamp())
	require.True(t, b.IsKeyFrame())

	onSeq(t, seq, func() {
		assert.Equal(t, 2, s.queue.Len())
		assert.Equal(t, time.Second, s.queue.Pop().Timestamp())
		assert.Equal(t, 2*time.Second, s.queue.Pop().Timestamp())
	})
}

func TestStreamEndOfStream(t *testing.T) {
	t.Parallel()
	s, seq, _ := newTestStream(t, media.Audio)

	onSeq(t, seq, func() {
		s.EnqueuePacket(testPacket(0, true))
		s.SetEndOfStream()
	})

	r := newReadResult()
	s.Read(r.cb)
	require.False(t, r.wait(t).IsEOS(), "queued data is delivered before EOS")

	for i := 0; i < 3; i++ {
		s.Read(r.cb)
		require.True(t, r.wait(t).IsEOS())
	}

	require.PanicsWithValue(t, "demuxer: attempt to enqueue packet on a stream that has ended", func() {
		s.EnqueuePacket(testPacket(time.Second, true))
	})
	require.True(t, s.queue.IsEmpty())
}

func TestStreamEndOfStreamCompletesPendingRead(t *testing.T) {
	t.Parallel()
	s, seq, _ := newTestStream(t, media.Video)

	r := newReadResult()
	s.Read(r.cb)
	flush(t, seq)
	r.empty(t)

	onSeq(t, seq, s.SetEndOfStream)
	require.True(t, r.wait(t).IsEOS())
}

func TestStreamHasAvailableCapacity(t *testing.T) {
	t.Parallel()
	s, seq, _ := newTestStream(t, media.Video)

	r := newReadResult()
	onSeq(t, seq, func() {
		assert.True(t, s.HasAvailableCapacity(), "empty queue")

		// Fill to one second short of the threshold with no reader.
		for i := 0; i < 2; i++ {
			s.EnqueuePacket(testPacket(time.Duration(i)*time.Second, true))
		}
		assert.Equal(t, time.Second, s.queue.Duration())
		assert.True(t, s.HasAvailableCapacity())

		s.EnqueuePacket(testPacket(2*time.Second, true))
		assert.Equal(t, 2*time.Second, s.queue.Duration())
		assert.False(t, s.HasAvailableCapacity(), "idle consumer with two seconds queued")

		// A pending read with a non-empty queue is not starved.
		s.readCB = r.cb
		assert.False(t, s.HasAvailableCapacity())
		s.readCB = nil

		s.queue.Pop()
		assert.True(t, s.HasAvailableCapacity(), "below threshold after pop")
	})
}

func TestStreamStarvedReaderHasCapacity(t *testing.T) {
	t.Parallel()
	s, seq, _ := newTestStream(t, media.Video)

	onSeq(t, seq, func() {
		s.readCB = func(*media.Buffer) {}
		assert.True(t, s.HasAvailableCapacity())

		s.aborted = true
		// Aborted streams are never starved but an empty queue is still below
		// the threshold.
		assert.True(t, s.HasAvailableCapacity())
		s.readCB = nil
	})
}

func TestStreamNotifiesDemuxerOfCapacity(t *testing.T) {
	t.Parallel()
	s, seq, n := newTestStream(t, media.Video)

	onSeq(t, seq, func() {
		s.EnqueuePacket(testPacket(0, true))
		assert.Equal(t, 1, n.capacity)
		assert.Equal(t, 1, n.buffering)

		s.EnqueuePacket(testPacket(3*time.Second, true))
		assert.Equal(t, 1, n.capacity, "over threshold")

		s.SetEndOfStream()
		assert.Equal(t, 1, n.capacity, "ended streams do not ask for data")
	})
}

func TestStreamWaitingForKeyFrame(t *testing.T) {
	t.Parallel()
	s, seq, _ := newTestStream(t, media.Video)

	onSeq(t, seq, func() {
		s.SetWaitingForKeyFrame()
		for i := 0; i < 3; i++ {
			s.EnqueuePacket(testPacket(time.Duration(i)*time.Millisecond, false))
			assert.Equal(t, 0, s.queue.Len())
			assert.True(t, s.waitingForKeyFrame)
		}

		s.EnqueuePacket(testPacket(10*time.Millisecond, true))
		assert.Equal(t, 1, s.queue.Len())
		assert.False(t, s.waitingForKeyFrame)

		s.EnqueuePacket(testPacket(20*time.Millisecond, false))
		assert.Equal(t, 2, s.queue.Len())
	})
}

func TestStreamDropsPacketWithoutTimestamp(t *testing.T) {
	t.Parallel()
	s, seq, n := newTestStream(t, media.Video)

	onSeq(t, seq, func() {
		s.EnqueuePacket(testPacket(0, true))
		pos, dts, last := s.lastPacketPos, s.lastPacketDTS, s.lastTimestamp
		notified := n.buffering

		pkt := testPacket(media.NoTimestamp, true)
		pkt.Pos = 4096
		s.EnqueuePacket(pkt)

		assert.Equal(t, 1, s.queue.Len())
		assert.Equal(t, pos, s.lastPacketPos)
		assert.Equal(t, dts, s.lastPacketDTS)
		assert.Equal(t, last, s.lastTimestamp)
		assert.Equal(t, notified, n.buffering)
	})
}

func TestStreamTimestampFallsBackToDTS(t *testing.T) {
	t.Parallel()
	s, seq, _ := newTestStream(t, media.Video)

	onSeq(t, seq, func() {
		pkt := testPacket(media.NoTimestamp, true)
		pkt.DTS = 40 * time.Millisecond
		s.EnqueuePacket(pkt)
		assert.Equal(t, 40*time.Millisecond, s.queue.Pop().Timestamp())
	})
}

func TestStreamAbortCompletesPendingRead(t *testing.T) {
	t.Parallel()
	s, seq, _ := newTestStream(t, media.Video)

	r := newReadResult()
	s.Read(r.cb)
	flush(t, seq)

	onSeq(t, seq, func() {
		s.Abort()
		// Completed synchronously on the sequence.
		assert.Len(t, r.ch, 1)
		s.EnqueuePacket(testPacket(0, true))
	})
	require.True(t, r.wait(t).IsEOS())
	r.empty(t)

	// Reads keep failing until the stream is flushed.
	s.Read(r.cb)
	require.True(t, r.wait(t).IsEOS())

	onSeq(t, seq, s.FlushBuffers)
	s.Read(r.cb)
	flush(t, seq)
	r.empty(t)
	onSeq(t, seq, func() { s.EnqueuePacket(testPacket(time.Second, true)) })
	require.Equal(t, time.Second, r.wait(t).Timestamp())
}

func TestStreamFlushWithPendingReadPanics(t *testing.T) {
	t.Parallel()
	s, seq, _ := newTestStream(t, media.Video)

	s.Read(func(*media.Buffer) {})
	flush(t, seq)
	require.PanicsWithValue(t, "demuxer: flush with a pending read", s.FlushBuffers)
}

func TestStreamFlushClearsState(t *testing.T) {
	t.Parallel()
	s, seq, _ := newTestStream(t, media.Video)

	onSeq(t, seq, func() {
		s.EnqueuePacket(testPacket(0, true))
		s.SetEndOfStream()
		s.Abort()
		s.FlushBuffers()
		assert.True(t, s.queue.IsEmpty())
		assert.False(t, s.endOfStream)
		assert.False(t, s.aborted)
	})
}

func TestStreamStop(t *testing.T) {
	t.Parallel()
	s, seq, n := newTestStream(t, media.Audio)

	onSeq(t, seq, func() { s.EnqueuePacket(testPacket(0, true)) })
	onSeq(t, seq, func() { s.queue.Pop() })

	r := newReadResult()
	s.Read(r.cb)
	flush(t, seq)
	r.empty(t)

	onSeq(t, seq, s.Stop)
	require.True(t, r.wait(t).IsEOS())

	s.Read(r.cb)
	require.True(t, r.wait(t).IsEOS())

	onSeq(t, seq, func() {
		assert.Nil(t, s.track)
		assert.Nil(t, s.demuxer)
		assert.True(t, s.endOfStream)
	})
	// One notification for the first packet, one for the starved read, none
	// once stopped.
	require.Equal(t, 2, n.capacity)
}

func TestStreamConfigAccessors(t *testing.T) {
	t.Parallel()
	audio, _, _ := newTestStream(t, media.Audio)
	video, _, _ := newTestStream(t, media.Video)

	require.True(t, audio.AudioDecoderConfig().Matches(testAudioConfig()))
	require.True(t, video.VideoDecoderConfig().Matches(testVideoConfig()))
	require.Panics(t, func() { audio.VideoDecoderConfig() })
	require.Panics(t, func() { video.AudioDecoderConfig() })
}

func TestStreamConfigChangeSideData(t *testing.T) {
	t.Parallel()
	s, seq, _ := newTestStream(t, media.Video)

	onSeq(t, seq, func() {
		same := testPacket(0, true)
		same.VideoConfig = testVideoConfig()
		s.EnqueuePacket(same)

		changed := testPacket(time.Second, true)
		changed.VideoConfig = testVideoConfig()
		changed.VideoConfig.NaturalSize = media.Size{Width: 1920, Height: 1080}
		s.EnqueuePacket(changed)

		assert.Nil(t, s.queue.Pop().VideoConfigChange())
		got := s.queue.Pop().VideoConfigChange()
		assert.NotNil(t, got)
		assert.Equal(t, 1920, got.NaturalSize.Width)
		assert.NotSame(t, changed.VideoConfig, got)
	})

	// The accessor keeps returning the probed configuration.
	require.Equal(t, 1280, s.VideoDecoderConfig().NaturalSize.Width)
}

func TestStreamString(t *testing.T) {
	t.Parallel()
	s, seq, _ := newTestStream(t, media.Video)
	onSeq(t, seq, func() {
		s.EnqueuePacket(testPacket(time.Second, true))
		assert.Contains(t, s.String(), "type: video queued: 1")
		assert.Contains(t, s.String(), "last_dts: 1s")
	})
}

func TestReaderNextResumesAfterCancel(t *testing.T) {
	t.Parallel()
	s, seq, _ := newTestStream(t, media.Video)
	rd := s.NewReader()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := rd.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)

	onSeq(t, seq, func() { s.EnqueuePacket(testPacket(0, true)) })

	b, err := rd.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, time.Duration(0), b.Timestamp())

	onSeq(t, seq, s.SetEndOfStream)
	b, err = rd.Next(context.Background())
	require.NoError(t, err)
	require.True(t, b.IsEOS())
}

func TestReadAfterSequenceClosedYieldsEOS(t *testing.T) {
	t.Parallel()
	s, seq, _ := newTestStream(t, media.Video)
	seq.Close()
	<-seq.Done()

	r := newReadResult()
	s.Read(r.cb)
	require.True(t, r.wait(t).IsEOS())
}
