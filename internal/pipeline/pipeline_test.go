package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zsiec/esdemux/container"
	"github.com/zsiec/esdemux/demuxer"
	"github.com/zsiec/esdemux/internal/tsgen"
	"github.com/zsiec/esdemux/media"
	"github.com/zsiec/esdemux/source"
)

func generate(t *testing.T, cfg tsgen.Config) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := tsgen.Generate(&buf, cfg); err != nil {
		t.Fatalf("generate: %v", err)
	}
	return buf.Bytes()
}

func run(t *testing.T, src source.Source, opts ...Option) (*Pipeline, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := New(src, container.NewMPEGTS(nil), opts...)
	return p, p.Run(ctx)
}

func TestRunWritesElementaryStreams(t *testing.T) {
	t.Parallel()
	data := generate(t, tsgen.Config{
		Duration:       2 * time.Second,
		SpliceInterval: 500 * time.Millisecond,
		BreakDuration:  30 * time.Second,
		Captions:       []string{"HELLO"},
	})
	dir := t.TempDir()

	var (
		mu      sync.Mutex
		splices []*media.SpliceEvent
	)
	p, err := run(t, source.FromBytes(data),
		WithSinks(FileSinks(dir)),
		WithSpliceHandler(func(e *media.SpliceEvent) {
			mu.Lock()
			splices = append(splices, e)
			mu.Unlock()
		}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	audio, err := os.ReadFile(filepath.Join(dir, "audio.aac"))
	if err != nil {
		t.Fatal(err)
	}
	if len(audio) != 94*11 {
		t.Errorf("audio.aac: got %d bytes, want %d", len(audio), 94*11)
	}
	video, err := os.ReadFile(filepath.Join(dir, "video.h264"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(video, []byte{0, 0, 0, 1, 0x09}) {
		t.Errorf("video.h264 does not start with an access unit delimiter: % x", video[:min(8, len(video))])
	}

	snap := p.Snapshot()
	vs, ok := snap.Stream(media.Video)
	if !ok {
		t.Fatal("no video stats")
	}
	if vs.Buffers != 60 || vs.KeyFrames != 2 || vs.Codec != "h264" {
		t.Errorf("video stats: %+v", vs)
	}
	if vs.Bytes != int64(len(video)) {
		t.Errorf("video bytes: got %d, file has %d", vs.Bytes, len(video))
	}
	as, _ := snap.Stream(media.Audio)
	if as.Buffers != 94 || as.Codec != "aac" {
		t.Errorf("audio stats: %+v", as)
	}
	if snap.Duration < 1900*time.Millisecond || snap.Duration > 2*time.Second {
		t.Errorf("duration: got %s", snap.Duration)
	}
	if snap.Source != nil {
		t.Errorf("memory source should not report network stats")
	}

	if snap.Splices != 3 {
		t.Errorf("splices: got %d, want 3", snap.Splices)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(splices) != 3 {
		t.Fatalf("splice handler: got %d events, want 3", len(splices))
	}
	for i, e := range splices {
		if e.EventID != uint32(i+1) || !e.OutOfNetwork || e.Duration != 30*time.Second {
			t.Errorf("splice %d: %s", i, e)
		}
	}
	t.Logf("captions decoded: %d", snap.Captions)
}

func TestRunHandlersFinishBeforeReturn(t *testing.T) {
	t.Parallel()
	data := generate(t, tsgen.Config{
		Duration:       2 * time.Second,
		SpliceInterval: 500 * time.Millisecond,
		BreakDuration:  30 * time.Second,
	})

	// A slow handler must neither stall demuxing nor be cut off by Run
	// returning.
	var ids []uint32
	_, err := run(t, source.FromBytes(data),
		WithSpliceHandler(func(e *media.SpliceEvent) {
			time.Sleep(20 * time.Millisecond)
			ids = append(ids, e.EventID)
		}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := []uint32{1, 2, 3}; !slices.Equal(ids, want) {
		t.Errorf("splice handler order: got %v, want %v", ids, want)
	}
}

func TestRunSeek(t *testing.T) {
	t.Parallel()
	data := generate(t, tsgen.Config{Duration: 3 * time.Second})

	var video []*media.Buffer
	sinks := func(s *demuxer.Stream) (Sink, error) {
		if s.Type() != media.Video {
			return discard{}, nil
		}
		return FuncSink(func(b *media.Buffer) error {
			video = append(video, b)
			return nil
		}), nil
	}
	if _, err := run(t, source.FromBytes(data), WithSinks(sinks), WithSeek(time.Second)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(video) != 60 {
		t.Fatalf("got %d video buffers after seek, want 60", len(video))
	}
	if got := video[0].Timestamp(); got != 11*time.Second || !video[0].IsKeyFrame() {
		t.Errorf("first buffer after seek: %s", video[0])
	}
}

func TestRunStreamingSource(t *testing.T) {
	t.Parallel()
	data := generate(t, tsgen.Config{Duration: time.Second})
	p, err := run(t, source.NewStream(io.NopCloser(bytes.NewReader(data))))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap := p.Snapshot()
	if snap.Duration != media.InfiniteDuration {
		t.Errorf("duration: got %s, want infinite", snap.Duration)
	}
	if snap.Source == nil || snap.Source.BytesReceived != int64(len(data)) {
		t.Errorf("source stats: %+v", snap.Source)
	}
	if vs, _ := snap.Stream(media.Video); vs.Buffers != 30 {
		t.Errorf("video buffers: got %d, want 30", vs.Buffers)
	}
	if !strings.Contains(snap.String(), "source: bytes=") {
		t.Errorf("snapshot string: %s", snap)
	}
}

func TestRunSeekOnStreamingSourceFails(t *testing.T) {
	t.Parallel()
	data := generate(t, tsgen.Config{Duration: time.Second})
	_, err := run(t, source.NewStream(io.NopCloser(bytes.NewReader(data))), WithSeek(time.Second))

	var se media.StatusError
	if !errors.As(err, &se) || se.Status != media.PipelineErrorSeekFailed {
		t.Errorf("got %v, want seek failure", err)
	}
}

func TestRunInvalidInput(t *testing.T) {
	t.Parallel()
	_, err := run(t, source.FromBytes(bytes.Repeat([]byte{0x47, 0x1F, 0xFF, 0x10}, 47*20)))

	var se media.StatusError
	if !errors.As(err, &se) || se.Status != media.DemuxerErrorCouldNotOpen {
		t.Errorf("got %v, want could not open", err)
	}
}

func TestRunSinkError(t *testing.T) {
	t.Parallel()
	data := generate(t, tsgen.Config{Duration: time.Second})
	boom := errors.New("boom")

	_, err := run(t, source.FromBytes(data), WithSinks(func(s *demuxer.Stream) (Sink, error) {
		return FuncSink(func(*media.Buffer) error { return boom }), nil
	}))
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want sink error", err)
	}

	_, err = run(t, source.FromBytes(data), WithSinks(func(s *demuxer.Stream) (Sink, error) {
		return nil, boom
	}))
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want factory error", err)
	}
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()
	data := generate(t, tsgen.Config{Duration: 2 * time.Second})
	pr, pw := io.Pipe()
	go func() {
		// Never closed: the pipeline has to stop on cancellation.
		pw.Write(data)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var once sync.Once
	stopped := make(chan struct{})
	p := New(source.NewStream(pr), container.NewMPEGTS(nil),
		WithSinks(func(s *demuxer.Stream) (Sink, error) {
			return FuncSink(func(*media.Buffer) error {
				once.Do(cancel)
				return nil
			}), nil
		}))

	go func() {
		defer close(stopped)
		if err := p.Run(ctx); err != nil {
			t.Errorf("Run: %v", err)
		}
	}()
	select {
	case <-stopped:
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestFileSinksNames(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "out")
	data := generate(t, tsgen.Config{Duration: time.Second})
	if _, err := run(t, source.FromBytes(data), WithSinks(FileSinks(dir))); err != nil {
		t.Fatalf("Run: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if strings.Join(names, ",") != "audio.aac,video.h264" {
		t.Errorf("files: %v", names)
	}
}

func TestSnapshotBeforeRun(t *testing.T) {
	t.Parallel()
	p := New(source.FromBytes(nil), container.NewMPEGTS(nil), WithStatsInterval(time.Second))

	snap := p.Snapshot()
	if len(snap.Streams) != 0 || snap.Duration != media.NoTimestamp {
		t.Errorf("snapshot before Run: %+v", snap)
	}
	if !strings.Contains(snap.String(), "duration: none") {
		t.Errorf("snapshot string: %s", snap)
	}
}
