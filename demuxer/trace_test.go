package demuxer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zsiec/esdemux/media"
	"github.com/zsiec/esdemux/source"
)

func TestDemuxerTracesLifecycle(t *testing.T) {
	t.Parallel()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { tp.Shutdown(context.Background()) })

	p := &fakeParser{info: twoTrackInfo(), seekErr: errors.New("no index")}
	d := New(newTestSequence(t), source.FromBytes(make([]byte, 1250000)), p,
		WithTracer(tp.Tracer("test")))

	status := make(chan media.PipelineStatus, 1)
	d.Initialize(Host{}, func(s media.PipelineStatus) { status <- s })
	require.Equal(t, media.StatusOK, <-status)

	d.Seek(2*time.Second, func(s media.PipelineStatus) { status <- s })
	require.Equal(t, media.PipelineErrorSeekFailed, <-status)

	stopped := make(chan struct{})
	d.Stop(func() { close(stopped) })
	<-stopped

	spans := rec.Ended()
	require.Len(t, spans, 3)
	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.Name()
		assert.Contains(t, s.Attributes(), attribute.String("demuxer.id", d.ID().String()), s.Name())
	}
	assert.Equal(t, []string{"demuxer.Initialize", "demuxer.Seek", "demuxer.Stop"}, names)

	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, media.PipelineErrorSeekFailed.String(), spans[1].Status().Description)
	assert.Contains(t, spans[1].Attributes(), attribute.Int64("seek.target_ms", 2000))
}

func TestDemuxerTracesFailedInitialize(t *testing.T) {
	t.Parallel()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { tp.Shutdown(context.Background()) })

	p := &fakeParser{openErr: errors.New("garbage")}
	d := New(newTestSequence(t), source.FromBytes(nil), p, WithTracer(tp.Tracer("test")))

	status := make(chan media.PipelineStatus, 1)
	d.Initialize(Host{}, func(s media.PipelineStatus) { status <- s })
	require.Equal(t, media.DemuxerErrorCouldNotOpen, <-status)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}
