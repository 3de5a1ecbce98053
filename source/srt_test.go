package source

import (
	"context"
	"testing"
)

func TestStreamKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		streamID string
		want     string
	}{
		{name: "simple key", streamID: "camera1", want: "camera1"},
		{name: "leading slash", streamID: "/camera1", want: "camera1"},
		{name: "live prefix", streamID: "live/camera1", want: "camera1"},
		{name: "slash and live prefix", streamID: "/live/camera1", want: "camera1"},
		{name: "empty returns default", streamID: "", want: "default"},
		{name: "just live/ returns default", streamID: "live/", want: "default"},
		{name: "nested path preserved", streamID: "studio/camera1", want: "studio/camera1"},
		{name: "live in name preserved", streamID: "liveshow", want: "liveshow"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := StreamKey(tc.streamID); got != tc.want {
				t.Errorf("StreamKey(%q) = %q, want %q", tc.streamID, got, tc.want)
			}
		})
	}
}

func TestDialSRTRequiresAddress(t *testing.T) {
	t.Parallel()
	if _, err := DialSRT(context.Background(), "", "live/x", nil); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func TestDialSRTCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Nothing listens on the discard port; the cancelled context wins.
	if _, err := DialSRT(ctx, "127.0.0.1:9", "live/x", nil); err == nil {
		t.Fatal("expected error for cancelled dial")
	}
}
