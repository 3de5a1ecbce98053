package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// srtPayloadSize is the SRT message size used when publishing: 7 TS packets.
const srtPayloadSize = 1316

// PushSRT publishes r to an SRT listener at addr in caller mode and returns
// the number of bytes sent. It stops at the end of r or when ctx is done.
func PushSRT(ctx context.Context, addr, streamID string, r io.Reader, log *slog.Logger) (int64, error) {
	conn, err := dialSRT(ctx, addr, streamID, log)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	buf := make([]byte, srtPayloadSize)
	var sent int64
	for {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if _, werr := conn.Write(buf[:n]); werr != nil {
				return sent, fmt.Errorf("source: srt push: %w", werr)
			}
			sent += int64(n)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return sent, nil
		}
		if err != nil {
			return sent, fmt.Errorf("source: srt push: %w", err)
		}
	}
}

// Pace returns a reader that delivers r no faster than bytesPerSec, timed
// against the moment of the first read so that short stalls are caught up.
// A rate of zero or less disables pacing.
func Pace(ctx context.Context, r io.Reader, bytesPerSec float64) io.Reader {
	if bytesPerSec <= 0 {
		return r
	}
	return &pacedReader{ctx: ctx, r: r, rate: bytesPerSec}
}

type pacedReader struct {
	ctx   context.Context
	r     io.Reader
	rate  float64
	start time.Time
	total int64
}

func (p *pacedReader) Read(b []byte) (int, error) {
	if p.start.IsZero() {
		p.start = time.Now()
	}
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := p.r.Read(b)
	p.total += int64(n)

	due := time.Duration(float64(p.total) / p.rate * float64(time.Second))
	if wait := due - time.Since(p.start); wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-t.C:
		case <-p.ctx.Done():
			return n, p.ctx.Err()
		}
	}
	return n, err
}
