package source

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	srtgo "github.com/zsiec/srtgo"
)

// srtReadBufferSize is the read buffer for SRT socket reads. 1316 bytes is
// 7 TS packets, the standard SRT payload size. Socket reads must be able to
// take a whole message.
const srtReadBufferSize = 1316 * 10

// srtLatencyNs is the SRT latency setting in nanoseconds (120ms).
const srtLatencyNs = 120_000_000

// SRTDialTimeout bounds how long DialSRT waits for the handshake.
var SRTDialTimeout = 10 * time.Second

// DialSRT connects to a remote SRT listener in caller mode and returns the
// received transport stream as a streaming Source. An empty streamID
// requests "live/default".
func DialSRT(ctx context.Context, addr, streamID string, log *slog.Logger) (*Stream, error) {
	conn, err := dialSRT(ctx, addr, streamID, log)
	if err != nil {
		return nil, err
	}
	return newSRTStream(conn, nil, addr), nil
}

func dialSRT(ctx context.Context, addr, streamID string, log *slog.Logger) (*srtgo.Conn, error) {
	if addr == "" {
		return nil, fmt.Errorf("source: srt: address is required")
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "srt-caller")

	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs
	if streamID == "" {
		streamID = "live/default"
	}
	cfg.StreamID = streamID

	type dialResult struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := srtgo.Dial(addr, cfg)
		ch <- dialResult{conn, err}
	}()

	timer := time.NewTimer(SRTDialTimeout)
	defer timer.Stop()

	// Drain an abandoned dial in the background and close any leaked connection.
	abandon := func() {
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
	}

	log.Info("dialing", "address", addr, "stream_id", streamID)
	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("source: srt dial %s: %w", addr, res.err)
		}
		log.Info("connected", "address", addr, "stream_id", streamID)
		return res.conn, nil
	case <-timer.C:
		abandon()
		return nil, fmt.Errorf("source: srt dial %s: timed out after %s", addr, SRTDialTimeout)
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	}
}

// ListenSRT listens on addr and returns the first publish connection that
// carries a stream ID as a streaming Source. The listener is closed with
// the Source.
func ListenSRT(ctx context.Context, addr string, log *slog.Logger) (*Stream, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "srt-listener")

	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs

	l, err := srtgo.Listen(addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("source: srt listen on %s: %w", addr, err)
	}
	log.Info("listening", "addr", addr)

	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if req.StreamID == "" {
			return srtgo.RejPeer
		}
		return 0
	})

	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	conn, err := l.Accept()
	if err != nil {
		l.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("source: srt accept: %w", err)
	}
	if !stop() {
		conn.Close()
		return nil, ctx.Err()
	}

	log.Info("publish", "stream_key", StreamKey(conn.StreamID()), "remote", conn.RemoteAddr())
	return newSRTStream(conn, func() { l.Close() }, conn.RemoteAddr().String()), nil
}

func newSRTStream(conn *srtgo.Conn, closeListener func(), remote string) *Stream {
	return newStream(bufio.NewReaderSize(conn, srtReadBufferSize), &srtCloser{conn: conn, closeListener: closeListener}, remote)
}

type srtCloser struct {
	conn          *srtgo.Conn
	closeListener func()
}

func (c *srtCloser) Close() error {
	c.conn.Close()
	if c.closeListener != nil {
		c.closeListener()
	}
	return nil
}

// StreamKey normalizes an SRT stream ID such as "/live/camera1" to its key.
func StreamKey(streamID string) string {
	streamID = strings.TrimPrefix(streamID, "/")
	streamID = strings.TrimPrefix(streamID, "live/")
	if streamID == "" {
		return "default"
	}
	return streamID
}
