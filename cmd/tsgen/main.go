// Command tsgen writes a synthetic transport stream to a file or publishes
// it to an esdemux ingest over SRT or QUIC.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/esdemux/internal/certs"
	"github.com/zsiec/esdemux/internal/config"
	"github.com/zsiec/esdemux/internal/tsgen"
	"github.com/zsiec/esdemux/source"
)

const progressInterval = 5 * time.Second

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var (
		cfg         tsgen.Config
		captions    string
		out         = flag.String("o", "", "write the stream to this file")
		push        = flag.String("push", "", "publish to srt://host:port?streamid=... or quic://host:port")
		fingerprint = flag.String("fingerprint", "", "base64 certificate fingerprint of the QUIC receiver")
		realtime    = flag.Bool("realtime", true, "pace publishing at the stream's own rate")
	)
	flag.DurationVar(&cfg.Duration, "duration", 10*time.Second, "stream duration")
	flag.IntVar(&cfg.FrameRate, "fps", 30, "video frame rate")
	flag.IntVar(&cfg.GOP, "gop", 0, "frames per key frame interval, default one second")
	flag.StringVar(&cfg.Language, "lang", "eng", "audio language")
	flag.StringVar(&captions, "captions", "", "caption lines separated by |")
	flag.DurationVar(&cfg.SpliceInterval, "splice-interval", 0, "insert a SCTE-35 cue at this period")
	flag.DurationVar(&cfg.BreakDuration, "break", 30*time.Second, "signaled break duration")
	flag.Parse()
	if captions != "" {
		cfg.Captions = strings.Split(captions, "|")
	}
	if *out == "" && *push == "" {
		fmt.Fprintln(os.Stderr, "tsgen: one of -o or -push is required")
		flag.Usage()
		os.Exit(2)
	}

	var buf bytes.Buffer
	if err := tsgen.Generate(&buf, cfg); err != nil {
		slog.Error("generate failed", "error", err)
		os.Exit(1)
	}
	slog.Info("generated stream", "bytes", buf.Len(), "frames", cfg.Frames(), "duration", cfg.Duration)

	if *out != "" {
		if err := os.WriteFile(*out, buf.Bytes(), 0o644); err != nil {
			slog.Error("write failed", "error", err)
			os.Exit(1)
		}
		slog.Info("wrote stream", "path", *out)
	}
	if *push == "" {
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var rate float64
	if *realtime {
		rate = float64(buf.Len()) / cfg.Duration.Seconds()
	}
	if err := publish(ctx, *push, *fingerprint, buf.Bytes(), rate); err != nil {
		slog.Error("publish failed", "error", err)
		os.Exit(1)
	}
}

// publish sends data to target while logging progress.
func publish(ctx context.Context, target, fingerprint string, data []byte, rate float64) error {
	in, err := config.ParseInput(target)
	if err != nil {
		return err
	}
	cr := &countingReader{r: bytes.NewReader(data)}
	r := source.Pace(ctx, cr, rate)

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		var n int64
		var err error
		switch in.Kind {
		case config.InputSRTCaller:
			n, err = source.PushSRT(gctx, in.Address, in.StreamID, r, nil)
		case config.InputQUIC:
			fp, perr := certs.ParseFingerprint(fingerprint)
			if perr != nil {
				return perr
			}
			n, err = source.PushQUIC(gctx, in.Address, fp, r)
		default:
			return fmt.Errorf("cannot publish to %s input %q", in.Kind, target)
		}
		slog.Info("published", "target", target, "bytes", n)
		return err
	})
	g.Go(func() error {
		t := time.NewTicker(progressInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return nil
			case <-gctx.Done():
				return nil
			case <-t.C:
				sent := cr.n.Load()
				slog.Info("publishing", "target", target, "sent", sent,
					"percent", fmt.Sprintf("%.1f", float64(sent)*100/float64(len(data))))
			}
		}
	})
	return g.Wait()
}

type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
