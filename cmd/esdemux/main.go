// Command esdemux demuxes an MPEG-2 transport stream from a file, an SRT
// connection or a QUIC push into raw elementary stream files.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zsiec/esdemux/container"
	"github.com/zsiec/esdemux/internal/certs"
	"github.com/zsiec/esdemux/internal/config"
	"github.com/zsiec/esdemux/internal/pipeline"
	"github.com/zsiec/esdemux/source"
)

var version = "dev"

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	level, _ := cfg.Level()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	slog.Info("esdemux starting", "version", version, "input", cfg.Input, "output_dir", cfg.OutputDir)
	if err := run(ctx, cfg); err != nil {
		slog.Error("esdemux failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file named by -config, applies the
// environment and then any flags given explicitly.
func loadConfig(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("esdemux", flag.ContinueOnError)
	var (
		path     = fs.String("config", "", "YAML config file")
		input    = fs.String("input", "", "input: file path, srt://host:port?streamid=..., srt://:port or quic://:port")
		out      = fs.String("out", "", "output directory for elementary stream files")
		seek     = fs.Duration("seek", 0, "start offset into the input")
		probe    = fs.Int64("probe-size", 0, "bytes to read while probing tracks")
		program  = fs.Uint("program", 0, "MPEG-TS program number, 0 for the first")
		stats    = fs.Duration("stats", 0, "stats logging interval")
		logLevel = fs.String("log-level", "", "debug, info, warn or error")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(*path, nil)
	if err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Input = *input
		case "out":
			cfg.OutputDir = *out
		case "seek":
			cfg.Seek = *seek
		case "probe-size":
			cfg.ProbeSize = *probe
		case "program":
			cfg.Program = uint16(*program)
		case "stats":
			cfg.StatsInterval = *stats
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	if cfg.Input == "" && fs.NArg() > 0 {
		cfg.Input = fs.Arg(0)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	in, err := config.ParseInput(cfg.Input)
	if err != nil {
		return err
	}
	src, cleanup, err := openSource(ctx, cfg, in)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer cleanup()

	parser := container.NewMPEGTS(slog.Default(),
		container.WithProbeSize(cfg.ProbeSize),
		container.WithProgram(cfg.Program))
	p := pipeline.New(src, parser,
		pipeline.WithSeek(cfg.Seek),
		pipeline.WithSinks(pipeline.FileSinks(cfg.OutputDir)),
		pipeline.WithStatsInterval(cfg.StatsInterval))

	if err := p.Run(ctx); err != nil {
		return err
	}
	slog.Info("done", "stats", p.Snapshot().String())
	return nil
}

// openSource opens the input. cleanup releases listeners that must outlive
// the accepted connection.
func openSource(ctx context.Context, cfg *config.Config, in config.Input) (source.Source, func(), error) {
	log := slog.Default()
	nop := func() {}
	switch in.Kind {
	case config.InputSRTCaller:
		source.SRTDialTimeout = cfg.SRT.DialTimeout
		streamID := in.StreamID
		if streamID == "" {
			streamID = cfg.SRT.StreamID
		}
		src, err := source.DialSRT(ctx, in.Address, streamID, log)
		return src, nop, err
	case config.InputSRTListener:
		src, err := source.ListenSRT(ctx, in.Address, log)
		return src, nop, err
	case config.InputQUIC:
		return acceptQUIC(ctx, in.Address, cfg.QUIC.Hosts, log)
	default:
		src, err := source.OpenFile(in.Address)
		return src, nop, err
	}
}

// acceptQUIC waits for one QUIC push on addr using a fresh self-signed
// certificate. Publishers pin the logged fingerprint.
func acceptQUIC(ctx context.Context, addr string, hosts []string, log *slog.Logger) (source.Source, func(), error) {
	log.Info("generating self-signed certificate")
	cert, err := certs.Generate(certs.DefaultValidity, append([]string{"localhost"}, hosts...)...)
	if err != nil {
		return nil, nil, fmt.Errorf("generate certificate: %w", err)
	}
	log.Info("certificate generated",
		"fingerprint", cert.FingerprintBase64(),
		"expires", cert.NotAfter.Format(time.RFC3339),
	)

	ln, err := source.ListenQUIC(addr, cert, log)
	if err != nil {
		return nil, nil, err
	}
	closeListener := func() {
		if err := ln.Close(); err != nil {
			log.Debug("closing QUIC listener failed", "error", err)
		}
	}
	log.Info("waiting for QUIC publisher", "addr", ln.Addr().String())
	src, err := ln.Accept(ctx)
	if err != nil {
		closeListener()
		return nil, nil, err
	}
	return src, closeListener, nil
}
