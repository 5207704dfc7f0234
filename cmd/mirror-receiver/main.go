package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mycrl/mirror/internal/config"
	"github.com/mycrl/mirror/internal/logger"
	"github.com/mycrl/mirror/internal/media"
	"github.com/mycrl/mirror/internal/metrics"
	"github.com/mycrl/mirror/internal/pipeline"
)

// shutdownTimeout bounds how long Close is given to tear the pipeline down
// after a shutdown signal, matching the teacher's rtmp-server.
const shutdownTimeout = 5 * time.Second

func main() {
	cli, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if cli.showVersion {
		fmt.Println(version)
		return
	}

	cfg := config.Load()
	applyOverrides(cfg, cli)

	logger.Init()
	if cfg.LogLevel != "" {
		if err := logger.SetLevel(cfg.LogLevel); err != nil {
			fmt.Printf("warning: invalid log level %q, using default\n", cfg.LogLevel)
		}
	}
	log := logger.Logger().With("component", "mirror-receiver")

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, cli, log); err != nil {
		log.Error("mirror-receiver exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, cli *cliConfig, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var reg *metrics.Registry
	if cfg.MetricsAddr != "" {
		reg = metrics.New()
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg, log); err != nil {
				log.Error("metrics server error", "error", err)
			}
		}()
	}

	group, err := cfg.MulticastIP()
	if err != nil {
		return err
	}

	transport, err := pipeline.Connect(ctx, pipeline.Options{
		Server:       cfg.Server,
		Multicast:    group,
		MTU:          cfg.MTU,
		SRTLatencyMs: cfg.SRTLatencyMs,
		SRTFC:        cfg.SRTFC,
		SRTMaxBW:     cfg.SRTMaxBW,
		SRTTimeoutMs: cfg.SRTTimeoutMs,
		SRTFEC:       cfg.SRTFEC,
		Metrics:      reg,
	}, log)
	if err != nil {
		return fmt.Errorf("connect to relay: %w", err)
	}
	defer transport.Close()

	desc := pipeline.ReceiverDescriptor{}
	sink := &splitSink{log: log}
	var closers sourceClosers

	if cli.video {
		w, closeFn, err := openOutput(cli.videoOut)
		if err != nil {
			closers.Close()
			return fmt.Errorf("open video output %q: %w", cli.videoOut, err)
		}
		closers = append(closers, closeFn)
		desc.Video = media.NewPassthroughDecoder()
		sink.video = media.NewPipeSink(w)
	}

	if cli.audio {
		w, closeFn, err := openOutput(cli.audioOut)
		if err != nil {
			closers.Close()
			return fmt.Errorf("open audio output %q: %w", cli.audioOut, err)
		}
		closers = append(closers, closeFn)
		desc.Audio = media.NewPassthroughDecoder()
		sink.audio = media.NewPipeSink(w)
	}
	defer closers.Close()

	receiver, err := transport.CreateReceiver(uint32(cli.channel), desc, sink)
	if err != nil {
		return fmt.Errorf("create receiver: %w", err)
	}

	log.Info("mirror-receiver started", "channel", cli.channel, "relay", cfg.Server, "version", version)

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		if err := receiver.Close(); err != nil {
			log.Error("receiver close error", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("receiver stopped cleanly")
	case <-shutdownCtx.Done():
		log.Error("forced exit after shutdown timeout")
	}

	return nil
}

// applyOverrides copies any explicitly flag-supplied field into cfg,
// leaving the environment-sourced default in place for anything left at
// its flag zero value.
func applyOverrides(cfg *config.Config, cli *cliConfig) {
	if cli.relayAddr != "" {
		cfg.Server = cli.relayAddr
	}
	if cli.multicast != "" {
		cfg.Multicast = cli.multicast
	}
	if cli.mtu != 0 {
		cfg.MTU = cli.mtu
	}
	if cli.metricsAddr != "" {
		cfg.MetricsAddr = cli.metricsAddr
	}
	if cli.logLevel != "" {
		cfg.LogLevel = cli.logLevel
	}
}

// sourceClosers collects every io-backed collaborator run opened, so it can
// close them all on the way out regardless of which combination of
// -video/-audio was selected.
type sourceClosers []func() error

func (c sourceClosers) Close() {
	for _, fn := range c {
		_ = fn()
	}
}

// openOutput resolves "-" to stdout (not owned, so its closer is a no-op)
// or creates/truncates path as a regular file.
func openOutput(path string) (*os.File, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

// splitSink dispatches decoded video and audio frames to independent
// destinations (distinct files, or stdout for whichever single kind was
// selected), since the underlying Sink contract has no notion of "kind"
// beyond which method was called.
type splitSink struct {
	log   *slog.Logger
	video *media.PipeSink
	audio *media.PipeSink
}

func (s *splitSink) Video(frame media.Frame) bool {
	if s.video == nil {
		return true
	}
	return s.video.Video(frame)
}

func (s *splitSink) Audio(frame media.Frame) bool {
	if s.audio == nil {
		return true
	}
	return s.audio.Audio(frame)
}

func (s *splitSink) Close() {
	if s.video != nil {
		s.video.Close()
	}
	if s.audio != nil {
		s.audio.Close()
	}
	s.log.Info("receiver sink closed")
}
