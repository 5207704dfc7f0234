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

// shutdownTimeout bounds how long Close is given to tear every pipeline
// down after a shutdown signal, matching the teacher's rtmp-server.
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
	log := logger.Logger().With("component", "mirror-sender")

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, cli, log); err != nil {
		log.Error("mirror-sender exited with error", "error", err)
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

	desc, closers, err := buildSenderDescriptor(cli)
	if err != nil {
		return err
	}
	defer closers.Close()

	sink := &logSink{log: log}

	sender, err := transport.CreateSender(uint32(cli.channel), desc, sink)
	if err != nil {
		return fmt.Errorf("create sender: %w", err)
	}

	log.Info("mirror-sender started", "channel", cli.channel, "relay", cfg.Server, "version", version)

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		if err := sender.Close(); err != nil {
			log.Error("sender close error", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("sender stopped cleanly")
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

// sourceClosers collects every io-backed collaborator buildSenderDescriptor
// opened, so main can close them all on the way out regardless of which
// combination of -video/-audio was selected.
type sourceClosers []func() error

func (c sourceClosers) Close() {
	for _, fn := range c {
		_ = fn()
	}
}

func buildSenderDescriptor(cli *cliConfig) (pipeline.SenderDescriptor, sourceClosers, error) {
	var desc pipeline.SenderDescriptor
	var closers sourceClosers

	desc.Multicast = cli.multiOnly

	if cli.video {
		r, closeFn, err := openStream(cli.videoIn)
		if err != nil {
			closers.Close()
			return desc, nil, fmt.Errorf("open video input %q: %w", cli.videoIn, err)
		}
		closers = append(closers, closeFn)

		src := media.NewPipeSource(r)
		closers = append(closers, src.Close)

		desc.Video = &pipeline.VideoSource{
			Source:  src,
			Encoder: media.NewPassthroughEncoder(),
			Options: cli.videoOptions(),
		}
	}

	if cli.audio {
		r, closeFn, err := openStream(cli.audioIn)
		if err != nil {
			closers.Close()
			return desc, nil, fmt.Errorf("open audio input %q: %w", cli.audioIn, err)
		}
		closers = append(closers, closeFn)

		src := media.NewPipeSource(r)
		closers = append(closers, src.Close)

		desc.Audio = &pipeline.AudioSource{
			Source:  src,
			Encoder: media.NewPassthroughEncoder(),
			Options: cli.audioOptions(),
		}
	}

	return desc, closers, nil
}

// openStream resolves "-" to stdin (not owned, so its closer is a no-op)
// or opens path as a regular file.
func openStream(path string) (*os.File, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdin, func() error { return nil }, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

// logSink discards every frame; the encoded bytes already left through the
// sender's adapter/transport, so there's nothing left to do with the raw
// capture callback in a headless CLI beyond an occasional log line.
type logSink struct {
	log   *slog.Logger
	count uint64
}

func (s *logSink) Video(frame media.Frame) bool { return s.observe("video", frame) }
func (s *logSink) Audio(frame media.Frame) bool { return s.observe("audio", frame) }

func (s *logSink) observe(kind string, frame media.Frame) bool {
	s.count++
	if s.count%300 == 0 {
		s.log.Debug("frames captured", "kind", kind, "count", s.count, "timestamp", frame.Timestamp)
	}
	return true
}

func (s *logSink) Close() {
	s.log.Info("sink closed", "frames_captured", s.count)
}
