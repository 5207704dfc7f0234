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
	"github.com/mycrl/mirror/internal/metrics"
	"github.com/mycrl/mirror/internal/relay"
	"github.com/mycrl/mirror/internal/transport/srt"
)

// shutdownTimeout bounds how long the relay is given to stop accepting
// and close out its open sockets after a shutdown signal, matching the
// teacher's rtmp-server.
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
	log := logger.Logger().With("component", "mirror-relayd")

	if cfg.RelayListenAddr == "" {
		log.Error("invalid configuration", "error", "MIRROR_RELAY_LISTEN_ADDR is required")
		os.Exit(1)
	}
	if cfg.MTU < 64 {
		log.Error("invalid configuration", "error", fmt.Sprintf("MIRROR_MTU must be at least 64, got %d", cfg.MTU))
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("mirror-relayd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
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

	hooks := buildHookManager(cfg, log)

	server := relay.NewServer(hooks, reg, log)

	desc := srt.Descriptor{
		MTU:       uint32(cfg.MTU),
		LatencyMs: uint32(cfg.SRTLatencyMs),
		FC:        uint32(cfg.SRTFC),
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe(ctx, cfg.RelayListenAddr, desc)
	}()

	log.Info("mirror-relayd started", "listen", cfg.RelayListenAddr, "version", version)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("relay server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	select {
	case <-serveErr:
		log.Info("relay stopped cleanly")
	case <-shutdownCtx.Done():
		log.Error("forced exit after shutdown timeout")
	}

	if hooks != nil {
		hooks.Close()
	}

	return nil
}

// applyOverrides copies any explicitly flag-supplied field into cfg,
// leaving the environment-sourced default in place for anything left at
// its flag zero value.
func applyOverrides(cfg *config.Config, cli *cliConfig) {
	if cli.listenAddr != "" {
		cfg.RelayListenAddr = cli.listenAddr
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
	if cli.hookScript != "" {
		cfg.RelayHookScript = cli.hookScript
	}
	if cli.hookWebhook != "" {
		cfg.RelayHookWebhook = cli.hookWebhook
	}
}

// buildHookManager wires a ShellHook and/or WebhookHook against every
// lifecycle event when their respective config fields are set; it returns
// nil when neither is configured, since relay.Server treats a nil
// *HookManager as "no hooks" and skips the dispatch entirely.
func buildHookManager(cfg *config.Config, log *slog.Logger) *relay.HookManager {
	if cfg.RelayHookScript == "" && cfg.RelayHookWebhook == "" {
		return nil
	}

	hm := relay.NewHookManager(relay.DefaultHookConfig())

	events := []relay.EventType{
		relay.EventConnectionAccept,
		relay.EventStreamStart,
		relay.EventStreamStop,
		relay.EventConnectionClose,
	}

	if cfg.RelayHookScript != "" {
		hook := relay.NewShellHook("shell", cfg.RelayHookScript)
		for _, evt := range events {
			if err := hm.RegisterHook(evt, hook); err != nil {
				log.Error("failed to register shell hook", "error", err)
			}
		}
	}

	if cfg.RelayHookWebhook != "" {
		hook := relay.NewWebhookHook("webhook", cfg.RelayHookWebhook, 10*time.Second)
		for _, evt := range events {
			if err := hm.RegisterHook(evt, hook); err != nil {
				log.Error("failed to register webhook hook", "error", err)
			}
		}
	}

	return hm
}
