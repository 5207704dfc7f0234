package main

import (
	"flag"
	"fmt"
	"os"
)

// version is injected at build time with -ldflags "-X main.version=...".
var version = "dev"

// cliConfig holds flag-supplied overrides. A field left at its flag default
// (zero value / empty string) means "use whatever internal/config.Load
// read from the environment" — applyOverrides is what decides that, not
// this struct.
type cliConfig struct {
	listenAddr  string
	mtu         int
	metricsAddr string
	logLevel    string
	hookScript  string
	hookWebhook string

	showVersion bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("mirror-relayd", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}

	fs.StringVar(&cfg.listenAddr, "listen", "", "bind address for both the SRT and signal listeners (overrides MIRROR_RELAY_LISTEN_ADDR)")
	fs.IntVar(&cfg.mtu, "mtu", 0, "SRT MTU for the listening socket (overrides MIRROR_MTU)")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Prometheus /metrics bind address (overrides MIRROR_METRICS_ADDR)")
	fs.StringVar(&cfg.logLevel, "log-level", "", "debug|info|warn|error (overrides MIRROR_LOG_LEVEL)")
	fs.StringVar(&cfg.hookScript, "hook-script", "", "shell script invoked on every lifecycle event (overrides MIRROR_RELAY_HOOK_SCRIPT)")
	fs.StringVar(&cfg.hookWebhook, "hook-webhook", "", "webhook URL POSTed on every lifecycle event (overrides MIRROR_RELAY_HOOK_WEBHOOK)")

	fs.BoolVar(&cfg.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.logLevel != "" {
		switch cfg.logLevel {
		case "debug", "info", "warn", "error":
		default:
			return nil, fmt.Errorf("invalid -log-level %q", cfg.logLevel)
		}
	}

	return cfg, nil
}
