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
	relayAddr   string
	multicast   string
	mtu         int
	metricsAddr string
	logLevel    string

	channel  uint
	video    bool
	audio    bool
	videoOut string
	audioOut string

	showVersion bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("mirror-receiver", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}

	fs.StringVar(&cfg.relayAddr, "relay", "", "relay TCP/SRT address (overrides MIRROR_RELAY_ADDR)")
	fs.StringVar(&cfg.multicast, "multicast", "", "multicast group host:port (overrides MIRROR_MULTICAST_GROUP)")
	fs.IntVar(&cfg.mtu, "mtu", 0, "on-wire MTU cap (overrides MIRROR_MTU)")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Prometheus /metrics bind address (overrides MIRROR_METRICS_ADDR)")
	fs.StringVar(&cfg.logLevel, "log-level", "", "debug|info|warn|error (overrides MIRROR_LOG_LEVEL)")

	fs.UintVar(&cfg.channel, "channel", 0, "stream channel id this receiver subscribes to (required)")
	fs.BoolVar(&cfg.video, "video", true, "decode the video elementary stream")
	fs.BoolVar(&cfg.audio, "audio", true, "decode the audio elementary stream")
	fs.StringVar(&cfg.videoOut, "video-out", "-", "video elementary-stream destination: a path, or - for stdout")
	fs.StringVar(&cfg.audioOut, "audio-out", "", "audio elementary-stream destination: a path, or - for stdout (required if -video and -audio are both set and -video-out is -)")

	fs.BoolVar(&cfg.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if !cfg.showVersion && cfg.channel == 0 {
		return nil, fmt.Errorf("-channel is required and must be nonzero")
	}
	if !cfg.video && !cfg.audio {
		return nil, fmt.Errorf("at least one of -video or -audio must be enabled")
	}
	if cfg.video && cfg.audio && cfg.videoOut == "-" && (cfg.audioOut == "" || cfg.audioOut == "-") {
		return nil, fmt.Errorf("-audio-out must name a path when both -video and -audio write to stdout")
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
