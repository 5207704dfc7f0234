package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mycrl/mirror/internal/media"
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

	channel   uint
	video     bool
	audio     bool
	videoIn   string
	audioIn   string
	multiOnly bool

	videoWidth     int
	videoHeight    int
	videoFramerate int
	videoBitrate   int
	videoKeyInterv int

	audioSampleRate int
	audioChannels   int
	audioBitrate    int

	showVersion bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("mirror-sender", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}

	fs.StringVar(&cfg.relayAddr, "relay", "", "relay TCP/SRT address (overrides MIRROR_RELAY_ADDR)")
	fs.StringVar(&cfg.multicast, "multicast", "", "multicast group host:port (overrides MIRROR_MULTICAST_GROUP)")
	fs.IntVar(&cfg.mtu, "mtu", 0, "on-wire MTU cap (overrides MIRROR_MTU)")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Prometheus /metrics bind address (overrides MIRROR_METRICS_ADDR)")
	fs.StringVar(&cfg.logLevel, "log-level", "", "debug|info|warn|error (overrides MIRROR_LOG_LEVEL)")

	fs.UintVar(&cfg.channel, "channel", 0, "stream channel id this sender publishes as (required)")
	fs.BoolVar(&cfg.video, "video", true, "read a video elementary stream")
	fs.BoolVar(&cfg.audio, "audio", true, "read an audio elementary stream")
	fs.StringVar(&cfg.videoIn, "video-in", "-", "video elementary-stream source: a path, or - for stdin")
	fs.StringVar(&cfg.audioIn, "audio-in", "", "audio elementary-stream source: a path, or - for stdin (required if -video and -audio are both set and -video-in is -)")
	fs.BoolVar(&cfg.multiOnly, "multicast-only", false, "start with multicast selected instead of SRT")

	fs.IntVar(&cfg.videoWidth, "video-width", 1920, "video width recorded in the sender descriptor's video options (not used by the passthrough encoder)")
	fs.IntVar(&cfg.videoHeight, "video-height", 1080, "video height recorded in the sender descriptor's video options (not used by the passthrough encoder)")
	fs.IntVar(&cfg.videoFramerate, "video-fps", 30, "video framerate recorded in the sender descriptor's video options (not used by the passthrough encoder)")
	fs.IntVar(&cfg.videoBitrate, "video-bitrate", 4_000_000, "video bitrate recorded in the sender descriptor's video options (not used by the passthrough encoder)")
	fs.IntVar(&cfg.videoKeyInterv, "video-key-interval", 60, "video key-frame interval recorded in the sender descriptor's video options (not used by the passthrough encoder)")

	fs.IntVar(&cfg.audioSampleRate, "audio-sample-rate", 48000, "Opus identification header sample rate")
	fs.IntVar(&cfg.audioChannels, "audio-channels", 2, "Opus identification header channel count")
	fs.IntVar(&cfg.audioBitrate, "audio-bitrate", 64000, "audio bitrate recorded in the sender descriptor's audio options (not used by the passthrough encoder)")

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
	if cfg.video && cfg.audio && cfg.videoIn == "-" && (cfg.audioIn == "" || cfg.audioIn == "-") {
		return nil, fmt.Errorf("-audio-in must name a path when both -video and -audio read from stdin")
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

func (c *cliConfig) videoOptions() media.VideoOptions {
	return media.VideoOptions{
		Width:            c.videoWidth,
		Height:           c.videoHeight,
		Framerate:        c.videoFramerate,
		BitRate:          c.videoBitrate,
		KeyFrameInterval: c.videoKeyInterv,
	}
}

func (c *cliConfig) audioOptions() media.AudioOptions {
	return media.AudioOptions{
		SampleRate: c.audioSampleRate,
		Channels:   c.audioChannels,
		BitRate:    c.audioBitrate,
	}
}
