// Package config loads process configuration from the environment,
// prefix MIRROR_, following the same getEnv*/applyDefaults/Validate split
// the rest of the retrieval pack uses for env-driven services.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"

	rerrors "github.com/mycrl/mirror/internal/errors"
)

// Config is the full process configuration shared by cmd/mirror-sender,
// cmd/mirror-receiver, and cmd/mirror-relayd. Not every field is
// meaningful to every binary (e.g. Multicast is unused by mirror-relayd),
// but keeping one struct keeps Load/Validate in one place.
type Config struct {
	Server       string // MIRROR_RELAY_ADDR
	Multicast    string // MIRROR_MULTICAST_GROUP, host:port form
	MTU          int    // MIRROR_MTU
	SRTLatencyMs int    // MIRROR_SRT_LATENCY_MS
	SRTFC        int    // MIRROR_SRT_FC
	SRTMaxBW     int64  // MIRROR_SRT_MAX_BW
	SRTTimeoutMs int    // MIRROR_SRT_TIMEOUT_MS
	SRTFEC       string // MIRROR_SRT_FEC
	MetricsAddr  string // MIRROR_METRICS_ADDR, empty disables
	LogLevel     string // MIRROR_LOG_LEVEL

	// The following are meaningful only to cmd/mirror-relayd. RelayListenAddr
	// binds both the SRT listener and the signal TCP listener (distinct
	// protocols, so sharing one host:port string is unambiguous) — it is the
	// bind-side counterpart of Server, which senders/receivers dial.
	RelayListenAddr  string // MIRROR_RELAY_LISTEN_ADDR
	RelayHookScript  string // MIRROR_RELAY_HOOK_SCRIPT, empty disables the shell hook
	RelayHookWebhook string // MIRROR_RELAY_HOOK_WEBHOOK, empty disables the webhook hook
}

// Load reads Config from the environment, filling every field with the
// default applyDefaults would pick for a zero value.
func Load() *Config {
	c := &Config{
		Server:       getEnv("MIRROR_RELAY_ADDR", ""),
		Multicast:    getEnv("MIRROR_MULTICAST_GROUP", "239.0.0.1:0"),
		MTU:          getEnvInt("MIRROR_MTU", 1316),
		SRTLatencyMs: getEnvInt("MIRROR_SRT_LATENCY_MS", 40),
		SRTFC:        getEnvInt("MIRROR_SRT_FC", 25600),
		SRTMaxBW:     getEnvInt64("MIRROR_SRT_MAX_BW", -1),
		SRTTimeoutMs: getEnvInt("MIRROR_SRT_TIMEOUT_MS", 5000),
		SRTFEC:       getEnv("MIRROR_SRT_FEC", ""),
		MetricsAddr:  getEnv("MIRROR_METRICS_ADDR", ""),
		LogLevel:     getEnv("MIRROR_LOG_LEVEL", "info"),

		RelayListenAddr:  getEnv("MIRROR_RELAY_LISTEN_ADDR", ":9000"),
		RelayHookScript:  getEnv("MIRROR_RELAY_HOOK_SCRIPT", ""),
		RelayHookWebhook: getEnv("MIRROR_RELAY_HOOK_WEBHOOK", ""),
	}
	c.applyDefaults()
	return c
}

// applyDefaults fills zero values a caller-constructed Config (as opposed
// to one built by Load) might have left unset.
func (c *Config) applyDefaults() {
	if c.Multicast == "" {
		c.Multicast = "239.0.0.1:0"
	}
	if c.MTU == 0 {
		c.MTU = 1316
	}
	if c.SRTLatencyMs == 0 {
		c.SRTLatencyMs = 40
	}
	if c.SRTFC == 0 {
		c.SRTFC = 25600
	}
	if c.SRTMaxBW == 0 {
		c.SRTMaxBW = -1
	}
	if c.SRTTimeoutMs == 0 {
		c.SRTTimeoutMs = 5000
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RelayListenAddr == "" {
		c.RelayListenAddr = ":9000"
	}
}

// Validate rejects a Config that would fail later in a more confusing
// place (a bad multicast host:port surfacing as a dial error deep inside
// internal/transport/multicast, for instance).
func (c *Config) Validate() error {
	if c.Server == "" {
		return rerrors.NewConfigError("config.validate", fmt.Errorf("MIRROR_RELAY_ADDR is required"))
	}

	if _, err := c.MulticastIP(); err != nil {
		return rerrors.NewConfigError("config.validate", err)
	}

	if c.MTU < fragmentMinMTU {
		return rerrors.NewConfigError("config.validate", fmt.Errorf("MIRROR_MTU must be at least %d, got %d", fragmentMinMTU, c.MTU))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return rerrors.NewConfigError("config.validate", fmt.Errorf("invalid MIRROR_LOG_LEVEL %q", c.LogLevel))
	}

	return nil
}

// fragmentMinMTU is the smallest MTU that leaves room for both the wire
// header and the fragment header in a single chunk.
const fragmentMinMTU = 64

// MulticastIP parses Multicast's host:port form and returns the IPv4 group
// address only; the port part is checked for syntax but not returned.
func (c *Config) MulticastIP() (net.IP, error) {
	host, _, err := net.SplitHostPort(c.Multicast)
	if err != nil {
		return nil, fmt.Errorf("invalid MIRROR_MULTICAST_GROUP %q: %w", c.Multicast, err)
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("MIRROR_MULTICAST_GROUP %q is not a valid IPv4 address", c.Multicast)
	}
	return ip.To4(), nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

