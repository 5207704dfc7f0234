// Package metrics is a small Prometheus registry exposing SRT trace
// statistics, fragment loss counters, adapter queue depths, and
// sink-close reasons over a plain HTTP /metrics endpoint. Every pipeline
// in internal/pipeline reports into one process-wide Registry; nothing
// here touches the pipeline's hot path beyond a handful of atomic
// increments and gauge sets.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/datarhei/gosrt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns every metric this module exports, plus the HTTP server
// that scrapes them. A nil *Registry is safe to call every method on (all
// become no-ops), so callers that run with MIRROR_METRICS_ADDR unset
// don't need to branch on whether metrics are enabled.
type Registry struct {
	reg *prometheus.Registry

	srtPacketsSent  *prometheus.CounterVec
	srtPacketsRecv  *prometheus.CounterVec
	srtPacketsLost  *prometheus.CounterVec
	srtRetransmits  *prometheus.CounterVec
	srtRTTMs        *prometheus.GaugeVec
	srtSendRateMbps *prometheus.GaugeVec
	srtRecvRateMbps *prometheus.GaugeVec

	fragmentLoss *prometheus.CounterVec
	queueDepth   *prometheus.GaugeVec
	sinkClosed   *prometheus.CounterVec

	relayActiveStreams *prometheus.GaugeVec
	relaySubscribers   *prometheus.GaugeVec
}

// New builds a Registry and registers every collector against a fresh
// prometheus.Registry (not the global DefaultRegisterer, so a process can
// run more than one without collisions).
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		srtPacketsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mirror",
			Subsystem: "srt",
			Name:      "packets_sent_total",
			Help:      "Total SRT packets sent, per channel.",
		}, []string{"channel_id", "role"}),
		srtPacketsRecv: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mirror",
			Subsystem: "srt",
			Name:      "packets_received_total",
			Help:      "Total SRT packets received, per channel.",
		}, []string{"channel_id", "role"}),
		srtPacketsLost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mirror",
			Subsystem: "srt",
			Name:      "packets_lost_total",
			Help:      "Total SRT packets lost, per channel.",
		}, []string{"channel_id", "role"}),
		srtRetransmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mirror",
			Subsystem: "srt",
			Name:      "packets_retransmitted_total",
			Help:      "Total SRT packets retransmitted, per channel.",
		}, []string{"channel_id", "role"}),
		srtRTTMs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mirror",
			Subsystem: "srt",
			Name:      "rtt_milliseconds",
			Help:      "Last observed SRT round-trip time, per channel.",
		}, []string{"channel_id", "role"}),
		srtSendRateMbps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mirror",
			Subsystem: "srt",
			Name:      "send_rate_mbps",
			Help:      "Last observed SRT send rate in Mbps, per channel.",
		}, []string{"channel_id", "role"}),
		srtRecvRateMbps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mirror",
			Subsystem: "srt",
			Name:      "recv_rate_mbps",
			Help:      "Last observed SRT receive rate in Mbps, per channel.",
		}, []string{"channel_id", "role"}),
		fragmentLoss: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mirror",
			Subsystem: "fragment",
			Name:      "loss_total",
			Help:      "Total reassembly-layer loss events, per channel and transport.",
		}, []string{"channel_id", "transport"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mirror",
			Subsystem: "adapter",
			Name:      "queue_depth",
			Help:      "Current adapter queue depth, per channel and stream kind.",
		}, []string{"channel_id", "kind"}),
		sinkClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mirror",
			Subsystem: "pipeline",
			Name:      "sink_closed_total",
			Help:      "Total sink closures, per channel and reason.",
		}, []string{"channel_id", "reason"}),
		relayActiveStreams: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mirror",
			Subsystem: "relay",
			Name:      "active_streams",
			Help:      "Number of channels currently published through the relay.",
		}, []string{}),
		relaySubscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mirror",
			Subsystem: "relay",
			Name:      "subscribers",
			Help:      "Number of subscriber sockets attached to a channel.",
		}, []string{"channel_id"}),
	}

	reg.MustRegister(
		r.srtPacketsSent,
		r.srtPacketsRecv,
		r.srtPacketsLost,
		r.srtRetransmits,
		r.srtRTTMs,
		r.srtSendRateMbps,
		r.srtRecvRateMbps,
		r.fragmentLoss,
		r.queueDepth,
		r.sinkClosed,
		r.relayActiveStreams,
		r.relaySubscribers,
	)

	return r
}

// ObserveSRT records one gosrt.Statistics sample for the given channel and
// role ("sender" or "receiver"). Counter fields are reported as totals, so
// Prometheus's own rate() over the series is what callers graph, not a
// manually-differenced delta here.
func (r *Registry) ObserveSRT(channelID string, role string, stats gosrt.Statistics) {
	if r == nil {
		return
	}

	r.srtPacketsSent.WithLabelValues(channelID, role).Add(float64(stats.PktSentTotal))
	r.srtPacketsRecv.WithLabelValues(channelID, role).Add(float64(stats.PktRecvTotal))
	r.srtPacketsLost.WithLabelValues(channelID, role).Add(float64(stats.PktSndLossTotal + stats.PktRcvLossTotal))
	r.srtRetransmits.WithLabelValues(channelID, role).Add(float64(stats.PktRetransTotal))
	r.srtRTTMs.WithLabelValues(channelID, role).Set(stats.MsRTT)
	r.srtSendRateMbps.WithLabelValues(channelID, role).Set(stats.MbpsSendRate)
	r.srtRecvRateMbps.WithLabelValues(channelID, role).Set(stats.MbpsRecvRate)
}

// FragmentLoss increments the fragment-layer loss counter for one channel
// and transport ("srt" or "multicast").
func (r *Registry) FragmentLoss(channelID string, transport string) {
	if r == nil {
		return
	}
	r.fragmentLoss.WithLabelValues(channelID, transport).Inc()
}

// SetQueueDepth reports the current depth of one adapter queue.
func (r *Registry) SetQueueDepth(channelID string, kind string, depth int) {
	if r == nil {
		return
	}
	r.queueDepth.WithLabelValues(channelID, kind).Set(float64(depth))
}

// SinkClosed increments the sink-close counter for one channel and reason
// ("source_ended", "encode_error", "adapter_closed", "decode_error",
// "transport_error", "sink_declined", "explicit_close").
func (r *Registry) SinkClosed(channelID string, reason string) {
	if r == nil {
		return
	}
	r.sinkClosed.WithLabelValues(channelID, reason).Inc()
}

// SetActiveStreams reports the relay's current published-channel count.
func (r *Registry) SetActiveStreams(n int) {
	if r == nil {
		return
	}
	r.relayActiveStreams.WithLabelValues().Set(float64(n))
}

// SetSubscribers reports the current subscriber count for one channel.
func (r *Registry) SetSubscribers(channelID string, n int) {
	if r == nil {
		return
	}
	r.relaySubscribers.WithLabelValues(channelID).Set(float64(n))
}

// Serve runs the /metrics HTTP endpoint until ctx is cancelled, then shuts
// the server down gracefully. A Registry built with New() but never
// Served still collects correctly — this method only controls exposure.
func Serve(ctx context.Context, addr string, r *Registry, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", "addr", addr)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
