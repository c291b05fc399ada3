// Package telemetry exposes the engine's Prometheus metrics surface: an
// isolated registry and the small set of gauges/counters a LAN discovery
// and chat daemon needs, as opposed to the teacher's full relay/proxy/auth
// metric set.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds discoveryd's Prometheus collectors on an isolated
// prometheus.Registry, so they never collide with the global default
// registry — every engine instance (and every test) gets its own.
type Metrics struct {
	Registry *prometheus.Registry

	// Discovery
	MDNSDiscoveredTotal  *prometheus.CounterVec
	VerificationTotal    *prometheus.CounterVec
	VerifiedNodes        prometheus.Gauge

	// Liveness
	PingRTTSeconds       *prometheus.HistogramVec
	LivenessFailuresTotal prometheus.Counter
	NodeOfflineTotal     prometheus.Counter
	NodeRecoveredTotal   prometheus.Counter

	// Chat
	ChatMessagesSentTotal     *prometheus.CounterVec
	ChatMessagesReceivedTotal *prometheus.CounterVec
	ChatMessagesFailedTotal   prometheus.Counter

	// Build info
	BuildInfo *prometheus.GaugeVec
}

// NewMetrics creates a Metrics instance with every collector registered on
// a fresh, isolated registry. version/goVersion are recorded as labels on
// the discoveryd_info gauge.
func NewMetrics(version, goVersion string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		MDNSDiscoveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discoveryd_mdns_discovered_total",
				Help: "Total mDNS discovery events.",
			},
			[]string{"result"}, // "discovered" | "expired"
		),
		VerificationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discoveryd_verification_total",
				Help: "Total identity verification attempts by outcome.",
			},
			[]string{"result"}, // "verified" | "failed"
		),
		VerifiedNodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "discoveryd_verified_nodes",
				Help: "Current number of verified nodes in the registry.",
			},
		),

		PingRTTSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "discoveryd_ping_rtt_seconds",
				Help:    "Round-trip time of liveness probes.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
			},
			[]string{"peer"},
		),
		LivenessFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "discoveryd_liveness_failures_total",
				Help: "Total failed liveness probes across all peers.",
			},
		),
		NodeOfflineTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "discoveryd_node_offline_total",
				Help: "Total NodeOffline transitions emitted.",
			},
		),
		NodeRecoveredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "discoveryd_node_recovered_total",
				Help: "Total NodeRecovered transitions emitted.",
			},
		),

		ChatMessagesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discoveryd_chat_messages_sent_total",
				Help: "Total chat messages sent, by kind.",
			},
			[]string{"kind"}, // "text" | "typing" | "ack"
		),
		ChatMessagesReceivedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discoveryd_chat_messages_received_total",
				Help: "Total chat messages received, by kind.",
			},
			[]string{"kind"},
		),
		ChatMessagesFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "discoveryd_chat_messages_failed_total",
				Help: "Total chat messages that failed wire transmission.",
			},
		),

		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "discoveryd_info",
				Help: "Build information for the running discoveryd instance.",
			},
			[]string{"version", "go_version"},
		),
	}

	reg.MustRegister(
		m.MDNSDiscoveredTotal,
		m.VerificationTotal,
		m.VerifiedNodes,
		m.PingRTTSeconds,
		m.LivenessFailuresTotal,
		m.NodeOfflineTotal,
		m.NodeRecoveredTotal,
		m.ChatMessagesSentTotal,
		m.ChatMessagesReceivedTotal,
		m.ChatMessagesFailedTotal,
		m.BuildInfo,
	)

	m.BuildInfo.WithLabelValues(version, goVersion).Set(1)

	return m
}

// Handler returns an http.Handler serving the Prometheus exposition format
// for this Metrics instance's isolated registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
