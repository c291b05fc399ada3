package config

import "time"

// CurrentConfigVersion is the latest configuration schema version.
// Bump this when adding fields that require migration.
const CurrentConfigVersion = 1

// Config is the unified configuration for a discoveryd node: identity,
// listen addresses, discovery/health tuning, and optional telemetry.
type Config struct {
	Version   int             `yaml:"version,omitempty"`
	Identity  IdentityConfig  `yaml:"identity"`
	Network   NetworkConfig   `yaml:"network"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Health    HealthConfig    `yaml:"health,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// IdentityConfig points at the persisted keypair and describes this node
// to peers during identity exchange.
type IdentityConfig struct {
	KeyFile         string `yaml:"key_file"`
	DeviceName      string `yaml:"device_name"`
	ProtocolVersion string `yaml:"protocol_version"`
	AgentPrefix     string `yaml:"agent_prefix"`
}

// NetworkConfig holds the libp2p host's listen addresses.
type NetworkConfig struct {
	ListenAddresses []string `yaml:"listen_addresses"`
}

// DiscoveryConfig tunes the verified-node registry's timeout reaping and
// the mDNS service this node advertises and browses for.
type DiscoveryConfig struct {
	NodeTimeout     time.Duration `yaml:"node_timeout"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	MdnsServiceTag  string        `yaml:"mdns_service_tag,omitempty"`
}

// HealthConfig tunes the liveness prober.
type HealthConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	MaxFailures       uint32        `yaml:"max_failures"`
}

// TelemetryConfig holds observability settings, disabled by default.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// MetricsConfig controls Prometheus metrics exposure.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"` // default: "127.0.0.1:9091"
}
