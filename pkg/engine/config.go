package engine

import (
	"time"

	"github.com/localp2p/discoveryd/pkg/health"
	"github.com/localp2p/discoveryd/pkg/registry"
)

// Config holds the Managed Discovery Engine's construction parameters.
// internal/config.Config is the on-disk YAML shape; cmd/localp2pd
// translates a loaded file into this struct before calling New.
type Config struct {
	ListenAddresses []string

	ProtocolVersion string
	AgentPrefix     string
	DeviceName      string

	NodeTimeout       time.Duration
	CleanupInterval   time.Duration
	HeartbeatInterval time.Duration
	MaxFailures       uint32

	// MdnsServiceTag names the mDNS service this engine advertises and
	// browses for. Peers on different tags never discover each other,
	// which is useful for test isolation.
	MdnsServiceTag string
}

// DefaultConfig returns the spec's documented defaults, composed from the
// registry and health packages' own defaults so the three packages never
// drift out of sync.
func DefaultConfig() Config {
	reg := registry.DefaultConfig()
	h := health.DefaultConfig()
	return Config{
		ListenAddresses:   []string{"/ip4/0.0.0.0/tcp/0"},
		ProtocolVersion:   reg.ExpectedProtocolVersion,
		AgentPrefix:       reg.ExpectedAgentPrefix,
		NodeTimeout:       reg.NodeTimeout,
		CleanupInterval:   reg.CleanupInterval,
		HeartbeatInterval: h.HeartbeatInterval,
		MaxFailures:       h.MaxFailures,
		MdnsServiceTag:    "_localp2p-discovery._udp",
	}
}

func (c Config) registryConfig() registry.Config {
	return registry.Config{
		NodeTimeout:             c.NodeTimeout,
		CleanupInterval:         c.CleanupInterval,
		ExpectedProtocolVersion: c.ProtocolVersion,
		ExpectedAgentPrefix:     c.AgentPrefix,
	}
}

func (c Config) healthConfig() health.Config {
	return health.Config{
		HeartbeatInterval: c.HeartbeatInterval,
		MaxFailures:       c.MaxFailures,
	}
}
