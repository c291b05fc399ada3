package main

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/localp2p/discoveryd/internal/config"
	"github.com/localp2p/discoveryd/internal/identity"
	"github.com/localp2p/discoveryd/pkg/engine"
	"github.com/localp2p/discoveryd/pkg/telemetry"
	"github.com/localp2p/discoveryd/pkg/wire"
)

// buildEngine loads the node's config and identity from disk and starts an
// Engine. Every subcommand that talks to the network goes through this,
// so "list"/"send"/"ping" see exactly the same peer ID and tuning a long-
// running "run" daemon would.
func buildEngine(configPath string) (*engine.Engine, *config.Config, *telemetry.Metrics, error) {
	cfgFile, err := config.FindConfigFile(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config error: %w", err)
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config error: %w", err)
	}
	config.ResolveConfigPaths(cfg, filepath.Dir(cfgFile))
	if err := config.Validate(cfg); err != nil {
		return nil, nil, nil, fmt.Errorf("config invalid: %w", err)
	}

	priv, err := identity.LoadOrGenerate(cfg.Identity.KeyFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load identity: %w", err)
	}

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Metrics.Enabled {
		metrics = telemetry.NewMetrics(version, runtime.Version())
	}

	engCfg := engine.Config{
		ListenAddresses:   cfg.Network.ListenAddresses,
		ProtocolVersion:   cfg.Identity.ProtocolVersion,
		AgentPrefix:       cfg.Identity.AgentPrefix,
		DeviceName:        cfg.Identity.DeviceName,
		NodeTimeout:       cfg.Discovery.NodeTimeout,
		CleanupInterval:   cfg.Discovery.CleanupInterval,
		HeartbeatInterval: cfg.Health.HeartbeatInterval,
		MaxFailures:       cfg.Health.MaxFailures,
		MdnsServiceTag:    cfg.Discovery.MdnsServiceTag,
	}
	nickname := cfg.Identity.DeviceName
	localInfo := wire.UserInfo{DeviceName: cfg.Identity.DeviceName, Nickname: &nickname}

	e, err := engine.New(engCfg, priv, localInfo, metrics)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to construct engine: %w", err)
	}
	if err := e.Start(); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to start engine: %w", err)
	}
	return e, cfg, metrics, nil
}
