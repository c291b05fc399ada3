package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/localp2p/discoveryd/internal/validate"
	"github.com/localp2p/discoveryd/pkg/health"
	"github.com/localp2p/discoveryd/pkg/registry"
)

// checkConfigFilePermissions returns an error if a config file has overly
// permissive permissions (group/world readable), which makes Load reject
// it. Config files may reference key file paths and listen addresses.
func checkConfigFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil // file access errors are handled by the caller
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("config file %s has overly permissive mode %04o; expected 0600 — fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// Load reads and parses node configuration from a YAML file, applying
// defaults for any zero-valued discovery/health/telemetry fields.
func Load(path string) (*Config, error) {
	if err := checkConfigFilePermissions(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if cfg.Version > CurrentConfigVersion {
		return nil, fmt.Errorf("%w: version %d is newer than supported version %d; please upgrade discoveryd", ErrConfigVersionTooNew, cfg.Version, CurrentConfigVersion)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults fills zero-valued tunables with the same defaults the
// registry and health packages use when constructed directly.
func applyDefaults(cfg *Config) {
	regDefaults := registry.DefaultConfig()
	if cfg.Discovery.NodeTimeout == 0 {
		cfg.Discovery.NodeTimeout = regDefaults.NodeTimeout
	}
	if cfg.Discovery.CleanupInterval == 0 {
		cfg.Discovery.CleanupInterval = regDefaults.CleanupInterval
	}
	if cfg.Discovery.MdnsServiceTag == "" {
		cfg.Discovery.MdnsServiceTag = "_localp2p-discovery._udp"
	}

	healthDefaults := health.DefaultConfig()
	if cfg.Health.HeartbeatInterval == 0 {
		cfg.Health.HeartbeatInterval = healthDefaults.HeartbeatInterval
	}
	if cfg.Health.MaxFailures == 0 {
		cfg.Health.MaxFailures = healthDefaults.MaxFailures
	}

	if cfg.Telemetry.Metrics.Enabled && cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = "127.0.0.1:9091"
	}

	if cfg.Identity.ProtocolVersion == "" {
		cfg.Identity.ProtocolVersion = regDefaults.ExpectedProtocolVersion
	}
	if cfg.Identity.AgentPrefix == "" {
		cfg.Identity.AgentPrefix = regDefaults.ExpectedAgentPrefix
	}
}

// Validate checks that required fields are present and well-formed.
func Validate(cfg *Config) error {
	if cfg.Identity.KeyFile == "" {
		return fmt.Errorf("identity.key_file is required")
	}
	if cfg.Identity.DeviceName == "" {
		return fmt.Errorf("identity.device_name is required")
	}
	if err := validate.DeviceName(cfg.Identity.DeviceName); err != nil {
		return fmt.Errorf("identity.device_name: %w", err)
	}
	if len(cfg.Network.ListenAddresses) == 0 {
		return fmt.Errorf("network.listen_addresses must contain at least one address")
	}
	if cfg.Discovery.MdnsServiceTag != "" {
		if err := validate.MdnsServiceTag(cfg.Discovery.MdnsServiceTag); err != nil {
			return fmt.Errorf("discovery.mdns_service_tag: %w", err)
		}
	}
	return nil
}

// FindConfigFile searches for a discoveryd config file in standard
// locations. Search order: explicitPath (if given), ./discoveryd.yaml,
// ~/.config/discoveryd/config.yaml, /etc/discoveryd/config.yaml.
func FindConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, explicitPath)
		}
		return explicitPath, nil
	}

	searchPaths := []string{"discoveryd.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "discoveryd", "config.yaml"))
	}
	searchPaths = append(searchPaths, filepath.Join("/etc", "discoveryd", "config.yaml"))

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w; searched:\n  %s\n\nRun 'localp2pd init' to create one, or use --config <path>", ErrConfigNotFound, strings.Join(searchPaths, "\n  "))
}

// ResolveConfigPaths resolves a relative identity.key_file to be relative
// to the config file's directory, so configs under ~/.config/discoveryd/
// can reference key files with relative paths.
func ResolveConfigPaths(cfg *Config, configDir string) {
	if cfg.Identity.KeyFile != "" && !filepath.IsAbs(cfg.Identity.KeyFile) {
		cfg.Identity.KeyFile = filepath.Join(configDir, cfg.Identity.KeyFile)
	}
}

// DefaultConfigDir returns the default discoveryd config directory
// (~/.config/discoveryd).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "discoveryd"), nil
}
