package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/localp2p/discoveryd/internal/validate"
)

const testConfigYAML = `
version: 1
identity:
  key_file: identity.key
  device_name: test-node
  protocol_version: /localp2p/1.0.0
  agent_prefix: localp2p-go/
network:
  listen_addresses:
    - /ip4/0.0.0.0/tcp/0
discovery:
  node_timeout: 5m
  cleanup_interval: 1m
health:
  heartbeat_interval: 10s
  max_failures: 3
`

func writeTestConfig(t testing.TB, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return path
}

func TestLoadParsesFields(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, testConfigYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Identity.DeviceName != "test-node" {
		t.Fatalf("DeviceName = %q, want test-node", cfg.Identity.DeviceName)
	}
	if len(cfg.Network.ListenAddresses) != 1 {
		t.Fatalf("ListenAddresses = %v, want 1 entry", cfg.Network.ListenAddresses)
	}
	if cfg.Discovery.NodeTimeout != 5*time.Minute {
		t.Fatalf("NodeTimeout = %v, want 5m", cfg.Discovery.NodeTimeout)
	}
	if cfg.Health.MaxFailures != 3 {
		t.Fatalf("MaxFailures = %d, want 3", cfg.Health.MaxFailures)
	}
}

func TestLoadRejectsLoosePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(testConfigYAML), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to reject a world-readable config file")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	minimal := `
identity:
  key_file: identity.key
  device_name: test-node
network:
  listen_addresses:
    - /ip4/0.0.0.0/tcp/0
`
	path := writeTestConfig(t, dir, minimal)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discovery.NodeTimeout == 0 {
		t.Fatal("expected NodeTimeout to be defaulted")
	}
	if cfg.Health.MaxFailures == 0 {
		t.Fatal("expected MaxFailures to be defaulted")
	}
	if cfg.Identity.ProtocolVersion == "" {
		t.Fatal("expected ProtocolVersion to be defaulted")
	}
}

func TestLoadRejectsFutureVersion(t *testing.T) {
	dir := t.TempDir()
	future := `
version: 999
identity:
  key_file: identity.key
  device_name: test-node
network:
  listen_addresses: ["/ip4/0.0.0.0/tcp/0"]
`
	path := writeTestConfig(t, dir, future)
	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to reject a config version newer than supported")
	}
}

func TestValidateRequiresKeyFileAndDeviceName(t *testing.T) {
	cfg := &Config{
		Network: NetworkConfig{ListenAddresses: []string{"/ip4/0.0.0.0/tcp/0"}},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected Validate to require identity.key_file")
	}
	cfg.Identity.KeyFile = "identity.key"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected Validate to require identity.device_name")
	}
	cfg.Identity.DeviceName = "node"
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRequiresListenAddresses(t *testing.T) {
	cfg := &Config{
		Identity: IdentityConfig{KeyFile: "k", DeviceName: "n"},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected Validate to require network.listen_addresses")
	}
}

func TestValidateRejectsDeviceNameWithParentheses(t *testing.T) {
	cfg := &Config{
		Identity: IdentityConfig{KeyFile: "k", DeviceName: "node(evil)"},
		Network:  NetworkConfig{ListenAddresses: []string{"/ip4/0.0.0.0/tcp/0"}},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected Validate to reject a device name containing parentheses")
	}
}

func TestValidateRejectsMalformedMdnsServiceTag(t *testing.T) {
	cfg := &Config{
		Identity:  IdentityConfig{KeyFile: "k", DeviceName: "node"},
		Network:   NetworkConfig{ListenAddresses: []string{"/ip4/0.0.0.0/tcp/0"}},
		Discovery: DiscoveryConfig{MdnsServiceTag: "not-a-service-tag"},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected Validate to reject a malformed mdns service tag")
	}
}

func TestApplyDefaultsSetsMdnsServiceTag(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := validate.MdnsServiceTag(cfg.Discovery.MdnsServiceTag); err != nil {
		t.Fatalf("default mdns service tag is malformed: %v", err)
	}
}

func TestResolveConfigPathsJoinsRelative(t *testing.T) {
	cfg := &Config{Identity: IdentityConfig{KeyFile: "identity.key"}}
	ResolveConfigPaths(cfg, "/home/user/.config/discoveryd")
	want := filepath.Join("/home/user/.config/discoveryd", "identity.key")
	if cfg.Identity.KeyFile != want {
		t.Fatalf("KeyFile = %q, want %q", cfg.Identity.KeyFile, want)
	}
}

func TestResolveConfigPathsLeavesAbsolute(t *testing.T) {
	cfg := &Config{Identity: IdentityConfig{KeyFile: "/abs/identity.key"}}
	ResolveConfigPaths(cfg, "/home/user/.config/discoveryd")
	if cfg.Identity.KeyFile != "/abs/identity.key" {
		t.Fatalf("KeyFile = %q, want unchanged absolute path", cfg.Identity.KeyFile)
	}
}

func TestFindConfigFileExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, testConfigYAML)
	found, err := FindConfigFile(path)
	if err != nil {
		t.Fatalf("FindConfigFile: %v", err)
	}
	if found != path {
		t.Fatalf("found = %q, want %q", found, path)
	}
}

func TestFindConfigFileMissingExplicitPath(t *testing.T) {
	if _, err := FindConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected FindConfigFile to error on a missing explicit path")
	}
}
