package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/localp2p/discoveryd/internal/config"
	"github.com/localp2p/discoveryd/internal/identity"
	"github.com/localp2p/discoveryd/internal/validate"
)

func runInit(args []string) {
	if err := doInit(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doInit(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	dirFlag := fs.String("dir", "", "config directory (default: ~/.config/discoveryd)")
	nameFlag := fs.String("name", "", "device name shown to peers (default: hostname)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	deviceName := *nameFlag
	if deviceName == "" {
		h, err := os.Hostname()
		if err != nil {
			h = "localp2p-node"
		}
		deviceName = h
	}
	if err := validate.DeviceName(deviceName); err != nil {
		return fmt.Errorf("invalid --name value: %w", err)
	}

	configDir := *dirFlag
	if configDir == "" {
		d, err := config.DefaultConfigDir()
		if err != nil {
			return fmt.Errorf("cannot determine config directory: %w", err)
		}
		configDir = d
	}

	configFile := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config already exists: %s\nDelete it first if you want to reinitialize", configFile)
	}

	fmt.Fprintf(stdout, "Creating config directory: %s\n", configDir)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	keyFile := filepath.Join(configDir, "identity.key")
	fmt.Fprintln(stdout, "Generating identity...")
	peerID, err := identity.PeerIDFromKeyFile(keyFile)
	if err != nil {
		return fmt.Errorf("failed to generate identity: %w", err)
	}
	fmt.Fprintf(stdout, "Your Peer ID: %s\n", peerID)
	fmt.Fprintln(stdout)

	if err := os.WriteFile(configFile, []byte(nodeConfigTemplate(deviceName)), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(stdout, "Config written to:   %s\n", configFile)
	fmt.Fprintf(stdout, "Identity saved to:   %s\n", keyFile)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Next steps:")
	fmt.Fprintln(stdout, "  1. Run the daemon:     localp2pd run")
	fmt.Fprintln(stdout, "  2. See who's around:   localp2pd list")
	fmt.Fprintln(stdout, "  3. Say hello:          localp2pd send <peer-id> \"hi!\"")
	return nil
}

func nodeConfigTemplate(deviceName string) string {
	return fmt.Sprintf(`# localp2pd configuration — generated by 'localp2pd init'
version: 1

identity:
  key_file: identity.key
  device_name: %s

network:
  listen_addresses:
    - /ip4/0.0.0.0/tcp/0

discovery:
  node_timeout: 5m
  cleanup_interval: 1m
  mdns_service_tag: _localp2p-discovery._udp

health:
  heartbeat_interval: 10s
  max_failures: 3

telemetry:
  metrics:
    enabled: false
`, deviceName)
}
