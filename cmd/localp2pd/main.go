// Command localp2pd is the reference LAN discovery/chat daemon: it
// advertises itself over mDNS, verifies peers by protocol/agent version,
// probes liveness, exchanges user info, and carries chat messages — all
// through a single in-process pkg/engine.Engine.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
)

// Set via -ldflags at build time:
//
//	go build -ldflags "-X main.version=0.1.0 -X main.commit=$(git rev-parse --short HEAD)" -o localp2pd ./cmd/localp2pd
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if len(os.Args) < 2 {
		printUsage()
		osExit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "run":
		runRun(os.Args[2:])
	case "whoami":
		runWhoami(os.Args[2:])
	case "list":
		runList(os.Args[2:])
	case "send":
		runSend(os.Args[2:])
	case "ping":
		runPing(os.Args[2:])
	case "version", "--version":
		printVersion()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		osExit(1)
	}
}

// osExit is a var so tests can stub it out without terminating the test
// binary, matching the teacher's own indirection.
var osExit = os.Exit

func printVersion() {
	fmt.Printf("localp2pd %s (%s)\n", version, commit)
	fmt.Printf("Go %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func printUsage() {
	fmt.Println("Usage: localp2pd <command> [options]")
	fmt.Println()
	fmt.Println("  init                          Create identity and config")
	fmt.Println("  run    [--config path]        Run the discovery/chat daemon")
	fmt.Println("  whoami [--config path]        Show this node's peer ID")
	fmt.Println("  list   [--config path]        Discover peers and print verified nodes")
	fmt.Println("  send   <peer-id> <text>       Send a chat message to a discovered peer")
	fmt.Println("  ping   <peer-id>              Measure RTT to a discovered peer")
	fmt.Println("  version                       Show version information")
	fmt.Println()
	fmt.Println("Without --config, localp2pd searches: ./discoveryd.yaml, ~/.config/discoveryd/config.yaml, /etc/discoveryd/config.yaml")
	fmt.Println()
	fmt.Println("Get started:  localp2pd init")
}
