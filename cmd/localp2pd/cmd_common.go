package main

import (
	"context"
	"fmt"
	"time"

	"github.com/localp2p/discoveryd/pkg/engine"
)

// shutdownContext returns a bounded context for a subcommand's final
// e.Stop call, so a wedged engine can't hang the CLI on exit.
func shutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// waitForVerified polls the registry until target is verified or timeout
// elapses. The one-shot subcommands (send, ping) need this because mDNS
// discovery and identify verification both happen asynchronously on the
// engine's own goroutines.
func waitForVerified(e *engine.Engine, target string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		for _, n := range e.ListVerifiedNodes() {
			if n.PeerID.String() == target {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting to discover and verify peer %s", target)
		}
		time.Sleep(200 * time.Millisecond)
	}
}
