package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/localp2p/discoveryd/internal/termcolor"
)

func runPing(args []string) {
	if err := doPing(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

// doPing discovers target and reports the RTT from its next liveness
// probe. engine.Ping only proves the command loop is alive, not a peer's
// reachability, so this watches the Events stream for that peer's next
// NodeRecovered instead of calling engine.Ping.
func doPing(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("ping", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	waitFlag := fs.Duration("wait", 10*time.Second, "how long to wait for the peer to be discovered")
	rttTimeoutFlag := fs.Duration("rtt-timeout", 10*time.Second, "how long to wait for a liveness reading")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 1 {
		return fmt.Errorf("usage: localp2pd ping [--config path] <peer-id>")
	}
	target := rest[0]

	e, _, _, err := buildEngine(*configFlag)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := shutdownContext()
		defer cancel()
		_ = e.Stop(ctx)
	}()

	termcolor.Faint("waiting to discover %s...\n", target)
	if err := waitForVerified(e, target, *waitFlag); err != nil {
		return err
	}

	deadline := time.After(*rttTimeoutFlag)
	for {
		select {
		case ev := <-e.Events():
			if ev.NodeRecovered != nil && ev.NodeRecovered.PeerID.String() == target {
				fmt.Fprintf(stdout, "%s rtt=%s\n", target, ev.NodeRecovered.RTT)
				return nil
			}
			if ev.NodeOffline != nil && ev.NodeOffline.PeerID.String() == target {
				return fmt.Errorf("%s went offline before a liveness reading arrived", target)
			}
		case <-deadline:
			return fmt.Errorf("timed out waiting for a liveness reading from %s", target)
		}
	}
}
