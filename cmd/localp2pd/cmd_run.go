package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/localp2p/discoveryd/internal/termcolor"
	"github.com/localp2p/discoveryd/internal/watchdog"
	"github.com/localp2p/discoveryd/pkg/chatsession"
	"github.com/localp2p/discoveryd/pkg/engine"
)

func runRun(args []string) {
	if err := doRun(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, cfg, metrics, err := buildEngine(*configFlag)
	if err != nil {
		return err
	}

	termcolor.Green("localp2pd running as %s (%s)", e.LocalPeerID(), e.DeviceName())

	if cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go serveMetrics(cfg.Telemetry.Metrics.ListenAddress, mux)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go printEvents(e.Events())
	go printChatEvents(e.ChatEvents())

	watchdog.Ready()
	go watchdog.Run(ctx, watchdog.Config{Interval: cfg.Health.HeartbeatInterval}, []watchdog.HealthCheck{
		{Name: "event-loop", Check: func() error {
			wctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if e.IsEventLoopAlive(wctx) {
				return nil
			}
			if err := e.RestartDiscovery(); err != nil {
				return fmt.Errorf("restart discovery: %w", err)
			}
			return fmt.Errorf("event loop was unresponsive, restarted discovery")
		}},
	})

	<-ctx.Done()
	watchdog.Stopping()
	termcolor.Yellow("shutting down...")

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.Stop(stopCtx)
}

func serveMetrics(addr string, mux *http.ServeMux) {
	slog.Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Warn("metrics server stopped", "err", err)
	}
}

func printEvents(events <-chan engine.Event) {
	for ev := range events {
		switch {
		case ev.Discovered != nil:
			termcolor.Faint("discovered %s\n", ev.Discovered.PeerID)
		case ev.Expired != nil:
			termcolor.Faint("expired %s\n", ev.Expired.PeerID)
		case ev.Verified != nil:
			termcolor.Green("verified %s", ev.Verified.PeerID)
		case ev.VerificationFailed != nil:
			termcolor.Red("verification failed for %s: %s", ev.VerificationFailed.PeerID, ev.VerificationFailed.Reason)
		case ev.UserInfoReceived != nil:
			termcolor.Faint("user info from %s: %s\n", ev.UserInfoReceived.PeerID, ev.UserInfoReceived.Info.DeviceName)
		case ev.NodeRecovered != nil:
			termcolor.Green("%s recovered (rtt %s)", ev.NodeRecovered.PeerID, ev.NodeRecovered.RTT)
		case ev.NodeOffline != nil:
			termcolor.Red("%s is offline", ev.NodeOffline.PeerID)
		}
	}
}

func printChatEvents(events <-chan chatsession.Event) {
	for ev := range events {
		switch {
		case ev.MessageReceived != nil && ev.MessageReceived.Message.Text != nil:
			fmt.Printf("[%s] %s\n", ev.MessageReceived.From, ev.MessageReceived.Message.Text.Content)
		case ev.MessageAcknowledged != nil:
			termcolor.Faint("ack from %s for %s\n", ev.MessageAcknowledged.From, ev.MessageAcknowledged.MessageID)
		case ev.MessageFailed != nil:
			termcolor.Red("message %s to %s failed: %v", ev.MessageFailed.MessageID, ev.MessageFailed.To, ev.MessageFailed.Err)
		case ev.PeerTyping != nil:
			termcolor.Faint("%s is typing: %v\n", ev.PeerTyping.From, ev.PeerTyping.IsTyping)
		}
	}
}
