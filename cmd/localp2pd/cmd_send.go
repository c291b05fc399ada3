package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/localp2p/discoveryd/internal/termcolor"
)

func runSend(args []string) {
	if err := doSend(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doSend(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	waitFlag := fs.Duration("wait", 10*time.Second, "how long to wait for the peer to be discovered")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 2 {
		return fmt.Errorf("usage: localp2pd send [--config path] <peer-id> <text>")
	}
	target, text := rest[0], rest[1]

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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.SendMessage(ctx, target, text); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}

	fmt.Fprintf(stdout, "Sent to %s\n", target)
	return nil
}
