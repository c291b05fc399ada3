package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/localp2p/discoveryd/internal/termcolor"
)

func runList(args []string) {
	if err := doList(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doList(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	waitFlag := fs.Duration("wait", 3*time.Second, "how long to listen for mDNS announcements before printing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, _, _, err := buildEngine(*configFlag)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := shutdownContext()
		defer cancel()
		_ = e.Stop(ctx)
	}()

	termcolor.Faint("listening for %s...\n", *waitFlag)
	time.Sleep(*waitFlag)

	nodes := e.ListVerifiedNodes()
	if len(nodes) == 0 {
		fmt.Fprintln(stdout, "No verified peers found.")
		return nil
	}
	for _, n := range nodes {
		fmt.Fprintf(stdout, "%s\t%s\t%s\n", n.DisplayName(), n.ProtocolVersion, n.LastSeen.Format(time.RFC3339))
	}
	return nil
}
