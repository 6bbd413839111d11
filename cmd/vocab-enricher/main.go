// Package main is the vocab-enricher CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/minhyannv/vocab-enricher/pkg/enricher"
)

// Exit codes.
const (
	exitOK      = 0
	exitError   = 1
	exitPartial = 2
)

// main is the program entry point.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stderr, enricher.Run)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string, stderr io.Writer, run runFunc) int {
	var report enricher.Report
	cmd := newRootCommand(run, stderr, &report)
	cmd.SetArgs(args)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	if report.Failed() {
		_, _ = fmt.Fprintf(stderr, "%d of %d item(s) could not be enriched\n", len(report.Failures), report.Items)
		return exitPartial
	}
	return exitOK
}
