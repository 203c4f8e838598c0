// Explorer CLI
//
// Browses and edits a bucket namespace from the terminal, either against
// an in-memory demo snapshot or a remote namespace API:
// - ls, tree, find over folders
// - cat, edit, preview, get for files
// - put, mkdir, rm for mutations
// - login and watch against a remote server
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fruitsalade/explorer/internal/config"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	// Flags may still fix an invalid environment; validation happens
	// once they are applied.
	cfg, _ := config.LoadClient()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := newCLIApp(cfg, os.Stdin, os.Stdout)
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "explorer:", err)
		os.Exit(1)
	}
}
