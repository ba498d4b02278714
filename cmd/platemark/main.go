// Package main provides the entry point for the platemark CLI tool.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/platemark/platemark/cmd/platemark/cmd"
	"github.com/platemark/platemark/pkg/errors"
	"github.com/platemark/platemark/pkg/logging"
)

// Version information populated by goreleaser.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.ExecuteContext(ctx); err != nil {
		// Per-part failures were already logged by the command itself.
		if !errors.IsValidationError(err) {
			logging.Err(err).Msg("Command failed")
		}
		os.Exit(1)
	}
}
