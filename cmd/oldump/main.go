// Package main provides the entry point for the oldump CLI tool.
package main

import (
	"context"
	"errors"
	"os"

	"github.com/sayshara/oldump/cmd/oldump/app"
)

// Version information populated by goreleaser.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	application, err := app.New(version, commit, date)
	if err != nil {
		app.ExitOnError(err)
	}

	// Create context with signal handling for graceful shutdown
	ctx, cancel := app.ContextWithSignals(context.Background())
	defer cancel()

	if err := application.Execute(ctx, os.Args[1:]); err != nil {
		// Some artifacts failed but the run completed: distinct exit
		// code so schedulers can tell partial from total failure.
		if errors.Is(err, app.ErrPartialFailure) {
			os.Exit(app.ExitCodePartialFailure)
		}
		app.ExitOnError(err)
	}
}
