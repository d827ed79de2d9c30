package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/plansmith/plansmith/internal/cmd"
	"github.com/plansmith/plansmith/internal/exitcode"
	"github.com/plansmith/plansmith/internal/ux"
)

func main() {
	// Cancel the root context on SIGINT or SIGTERM so a generation in
	// flight can stop cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		// A cancelled context means the user interrupted, exit 130 like
		// a shell would.
		if ctx.Err() == context.Canceled {
			fmt.Fprintln(os.Stderr, "\ncancelled")
			exitcode.Exit(exitcode.Interrupted)
		}

		fmt.Fprint(os.Stderr, ux.NewRenderer(false).Error(err))
		exitcode.ExitWithError(err)
	}
	exitcode.Exit(exitcode.Success)
}
