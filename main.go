package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tphakala/uvotredux/cmd"
	"github.com/tphakala/uvotredux/internal/conf"
	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/logger"
)

// telemetryFlushTimeout bounds how long exit waits for Sentry delivery
const telemetryFlushTimeout = 2 * time.Second

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	// Interrupt stops scheduling new observations and kills running tools
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return 1
	}

	rootCmd := cmd.RootCommand(settings)
	runErr := rootCmd.ExecuteContext(ctx)

	errors.FlushTelemetry(telemetryFlushTimeout)
	if err := logger.Global().Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing log file: %v\n", err)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		return 1
	}
	return 0
}
