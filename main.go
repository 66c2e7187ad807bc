package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hexfury/graphport/cmd"
	"github.com/hexfury/graphport/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		logger := observability.GetLogger()
		if errors.Is(err, context.Canceled) {
			logger.Warn("aborted by signal")
		} else {
			logger.Error("command failed", zap.Error(err))
		}
		observability.Sync()
		stop()
		os.Exit(1)
	}
	observability.Sync()
}
