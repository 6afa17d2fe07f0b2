package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"multichat/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cmd.Execute(ctx, os.Args[1:])
	stop()

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		slog.Info("interrupted, exiting")
	default:
		// cmd installs the configured logger once its config loads.
		slog.Error("multichat failed", "err", err)
		os.Exit(1)
	}
}
