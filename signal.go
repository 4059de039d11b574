package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// withShutdown returns a context canceled by the first SIGINT or SIGTERM.
// A second signal exits immediately, for when draining hangs. The returned
// stop function releases the signal handler.
func withShutdown(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("shutting down", slog.String("signal", sig.String()))
			cancel()
		case <-done:
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("second signal, exiting now", slog.String("signal", sig.String()))
			os.Exit(1)
		case <-done:
		}
	}()

	var once sync.Once

	stop := func() {
		once.Do(func() { close(done) })
		cancel()
	}

	return ctx, stop
}
