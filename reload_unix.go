// Completion: 100% - Platform-specific module complete
//go:build !windows
// +build !windows

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// setupReloadSignal re-runs the analysis on SIGUSR1 until ctx is cancelled
func setupReloadSignal(ctx context.Context, reanalyze func(reason string)) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)
	go func() {
		defer signal.Stop(sigChan)
		for {
			select {
			case <-sigChan:
				reanalyze("Manual reload triggered (SIGUSR1)")
			case <-ctx.Done():
				return
			}
		}
	}()
}
