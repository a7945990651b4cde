//go:build windows
// +build windows

package main

import "context"

func setupReloadSignal(ctx context.Context, reanalyze func(reason string)) {
	// Windows has no SIGUSR1, only file changes trigger a new analysis
}
