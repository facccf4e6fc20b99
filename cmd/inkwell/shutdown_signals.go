package main

import (
	"context"
	"os"
	"sync/atomic"

	"inkwell/internal/logging"
)

// watchShutdownSignals cancels on the first signal and logs, once, that
// later signals are ignored. The returned func stops the watcher.
func watchShutdownSignals(logger *logging.Logger, cancel context.CancelFunc, signalCh <-chan os.Signal) func() {
	if signalCh == nil {
		return func() {}
	}

	done := make(chan struct{})
	var shutdownStarted atomic.Bool
	var loggedRepeat atomic.Bool

	go func() {
		for {
			select {
			case <-done:
				return
			case sig, ok := <-signalCh:
				if !ok {
					return
				}
				fields := map[string]string{}
				if sig != nil {
					fields["signal"] = sig.String()
				}
				if shutdownStarted.CompareAndSwap(false, true) {
					if logger != nil {
						logger.Info("shutdown signal received", fields)
					}
					if cancel != nil {
						cancel()
					}
					continue
				}
				if loggedRepeat.CompareAndSwap(false, true) && logger != nil {
					logger.Info("shutdown already in progress; ignoring signal", fields)
				}
			}
		}
	}()

	var stopOnce atomic.Bool
	return func() {
		if stopOnce.CompareAndSwap(false, true) {
			close(done)
		}
	}
}
