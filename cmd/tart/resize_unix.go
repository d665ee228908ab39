//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// resizeSignals ticks on every terminal window change until stop is called
func resizeSignals() (ticks <-chan struct{}, stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGWINCH)
	return relay(sigs), func() {
		signal.Stop(sigs)
		close(sigs)
	}
}
