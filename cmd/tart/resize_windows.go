//go:build windows

package main

// resizeSignals never ticks; consoles do not signal window changes
func resizeSignals() (ticks <-chan struct{}, stop func()) {
	return nil, func() {}
}
