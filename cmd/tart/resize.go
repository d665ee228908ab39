package main

import "os"

// relay turns signals into resize ticks. Ticks coalesce while the reader
// is busy; the tick channel closes after sigs does.
func relay(sigs <-chan os.Signal) <-chan struct{} {
	ticks := make(chan struct{}, 1)
	go func() {
		defer close(ticks)
		for range sigs {
			select {
			case ticks <- struct{}{}:
			default:
			}
		}
	}()
	return ticks
}
