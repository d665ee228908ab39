/*
Package events demultiplexes the host's single event channel.

Every payload on the channel is {"type": tag, ...fields}. Decode turns it
into one of a closed set of variants and Demux routes it to the handlers
registered for that tag:

	d := events.New(bridge, events.Options{Logger: logger})
	sub, err := events.OnOutput(ctx, d, func(e events.SessionOutput) {
		// e.ID, e.Data
	})
	defer sub.Close()

One host listener backs all subscriptions. Delivery is fan-out in host
order from a single goroutine; nothing is reordered or coalesced.
*/
package events
