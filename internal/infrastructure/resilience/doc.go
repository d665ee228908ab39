/*
Package resilience provides the circuit breaker used around host bridge calls.

# Overview

When the host stops answering, every command would otherwise wait on a dead
connection. The breaker counts transport failures and, once tripped, fails
calls immediately with ErrCircuitOpen until a timeout elapses and a probe
succeeds. It never retries: a rejected call is reported to its caller as a
transport failure, the same as a dropped connection.

Command failures reported by the host (an Err outcome) are successful calls
from the breaker's point of view; only errors returned by the transport
count. Context cancellation is not a failure by default.

# Usage

	breaker := resilience.New("host", resilience.Settings{
		Timeout:     10 * time.Second,
		ReadyToTrip: resilience.ConsecutiveFailures(5),
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker state changed", zap.String("to", to.String()))
		},
	})

	err := breaker.Do(func() error {
		_, err := conn.call(ctx, frame)
		return err
	})
*/
package resilience
