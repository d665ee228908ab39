/*
Package monitoring provides Prometheus metrics for the client bridge.

# Overview

Metrics cover host commands, event delivery, the session directory,
terminal output and input, and the websocket bridge. All collectors are
registered on an injected prometheus.Registerer so tests can use a fresh
registry per case. A nil *Metrics is valid and records nothing.

# Usage

	metrics := monitoring.NewMetrics(prometheus.NewRegistry())

	timer := monitoring.NewTimer(metrics, "GetTerminals")
	// ... perform the command ...
	timer.Stop(monitoring.OutcomeSuccess)

	metrics.SetSessions(3)

# Metrics Endpoint

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
*/
package monitoring
