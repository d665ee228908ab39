// Package client assembles the session stack for one host connection.
//
// Connect dials the websocket bridge (behind an optional circuit breaker)
// and New accepts any host.Host, which is how tests and the demo host use
// it. Both build the same graph: a command executor and the typed session
// API on top of it, one event demultiplexer for the host channel, and a
// session directory fed by both. Synchronizers for individual sessions are
// created on demand and share the demultiplexer.
package client
