// Package server is the local diagnostics HTTP server.
//
// Routes:
//
//	GET /              endpoint index
//	GET /health        liveness plus host breaker state; 503 while open
//	GET /sessions      the directory's current session list
//	GET /sessions/:id  one session, 404 when unknown
//	GET /stats         JSON snapshot of the client metrics
//	GET /metrics       Prometheus exposition
//
// Every route is read-only. The server never issues host commands.
package server
