// Package logging provides structured logging using uber/zap.
//
// This package offers two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Both modes write to stderr by default so that CLI output on stdout
// (session listings, serialized buffers) stays clean.
//
// Components across the client take an optional *zap.Logger and name
// themselves with Named, e.g. "command", "events", "directory", "terminal".
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Connected to host", zap.String("url", url))
//	logger.Error("Listing failed", zap.Error(err))
package logging
