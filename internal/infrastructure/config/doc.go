// Package config provides 12-factor configuration management for the tart client.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Host: bridge URL, event channel name, command entry point
//   - Breaker: circuit breaker around host calls
//   - Terminal: emulator defaults (rows, cols, scrollback)
//   - Logging: log level and output format
//   - Diagnostics: optional local HTTP server and its rate limit
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Connecting to %s\n", cfg.Host.URL)
//
// Environment Variables:
//   - TART_HOST_URL, TART_EVENT_CHANNEL, TART_COMMAND_ENTRY
//   - TART_BREAKER_ENABLED, TART_BREAKER_FAILURES, TART_BREAKER_TIMEOUT
//   - TART_DEFAULT_ROWS, TART_DEFAULT_COLS, TART_SCROLLBACK, TART_PROPAGATE_RESIZE
//   - LOG_LEVEL, LOG_DEV
//   - TART_DIAG_ADDR, TART_DIAG_RPS, TART_DIAG_BURST
package config
