// Package middleware holds the gin middleware of the diagnostics server.
//
//   - CORS: lets browser dashboards on other origins read the endpoints
//   - RateLimit: per-IP token bucket, idle clients are forgotten
//   - GlobalRateLimit: one bucket shared by every client
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
