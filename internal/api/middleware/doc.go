// Package middleware provides the HTTP middleware stack for the REST surface.
//
// Middleware:
//   - CORS: cross-origin resource sharing via gin-contrib/cors
//   - RateLimit: per-IP token buckets with idle client eviction
//   - GlobalRateLimit: one token bucket for every client
//   - Gzip: response compression via klauspost/compress
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
//	router.Use(middleware.Gzip(gzip.DefaultCompression, "/metrics"))
package middleware
