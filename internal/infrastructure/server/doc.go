// Package server wires the StreamOS service together.
//
// This package orchestrates all components:
//   - Prometheus registry, metrics and the span tracer
//   - Simulated execution engine and the pipeline registry
//   - HTTP routing with Gin (REST, WebSocket stream, /metrics)
//   - Middleware stack (recovery, tracing, metrics, CORS, rate limiting, gzip)
//   - MCP tool server over stdio
//
// Server Lifecycle:
//  1. Load configuration (defaults, file, environment, flags)
//  2. Initialize logger (production or development)
//  3. Build metrics, tracer, engine and pipeline registry
//  4. Setup HTTP routes and middleware, filter MCP tools by mode
//  5. Serve HTTP and MCP concurrently
//  6. On signal or MCP EOF: graceful HTTP shutdown, every pipeline to NULL, logger sync
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = srv.Run(ctx)
package server
