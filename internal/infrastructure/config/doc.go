// Package config provides layered configuration for the pipeline service.
//
// Sources, lowest priority first: built-in defaults, an optional TOML or YAML
// file, environment variables. CLI flags in cmd/server override all of them.
//
// Configuration Sections:
//   - Server: HTTP surface (port, host, enabled)
//   - MCP: tool server (enabled, mode, include and exclude lists)
//   - Pipeline: registry capacity, history size, query and poll timeouts
//   - Engine: simulated engine timings
//   - Logging: level, format and output paths
//   - RateLimit: per-IP rate limiting
//
// Example Usage:
//
//	cfg, err := config.Load("streamos.toml")
//	fmt.Printf("Serving on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST, HTTP_ENABLED
//   - MCP_ENABLED, MCP_MODE, MCP_TOOLS, MCP_EXCLUDE_TOOLS
//   - MAX_PIPELINES, HISTORY_SIZE, STATUS_MESSAGES, STATE_QUERY_TIMEOUT, BUS_POLL_TIMEOUT, MONITOR_BUS
//   - ENGINE_PREROLL_DELAY, ENGINE_BUFFER_DURATION
//   - LOG_LEVEL, LOG_DEV, LOG_OUTPUT
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - CONFIG_FILE
package config
