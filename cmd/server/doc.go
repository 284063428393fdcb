// Package main is the entry point for the StreamOS pipeline control service.
//
// The service keeps a bounded registry of media pipelines built from
// launch-syntax descriptions, drives their state transitions and records
// their bus messages.
//
// The server provides:
//   - REST API for pipeline control and status
//   - WebSocket streaming of bus history
//   - MCP tools over stdio
//   - Prometheus metrics at /metrics
//
// Configuration:
//   - Defaults for development
//   - Config file (-config or CONFIG_FILE, TOML or YAML)
//   - Environment variables (12-factor)
//   - CLI flags (override everything else)
//
// Usage:
//
//	# REST only
//	./server -port 8000
//
//	# MCP over stdio for an agent, read-only tools
//	./server -http=false -mcp -mode discovery
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown, every pipeline set to NULL
package main
