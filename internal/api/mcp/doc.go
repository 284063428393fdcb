// Package mcp exposes pipeline control as Model Context Protocol tools.
//
// The catalog names every tool and the operational modes that expose it:
//
//   - all: every tool
//   - live: launch, state control, status, stop, list, validate, watch
//   - dev: validate only
//   - discovery: read-only tools (status, list, validate)
//
// An include list narrows the mode's tools and an exclude list removes
// from them; only the resulting set is registered with the SDK server.
//
// Failed calls return IsError results whose text starts with a stable code,
// for example "[capacity_exceeded] maximum number of pipelines reached (10)".
// Invalid descriptions given to gst_validate_pipeline are reported as a
// normal result.
//
// Usage:
//
//	srv := mcp.New(manager, mcp.Options{Mode: mcp.ModeLive, Metrics: metrics, Tracer: tracer})
//	err := srv.Serve(ctx, os.Stdin, os.Stdout)
package mcp
