// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Output goes to stderr unless configured otherwise. When the MCP stdio
// transport is enabled stdout belongs to the protocol stream and must not be
// used for logs.
//
// Example Usage:
//
//	logger, err := logging.New(logging.DefaultConfig())
//	log := logger.ForPipeline(id)
//	log.Info("Pipeline created")
//	log.Error("Bus error", zap.Error(err))
//
// Shared field constructors (PipelineID, Tool, RequestID, ConnID, Target) keep
// key names identical across packages.
package logging
