/*
Package monitoring provides Prometheus metrics for the pipeline service.

# Overview

Metrics are registered against an injected prometheus.Registerer so tests can
use a private registry. The collector tracks HTTP requests, MCP tool calls,
pipeline lifecycle (active, created, failed creations, state transitions), bus
messages recorded into history, running bus monitors and WebSocket streams.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	timer := monitoring.NewTimer(metrics, "gst_launch_pipeline")
	// ... run the tool ...
	timer.Stop("success")
*/
package monitoring
