/*
Package tracing provides lightweight request tracing.

Spans carry ULID trace and span ids and are exported as structured zap log
entries by a buffered collector, so tracing never blocks a request. The HTTP
middleware continues traces named in X-Trace-ID / X-Span-ID and echoes the ids
on the response; tool handlers wrap their work with Tracer.Do.

# Usage

	tracer := tracing.New("streamos", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	err := tracer.Do(ctx, "gst_launch_pipeline", func(ctx context.Context, span *tracing.Span) error {
		span.SetTag("pipeline_id", id)
		return launch(ctx)
	})

Spans are dropped, with a warning, when the 1000-span buffer is full.
*/
package tracing
