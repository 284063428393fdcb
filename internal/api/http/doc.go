// Package http exposes the pipeline registry as a JSON REST API on gin.
//
// Routes:
//   - GET    /health
//   - GET    /pipelines[?details=true]
//   - POST   /pipelines                {description, id?, auto_play?, monitor?}
//   - POST   /pipelines/validate       {description}
//   - GET    /pipelines/:id[?messages=N]
//   - GET    /pipelines/:id/messages[?since=S]
//   - PUT    /pipelines/:id/state      {state}
//   - POST   /pipelines/:id/watch[?mode=async|?timeout=5s]
//   - DELETE /pipelines/:id[?force=true]
//
// Errors are returned as {"error": ..., "code": ...} where code is the
// stable domain code (not_found, capacity_exceeded, parse_error, ...).
package http
