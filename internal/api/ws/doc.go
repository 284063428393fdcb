// Package ws streams a pipeline's bus history and status over WebSocket.
//
// A client connects to GET /pipelines/:id/stream and receives JSON frames.
// History records are delivered once each, in sequence order, by polling the
// pipeline's history with a cursor; a status frame follows whenever the
// pipeline snapshot changes. The stream ends when the pipeline is removed.
//
// Message Types (Server → Client):
//   - connected: first frame, carries conn_id
//   - message: one history record
//   - status: pipeline snapshot
//   - pong: reply to a client ping
//   - closed: final frame with the reason
//
// Message Types (Client → Server):
//   - ping: keep-alive ping
//
// Example Usage:
//
//	handler := ws.NewHandler(manager, ws.Options{Metrics: metrics})
//	handler.Register(router)
package ws
