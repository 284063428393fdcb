// Package engine defines the contract between the pipeline service and the media execution engine.
//
// The engine owns parsing, graph construction, scheduling and media processing. The service only
// needs to:
//   - build a pipeline from a launch description (Engine.Parse)
//   - request state transitions and query state, position and duration (Pipeline)
//   - drain the pipeline's bus, either as a stream (Pipeline.Events) or by polling (Pipeline.Pop)
//   - release the pipeline (Element.Close), which always drives it to NULL
//
// The sim subpackage provides an in-process engine with the same observable behavior: asynchronous
// preroll, live sources, bus messages for every state step, EOS for bounded sources.
package engine
