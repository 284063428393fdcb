/*
Package pipeline is the lifecycle manager for media pipelines.

A Manager owns every live engine handle. It enforces the capacity bound, drives
state transitions, and runs one bus monitor per watched pipeline that classifies
bus messages into a bounded per-pipeline History.

# Locking

The registry map is guarded by the Manager's RWMutex. Each entry guards its
handle and metadata with its own RWMutex, and its History carries a separate
mutex, so a bus append never waits for a state transition on the same pipeline.
Lock order is registry, then entry, then history; the registry lock is never held
while calling into the engine.

# Teardown

Remove, Stop and Close cancel and join the bus monitor before forcing the handle
to NULL and releasing it. An entry that becomes unreachable without passing
through Remove is still released by a runtime cleanup.

# Usage

	mgr := pipeline.NewManager(sim.New(sim.DefaultOptions()), pipeline.DefaultConfig()).
		WithLogger(logger).
		WithMetrics(metrics)

	id, err := mgr.Create(ctx, "videotestsrc ! fakesink", pipeline.CreateOptions{Monitor: true})
	state, err := mgr.SetState(ctx, id, engine.StatePlaying)
	status, err := mgr.Status(id, 10)
	err = mgr.Remove(id)
*/
package pipeline
