package engine

import "sync"

var inits sync.Map // Engine -> func() error

// Initialize runs e.Init exactly once per engine for the life of the process. Every
// later call returns the cached result, so a failed start-up is replayed to each caller.
func Initialize(e Engine) error {
	once, _ := inits.LoadOrStore(e, sync.OnceValue(e.Init))
	return once.(func() error)()
}
