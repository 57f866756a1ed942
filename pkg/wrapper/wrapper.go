package wrapper

import (
	"fmt"
	"sort"
	"sync"

	"github.com/brick-pid/simplegym/pkg/types"
)

// EnvWrapper is the contract every simulator adapter implements. A worker
// owns exactly one wrapper instance and calls it from a single goroutine;
// wrappers need no internal synchronization.
type EnvWrapper interface {
	// CreateWithID constructs a fresh environment instance bound to the
	// pre-assigned id. Callers never repeat an id.
	CreateWithID(envID types.EnvID) (any, error)

	// Step advances environment envID by one action. The payload has the
	// shape of types.StepResult.
	Step(envID types.EnvID, action string) (any, error)

	// Reset (re)initializes environment envID. Options are adapter
	// specific and validated by the adapter.
	Reset(envID types.EnvID, options types.ResetOptions) (any, error)

	// Close releases environment envID and marks it deleted. It must
	// tolerate instances that were created but never reset.
	Close(envID types.EnvID) (bool, error)

	// Live returns the ids of currently live (created, not closed)
	// environments; the worker drains it at shutdown.
	Live() []types.EnvID
}

// Config is the adapter-specific configuration handed to a factory,
// decoded from the wrapper config file.
type Config map[string]any

// Factory builds a fresh wrapper instance inside a worker subprocess.
type Factory func(cfg Config) (EnvWrapper, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a wrapper factory available under name. It is intended
// to be called from adapter package init functions and panics on
// duplicates, mirroring database/sql driver registration.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("wrapper: Register called twice for %q", name))
	}
	registry[name] = factory
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown wrapper %q (registered: %v)", name, names())
	}
	return factory, nil
}

func names() []string {
	ns := make([]string, 0, len(registry))
	for name := range registry {
		ns = append(ns, name)
	}
	sort.Strings(ns)
	return ns
}
