package executor

import (
	"fmt"
	"log/slog"
	"slices"
)

// Registry maps executor type names to Executor implementations.
// Registration happens at startup before concurrent access, so no mutex is needed.
type Registry struct {
	executors map[string]Executor
	logger    *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		executors: make(map[string]Executor),
		logger:    logger.With("component", "executor-registry"),
	}
}

// NewDefaultRegistry registers a bounded goroutine executor and an inline
// executor.
func NewDefaultRegistry(maxWorkers int, logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(NewGoroutineExecutor(maxWorkers, logger))
	r.Register(NewInlineExecutor())
	return r
}

// Register adds an Executor to the registry, keyed by its Type().
func (r *Registry) Register(exec Executor) {
	t := exec.Type()
	r.executors[t] = exec
	r.logger.Debug("executor registered", "type", t)
}

// Get returns the Executor for the given type or an error if none is registered.
func (r *Registry) Get(t string) (Executor, error) {
	exec, ok := r.executors[t]
	if !ok {
		return nil, fmt.Errorf("no executor registered for type %q (have %v)", t, r.Types())
	}
	return exec, nil
}

// Types returns the registered type names in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
