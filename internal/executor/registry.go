package executor

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jmehdipour/actionflow/internal/model"
)

var (
	ErrExecutorRequired  = errors.New("executor is required")
	ErrTypeRequired      = errors.New("action type is required")
	ErrAlreadyRegistered = errors.New("executor already registered")
)

// Registry maps action types to executors. Types without a registration
// resolve to the no-op executor.
type Registry struct {
	mu    sync.RWMutex
	execs map[model.ActionType]Executor
	noop  Executor
}

func NewRegistry() *Registry {
	return &Registry{
		execs: make(map[model.ActionType]Executor),
		noop:  Noop{},
	}
}

func (r *Registry) Register(t model.ActionType, e Executor) error {
	if t == "" {
		return ErrTypeRequired
	}
	if e == nil {
		return ErrExecutorRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.execs[t]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, t)
	}
	r.execs[t] = e
	return nil
}

func (r *Registry) Resolve(t model.ActionType) Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.execs[t]; ok {
		return e
	}
	return r.noop
}

// Types lists registered action types, sorted.
func (r *Registry) Types() []model.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.ActionType, 0, len(r.execs))
	for t := range r.execs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
