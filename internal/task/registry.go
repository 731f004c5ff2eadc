// File: internal/task/registry.go
package task

import (
	"sync"
	"sync/atomic"
)

// nextKey hands out the internal keys that link tasks. Zero means "no task".
var nextKey atomic.Uint64

func newKey() uint64 { return nextKey.Add(1) }

// Registry is the arena every task of one tree lives in. A child refers to its
// parent by the parent's internal key and resolves it here, so the child never
// owns or extends the lifetime of its parent. Caller assigned IDs are labels
// only and may repeat.
type Registry struct {
	mu    sync.RWMutex
	tasks map[uint64]*Task
	byID  map[string]*Task
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[uint64]*Task),
		byID:  make(map[string]*Task),
	}
}

// Lookup returns the task most recently registered under id. IDs are not
// checked for duplicates; a later registration shadows an earlier one here,
// but never changes which task a parent link resolves to.
func (r *Registry) Lookup(id string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	return t, ok
}

// Len returns the number of registered tasks, duplicates included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

func (r *Registry) resolve(key uint64) (*Task, bool) {
	if key == 0 {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[key]
	return t, ok
}

func (r *Registry) register(t *Task) {
	r.mu.Lock()
	r.tasks[t.key] = t
	r.byID[t.id] = t
	r.mu.Unlock()
}
