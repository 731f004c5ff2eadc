// File: internal/task/task.go
// Description: The hierarchical task model. A Task is one unit of browser work;
// its subtasks are owned by it, while the link back to the parent is a key
// resolved through the shared Registry.

package task

import (
	"sort"
	"sync"
)

// Task is a node in the execution tree.
type Task struct {
	mu sync.RWMutex

	key           uint64
	id            string
	typ           Type
	url           string
	initialPrompt string

	parentKey uint64
	parentID  string
	registry  *Registry
	subtasks []*Task

	status         Status
	result         *Result
	err            error
	discoveredURLs []DiscoveredURL
	commands       []string
	formData       map[string]string
}

// Option configures a Task at construction.
type Option func(*Task)

// WithURL sets the page the task operates on.
func WithURL(url string) Option {
	return func(t *Task) { t.url = url }
}

// WithRegistry places the task in an existing registry instead of a fresh one.
func WithRegistry(r *Registry) Option {
	return func(t *Task) {
		if r != nil {
			t.registry = r
		}
	}
}

// New creates a pending task. The type is fixed for the task's lifetime.
func New(id string, typ Type, initialPrompt string, opts ...Option) *Task {
	t := &Task{
		key:           newKey(),
		id:            id,
		typ:           typ,
		initialPrompt: initialPrompt,
		status:        StatusPending,
		formData:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.registry == nil {
		t.registry = NewRegistry()
	}
	t.registry.register(t)
	return t
}

// -- Accessors --

func (t *Task) ID() string            { return t.id }
func (t *Task) Type() Type            { return t.typ }
func (t *Task) InitialPrompt() string { return t.initialPrompt }

// URL returns the task's own URL, which may be empty.
func (t *Task) URL() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.url
}

// ParentID returns the ID of the owning task, or "" for a root.
func (t *Task) ParentID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.parentID
}

// Registry returns the arena the task is registered in.
func (t *Task) Registry() *Registry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.registry
}

// Parent resolves the owning task through the registry.
func (t *Task) Parent() (*Task, bool) {
	t.mu.RLock()
	parentKey, reg := t.parentKey, t.registry
	t.mu.RUnlock()

	return reg.resolve(parentKey)
}

// Subtasks returns the children in insertion order.
func (t *Task) Subtasks() []*Task {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Task, len(t.subtasks))
	copy(out, t.subtasks)
	return out
}

// SubtaskCount returns the number of children added so far.
func (t *Task) SubtaskCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subtasks)
}

func (t *Task) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Result returns the success payload, nil until one is set.
func (t *Task) Result() *Result {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.result
}

// Err returns the recorded failure, if any.
func (t *Task) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

func (t *Task) DiscoveredURLs() []DiscoveredURL {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]DiscoveredURL, len(t.discoveredURLs))
	copy(out, t.discoveredURLs)
	return out
}

func (t *Task) Commands() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.commands))
	copy(out, t.commands)
	return out
}

// FormData returns a copy of the field/value mapping.
func (t *Task) FormData() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]string, len(t.formData))
	for k, v := range t.formData {
		out[k] = v
	}
	return out
}

// FormFields returns the form field names in sorted order, which is the order
// form_fill tasks process them in.
func (t *Task) FormFields() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fields := make([]string, 0, len(t.formData))
	for k := range t.formData {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// -- Mutators --

// AddSubtask makes sub a child of t. The child (and any subtree it already
// carries) is adopted into t's registry. No type or duplicate-ID checks are done.
func (t *Task) AddSubtask(sub *Task) {
	t.mu.RLock()
	reg := t.registry
	t.mu.RUnlock()

	sub.mu.Lock()
	sub.parentKey = t.key
	sub.parentID = t.id
	sub.mu.Unlock()
	adopt(reg, sub)

	t.mu.Lock()
	t.subtasks = append(t.subtasks, sub)
	t.mu.Unlock()
}

// adopt moves sub and its descendants into reg.
func adopt(reg *Registry, sub *Task) {
	sub.mu.Lock()
	sub.registry = reg
	children := make([]*Task, len(sub.subtasks))
	copy(children, sub.subtasks)
	sub.mu.Unlock()

	reg.register(sub)
	for _, c := range children {
		adopt(reg, c)
	}
}

// UpdateStatus sets the status unconditionally; callers keep transitions monotonic.
func (t *Task) UpdateStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// SetResult stores the success payload without touching the status.
func (t *Task) SetResult(r *Result) {
	t.mu.Lock()
	t.result = r
	t.mu.Unlock()
}

// SetError records err and forces the task into StatusFailed.
func (t *Task) SetError(err error) {
	t.mu.Lock()
	t.err = err
	t.status = StatusFailed
	t.mu.Unlock()
}

func (t *Task) AddDiscoveredURL(url, description string) {
	t.mu.Lock()
	t.discoveredURLs = append(t.discoveredURLs, DiscoveredURL{URL: url, Description: description})
	t.mu.Unlock()
}

func (t *Task) AddCommand(cmd string) {
	t.mu.Lock()
	t.commands = append(t.commands, cmd)
	t.mu.Unlock()
}

// SetFormData merges data into the existing form data; repeated keys take the new value.
func (t *Task) SetFormData(data map[string]string) {
	t.mu.Lock()
	for k, v := range data {
		t.formData[k] = v
	}
	t.mu.Unlock()
}

// -- Queries --

// InitialURL returns the nearest non-empty URL walking from t towards the root.
// The second result is false when no task in the chain has a URL.
func (t *Task) InitialURL() (string, bool) {
	t.mu.RLock()
	url := t.url
	t.mu.RUnlock()

	if url != "" {
		return url, true
	}
	if parent, ok := t.Parent(); ok {
		return parent.InitialURL()
	}
	return "", false
}

func (t *Task) IsFormFillTask() bool   { return t.typ == TypeFormFill }
func (t *Task) IsNavigationTask() bool { return t.typ == TypeNavigation }
func (t *Task) IsSubmitTask() bool     { return t.typ == TypeSubmit }

// Snapshot returns a detached copy of the task's state.
func (t *Task) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Snapshot{
		ID:            t.id,
		ParentID:      t.parentID,
		Type:          t.typ,
		Status:        t.status,
		URL:           t.url,
		InitialPrompt: t.initialPrompt,
	}
	if t.result != nil {
		r := *t.result
		s.Result = &r
	}
	if t.err != nil {
		s.Error = t.err.Error()
	}
	if len(t.discoveredURLs) > 0 {
		s.DiscoveredURLs = append([]DiscoveredURL(nil), t.discoveredURLs...)
	}
	if len(t.commands) > 0 {
		s.Commands = append([]string(nil), t.commands...)
	}
	if len(t.formData) > 0 {
		s.FormData = make(map[string]string, len(t.formData))
		for k, v := range t.formData {
			s.FormData[k] = v
		}
	}
	for _, sub := range t.subtasks {
		s.SubtaskIDs = append(s.SubtaskIDs, sub.id)
	}
	return s
}
