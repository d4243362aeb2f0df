package task

import (
	"sort"
	"sync"
)

type entry struct {
	ref         Ref
	description string
	deps        []string
}

// Registry maps task names to their definitions.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	sealed  bool
}

func NewRegistry() *Registry {
	return &Registry{entries: map[string]*entry{}}
}

// Option configures a registration.
type Option func(*entry)

// DependsOn declares prerequisites. They run concurrently before the body.
func DependsOn(names ...string) Option {
	return func(e *entry) { e.deps = append(e.deps, names...) }
}

// Describe attaches a one-line description shown by listings.
func Describe(text string) Option {
	return func(e *entry) { e.description = text }
}

// Register adds a task under name.
func (r *Registry) Register(name string, body Ref, opts ...Option) error {
	if name == "" {
		return ErrEmptyName
	}
	if body.IsZero() {
		return ErrNilBody
	}
	e := &entry{ref: body}
	for _, opt := range opts {
		opt(e)
	}
	if len(e.deps) > 0 {
		e.ref = Ref{def: &def{kind: KindSeries, children: []Ref{Parallel(Names(e.deps...)...), body}, deps: true}}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrSealed
	}
	if _, ok := r.entries[name]; ok {
		return &DuplicateTaskError{Name: name}
	}
	r.entries[name] = e
	return nil
}

// Resolve returns the definition registered under name.
func (r *Registry) Resolve(name string) (Ref, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Ref{}, &UnknownTaskError{Name: name}
	}
	return e.ref, nil
}

func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Names returns all registered names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Description returns the text given with Describe, if any.
func (r *Registry) Description(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[name]; ok {
		return e.description
	}
	return ""
}

// Dependencies returns the names declared with DependsOn.
func (r *Registry) Dependencies(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[name]; ok {
		return append([]string(nil), e.deps...)
	}
	return nil
}

// Seal rejects any further registration.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}
