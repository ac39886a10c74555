// Package registry holds the process-wide mapping from server name to a
// live, reference-counted backend handle, guarded by a reader/writer
// discipline so lookups never hold the map lock across a backend round trip.
package registry

import (
	"errors"
	"sync"

	"github.com/mcpgate/gateway/pkg/transport"
)

// ErrAlreadyRunning is returned by Add when a server by that name is
// already registered; a start against a live name is refused.
var ErrAlreadyRunning = errors.New("registry: server already running")

// ErrNotFound is returned by Lookup/Remove when no entry exists for name.
var ErrNotFound = errors.New("registry: server not found")

// State is a running backend's lifecycle state.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateCrashed  State = "crashed"
)

// Entry is the registry's reference-counted handle to one running backend.
// A lookup returns a handle sufficient to send one request and await its
// response without holding the registry lock across the await. Closing an
// Entry's backend is the supervisor's job, triggered when the entry is
// removed — the child process must be terminated before the last handle is
// released.
type Entry struct {
	Name    string
	Backend transport.Backend

	mu    sync.Mutex
	state State
}

// State returns the entry's current lifecycle state.
func (e *Entry) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SetState transitions the entry's lifecycle state. Only the supervisor
// that owns this entry calls SetState.
func (e *Entry) SetState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Registry is the process-wide name→Entry map; one instance serves the
// whole process. The zero value is not usable; construct with New.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Add registers a new running entry under name. Returns ErrAlreadyRunning
// if name is already present — the registry never silently replaces a live
// entry, and never holds two entries with the same name.
func (r *Registry) Add(name string, backend transport.Backend, state State) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return nil, ErrAlreadyRunning
	}
	entry := &Entry{Name: name, Backend: backend, state: state}
	r.entries[name] = entry
	return entry, nil
}

// Lookup returns the entry registered under name without blocking on
// anything the entry's backend might be doing; readers take the shared
// lock only long enough to borrow the handle.
func (r *Registry) Lookup(name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[name]
	if !exists {
		return nil, ErrNotFound
	}
	return entry, nil
}

// Remove deletes the entry registered under name and returns it so the
// caller (the supervisor) can close its backend after releasing the
// registry lock — removal is serialized with, but does not block on,
// in-flight lookups holding their own Entry reference.
func (r *Registry) Remove(name string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[name]
	if !exists {
		return nil, ErrNotFound
	}
	delete(r.entries, name)
	return entry, nil
}

// Names returns every currently registered server name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}
