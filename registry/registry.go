// Package registry implements the process-wide (or, when constructed
// explicitly, server-scoped) collection of binders described in spec.md
// §4.6. It supports "all binders for connection C" and "all remote binders
// of interface I whose connection also carries a local binder for object
// O," used by applications to broadcast a call to every peer that has
// observed a given object.
//
// Per the Design Notes' preferred shape, Registry is not a package-level
// global: callers construct one (or use Default) and pass it explicitly to
// binder constructors, so the global singleton can be swapped for an
// injected collaborator in tests or in a multi-tenant server.
package registry

import (
	"reflect"
	"sync"
)

// Entry is the common shape every registered binder satisfies.
type Entry interface {
	// ConnectionID identifies the Connection the binder is attached to.
	ConnectionID() string
}

// LocalEntry is implemented by local binders: those that expose a bound
// object's methods to the remote peer.
type LocalEntry interface {
	Entry
	// LocalObject returns the bound object, for identity comparison in
	// RemoteOfTypeForObject.
	LocalObject() interface{}
}

// RemoteEntry is implemented by remote binders: those that invoke methods
// on the remote peer over a bound interface description.
type RemoteEntry interface {
	Entry
	// RemoteInterface returns the reflect.Type of the interface this
	// binder was constructed against.
	RemoteInterface() reflect.Type
}

// Registry is a concurrency-safe collection of Entry values. All
// enumeration methods operate on a snapshot taken under lock, so they are
// safe against concurrent Register/Unregister calls from other
// goroutines (spec.md §4.6: "Iteration must be safe against concurrent
// registration/unregistration").
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{}
}

// Default is the process-wide registry used by binder constructors that
// are not given an explicit Registry.
var Default = New()

// Register adds e to the registry.
func (r *Registry) Register(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// Unregister removes e from the registry, by identity. A no-op if e was
// never registered or was already removed.
func (r *Registry) Unregister(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.entries {
		if existing == e {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

func (r *Registry) snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// AllForConnection returns every entry whose ConnectionID equals connID.
func (r *Registry) AllForConnection(connID string) []Entry {
	var out []Entry
	for _, e := range r.snapshot() {
		if e.ConnectionID() == connID {
			out = append(out, e)
		}
	}
	return out
}

// RemoteOfType returns every RemoteEntry bound to interface I.
func RemoteOfType[I any](r *Registry) []RemoteEntry {
	want := reflect.TypeOf((*I)(nil)).Elem()
	var out []RemoteEntry
	for _, e := range r.snapshot() {
		re, ok := e.(RemoteEntry)
		if ok && re.RemoteInterface() == want {
			out = append(out, re)
		}
	}
	return out
}

// RemoteOfTypeForObject returns every RemoteEntry bound to interface I
// whose connection also carries a LocalEntry whose bound object is obj,
// compared by identity (==). This is the "broadcast to every peer that has
// observed my object" query.
func RemoteOfTypeForObject[I any](r *Registry, obj interface{}) []RemoteEntry {
	snapshot := r.snapshot()

	localConns := make(map[string]bool)
	for _, e := range snapshot {
		if le, ok := e.(LocalEntry); ok && le.LocalObject() == obj {
			localConns[le.ConnectionID()] = true
		}
	}

	want := reflect.TypeOf((*I)(nil)).Elem()
	var out []RemoteEntry
	for _, e := range snapshot {
		re, ok := e.(RemoteEntry)
		if !ok || re.RemoteInterface() != want {
			continue
		}
		if localConns[re.ConnectionID()] {
			out = append(out, re)
		}
	}
	return out
}
