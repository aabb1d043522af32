// Package resources defines the resource-type registry and the lookup
// collaborators used to resolve protected resources to their authors.
package resources

import (
	"sort"
	"sync"
)

// Built-in resource types protected by the access control service.
const (
	TypeAgent       = "AGENT"
	TypePromptGroup = "PROMPTGROUP"
	TypeMCPServer   = "MCPSERVER"
	TypeRemoteAgent = "REMOTE_AGENT"
	TypeFile        = "FILE"
)

// TypeRegistry tracks the open set of resource types. The ACL engine
// validates against it but never defines members itself.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]struct{}
}

// NewTypeRegistry builds a registry seeded with the built-in types.
func NewTypeRegistry() *TypeRegistry {
	r := &TypeRegistry{types: make(map[string]struct{})}
	for _, t := range []string{TypeAgent, TypePromptGroup, TypeMCPServer, TypeRemoteAgent, TypeFile} {
		r.types[t] = struct{}{}
	}
	return r
}

// Register adds a resource type. Registering an existing type is a no-op.
func (r *TypeRegistry) Register(resourceType string) {
	if resourceType == "" {
		return
	}
	r.mu.Lock()
	r.types[resourceType] = struct{}{}
	r.mu.Unlock()
}

// Known reports whether the resource type has been registered.
func (r *TypeRegistry) Known(resourceType string) bool {
	r.mu.RLock()
	_, ok := r.types[resourceType]
	r.mu.RUnlock()
	return ok
}

// All returns the registered types in stable order.
func (r *TypeRegistry) All() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.types))
	for t := range r.types {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
