package retrieval

import (
	"sort"
	"sync"
)

// Scope names a set of documents that a retrieval request may draw from.
// Results never cross scope boundaries.
type Scope struct {
	ID          string   `json:"id" yaml:"id"`
	DocumentIDs []string `json:"document_ids" yaml:"document_ids"`

	// WarmQuery is the representative query prefetch uses to warm this
	// scope. Empty disables prefetching for the scope.
	WarmQuery string `json:"warm_query,omitempty" yaml:"warm_query"`
}

// Registry is the in-process scope catalog. It is safe for concurrent use;
// prefetch iterates it while ingestion registers new scopes.
type Registry struct {
	mu     sync.RWMutex
	scopes map[string]Scope
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{scopes: make(map[string]Scope)}
}

// Register adds or replaces a scope. Registration order is preserved for
// List so that prefetch priorities stay stable.
func (r *Registry) Register(scope Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.scopes[scope.ID]; !exists {
		r.order = append(r.order, scope.ID)
	}
	r.scopes[scope.ID] = scope
}

// Get returns the scope and whether it is registered.
func (r *Registry) Get(id string) (Scope, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scopes[id]
	return s, ok
}

// List returns all scopes in registration order.
func (r *Registry) List() []Scope {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Scope, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.scopes[id])
	}
	return out
}

// ScopesForDocument returns the IDs of every scope containing the
// document, sorted for deterministic invalidation order.
func (r *Registry) ScopesForDocument(documentID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, scope := range r.scopes {
		for _, doc := range scope.DocumentIDs {
			if doc == documentID {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids
}
