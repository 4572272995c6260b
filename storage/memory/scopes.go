package memory

import (
	"context"

	"github.com/giantswarm/oauth-core/storage"
)

// ScopeRepository implements storage.ScopeRepository
type ScopeRepository struct {
	s *Store
}

var _ storage.ScopeRepository = (*ScopeRepository)(nil)

// Add registers scopes, replacing any with the same name
func (r *ScopeRepository) Add(scopes ...storage.Scope) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, scope := range scopes {
		r.s.scopes[scope.Name] = scope
	}
}

// GetAllByIdentifiers returns the known scopes among names, in request order
func (r *ScopeRepository) GetAllByIdentifiers(ctx context.Context, names []string) ([]storage.Scope, error) {
	_, end := r.s.observe(ctx, "get_scopes")
	defer end(nil)

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	found := make([]storage.Scope, 0, len(names))
	for _, name := range names {
		if scope, ok := r.s.scopes[name]; ok {
			found = append(found, scope)
		}
	}
	return found, nil
}

// Finalize applies the store's FinalizeFunc, if any
func (r *ScopeRepository) Finalize(ctx context.Context, scopes []storage.Scope, grantType string, client *storage.Client, userID string) ([]storage.Scope, error) {
	if r.s.finalize == nil {
		return scopes, nil
	}
	return r.s.finalize(ctx, scopes, grantType, client, userID)
}
