package memory

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/oauth-core/storage"
)

// dummyHash is compared against for unknown and public clients so that
// IsClientValid always pays for one bcrypt comparison (bcrypt hash of "test")
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// ClientRepository implements storage.ClientRepository
type ClientRepository struct {
	s *Store
}

var _ storage.ClientRepository = (*ClientRepository)(nil)

// Register stores a client. A non-empty Secret is replaced by its bcrypt hash;
// the caller's struct is not modified.
func (r *ClientRepository) Register(ctx context.Context, client *storage.Client) error {
	_, end := r.s.observe(ctx, "register_client")
	err := r.register(client)
	end(err)
	return err
}

func (r *ClientRepository) register(client *storage.Client) error {
	if client == nil || client.ID == "" {
		return errors.New("client id is required")
	}

	stored := *client
	stored.RedirectURIs = append([]string(nil), client.RedirectURIs...)
	stored.AllowedGrants = append([]string(nil), client.AllowedGrants...)
	stored.Scopes = cloneScopes(client.Scopes)
	if client.Secret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(client.Secret), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash client secret: %w", err)
		}
		stored.Secret = string(hash)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.clients[client.ID] = &stored
	r.s.logger.Debug("Registered client", "client_id", client.ID, "confidential", stored.IsConfidential())
	return nil
}

// GetByIdentifier implements storage.ClientRepository
func (r *ClientRepository) GetByIdentifier(ctx context.Context, clientID string) (*storage.Client, error) {
	_, end := r.s.observe(ctx, "get_client")

	r.s.mu.RLock()
	client, ok := r.s.clients[clientID]
	r.s.mu.RUnlock()

	if !ok {
		err := fmt.Errorf("client %q: %w", clientID, storage.ErrNotFound)
		end(err)
		return nil, err
	}
	end(nil)
	return client, nil
}

// IsClientValid checks the secret with bcrypt and that the client may use
// grantType. Clients without AllowedGrants may use every grant.
func (r *ClientRepository) IsClientValid(ctx context.Context, grantType string, client *storage.Client, secret string) (bool, error) {
	_, end := r.s.observe(ctx, "validate_client")
	defer end(nil)

	if client == nil {
		return false, nil
	}
	if len(client.AllowedGrants) > 0 && !client.AllowsGrant(grantType) {
		return false, nil
	}

	hashToCompare := dummyHash
	if client.IsConfidential() {
		hashToCompare = client.Secret
	}
	// Always compare, to keep timing independent of the client type
	bcryptErr := bcrypt.CompareHashAndPassword([]byte(hashToCompare), []byte(secret))

	if !client.IsConfidential() {
		return true, nil
	}
	return bcryptErr == nil, nil
}
