package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/oauth-core/storage"
)

// dummyHash is compared against for public clients so that IsClientValid
// always pays for one bcrypt comparison (bcrypt hash of "test")
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// ClientRepository implements storage.ClientRepository
type ClientRepository struct {
	s *Store
}

var _ storage.ClientRepository = (*ClientRepository)(nil)

// Register saves a client. A non-empty Secret is stored as its bcrypt hash.
func (r *ClientRepository) Register(ctx context.Context, client *storage.Client) (err error) {
	ctx, end := r.s.observe(ctx, "register_client")
	defer func() { end(err) }()

	if client == nil || client.ID == "" {
		return errors.New("client id is required")
	}
	if err := validateLength(client.ID, "client id"); err != nil {
		return err
	}

	record := toClientJSON(client, false)
	if client.Secret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(client.Secret), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash client secret: %w", err)
		}
		record.SecretHash = string(hash)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}
	if err := r.s.client.Do(ctx, r.s.client.B().Set().Key(r.s.clientKey(client.ID)).Value(string(data)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	r.s.logger.Debug("Saved client", "client_id", client.ID, "confidential", record.SecretHash != "")
	return nil
}

// GetByIdentifier returns the client, or storage.ErrNotFound. The returned
// Secret is the bcrypt hash.
func (r *ClientRepository) GetByIdentifier(ctx context.Context, clientID string) (client *storage.Client, err error) {
	ctx, end := r.s.observe(ctx, "get_client")
	defer func() { end(err) }()

	if err := validateLength(clientID, "client id"); err != nil {
		return nil, err
	}
	j, err := getJSON[clientJSON](ctx, r.s, r.s.clientKey(clientID), "client")
	if err != nil {
		return nil, err
	}
	return fromClientJSON(j), nil
}

// IsClientValid checks the secret with bcrypt and that the client may use
// grantType. Clients without AllowedGrants may use every grant.
func (r *ClientRepository) IsClientValid(_ context.Context, grantType string, client *storage.Client, secret string) (bool, error) {
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
