package testutil

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	oauth "github.com/giantswarm/oauth-core"
	"github.com/giantswarm/oauth-core/grant"
	"github.com/giantswarm/oauth-core/signer"
	"github.com/giantswarm/oauth-core/storage"
	"github.com/giantswarm/oauth-core/storage/memory"
)

// Fixture identities
const (
	ConfidentialClientID = "confidential-client"
	ConfidentialSecret   = "confidential-secret"
	PublicClientID       = "public-client"
	RedirectURI          = "https://app.example.com/callback"
	LoopbackRedirectURI  = "http://127.0.0.1/callback"

	UserID       = "alice"
	UserPassword = "alice-password"
	UserEmail    = "alice@example.com"

	SigningSecret = "0123456789abcdef0123456789abcdef"
)

// MockTime provides a controllable time source for deterministic testing
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// GenerateRandomString generates a random base64url string of the given length
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// GeneratePKCEPair generates a valid S256 challenge and verifier pair.
// Returns (challenge, verifier).
func GeneratePKCEPair() (challenge, verifier string) {
	verifier = oauth2.GenerateVerifier()
	return oauth2.S256ChallengeFromVerifier(verifier), verifier
}

// TokenRequest builds a token endpoint request with the given body parameters
func TokenRequest(params map[string]string) *oauth.Request {
	req := oauth.NewRequest()
	for k, v := range params {
		req.Body.Set(k, v)
	}
	return req
}

// AuthorizeRequest builds an authorize endpoint request with the given query parameters
func AuthorizeRequest(params map[string]string) *oauth.Request {
	req := oauth.NewRequest()
	req.Method = "GET"
	for k, v := range params {
		req.Query.Set(k, v)
	}
	return req
}

// WithBasicAuth sets HTTP Basic client credentials on req
func WithBasicAuth(req *oauth.Request, clientID, secret string) *oauth.Request {
	raw := url.QueryEscape(clientID) + ":" + url.QueryEscape(secret)
	req.Headers.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(raw)))
	return req
}

// Fixture is a fully wired set of memory repositories with one confidential
// client, one public client, three scopes and one user.
type Fixture struct {
	Store  *memory.Store
	Clock  *MockTime
	Signer *signer.JWT

	Confidential *storage.Client
	Public       *storage.Client
	User         *storage.User
}

// NewFixture creates the fixture. The store is stopped when the test ends.
func NewFixture(t *testing.T, opts ...memory.Option) *Fixture {
	t.Helper()

	clock := NewMockTime(time.Now().Truncate(time.Second))
	store := memory.New(append([]memory.Option{
		memory.WithCleanupInterval(-1),
		memory.WithClock(clock.Now),
	}, opts...)...)
	t.Cleanup(store.Stop)

	jwtSigner, err := signer.NewHMAC([]byte(SigningSecret))
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}
	jwtSigner.WithClock(clock.Now)

	ctx := context.Background()
	read := storage.Scope{Name: "read", Description: "Read access"}
	write := storage.Scope{Name: "write", Description: "Write access"}
	admin := storage.Scope{Name: "admin", Description: "Administrative access"}
	store.Scopes().Add(read, write, admin)

	clients := []*storage.Client{
		{
			ID:           ConfidentialClientID,
			Name:         "Confidential App",
			Secret:       ConfidentialSecret,
			RedirectURIs: []string{RedirectURI},
			Scopes:       []storage.Scope{read, write},
		},
		{
			ID:           PublicClientID,
			Name:         "Native App",
			RedirectURIs: []string{LoopbackRedirectURI},
			Scopes:       []storage.Scope{read},
		},
	}
	for _, c := range clients {
		if err := store.Clients().Register(ctx, c); err != nil {
			t.Fatalf("failed to register client: %v", err)
		}
	}

	user := &storage.User{ID: UserID, Claims: map[string]any{"email": UserEmail}}
	if err := store.Users().Add(user, UserPassword); err != nil {
		t.Fatalf("failed to add user: %v", err)
	}

	f := &Fixture{Store: store, Clock: clock, Signer: jwtSigner, User: user}
	f.Confidential, _ = store.Clients().GetByIdentifier(ctx, ConfidentialClientID)
	f.Public, _ = store.Clients().GetByIdentifier(ctx, PublicClientID)
	return f
}

// Dependencies returns grant dependencies backed by the fixture's store
func (f *Fixture) Dependencies() grant.Dependencies {
	return grant.Dependencies{
		Clients:     f.Store.Clients(),
		Scopes:      f.Store.Scopes(),
		Tokens:      f.Store.Tokens(),
		AuthCodes:   f.Store.AuthCodes(),
		Users:       f.Store.Users(),
		DeviceCodes: f.Store.DeviceCodes(),
		Signer:      f.Signer,
	}
}

// Options returns the secure default grant options on the fixture's clock
func (f *Fixture) Options() grant.Options {
	opts := grant.DefaultOptions()
	opts.Now = f.Clock.Now
	opts.DeviceVerificationURI = "https://auth.example.com/device"
	return opts
}
