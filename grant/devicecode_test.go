package grant_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oauth "github.com/giantswarm/oauth-core"
	"github.com/giantswarm/oauth-core/grant"
	"github.com/giantswarm/oauth-core/internal/testutil"
)

func newDeviceCodeGrant(t *testing.T, f *testutil.Fixture) *grant.DeviceCodeGrant {
	t.Helper()
	g, err := grant.NewDeviceCodeGrant(f.Dependencies(), f.Options())
	require.NoError(t, err)
	return g
}

func startDevice(t *testing.T, g *grant.DeviceCodeGrant) *oauth.DeviceAuthorizationResponse {
	t.Helper()
	resp, err := g.RespondToDeviceAuthorizationRequest(context.Background(), testutil.TokenRequest(map[string]string{
		"client_id":     testutil.ConfidentialClientID,
		"client_secret": testutil.ConfidentialSecret,
		"scope":         "read",
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "no-store", resp.Headers.Get("Cache-Control"))
	body, ok := resp.Body.(*oauth.DeviceAuthorizationResponse)
	require.True(t, ok)
	return body
}

func poll(g *grant.DeviceCodeGrant, deviceCode string) (*oauth.Response, error) {
	return g.RespondToAccessTokenRequest(context.Background(), testutil.TokenRequest(map[string]string{
		"grant_type":    string(grant.DeviceCode),
		"client_id":     testutil.ConfidentialClientID,
		"client_secret": testutil.ConfidentialSecret,
		"device_code":   deviceCode,
	}), testTTL)
}

func TestDeviceCodeGrant_Flow(t *testing.T) {
	f := testutil.NewFixture(t)
	g := newDeviceCodeGrant(t, f)
	ctx := context.Background()

	start := startDevice(t, g)
	assert.NotEmpty(t, start.DeviceCode)
	assert.Regexp(t, `^[A-Z]{4}-[A-Z]{4}$`, start.UserCode)
	assert.Equal(t, "https://auth.example.com/device", start.VerificationURI)
	assert.Equal(t, "https://auth.example.com/device?user_code="+start.UserCode, start.VerificationURIComplete)
	assert.Equal(t, int64(600), start.ExpiresIn)
	assert.Equal(t, int64(5), start.Interval)

	_, err := poll(g, start.DeviceCode)
	requireOAuthError(t, err, oauth.ErrorCodeAuthorizationPending)

	oe := requireOAuthError(t, errOf(poll(g, start.DeviceCode)), oauth.ErrorCodeSlowDown)
	assert.Contains(t, oe.Description, "10 seconds")

	f.Clock.Advance(11 * time.Second)
	_, err = poll(g, start.DeviceCode)
	requireOAuthError(t, err, oauth.ErrorCodeAuthorizationPending)

	// user codes are matched case-insensitively and without the dash
	typed := strings.ToLower(strings.ReplaceAll(start.UserCode, "-", ""))
	require.NoError(t, g.Approve(ctx, typed, f.User, true))

	err = g.Approve(ctx, start.UserCode, f.User, false)
	requireOAuthError(t, err, oauth.ErrorCodeInvalidGrant)

	f.Clock.Advance(11 * time.Second)
	resp, err := poll(g, start.DeviceCode)
	body := requireBearer(t, resp, err)
	assert.NotEmpty(t, body.RefreshToken)
	assert.Equal(t, "read", body.Scope)

	m, err := f.Signer.Verify(ctx, body.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testutil.UserID, m["sub"])

	_, err = poll(g, start.DeviceCode)
	requireOAuthError(t, err, oauth.ErrorCodeInvalidGrant)
}

func errOf(_ *oauth.Response, err error) error {
	return err
}

func TestDeviceCodeGrant_Denied(t *testing.T) {
	f := testutil.NewFixture(t)
	g := newDeviceCodeGrant(t, f)

	start := startDevice(t, g)
	require.NoError(t, g.Approve(context.Background(), start.UserCode, f.User, false))

	_, err := poll(g, start.DeviceCode)
	requireOAuthError(t, err, oauth.ErrorCodeAccessDenied)
}

func TestDeviceCodeGrant_Expired(t *testing.T) {
	f := testutil.NewFixture(t)
	g := newDeviceCodeGrant(t, f)

	start := startDevice(t, g)
	f.Clock.Advance(grant.DefaultDeviceCodeTTL)

	_, err := poll(g, start.DeviceCode)
	requireOAuthError(t, err, oauth.ErrorCodeExpiredToken)

	err = g.Approve(context.Background(), start.UserCode, f.User, true)
	requireOAuthError(t, err, oauth.ErrorCodeExpiredToken)
}

func TestDeviceCodeGrant_Failures(t *testing.T) {
	f := testutil.NewFixture(t)
	g := newDeviceCodeGrant(t, f)
	ctx := context.Background()
	start := startDevice(t, g)

	_, err := poll(g, "unknown")
	requireOAuthError(t, err, oauth.ErrorCodeInvalidGrant)

	_, err = poll(g, "")
	requireOAuthError(t, err, oauth.ErrorCodeInvalidRequest)

	_, err = g.RespondToAccessTokenRequest(ctx, testutil.TokenRequest(map[string]string{
		"grant_type":  string(grant.DeviceCode),
		"client_id":   testutil.PublicClientID,
		"device_code": start.DeviceCode,
	}), testTTL)
	requireOAuthError(t, err, oauth.ErrorCodeInvalidGrant)

	err = g.Approve(ctx, "BCDF-GHJK", f.User, true)
	requireOAuthError(t, err, oauth.ErrorCodeInvalidGrant)

	err = g.Approve(ctx, start.UserCode, nil, true)
	requireOAuthError(t, err, oauth.ErrorCodeInvalidRequest)

	_, err = g.RespondToDeviceAuthorizationRequest(ctx, testutil.TokenRequest(map[string]string{
		"client_id":     testutil.ConfidentialClientID,
		"client_secret": testutil.ConfidentialSecret,
		"scope":         "admin",
	}))
	requireOAuthError(t, err, oauth.ErrorCodeInvalidScope)
}

func TestDeviceCodeGrant_RequiresVerificationURI(t *testing.T) {
	f := testutil.NewFixture(t)
	opts := f.Options()
	opts.DeviceVerificationURI = ""

	_, err := grant.NewDeviceCodeGrant(f.Dependencies(), opts)
	assert.Error(t, err)
}
