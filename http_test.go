package oauth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestFromHTTP_Form(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/token?foo=bar", strings.NewReader("grant_type=password&scope=a&scope=b"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.SetBasicAuth("client", "secret")

	req, err := NewRequestFromHTTP(r)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "password", req.BodyParam("grant_type"))
	assert.Equal(t, []string{"a", "b"}, req.BodyParams("scope"))
	assert.Equal(t, "bar", req.QueryParam("foo"))
	assert.Empty(t, req.BodyParam("foo"), "query parameters must not leak into the body")
	assert.True(t, strings.HasPrefix(req.Header("Authorization"), "Basic "))
}

func TestNewRequestFromHTTP_JSON(t *testing.T) {
	body := `{"grant_type":"client_credentials","scope":["read","write"],"expires":3600,"ignored":null}`
	r := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json; charset=utf-8")

	req, err := NewRequestFromHTTP(r)
	require.NoError(t, err)

	assert.Equal(t, "client_credentials", req.BodyParam("grant_type"))
	assert.Equal(t, []string{"read", "write"}, req.BodyParams("scope"))
	assert.Equal(t, "3600", req.BodyParam("expires"))
	assert.Nil(t, req.BodyParams("ignored"))
}

func TestNewRequestFromHTTP_InvalidJSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(`["not","an","object"]`))
	r.Header.Set("Content-Type", "application/json")

	_, err := NewRequestFromHTTP(r)
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrorCodeInvalidRequest))
}

func TestNewRequestFromHTTP_JSONNumbers(t *testing.T) {
	body := `{"expires_in":1000000,"ratio":0.25,"big":12345678901234567890,"ids":[1000000,2]}`
	r := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")

	req, err := NewRequestFromHTTP(r)
	require.NoError(t, err)

	assert.Equal(t, "1000000", req.BodyParam("expires_in"))
	assert.Equal(t, "0.25", req.BodyParam("ratio"))
	assert.Equal(t, "12345678901234567890", req.BodyParam("big"))
	assert.Equal(t, []string{"1000000", "2"}, req.BodyParams("ids"))
}

func TestNewRequestFromHTTP_JSONTrailingData(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(`{"grant_type":"password"} {"x":1}`))
	r.Header.Set("Content-Type", "application/json")

	_, err := NewRequestFromHTTP(r)
	require.Error(t, err)
	assert.Equal(t, ErrorCodeInvalidRequest, AsError(err).Code)
}

func TestNewRequestFromHTTP_GETIgnoresBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/authorize?response_type=code&client_id=web", nil)

	req, err := NewRequestFromHTTP(r)
	require.NoError(t, err)

	assert.Equal(t, "code", req.QueryParam("response_type"))
	assert.Empty(t, req.Body)
}

func TestResponse_Write(t *testing.T) {
	resp := NewResponse(http.StatusOK, BearerTokenResponse{
		TokenType:   TokenTypeBearer,
		ExpiresIn:   3600,
		AccessToken: "at",
		Scope:       "read",
	})
	resp.Headers.Set("Cache-Control", "no-store")

	rec := httptest.NewRecorder()
	require.NoError(t, resp.Write(rec))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Bearer", got["token_type"])
	assert.Equal(t, float64(3600), got["expires_in"])
	assert.NotContains(t, got, "refresh_token")
}

func TestResponse_WriteRedirect(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, NewRedirectResponse("https://app.example.com/cb#access_token=x").Write(rec))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://app.example.com/cb#access_token=x", rec.Header().Get("Location"))
	assert.Empty(t, rec.Body.String())
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteError(rec, errors.New("database exploded")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var got ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, ErrorCodeServerError, got.Error)
	assert.NotContains(t, got.ErrorDescription, "database")
}
