package oauth

import (
	"net/http"
	"net/url"
)

// TokenTypeBearer is the only token type issued by this library
const TokenTypeBearer = "Bearer"

// Request is a framework-agnostic view of an inbound OAuth request.
// Adapters fill it from their own HTTP layer; NewRequestFromHTTP does so for net/http.
type Request struct {
	Method  string
	Headers http.Header
	Query   url.Values
	Body    url.Values
}

// NewRequest creates an empty request with initialized maps
func NewRequest() *Request {
	return &Request{
		Method:  http.MethodPost,
		Headers: http.Header{},
		Query:   url.Values{},
		Body:    url.Values{},
	}
}

// BodyParam returns the first value of a body parameter.
// Repeated parameters collapse to their first element.
func (r *Request) BodyParam(name string) string {
	if r == nil || r.Body == nil {
		return ""
	}
	return r.Body.Get(name)
}

// QueryParam returns the first value of a query string parameter
func (r *Request) QueryParam(name string) string {
	if r == nil || r.Query == nil {
		return ""
	}
	return r.Query.Get(name)
}

// BodyParams returns every value of a body parameter
func (r *Request) BodyParams(name string) []string {
	if r == nil || r.Body == nil {
		return nil
	}
	return r.Body[name]
}

// QueryParams returns every value of a query string parameter
func (r *Request) QueryParams(name string) []string {
	if r == nil || r.Query == nil {
		return nil
	}
	return r.Query[name]
}

// Header returns a request header value
func (r *Request) Header(name string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	return r.Headers.Get(name)
}

// Response is a framework-agnostic OAuth response.
// Body is serialized as JSON when non-nil.
type Response struct {
	Status  int
	Headers http.Header
	Body    any
}

// NewResponse creates a response with the given status and body
func NewResponse(status int, body any) *Response {
	return &Response{
		Status:  status,
		Headers: http.Header{},
		Body:    body,
	}
}

// NewRedirectResponse creates a 302 response pointing at location
func NewRedirectResponse(location string) *Response {
	resp := NewResponse(http.StatusFound, nil)
	resp.Headers.Set("Location", location)
	return resp
}

// Location returns the redirect target of the response, if any
func (r *Response) Location() string {
	return r.Headers.Get("Location")
}

// ErrorResponse represents an OAuth error response
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`
}

// BearerTokenResponse is the token endpoint success payload (RFC 6749 Section 5.1)
type BearerTokenResponse struct {
	// TokenType is always "Bearer"
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int64 `json:"expires_in"`

	// AccessToken is the signed access token
	AccessToken string `json:"access_token"`

	// RefreshToken is the signed (or opaque) refresh token, if one was issued
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope is the delimiter-joined list of granted scopes
	Scope string `json:"scope"`

	// IssuedTokenType is set by token exchange (RFC 8693 Section 2.2.1)
	IssuedTokenType string `json:"issued_token_type,omitempty"`
}

// IntrospectionResponse is the introspection endpoint payload (RFC 7662 Section 2.2)
type IntrospectionResponse struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Nbf       int64  `json:"nbf,omitempty"`
	Sub       string `json:"sub,omitempty"`
	Aud       any    `json:"aud,omitempty"`
	Iss       string `json:"iss,omitempty"`
	Jti       string `json:"jti,omitempty"`
}

// DeviceAuthorizationResponse is the device authorization endpoint payload (RFC 8628 Section 3.2)
type DeviceAuthorizationResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`
	ExpiresIn               int64  `json:"expires_in"`
	Interval                int64  `json:"interval,omitempty"`
}
