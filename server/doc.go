// Package server implements the OAuth 2.0 authorization server dispatcher.
//
// An AuthorizationServer holds an ordered set of enabled grants and routes
// each request to the first grant that claims it. It performs no HTTP
// handling itself: callers translate requests with oauth.NewRequestFromHTTP
// and write results with (*oauth.Response).Write or oauth.WriteError.
//
// The client_credentials and refresh_token grants are enabled by default.
// Further grants are enabled during setup:
//
//	srv, err := server.New(grant.Dependencies{
//	    Clients:   store.Clients(),
//	    Scopes:    store.Scopes(),
//	    Tokens:    store.Tokens(),
//	    AuthCodes: store.AuthCodes(),
//	    Signer:    jwtSigner,
//	}, &server.Config{Issuer: "https://auth.example.com"}, logger)
//	if err != nil {
//	    return err
//	}
//	if err := srv.EnableGrantType(grant.AuthorizationCode, 0); err != nil {
//	    return err
//	}
//
// Every error returned by the entry points is an *oauth.Error. Errors that
// are not part of the OAuth taxonomy are logged and reported as
// server_error.
package server
