// Copyright (c) The go-auth Authors
// SPDX-License-Identifier: MPL-2.0

package citizenid

import (
	"bytes"
	"encoding/json"
	"encoding/pem"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	// TestAccessToken is the access_token issued by a TestProvider.
	TestAccessToken = "test-access-token"

	// TestRefreshToken is the refresh_token issued by a TestProvider.
	TestRefreshToken = "test-refresh-token"
)

// TestProvider is a local CitizenID server which makes writing tests much
// easier.  It serves the authorization, token and userinfo endpoints over
// TLS and records how often the token and userinfo endpoints are requested.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	mu                   sync.Mutex
	clientID             string
	clientSecret         string
	allowedRedirectURIs  []string
	expectedAuthCode     string
	expectedCodeVerifier string
	replySubject         string
	customClaims         map[string]interface{}
	userInfoReply        map[string]interface{}
	rawUserInfoReply     string
	omitIDToken          bool
	invalidIDToken       bool
	disableUserInfo      bool
	disableToken         bool

	tokenHits             int
	userInfoHits          int
	lastUserInfoAuthz     string
	lastUserInfoRawQuery  string
	lastTokenCodeVerifier string

	ecdsaPublicKey  string
	ecdsaPrivateKey string

	t *testing.T
}

// StartTestProvider creates a disposable TestProvider, which is stopped when
// the test completes.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		t:                   t,
		clientID:            "test-client-id",
		clientSecret:        "test-client-secret",
		allowedRedirectURIs: []string{"https://example.com/auth/citizenid/callback"},
		expectedAuthCode:    "test-auth-code",
		replySubject:        "alice-citizen-id",
		userInfoReply: map[string]interface{}{
			"sub":                "alice-citizen-id",
			"name":               "Alice",
			"preferred_username": "alice",
			"email":              "alice@example.com",
			"email_verified":     true,
			"role":               "citizen",
		},
	}
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	cert := p.httpServer.Certificate()

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the current base URL for the test provider's running webserver.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// HTTPClient returns an http client which trusts the test provider's
// certificate.
func (p *TestProvider) HTTPClient() *http.Client { return p.httpServer.Client() }

// SigningKeys returns the test provider's pem-encoded keys used to sign JWTs.
func (p *TestProvider) SigningKeys() (pub, priv string) {
	return p.ecdsaPublicKey, p.ecdsaPrivateKey
}

// ClientCreds returns the client id and secret the provider accepts.
func (p *TestProvider) ClientCreds() (clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientID, p.clientSecret
}

// SetClientCreds configures the client id and secret the provider accepts.
// An empty secret configures a public client.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetAllowedRedirectURIs configures the allowed redirect URIs.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// ExpectedAuthCode returns the auth code returned from the authorization
// endpoint and accepted by the token endpoint.
func (p *TestProvider) ExpectedAuthCode() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.expectedAuthCode
}

// SetExpectedAuthCode configures the auth code returned from the
// authorization endpoint and accepted by the token endpoint.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetExpectedCodeVerifier configures the PKCE code_verifier the token
// endpoint requires.  An empty verifier disables the check.
func (p *TestProvider) SetExpectedCodeVerifier(verifier string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedCodeVerifier = verifier
}

// SetReplySubject configures the sub claim of issued id_tokens.
func (p *TestProvider) SetReplySubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replySubject = sub
}

// SetCustomClaims configures additional claims for issued id_tokens.
func (p *TestProvider) SetCustomClaims(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = claims
}

// UserInfoReply returns the claims returned by the userinfo endpoint.
func (p *TestProvider) UserInfoReply() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userInfoReply
}

// SetUserInfoReply configures the claims returned by the userinfo endpoint.
func (p *TestProvider) SetUserInfoReply(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userInfoReply = claims
	p.rawUserInfoReply = ""
}

// SetRawUserInfoReply configures a raw body for the userinfo endpoint,
// which is useful for malformed responses.
func (p *TestProvider) SetRawUserInfoReply(body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rawUserInfoReply = body
}

// SetOmitIDToken forces the token endpoint to reply without an id_token.
func (p *TestProvider) SetOmitIDToken(omit bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = omit
}

// SetInvalidIDToken forces the token endpoint to reply with an id_token
// which isn't a JWT.
func (p *TestProvider) SetInvalidIDToken(invalid bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidIDToken = invalid
}

// SetDisableUserInfo makes the userinfo endpoint return 404.
func (p *TestProvider) SetDisableUserInfo(disable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableUserInfo = disable
}

// SetDisableToken makes the token endpoint return 503.
func (p *TestProvider) SetDisableToken(disable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableToken = disable
}

// TokenHits returns the number of requests to the token endpoint.
func (p *TestProvider) TokenHits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenHits
}

// UserInfoHits returns the number of requests to the userinfo endpoint.
func (p *TestProvider) UserInfoHits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userInfoHits
}

// LastUserInfoRequest returns the Authorization header and the raw query of
// the last userinfo request.
func (p *TestProvider) LastUserInfoRequest() (authorization, rawQuery string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastUserInfoAuthz, p.lastUserInfoRawQuery
}

// LastTokenCodeVerifier returns the code_verifier of the last token request.
func (p *TestProvider) LastTokenCodeVerifier() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTokenCodeVerifier
}

// IDToken returns an id_token signed by the provider for its client and
// reply subject, with its custom claims.
func (p *TestProvider) IDToken() IDToken {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idToken()
}

func (p *TestProvider) idToken() IDToken {
	return TestIDToken(p.t, p.ecdsaPrivateKey, p.Addr(), p.clientID, p.replySubject, p.customClaims)
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()

	redirectURI := qv.Get("redirect_uri") +
		"?state=" + url.QueryEscape(qv.Get("state")) +
		"&error=" + url.QueryEscape(errorCode)

	if errorMessage != "" {
		redirectURI += "&error_description=" + url.QueryEscape(errorMessage)
	}

	http.Redirect(w, req, redirectURI, http.StatusFound)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) error {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}

	w.WriteHeader(statusCode)
	return p.writeJSON(w, &body)
}

func (p *TestProvider) redirectAllowed(redirect string) bool {
	for _, u := range p.allowedRedirectURIs {
		if u == redirect {
			return true
		}
	}
	return false
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case authPath:
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		qv := req.URL.Query()
		redirectURI := qv.Get("redirect_uri")
		switch {
		case redirectURI == "" || !p.redirectAllowed(redirectURI):
			w.WriteHeader(http.StatusBadRequest)
			return
		case qv.Get("response_type") != "code":
			p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
			return
		case qv.Get("client_id") != p.clientID:
			p.writeAuthErrorResponse(w, req, "unauthorized_client", "")
			return
		case p.expectedAuthCode == "":
			p.writeAuthErrorResponse(w, req, "access_denied", "")
			return
		}
		redirectURI += "?code=" + url.QueryEscape(p.expectedAuthCode)
		if state := qv.Get("state"); state != "" {
			redirectURI += "&state=" + url.QueryEscape(state)
		}
		http.Redirect(w, req, redirectURI, http.StatusFound)

	case tokenPath:
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.tokenHits++
		if p.disableToken {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		clientID, clientSecret, ok := req.BasicAuth()
		if ok {
			clientID, _ = url.QueryUnescape(clientID)
			clientSecret, _ = url.QueryUnescape(clientSecret)
		} else {
			clientID, clientSecret = req.FormValue("client_id"), req.FormValue("client_secret")
		}
		p.lastTokenCodeVerifier = req.FormValue("code_verifier")
		switch {
		case req.FormValue("grant_type") != "authorization_code":
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "bad grant_type")
			return
		case clientID != p.clientID || clientSecret != p.clientSecret:
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "bad client credentials")
			return
		case req.FormValue("redirect_uri") != "" && !p.redirectAllowed(req.FormValue("redirect_uri")):
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not allowed")
			return
		case req.FormValue("code") != p.expectedAuthCode:
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "unexpected auth code")
			return
		case p.expectedCodeVerifier != "" && p.lastTokenCodeVerifier != p.expectedCodeVerifier:
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "invalid code_verifier")
			return
		}

		reply := struct {
			AccessToken  string `json:"access_token"`
			TokenType    string `json:"token_type"`
			ExpiresIn    int    `json:"expires_in"`
			RefreshToken string `json:"refresh_token"`
			IDToken      string `json:"id_token,omitempty"`
			Scope        string `json:"scope"`
		}{
			AccessToken:  TestAccessToken,
			TokenType:    "Bearer",
			ExpiresIn:    3600,
			RefreshToken: TestRefreshToken,
			Scope:        "openid profile email",
		}
		switch {
		case p.omitIDToken:
		case p.invalidIDToken:
			reply.IDToken = "not-a-jwt"
		default:
			reply.IDToken = string(p.idToken())
		}
		_ = p.writeJSON(w, &reply)

	case userInfoPath:
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.userInfoHits++
		p.lastUserInfoAuthz = req.Header.Get("Authorization")
		p.lastUserInfoRawQuery = req.URL.RawQuery
		if p.disableUserInfo {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if p.lastUserInfoAuthz != "Bearer "+TestAccessToken {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if p.rawUserInfoReply != "" {
			_, _ = w.Write([]byte(p.rawUserInfoReply))
			return
		}
		_ = p.writeJSON(w, p.userInfoReply)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// testStaticToken returns an oauth2 token as issued by a TestProvider.
func testStaticToken(idToken IDToken) *oauth2.Token {
	t := &oauth2.Token{
		AccessToken:  TestAccessToken,
		TokenType:    "Bearer",
		RefreshToken: TestRefreshToken,
	}
	if idToken != "" {
		return t.WithExtra(map[string]interface{}{"id_token": string(idToken)})
	}
	return t
}
