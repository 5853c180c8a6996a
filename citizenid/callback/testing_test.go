// Copyright (c) The go-auth Authors
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/citizenid/go-auth/citizenid"
	"github.com/stretchr/testify/require"
)

const testRedirect = "https://example.com/auth/citizenid/callback"

type testUser struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// testVerify maps every profile to a testUser
func testVerify(_ context.Context, _ citizenid.AccessToken, _ citizenid.RefreshToken, p *citizenid.Profile) (interface{}, error) {
	return &testUser{ID: p.ID}, nil
}

// testSuccessFn is a test SuccessResponseFunc
func testSuccessFn(state string, user interface{}, _ *citizenid.Token, _ *citizenid.Profile, w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	j, _ := json.Marshal(user)
	_, _ = w.Write(j)
}

// testFailRecorder records the last error handed to its ErrorResponseFunc
type testFailRecorder struct {
	mu      sync.Mutex
	lastErr error
}

func (r *testFailRecorder) LastErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// FailFn is a test ErrorResponseFunc
func (r *testFailRecorder) FailFn(state string, respErr *AuthenErrorResponse, e error, w http.ResponseWriter, _ *http.Request) {
	r.mu.Lock()
	r.lastErr = e
	r.mu.Unlock()
	if e != nil {
		w.WriteHeader(http.StatusInternalServerError)
		j, _ := json.Marshal(&AuthenErrorResponse{
			Error:       "internal-callback-error",
			Description: e.Error(),
		})
		_, _ = w.Write(j)
		return
	}
	if respErr != nil {
		w.WriteHeader(http.StatusUnauthorized)
		j, _ := json.Marshal(respErr)
		_, _ = w.Write(j)
		return
	}
	w.WriteHeader(http.StatusInternalServerError)
	j, _ := json.Marshal(&AuthenErrorResponse{
		Error: "unknown-callback-error",
	})
	_, _ = w.Write(j)
}

// testNewStrategy creates a new Strategy for the TestProvider (tp).  This is
// helpful internally, but intentionally not exported.
func testNewStrategy(t *testing.T, tp *citizenid.TestProvider, verify citizenid.VerifyFunc, opt ...citizenid.Option) *citizenid.Strategy {
	t.Helper()
	require := require.New(t)
	clientID, clientSecret := tp.ClientCreds()
	c, err := citizenid.NewConfig(
		clientID,
		testRedirect,
		append([]citizenid.Option{
			citizenid.WithClientSecret(citizenid.ClientSecret(clientSecret)),
			citizenid.WithProviderURL(tp.Addr()),
			citizenid.WithProviderCA(tp.CACert()),
		}, opt...)...,
	)
	require.NoError(err)
	s, err := citizenid.NewStrategy(c, verify)
	require.NoError(err)
	return s
}

// testAuthorize sends the user to the TestProvider's authorization endpoint
// and returns the query of the provider's redirect back to the application.
func testAuthorize(t *testing.T, tp *citizenid.TestProvider, authURL string) url.Values {
	t.Helper()
	require := require.New(t)
	client := *tp.HTTPClient()
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err := client.Get(authURL)
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(err)
	return loc.Query()
}

// testAttemptCookie returns the attempt cookie set by a response, if any.
func testAttemptCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == AttemptCookieName {
			return c
		}
	}
	return nil
}
