// Copyright (c) The go-auth Authors
// SPDX-License-Identifier: MPL-2.0

package citizenid

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t)

	tests := []struct {
		name        string
		clientID    string
		redirectURL string
		opts        []Option
		want        *Config
		wantErr     bool
		wantIsErr   error
	}{
		{
			name:        "defaults",
			clientID:    "test-client-id",
			redirectURL: "https://example.com/callback",
			want: &Config{
				ClientID:    "test-client-id",
				RedirectURL: "https://example.com/callback",
				Scopes:      []string{"openid", "profile", "email"},
				AuthURL:     "https://citizenid.space/connect/authorize",
				TokenURL:    "https://citizenid.space/connect/token",
				UserInfoURL: "https://citizenid.space/connect/userinfo",
			},
		},
		{
			name:     "empty-redirect",
			clientID: "test-client-id",
			want: &Config{
				ClientID:    "test-client-id",
				Scopes:      []string{"openid", "profile", "email"},
				AuthURL:     DefaultAuthURL,
				TokenURL:    DefaultTokenURL,
				UserInfoURL: DefaultUserInfoURL,
			},
		},
		{
			name:        "all-options",
			clientID:    "test-client-id",
			redirectURL: "https://example.com/callback",
			opts: []Option{
				WithClientSecret("test-client-secret"),
				WithScopes("email"),
				WithProviderURL("https://staging.citizenid.space/"),
				WithUserInfoURL("https://userinfo.example.com/me"),
				WithPKCE(false),
				WithState(false),
				WithProviderCA(tp.CACert()),
				WithAuthParams(map[string]string{"acr_values": "mfa"}),
			},
			want: &Config{
				ClientID:     "test-client-id",
				ClientSecret: "test-client-secret",
				RedirectURL:  "https://example.com/callback",
				Scopes:       []string{"openid", "email"},
				AuthURL:      "https://staging.citizenid.space/connect/authorize",
				TokenURL:     "https://staging.citizenid.space/connect/token",
				UserInfoURL:  "https://userinfo.example.com/me",
				DisablePKCE:  true,
				DisableState: true,
				ProviderCA:   tp.CACert(),
				AuthParams:   map[string]string{"acr_values": "mfa"},
			},
		},
		{
			name:        "missing-client-id",
			redirectURL: "https://example.com/callback",
			wantErr:     true,
			wantIsErr:   ErrInvalidParameter,
		},
		{
			name:        "bad-redirect",
			clientID:    "test-client-id",
			redirectURL: "example.com/callback",
			wantErr:     true,
			wantIsErr:   ErrInvalidParameter,
		},
		{
			name:        "bad-token-url",
			clientID:    "test-client-id",
			redirectURL: "https://example.com/callback",
			opts:        []Option{WithTokenURL("ftp://citizenid.space/connect/token")},
			wantErr:     true,
			wantIsErr:   ErrInvalidParameter,
		},
		{
			name:        "bad-ca",
			clientID:    "test-client-id",
			redirectURL: "https://example.com/callback",
			opts:        []Option{WithProviderCA("not-a-cert")},
			wantErr:     true,
			wantIsErr:   ErrInvalidCACert,
		},
		{
			name:        "reserved-auth-param",
			clientID:    "test-client-id",
			redirectURL: "https://example.com/callback",
			opts:        []Option{WithAuthParams(map[string]string{"state": "mine"})},
			wantErr:     true,
			wantIsErr:   ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := NewConfig(tt.clientID, tt.redirectURL, tt.opts...)
			if tt.wantErr {
				require.Error(err)
				assert.Nil(got)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
			assert.Equal(!tt.want.DisablePKCE, got.PKCEEnabled())
			assert.Equal(!tt.want.DisableState, got.StateEnabled())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	t.Run("nil", func(t *testing.T) {
		assert := assert.New(t)
		var c *Config
		err := c.Validate()
		assert.Truef(errors.Is(err, ErrNilParameter), "wanted \"%s\" but got \"%s\"", ErrNilParameter, err)
	})
	t.Run("every-problem-reported", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := &Config{
			RedirectURL: "not-a-url",
			AuthURL:     "https://",
			TokenURL:    DefaultTokenURL,
			UserInfoURL: DefaultUserInfoURL,
			ProviderCA:  "not-a-cert",
		}
		err := c.Validate()
		require.Error(err)
		var merr *multierror.Error
		require.True(errors.As(err, &merr))
		// client id, redirect, authorization URL, scopes and CA
		assert.Len(merr.Errors, 5)
		assert.True(errors.Is(err, ErrInvalidCACert))
	})
}

func TestResolveScopes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		scopes []string
		want   []string
	}{
		{"nil", nil, []string{"openid", "profile", "email"}},
		{"empty", []string{}, []string{"openid", "profile", "email"}},
		{"only-blank", []string{"", "  "}, []string{"openid", "profile", "email"}},
		{"single", []string{"email"}, []string{"openid", "email"}},
		{"prepend-openid", []string{"profile", "email"}, []string{"openid", "profile", "email"}},
		{"openid-first", []string{"openid", "email"}, []string{"openid", "email"}},
		{"openid-kept-in-place", []string{"profile", "openid"}, []string{"profile", "openid"}},
		{"duplicates", []string{"email", "openid", "email", "openid"}, []string{"email", "openid"}},
		{"custom", []string{"discord", "rsi:profile"}, []string{"openid", "discord", "rsi:profile"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			got := resolveScopes(tt.scopes)
			assert.Equal(tt.want, got)

			var openids int
			for _, s := range got {
				if s == "openid" {
					openids++
				}
			}
			assert.Equal(1, openids)
			assert.Equal(got, resolveScopes(got), "resolving is idempotent")
		})
	}
}

func TestConfig_Resolve(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	c := &Config{
		ClientID: "test-client-id",
		TokenURL: "https://token.example.com/token",
		Scopes:   []string{"email"},
	}
	c.Resolve()
	assert.Equal(DefaultAuthURL, c.AuthURL)
	assert.Equal("https://token.example.com/token", c.TokenURL)
	assert.Equal(DefaultUserInfoURL, c.UserInfoURL)
	assert.Equal([]string{"openid", "email"}, c.Scopes)

	before := *c
	c.Resolve()
	assert.Equal(before, *c)

	var nilConfig *Config
	assert.NotPanics(func() { nilConfig.Resolve() })
}

func TestConfig_HTTPClient(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t)

	t.Run("provider-ca", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := &Config{ProviderCA: tp.CACert()}
		client, err := c.HTTPClient()
		require.NoError(err)
		resp, err := client.Get(tp.Addr() + "/unknown")
		require.NoError(err)
		defer resp.Body.Close()
		assert.Equal(http.StatusNotFound, resp.StatusCode)
	})
	t.Run("untrusted", func(t *testing.T) {
		require := require.New(t)
		c := &Config{}
		client, err := c.HTTPClient()
		require.NoError(err)
		_, err = client.Get(tp.Addr() + "/unknown")
		require.Error(err)
	})
	t.Run("bad-ca", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := &Config{ProviderCA: "not-a-cert"}
		_, err := c.HTTPClient()
		require.Error(err)
		assert.Truef(errors.Is(err, ErrInvalidCACert), "wanted \"%s\" but got \"%s\"", ErrInvalidCACert, err)
	})
}

func TestClientSecret_Redacted(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	c, err := NewConfig("test-client-id", "", WithClientSecret("super-secret"))
	require.NoError(err)

	assert.Equal(RedactedClientSecret, c.ClientSecret.String())
	assert.Equal(RedactedClientSecret, fmt.Sprintf("%v", c.ClientSecret))
	b, err := json.Marshal(c)
	require.NoError(err)
	assert.NotContains(string(b), "super-secret")
	assert.Contains(string(b), RedactedClientSecret)
}

func Test_WithProviderURL(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	opts := getConfigOpts(WithProviderURL("https://staging.citizenid.space/"))
	assert.Equal("https://staging.citizenid.space/connect/authorize", opts.withAuthURL)
	assert.Equal("https://staging.citizenid.space/connect/token", opts.withTokenURL)
	assert.Equal("https://staging.citizenid.space/connect/userinfo", opts.withUserInfoURL)

	// explicit endpoints take precedence regardless of the order
	opts = getConfigOpts(WithTokenURL("https://token.example.com"), WithProviderURL("https://staging.citizenid.space"))
	assert.Equal("https://token.example.com", opts.withTokenURL)
	opts = getConfigOpts(WithProviderURL("https://staging.citizenid.space"), WithTokenURL("https://token.example.com"))
	assert.Equal("https://token.example.com", opts.withTokenURL)
	assert.Equal("https://staging.citizenid.space/connect/authorize", opts.withAuthURL)
}

func Test_configDefaults(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	opts := getConfigOpts()
	assert.Equal(configOptions{withPKCE: true, withState: true}, opts)
}
