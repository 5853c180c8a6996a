// Copyright (c) The go-auth Authors
// SPDX-License-Identifier: MPL-2.0

package citizenid

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-multierror"
)

const (
	// DefaultProviderURL is the base URL of the CitizenID identity provider.
	DefaultProviderURL = "https://citizenid.space"

	authPath     = "/connect/authorize"
	tokenPath    = "/connect/token"
	userInfoPath = "/connect/userinfo"

	// DefaultAuthURL is the CitizenID authorization endpoint
	DefaultAuthURL = DefaultProviderURL + authPath
	// DefaultTokenURL is the CitizenID token endpoint
	DefaultTokenURL = DefaultProviderURL + tokenPath
	// DefaultUserInfoURL is the CitizenID userinfo endpoint
	DefaultUserInfoURL = DefaultProviderURL + userInfoPath
)

// DefaultScopes are requested when no scopes are configured.
var DefaultScopes = []string{oidc.ScopeOpenID, "profile", "email"}

// ClientSecret is an oauth client Secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret.
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret.
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret.
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// Config represents the configuration for the CitizenID 3-legged
// authorization code flow.  Use NewConfig to get a resolved Config with all
// of its defaults applied.
type Config struct {
	// ClientID is the relying party id.
	ClientID string

	// ClientSecret is the relying party secret.  It's optional for public
	// clients which use PKCE.
	ClientSecret ClientSecret

	// RedirectURL is where the provider sends the user after authorization.
	// When empty, the provider uses the client's registered redirect.
	RedirectURL string

	// Scopes is the ordered list of scopes to request.  After resolving, it's
	// never empty, has no duplicates and always starts with "openid" unless
	// the caller already placed "openid" elsewhere in the list.
	Scopes []string

	// AuthURL is the provider's authorization endpoint.
	AuthURL string

	// TokenURL is the provider's token endpoint.
	TokenURL string

	// UserInfoURL is the provider's userinfo endpoint.
	UserInfoURL string

	// DisablePKCE turns off Proof Key for Code Exchange.  PKCE is enabled by
	// default.
	DisablePKCE bool

	// DisableState turns off the state parameter used for CSRF protection.
	// State is enabled by default.
	DisableState bool

	// ProviderCA is an optional CA certs (PEM encoded) to use when sending
	// requests to the provider.
	ProviderCA string

	// AuthParams are provider specific parameters added to every
	// authorization request.  They can't override the parameters managed by
	// the strategy.
	AuthParams map[string]string
}

// NewConfig composes a new resolved config for the CitizenID strategy.  It
// fails fast, before any network activity, when the configuration is invalid
// (for example: a missing client id).
//
// Supported options:
//   - WithClientSecret
//   - WithScopes
//   - WithProviderURL
//   - WithAuthURL
//   - WithTokenURL
//   - WithUserInfoURL
//   - WithPKCE
//   - WithState
//   - WithProviderCA
//   - WithAuthParams
func NewConfig(clientID string, redirectURL string, opt ...Option) (*Config, error) {
	const op = "citizenid.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		ClientID:     clientID,
		ClientSecret: opts.withClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       opts.withScopes,
		AuthURL:      opts.withAuthURL,
		TokenURL:     opts.withTokenURL,
		UserInfoURL:  opts.withUserInfoURL,
		DisablePKCE:  !opts.withPKCE,
		DisableState: !opts.withState,
		ProviderCA:   opts.withProviderCA,
		AuthParams:   opts.withAuthParams,
	}
	c.Resolve()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	return c, nil
}

// Resolve applies the defaults for any unset endpoint and normalizes the
// scopes.  It's idempotent.
func (c *Config) Resolve() {
	if c == nil {
		return
	}
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.UserInfoURL == "" {
		c.UserInfoURL = DefaultUserInfoURL
	}
	c.Scopes = resolveScopes(c.Scopes)
}

// resolveScopes returns a new list of unique scopes.  An empty list becomes
// DefaultScopes and "openid" is prepended when it's missing.
func resolveScopes(scopes []string) []string {
	resolved := make([]string, 0, len(scopes)+1)
	seen := make(map[string]struct{}, len(scopes)+1)
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		resolved = append(resolved, s)
	}
	if len(resolved) == 0 {
		return append(resolved, DefaultScopes...)
	}
	if _, ok := seen[oidc.ScopeOpenID]; !ok {
		resolved = append([]string{oidc.ScopeOpenID}, resolved...)
	}
	return resolved
}

// Validate the configuration.  All of the problems found are returned as a
// single error.  It doesn't verify the endpoints are reachable.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	var errs *multierror.Error
	if c.ClientID == "" {
		errs = multierror.Append(errs, fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter))
	}
	for name, u := range map[string]string{
		"redirect":      c.RedirectURL,
		"authorization": c.AuthURL,
		"token":         c.TokenURL,
		"userinfo":      c.UserInfoURL,
	} {
		if u == "" && name == "redirect" {
			// optional, the provider falls back to the registered redirect
			continue
		}
		if err := validateURL(u); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %s URL %q is invalid: %w", op, name, u, err))
		}
	}
	if len(c.Scopes) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("%s: scopes are empty: %w", op, ErrInvalidParameter))
	}
	if c.ProviderCA != "" {
		if _, err := certPool(c.ProviderCA); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", op, err))
		}
	}
	for k := range c.AuthParams {
		if _, ok := reservedAuthParams[k]; ok {
			errs = multierror.Append(errs, fmt.Errorf("%s: auth param %q is managed by the strategy: %w", op, k, ErrInvalidParameter))
		}
	}
	return errs.ErrorOrNil()
}

// PKCEEnabled returns true when the attempt's code exchange is protected by PKCE.
func (c *Config) PKCEEnabled() bool { return !c.DisablePKCE }

// StateEnabled returns true when the state parameter is used for CSRF protection.
func (c *Config) StateEnabled() bool { return !c.DisableState }

// HTTPClient creates a new http client for the configured provider, using
// the ProviderCA when it's set.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "Config.HTTPClient"
	tr := cleanhttp.DefaultPooledTransport()
	if c.ProviderCA != "" {
		pool, err := certPool(c.ProviderCA)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs: pool,
		}
	}
	return &http.Client{
		Transport: tr,
	}, nil
}

func certPool(caPEM string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM([]byte(caPEM)); !ok {
		return nil, fmt.Errorf("could not parse CA PEM value successfully: %w", ErrInvalidCACert)
	}
	return pool, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https", "http":
	default:
		return fmt.Errorf("scheme %q is not http or https: %w", u.Scheme, ErrInvalidParameter)
	}
	if u.Host == "" {
		return fmt.Errorf("host is empty: %w", ErrInvalidParameter)
	}
	return nil
}

// reservedAuthParams can't be set via Config.AuthParams
var reservedAuthParams = map[string]struct{}{
	"client_id":             {},
	"redirect_uri":          {},
	"response_type":         {},
	"scope":                 {},
	"state":                 {},
	"nonce":                 {},
	"code_challenge":        {},
	"code_challenge_method": {},
}

// configOptions is the set of available options
type configOptions struct {
	withClientSecret ClientSecret
	withScopes       []string
	withAuthURL      string
	withTokenURL     string
	withUserInfoURL  string
	withPKCE         bool
	withState        bool
	withProviderCA   string
	withAuthParams   map[string]string
}

// configDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func configDefaults() configOptions {
	return configOptions{
		withPKCE:  true,
		withState: true,
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed
// in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithClientSecret provides an optional client secret.  Public clients using
// PKCE don't need one.
func WithClientSecret(secret ClientSecret) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withClientSecret = secret
		}
	}
}

// WithScopes provides an optional list of scopes.  A single scope is
// accepted as well as a list.
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScopes = scopes
		}
	}
}

// WithProviderURL derives the authorization, token and userinfo endpoints
// from the base URL of a CitizenID deployment.  Endpoints set with
// WithAuthURL, WithTokenURL or WithUserInfoURL take precedence regardless of
// the order of the options.
func WithProviderURL(base string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			base = strings.TrimSuffix(base, "/")
			if o.withAuthURL == "" {
				o.withAuthURL = base + authPath
			}
			if o.withTokenURL == "" {
				o.withTokenURL = base + tokenPath
			}
			if o.withUserInfoURL == "" {
				o.withUserInfoURL = base + userInfoPath
			}
		}
	}
}

// WithAuthURL provides an optional authorization endpoint.
func WithAuthURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAuthURL = u
		}
	}
}

// WithTokenURL provides an optional token endpoint.
func WithTokenURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withTokenURL = u
		}
	}
}

// WithUserInfoURL provides an optional userinfo endpoint.
func WithUserInfoURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withUserInfoURL = u
		}
	}
}

// WithPKCE enables or disables PKCE (enabled by default).
func WithPKCE(enabled bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withPKCE = enabled
		}
	}
}

// WithState enables or disables the state parameter (enabled by default).
func WithState(enabled bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withState = enabled
		}
	}
}

// WithProviderCA provides optional CA certs (PEM encoded) for the
// provider's TLS chain.
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithAuthParams provides optional provider specific parameters added to
// every authorization request.
func WithAuthParams(params map[string]string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAuthParams = params
		}
	}
}
