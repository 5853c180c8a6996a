// Copyright (c) The go-auth Authors
// SPDX-License-Identifier: MPL-2.0

package citizenid

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"
)

// maxUserInfoSize limits how much of a userinfo response is read.
const maxUserInfoSize = 1 << 20

// Exchanger is the generic authorization code for token exchange the
// strategy delegates to.  *oauth2.Config satisfies it.
type Exchanger interface {
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
}

// VerifyFunc maps an authenticated profile to an application user.  It
// returns a nil user (and a nil error) when the user isn't allowed to login.
type VerifyFunc func(ctx context.Context, accessToken AccessToken, refreshToken RefreshToken, p *Profile) (user interface{}, err error)

// VerifyRequestFunc is a VerifyFunc which also receives the request which
// completed the authentication attempt.
type VerifyRequestFunc func(req *http.Request, accessToken AccessToken, refreshToken RefreshToken, p *Profile) (user interface{}, err error)

// Strategy authenticates users with CitizenID using the OAuth 2.0
// authorization code flow with OpenID Connect.
//
// A Strategy holds no per-attempt state, so it can serve concurrent
// authentication attempts.  The state of each attempt travels in its Attempt.
type Strategy struct {
	config        *Config
	client        *http.Client
	exchanger     Exchanger
	logger        hclog.Logger
	verify        VerifyFunc
	verifyRequest VerifyRequestFunc
}

// NewStrategy creates a new Strategy.  The config is resolved and validated
// again, and a copy of it is kept.  Either verify or the WithRequestVerifier
// option must be provided.
//
// Supported options:
//   - WithRequestVerifier
//   - WithLogger
//   - WithExchanger
//   - WithHTTPClient
func NewStrategy(c *Config, verify VerifyFunc, opt ...Option) (*Strategy, error) {
	const op = "citizenid.NewStrategy"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	opts := getStrategyOpts(opt...)
	if verify == nil && opts.withRequestVerifier == nil {
		return nil, fmt.Errorf("%s: verify func is nil: %w", op, ErrNilParameter)
	}
	cp := *c
	cp.Scopes = append([]string(nil), c.Scopes...)
	cp.Resolve()
	if err := cp.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	s := &Strategy{
		config:        &cp,
		client:        opts.withHTTPClient,
		exchanger:     opts.withExchanger,
		logger:        opts.withLogger,
		verify:        verify,
		verifyRequest: opts.withRequestVerifier,
	}
	if s.client == nil {
		client, err := cp.HTTPClient()
		if err != nil {
			return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
		}
		s.client = client
	}
	if s.logger == nil {
		s.logger = hclog.NewNullLogger()
	}
	return s, nil
}

// Name returns the strategy's name.
func (s *Strategy) Name() string { return ProviderName }

// Config returns a copy of the strategy's resolved config.
func (s *Strategy) Config() Config {
	cp := *s.config
	cp.Scopes = append([]string(nil), s.config.Scopes...)
	return cp
}

// NewAttempt creates a new Attempt for the strategy.  A PKCE code verifier is
// generated when PKCE is enabled.  See NewAttempt for the supported options.
func (s *Strategy) NewAttempt(expireIn time.Duration, opt ...Option) (*Attempt, error) {
	const op = "Strategy.NewAttempt"
	if s.config.PKCEEnabled() {
		opt = append([]Option{WithCodeVerifier(oauth2.GenerateVerifier())}, opt...)
	}
	a, err := NewAttempt(expireIn, opt...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

// AuthURL returns the URL the user is redirected to in order to start the
// attempt with the provider.  The optional authorization parameters of the
// attempt (nonce, response_mode, prompt, max_age, ui_locales) are only sent
// when they were supplied.
func (s *Strategy) AuthURL(ctx context.Context, a *Attempt) (string, error) {
	const op = "Strategy.AuthURL"
	if a == nil {
		return "", fmt.Errorf("%s: attempt is nil: %w", op, ErrNilParameter)
	}
	if a.IsExpired() {
		return "", fmt.Errorf("%s: %w", op, ErrExpiredAttempt)
	}
	var opts []oauth2.AuthCodeOption
	for k, v := range s.config.AuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	if s.config.PKCEEnabled() {
		if a.CodeVerifier() == "" {
			return "", fmt.Errorf("%s: PKCE is enabled and the attempt has no code verifier: %w", op, ErrInvalidParameter)
		}
		opts = append(opts, oauth2.S256ChallengeOption(a.CodeVerifier()))
	}
	if a.Nonce() != "" {
		opts = append(opts, oidc.Nonce(a.Nonce()))
	}
	if a.ResponseMode() != "" {
		opts = append(opts, oauth2.SetAuthURLParam("response_mode", string(a.ResponseMode())))
	}
	if len(a.Prompts()) > 0 {
		prompts := make([]string, 0, len(a.Prompts()))
		for _, p := range a.Prompts() {
			prompts = append(prompts, string(p))
		}
		opts = append(opts, oauth2.SetAuthURLParam("prompt", strings.Join(prompts, " ")))
	}
	if maxAge, ok := a.MaxAge(); ok {
		opts = append(opts, oauth2.SetAuthURLParam("max_age", strconv.FormatUint(uint64(maxAge), 10)))
	}
	if len(a.UILocales()) > 0 {
		locales := make([]string, 0, len(a.UILocales()))
		for _, l := range a.UILocales() {
			locales = append(locales, l.String())
		}
		opts = append(opts, oauth2.SetAuthURLParam("ui_locales", strings.Join(locales, " ")))
	}
	var state string
	if s.config.StateEnabled() {
		state = a.State()
	}
	return s.oauth2Config(a).AuthCodeURL(state, opts...), nil
}

// Exchange exchanges the authorizationCode received in the attempt's
// callback for a Token.  When state is enabled, the authorizationState
// received must equal the attempt's State().
//
// When the token endpoint returns an id_token, it's captured on the attempt
// for the attempt's profile.  The Token is returned unchanged.  Exchange
// doesn't retry: a failed exchange returns ErrExchangeFailed wrapping the
// cause, and nothing is captured.
func (s *Strategy) Exchange(ctx context.Context, a *Attempt, authorizationState, authorizationCode string) (*Token, error) {
	const op = "Strategy.Exchange"
	if a == nil {
		return nil, fmt.Errorf("%s: attempt is nil: %w", op, ErrNilParameter)
	}
	a.idToken = ""
	a.idTokenDecodeErr = nil
	if authorizationCode == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	}
	if s.config.StateEnabled() && a.State() != authorizationState {
		return nil, fmt.Errorf("%s: authentication state and authorization state are not equal: %w", op, ErrResponseStateInvalid)
	}
	if a.IsExpired() {
		return nil, fmt.Errorf("%s: %w", op, ErrExpiredAttempt)
	}

	var opts []oauth2.AuthCodeOption
	if s.config.PKCEEnabled() {
		if a.CodeVerifier() == "" {
			return nil, fmt.Errorf("%s: PKCE is enabled and the attempt has no code verifier: %w", op, ErrInvalidParameter)
		}
		opts = append(opts, oauth2.VerifierOption(a.CodeVerifier()))
	}

	var exchanger Exchanger = s.oauth2Config(a)
	if s.exchanger != nil {
		exchanger = s.exchanger
	}
	s.logger.Trace("exchanging authorization code", "op", op, "attempt", a.State())
	oauth2Token, err := exchanger.Exchange(HTTPClientContext(ctx, s.client), authorizationCode, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to exchange auth code with provider: %w: %w", op, ErrExchangeFailed, err)
	}
	t, err := NewToken(oauth2Token)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid token from provider: %w: %w", op, ErrExchangeFailed, err)
	}
	if t.IDToken() != "" {
		a.idToken = t.IDToken()
	}
	return t, nil
}

// Profile returns the attempt's normalized user Profile.
//
// When the attempt captured an id_token, its payload is decoded (WITHOUT
// verification) and used, and no request is sent to the provider.  When
// there's no id_token, or it can't be decoded into a claim set with a
// subject, the userinfo endpoint is requested with the token's
// access_token.  The decode failure is available from the attempt's
// IDTokenDecodeErr().  A nil attempt always uses the userinfo endpoint.
func (s *Strategy) Profile(ctx context.Context, a *Attempt, t *Token) (*Profile, error) {
	const op = "Strategy.Profile"
	if t == nil {
		return nil, fmt.Errorf("%s: token is nil: %w", op, ErrNilParameter)
	}
	if a != nil && a.IDToken() != "" {
		p, err := profileFromIDToken(a.IDToken())
		if err == nil {
			return p, nil
		}
		a.idTokenDecodeErr = err
		s.logger.Warn("unable to use id_token for profile, falling back to userinfo", "op", op, "attempt", a.State(), "error", err)
	}
	p, err := s.UserInfo(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

func profileFromIDToken(t IDToken) (*Profile, error) {
	const op = "citizenid.profileFromIDToken"
	payload, err := t.Payload()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	info, err := ParseUserInfo(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return NormalizeProfile(info, string(t), SourceIDToken), nil
}

// UserInfo requests the user's claims from the userinfo endpoint, using the
// token's access_token as a bearer credential in the Authorization header,
// and returns the normalized Profile.  It doesn't retry.
func (s *Strategy) UserInfo(ctx context.Context, t *Token) (*Profile, error) {
	const op = "Strategy.UserInfo"
	if t == nil {
		return nil, fmt.Errorf("%s: token is nil: %w", op, ErrNilParameter)
	}
	client := oauth2.NewClient(HTTPClientContext(ctx, s.client), t.StaticTokenSource())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create userinfo request: %w: %w", op, ErrProfileRetrieval, err)
	}
	req.Header.Set("Accept", "application/json")

	s.logger.Trace("requesting userinfo", "op", op, "url", s.config.UserInfoURL)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrProfileRetrieval, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoSize))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read userinfo response: %w: %w", op, ErrProfileRetrieval, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrProfileRetrieval, fmt.Errorf("userinfo response status %s: %s", resp.Status, body))
	}
	info, err := ParseUserInfo(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrProfileParse, err)
	}
	return NormalizeProfile(info, string(body), SourceUserInfo), nil
}

// Authenticate completes the attempt: it exchanges the authorizationCode and
// then builds the attempt's Profile.  Every failure is terminal for the
// attempt.
func (s *Strategy) Authenticate(ctx context.Context, a *Attempt, authorizationState, authorizationCode string) (*Token, *Profile, error) {
	const op = "Strategy.Authenticate"
	t, err := s.Exchange(ctx, a, authorizationState, authorizationCode)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	p, err := s.Profile(ctx, a, t)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Debug("authenticated", "op", op, "attempt", a.State(), "subject", p.ID, "source", p.Source)
	return t, p, nil
}

// Verify hands the authenticated profile to the application's verify func
// and returns the application's user.  The request is only required when the
// strategy was created WithRequestVerifier.  ErrLoginFailed is returned when
// the verify func doesn't return a user.
func (s *Strategy) Verify(ctx context.Context, req *http.Request, t *Token, p *Profile) (interface{}, error) {
	const op = "Strategy.Verify"
	if t == nil {
		return nil, fmt.Errorf("%s: token is nil: %w", op, ErrNilParameter)
	}
	if p == nil {
		return nil, fmt.Errorf("%s: profile is nil: %w", op, ErrNilParameter)
	}
	var user interface{}
	var err error
	switch {
	case s.verifyRequest != nil:
		if req == nil {
			return nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
		}
		user, err = s.verifyRequest(req, t.AccessToken(), t.RefreshToken(), p)
	default:
		user, err = s.verify(ctx, t.AccessToken(), t.RefreshToken(), p)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if isNil(user) {
		return nil, fmt.Errorf("%s: no user for subject %q: %w", op, p.ID, ErrLoginFailed)
	}
	return user, nil
}

func isNil(i interface{}) bool {
	if i == nil {
		return true
	}
	if b, ok := i.(bool); ok {
		return !b
	}
	return false
}

// oauth2Config returns the oauth2.Config for the attempt, using the
// attempt's redirect when it has one.
func (s *Strategy) oauth2Config(a *Attempt) *oauth2.Config {
	redirect := s.config.RedirectURL
	if a != nil && a.RedirectURL() != "" {
		redirect = a.RedirectURL()
	}
	return &oauth2.Config{
		ClientID:     s.config.ClientID,
		ClientSecret: string(s.config.ClientSecret),
		RedirectURL:  redirect,
		// credentials are always posted in the body; AuthStyleAutoDetect
		// would retry a failed exchange with the other style.
		Endpoint: oauth2.Endpoint{
			AuthURL:   s.config.AuthURL,
			TokenURL:  s.config.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: s.config.Scopes,
	}
}

// HTTPClientContext is a helper function that returns a new Context that
// carries the provided HTTP client. This method sets the same context key used
// by the github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so the
// returned context works for those packages as well.
func HTTPClientContext(ctx context.Context, client *http.Client) context.Context {
	// simple to implement as a wrapper for the coreos package
	return oidc.ClientContext(ctx, client)
}

// IsTerminal returns true when the error ends an authentication attempt
// (a failed exchange or profile request).
func IsTerminal(err error) bool {
	return errors.Is(err, ErrExchangeFailed) || errors.Is(err, ErrProfileRetrieval) || errors.Is(err, ErrProfileParse)
}

// strategyOptions is the set of available options for a Strategy
type strategyOptions struct {
	withRequestVerifier VerifyRequestFunc
	withLogger          hclog.Logger
	withExchanger       Exchanger
	withHTTPClient      *http.Client
}

// strategyDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func strategyDefaults() strategyOptions {
	return strategyOptions{}
}

// getStrategyOpts gets the strategy defaults and applies the opt overrides
// passed in
func getStrategyOpts(opt ...Option) strategyOptions {
	opts := strategyDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithRequestVerifier provides a verify func which receives the request
// that completed the attempt.  It takes precedence over the strategy's
// VerifyFunc.
func WithRequestVerifier(fn VerifyRequestFunc) Option {
	return func(o interface{}) {
		if o, ok := o.(*strategyOptions); ok {
			o.withRequestVerifier = fn
		}
	}
}

// WithLogger provides an optional logger for diagnostics.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*strategyOptions); ok {
			o.withLogger = l
		}
	}
}

// WithExchanger provides an optional Exchanger, replacing the strategy's
// oauth2 code exchange.
func WithExchanger(e Exchanger) Option {
	return func(o interface{}) {
		if o, ok := o.(*strategyOptions); ok {
			o.withExchanger = e
		}
	}
}

// WithHTTPClient provides an optional http client for requests to the
// provider.  It replaces the client built from the config's ProviderCA.
func WithHTTPClient(c *http.Client) Option {
	return func(o interface{}) {
		if o, ok := o.(*strategyOptions); ok {
			o.withHTTPClient = c
		}
	}
}
