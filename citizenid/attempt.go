// Copyright (c) The go-auth Authors
// SPDX-License-Identifier: MPL-2.0

package citizenid

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/text/language"
)

// DefaultAttemptExpirySkew defines a default time skew when checking an
// Attempt's expiration.
const DefaultAttemptExpirySkew = 1 * time.Second

// Attempt represents one authentication attempt for a user.  It carries the
// data needed to correlate the authorization request with its callback
// (state, nonce, PKCE code verifier), the optional authorization request
// parameters, and the attempt's scratch state: the id_token captured by the
// token exchange, which is handed to the profile step through the Attempt
// rather than through the Strategy.
//
// An Attempt must not be shared between concurrent authentication attempts.
type Attempt struct {
	state        string
	nonce        string
	codeVerifier string
	expiration   time.Time
	redirectURL  string

	responseMode ResponseMode
	prompts      []Prompt
	maxAge       *uint
	uiLocales    []language.Tag

	nowFunc func() time.Time

	// set by Strategy.Exchange
	idToken IDToken

	// set by Strategy.Profile when the captured id_token couldn't be used
	idTokenDecodeErr error
}

// NewAttempt creates a new Attempt which expires after expireIn.  Most
// callers should use Strategy.NewAttempt, which applies the strategy's PKCE
// and redirect settings.
//
// Supported options:
//   - WithNonce
//   - WithCodeVerifier
//   - WithRedirectURL
//   - WithResponseMode
//   - WithPrompts
//   - WithMaxAge
//   - WithUILocales
//   - WithNow
func NewAttempt(expireIn time.Duration, opt ...Option) (*Attempt, error) {
	const op = "citizenid.NewAttempt"
	opts := getAttemptOpts(opt...)
	if expireIn <= 0 {
		return nil, fmt.Errorf("%s: expireIn not greater than zero: %w", op, ErrInvalidParameter)
	}
	if err := validatePrompts(opts.withPrompts); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	state, err := NewID(WithPrefix("st"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate an attempt's state: %w", op, err)
	}
	if opts.withNonce != "" && opts.withNonce == state {
		return nil, fmt.Errorf("%s: state and nonce cannot be equal: %w", op, ErrInvalidParameter)
	}
	a := &Attempt{
		state:        state,
		nonce:        opts.withNonce,
		codeVerifier: opts.withCodeVerifier,
		redirectURL:  opts.withRedirectURL,
		responseMode: opts.withResponseMode,
		prompts:      opts.withPrompts,
		maxAge:       opts.withMaxAge,
		uiLocales:    opts.withUILocales,
		nowFunc:      opts.withNowFunc,
	}
	a.expiration = a.now().Add(expireIn)
	return a, nil
}

// State is the attempt's unique opaque id.  It's sent as the authorization
// request's "state" parameter when state is enabled.
func (a *Attempt) State() string { return a.state }

// Nonce is the optional nonce for the authorization request.
func (a *Attempt) Nonce() string { return a.nonce }

// CodeVerifier is the PKCE code verifier, which is empty when PKCE isn't used.
func (a *Attempt) CodeVerifier() string { return a.codeVerifier }

// Expiration is the attempt's expiration time.
func (a *Attempt) Expiration() time.Time { return a.expiration }

// RedirectURL is the optional redirect for this attempt.  When empty, the
// strategy's configured redirect is used.
func (a *Attempt) RedirectURL() string { return a.redirectURL }

// ResponseMode is the optional response_mode for the authorization request.
func (a *Attempt) ResponseMode() ResponseMode { return a.responseMode }

// Prompts are the optional prompts for the authorization request.
func (a *Attempt) Prompts() []Prompt { return a.prompts }

// MaxAge is the optional max_age (in seconds) for the authorization request.
// The bool is false when it wasn't supplied.
func (a *Attempt) MaxAge() (uint, bool) {
	if a.maxAge == nil {
		return 0, false
	}
	return *a.maxAge, true
}

// UILocales are the optional ui_locales for the authorization request.
func (a *Attempt) UILocales() []language.Tag { return a.uiLocales }

// IDToken is the id_token captured by the attempt's token exchange.  It's
// empty until a successful exchange returns one.
func (a *Attempt) IDToken() IDToken { return a.idToken }

// IDTokenDecodeErr returns why the captured id_token couldn't be used for the
// attempt's profile, if that happened.  It's a diagnostic, the profile is
// fetched from the userinfo endpoint instead.
func (a *Attempt) IDTokenDecodeErr() error { return a.idTokenDecodeErr }

// IsExpired returns true if the attempt has expired.  It uses the
// DefaultAttemptExpirySkew.
func (a *Attempt) IsExpired() bool {
	return a.expiration.Before(a.now().Add(DefaultAttemptExpirySkew))
}

func (a *Attempt) now() time.Time {
	if a.nowFunc != nil {
		return a.nowFunc()
	}
	return time.Now() // fallback to this default
}

// attemptJSON is the encoded form of an Attempt.  The scratch state isn't
// encoded since it only lives for the duration of the callback.
type attemptJSON struct {
	State        string    `json:"state"`
	Nonce        string    `json:"nonce,omitempty"`
	CodeVerifier string    `json:"code_verifier,omitempty"`
	Expiration   time.Time `json:"expiration"`
	RedirectURL  string    `json:"redirect_url,omitempty"`
	ResponseMode string    `json:"response_mode,omitempty"`
	Prompts      []Prompt  `json:"prompts,omitempty"`
	MaxAge       *uint     `json:"max_age,omitempty"`
	UILocales    []string  `json:"ui_locales,omitempty"`
}

// EncodeAttempt encodes an Attempt for an attempt store.  The encoding
// includes the PKCE code verifier, so it must be stored securely.
func EncodeAttempt(a *Attempt) ([]byte, error) {
	const op = "citizenid.EncodeAttempt"
	if a == nil {
		return nil, fmt.Errorf("%s: attempt is nil: %w", op, ErrNilParameter)
	}
	enc := attemptJSON{
		State:        a.state,
		Nonce:        a.nonce,
		CodeVerifier: a.codeVerifier,
		Expiration:   a.expiration,
		RedirectURL:  a.redirectURL,
		ResponseMode: string(a.responseMode),
		Prompts:      a.prompts,
		MaxAge:       a.maxAge,
	}
	for _, l := range a.uiLocales {
		enc.UILocales = append(enc.UILocales, l.String())
	}
	b, err := json.Marshal(enc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b, nil
}

// DecodeAttempt decodes an Attempt encoded by EncodeAttempt.
func DecodeAttempt(data []byte) (*Attempt, error) {
	const op = "citizenid.DecodeAttempt"
	var dec attemptJSON
	if err := json.Unmarshal(data, &dec); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if dec.State == "" {
		return nil, fmt.Errorf("%s: state is empty: %w", op, ErrInvalidParameter)
	}
	a := &Attempt{
		state:        dec.State,
		nonce:        dec.Nonce,
		codeVerifier: dec.CodeVerifier,
		expiration:   dec.Expiration,
		redirectURL:  dec.RedirectURL,
		responseMode: ResponseMode(dec.ResponseMode),
		prompts:      dec.Prompts,
		maxAge:       dec.MaxAge,
	}
	for _, l := range dec.UILocales {
		tag, err := language.Parse(l)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid ui locale %q: %w", op, l, err)
		}
		a.uiLocales = append(a.uiLocales, tag)
	}
	return a, nil
}

// attemptOptions is the set of available options for attempts
type attemptOptions struct {
	withNonce        string
	withCodeVerifier string
	withRedirectURL  string
	withResponseMode ResponseMode
	withPrompts      []Prompt
	withMaxAge       *uint
	withUILocales    []language.Tag
	withNowFunc      func() time.Time
}

// attemptDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func attemptDefaults() attemptOptions {
	return attemptOptions{}
}

// getAttemptOpts gets the attempt defaults and applies the opt overrides
// passed in
func getAttemptOpts(opt ...Option) attemptOptions {
	opts := attemptDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithNonce provides an optional nonce for the authorization request.
func WithNonce(nonce string) Option {
	return func(o interface{}) {
		if o, ok := o.(*attemptOptions); ok {
			o.withNonce = nonce
		}
	}
}

// WithCodeVerifier provides an optional PKCE code verifier.  See:
// oauth2.GenerateVerifier()
func WithCodeVerifier(verifier string) Option {
	return func(o interface{}) {
		if o, ok := o.(*attemptOptions); ok {
			o.withCodeVerifier = verifier
		}
	}
}

// WithRedirectURL provides an optional redirect for an attempt, overriding
// the strategy's configured redirect.
func WithRedirectURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*attemptOptions); ok {
			o.withRedirectURL = u
		}
	}
}

// WithResponseMode provides an optional response_mode.
func WithResponseMode(m ResponseMode) Option {
	return func(o interface{}) {
		if o, ok := o.(*attemptOptions); ok {
			o.withResponseMode = m
		}
	}
}

// WithPrompts provides optional prompts.  None can't be combined with any
// other prompt.
func WithPrompts(prompts ...Prompt) Option {
	return func(o interface{}) {
		if o, ok := o.(*attemptOptions); ok {
			o.withPrompts = prompts
		}
	}
}

// WithMaxAge provides an optional max_age, the allowable elapsed time in
// seconds since the user last actively authenticated.  Once supplied it's
// always sent, including zero.
func WithMaxAge(seconds uint) Option {
	return func(o interface{}) {
		if o, ok := o.(*attemptOptions); ok {
			o.withMaxAge = &seconds
		}
	}
}

// WithUILocales provides optional ui_locales, ordered by preference.
func WithUILocales(locales ...language.Tag) Option {
	return func(o interface{}) {
		if o, ok := o.(*attemptOptions); ok {
			o.withUILocales = locales
		}
	}
}

// WithNow provides an optional func for determining what the current time it
// is.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*attemptOptions); ok {
			o.withNowFunc = now
		}
	}
}
