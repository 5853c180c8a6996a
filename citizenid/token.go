// Copyright (c) The go-auth Authors
// SPDX-License-Identifier: MPL-2.0

package citizenid

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// AccessToken is an oauth access_token.
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token.
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token.
func (t AccessToken) String() string {
	return RedactedAccessToken
}

// MarshalJSON will redact the token.
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

// RefreshToken is an oauth refresh_token.
type RefreshToken string

// RedactedRefreshToken is the redacted string or json for an oauth refresh_token.
const RedactedRefreshToken = "[REDACTED: refresh_token]"

// String will redact the token.
func (t RefreshToken) String() string {
	return RedactedRefreshToken
}

// MarshalJSON will redact the token.
func (t RefreshToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedRefreshToken)
}

// IDToken is an oidc id_token.
type IDToken string

// RedactedIDToken is the redacted string or json for an oidc id_token.
const RedactedIDToken = "[REDACTED: id_token]"

// String will redact the token.
func (t IDToken) String() string {
	return RedactedIDToken
}

// MarshalJSON will redact the token.
func (t IDToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIDToken)
}

// Payload returns the id_token's JSON payload WITHOUT verifying the token's
// signature or any of its claims.  Signature verification, when required,
// belongs to the caller before the payload is trusted.
func (t IDToken) Payload() ([]byte, error) {
	const op = "IDToken.Payload"
	if len(t) == 0 {
		return nil, fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	parsed, err := jwt.ParseSigned(string(t))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to parse id_token: %w", op, err)
	}
	var payload json.RawMessage
	if err := parsed.UnsafeClaimsWithoutVerification(&payload); err != nil {
		return nil, fmt.Errorf("%s: unable to decode id_token payload: %w", op, err)
	}
	return payload, nil
}

// Claims unmarshals the id_token's payload into claims WITHOUT verifying the
// token.  See Payload.
func (t IDToken) Claims(claims interface{}) error {
	const op = "IDToken.Claims"
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	payload, err := t.Payload()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := json.Unmarshal(payload, claims); err != nil {
		return fmt.Errorf("%s: unable to unmarshal id_token claims: %w", op, err)
	}
	return nil
}

// Token is the result of a successful authorization code exchange.  It
// carries the access_token, the optional refresh_token and id_token and the
// rest of the parameters returned by the token endpoint.
type Token struct {
	underlying *oauth2.Token
	idToken    IDToken
}

// NewToken creates a Token from the oauth2.Token returned by the exchange.
// The id_token is taken from the token's "id_token" parameter when present.
func NewToken(t *oauth2.Token) (*Token, error) {
	const op = "citizenid.NewToken"
	if t == nil {
		return nil, fmt.Errorf("%s: oauth2 token is nil: %w", op, ErrNilParameter)
	}
	if t.AccessToken == "" {
		return nil, fmt.Errorf("%s: access_token is empty: %w", op, ErrInvalidParameter)
	}
	tk := &Token{
		underlying: t,
	}
	if idToken, ok := t.Extra("id_token").(string); ok {
		tk.idToken = IDToken(idToken)
	}
	return tk, nil
}

// AccessToken returns the access_token.
func (t *Token) AccessToken() AccessToken { return AccessToken(t.underlying.AccessToken) }

// RefreshToken returns the refresh_token, which may be empty.
func (t *Token) RefreshToken() RefreshToken { return RefreshToken(t.underlying.RefreshToken) }

// IDToken returns the id_token, which may be empty.
func (t *Token) IDToken() IDToken { return t.idToken }

// TokenType returns the token's type (typically "Bearer").
func (t *Token) TokenType() string { return t.underlying.Type() }

// Expiry returns the access_token's expiration, which is zero when the
// provider didn't return one.
func (t *Token) Expiry() time.Time { return t.underlying.Expiry }

// Param returns a parameter returned by the token endpoint.  It's nil when
// the endpoint didn't return the parameter.
func (t *Token) Param(key string) interface{} { return t.underlying.Extra(key) }

// StaticTokenSource returns a TokenSource that always returns the access
// token, without refreshing it.
func (t *Token) StaticTokenSource() oauth2.TokenSource {
	return oauth2.StaticTokenSource(t.underlying)
}
