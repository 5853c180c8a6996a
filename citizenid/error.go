// Copyright (c) The go-auth Authors
// SPDX-License-Identifier: MPL-2.0

package citizenid

import "errors"

var (
	ErrInvalidParameter     = errors.New("invalid parameter")
	ErrNilParameter         = errors.New("nil parameter")
	ErrInvalidCACert        = errors.New("invalid CA certificate")
	ErrIdGeneratorFailed    = errors.New("id generation failed")
	ErrExpiredAttempt       = errors.New("authentication attempt is expired")
	ErrResponseStateInvalid = errors.New("invalid response state")
	ErrNotFound             = errors.New("not found")
	ErrLoginFailed          = errors.New("login failed")
	ErrMissingSubject       = errors.New("sub claim is missing")

	// ErrExchangeFailed is returned when the token endpoint rejects the
	// authorization code or can't be reached.  It always wraps the underlying
	// cause.
	ErrExchangeFailed = errors.New("token exchange failed")

	// ErrProfileRetrieval is returned when the userinfo endpoint can't be
	// reached or doesn't return a successful response.
	ErrProfileRetrieval = errors.New("failed to fetch user profile")

	// ErrProfileParse is returned when the userinfo response isn't a
	// well-formed claim set.
	ErrProfileParse = errors.New("failed to parse user profile")
)
