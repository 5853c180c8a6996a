// Copyright (c) The go-auth Authors
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/citizenid/go-auth/citizenid"
)

// AttemptCookieName is the cookie which carries the attempt's state from the
// 1st leg of the flow to its callback.
const AttemptCookieName = "citizenid_attempt"

// Login creates a handler for the 1st leg of the flow.  For each request it
// creates a new citizenid.Attempt which expires after expireIn, stores it
// with the AttemptWriter, sets the attempt cookie and redirects the user to
// the provider's authorization URL.
//
// The opts are the attempt's options (see citizenid.NewAttempt).  The
// ErrorResponseFunc is used to create a response when the attempt can't be
// started.
//
// Each request runs with the request's context, which is also canceled when
// ctx is done.
func Login(ctx context.Context, s *citizenid.Strategy, aw AttemptWriter, expireIn time.Duration, eFn ErrorResponseFunc, opt ...citizenid.Option) (http.HandlerFunc, error) {
	const op = "callback.Login"
	switch {
	case s == nil:
		return nil, fmt.Errorf("%s: strategy is empty: %w", op, citizenid.ErrInvalidParameter)
	case aw == nil:
		return nil, fmt.Errorf("%s: attempt writer is empty: %w", op, citizenid.ErrInvalidParameter)
	case eFn == nil:
		return nil, fmt.Errorf("%s: error response func is empty: %w", op, citizenid.ErrInvalidParameter)
	case expireIn <= 0:
		return nil, fmt.Errorf("%s: expireIn not greater than zero: %w", op, citizenid.ErrInvalidParameter)
	}
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := requestContext(ctx, req)
		defer cancel()

		a, err := s.NewAttempt(expireIn, opt...)
		if err != nil {
			eFn("", nil, fmt.Errorf("%s: unable to create attempt: %w", op, err), w, req)
			return
		}
		authURL, err := s.AuthURL(ctx, a)
		if err != nil {
			eFn(a.State(), nil, fmt.Errorf("%s: unable to create auth url: %w", op, err), w, req)
			return
		}
		if err := aw.Write(ctx, a); err != nil {
			eFn(a.State(), nil, fmt.Errorf("%s: unable to store attempt: %w", op, err), w, req)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     AttemptCookieName,
			Value:    a.State(),
			Path:     "/",
			MaxAge:   int(expireIn.Seconds()),
			HttpOnly: true,
			Secure:   req.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, req, authURL, http.StatusFound)
	}, nil
}
