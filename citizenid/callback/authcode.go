// Copyright (c) The go-auth Authors
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"fmt"
	"net/http"

	"github.com/citizenid/go-auth/citizenid"
)

// AuthCode creates an authorization code callback handler (the 3rd leg of the
// flow).  The attempt is read from the AttemptReader using the attempt cookie
// set by Login, falling back to the response's "state" parameter when there's
// no cookie (for example: form_post responses, which don't carry SameSite=Lax
// cookies).
//
// The attempt's code is exchanged and its profile is handed to the strategy's
// verify func.  The SuccessResponseFunc is used to create a response when
// callback is successful. The ErrorResponseFunc is to create a response when
// the callback fails.  The attempt is removed by the read, so it can't be
// completed again whatever the outcome.
//
// Each request runs with the request's context, which is also canceled when
// ctx is done.
func AuthCode(ctx context.Context, s *citizenid.Strategy, ar AttemptReader, sFn SuccessResponseFunc, eFn ErrorResponseFunc) (http.HandlerFunc, error) {
	const op = "callback.AuthCode"
	switch {
	case s == nil:
		return nil, fmt.Errorf("%s: strategy is empty: %w", op, citizenid.ErrInvalidParameter)
	case ar == nil:
		return nil, fmt.Errorf("%s: attempt reader is empty: %w", op, citizenid.ErrInvalidParameter)
	case sFn == nil:
		return nil, fmt.Errorf("%s: success response func is empty: %w", op, citizenid.ErrInvalidParameter)
	case eFn == nil:
		return nil, fmt.Errorf("%s: error response func is empty: %w", op, citizenid.ErrInvalidParameter)
	}
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := requestContext(ctx, req)
		defer cancel()

		// get parameters from either the body or query parameters.
		// FormValue prioritizes body values, if found.
		reqState := req.FormValue("state")
		attemptKey := reqState
		if c, err := req.Cookie(AttemptCookieName); err == nil && c.Value != "" {
			attemptKey = c.Value
		}
		if attemptKey != "" {
			http.SetCookie(w, &http.Cookie{
				Name:     AttemptCookieName,
				Value:    "",
				Path:     "/",
				MaxAge:   -1,
				HttpOnly: true,
				Secure:   req.TLS != nil,
				SameSite: http.SameSiteLaxMode,
			})
		}

		if respErr := req.FormValue("error"); respErr != "" {
			if attemptKey != "" {
				// the attempt is over, remove it
				_, _ = ar.Read(ctx, attemptKey)
			}
			reqError := &AuthenErrorResponse{
				Error:       respErr,
				Description: req.FormValue("error_description"),
				Uri:         req.FormValue("error_uri"),
			}
			eFn(reqState, reqError, nil, w, req)
			return
		}

		if attemptKey == "" {
			eFn(reqState, nil, fmt.Errorf("%s: missing attempt cookie and state: %w", op, citizenid.ErrInvalidParameter), w, req)
			return
		}
		a, err := ar.Read(ctx, attemptKey)
		if err != nil {
			eFn(reqState, nil, fmt.Errorf("%s: unable to read auth code attempt: %w", op, err), w, req)
			return
		}
		if a == nil {
			// could have expired or it could be invalid... no way to know for sure
			eFn(reqState, nil, fmt.Errorf("%s: auth code attempt not found: %w", op, citizenid.ErrNotFound), w, req)
			return
		}

		if a.IsExpired() {
			eFn(reqState, nil, fmt.Errorf("%s: %w", op, citizenid.ErrExpiredAttempt), w, req)
			return
		}

		t, p, err := s.Authenticate(ctx, a, reqState, req.FormValue("code"))
		if err != nil {
			eFn(reqState, nil, fmt.Errorf("%s: %w", op, err), w, req)
			return
		}
		user, err := s.Verify(ctx, req, t, p)
		if err != nil {
			eFn(reqState, nil, fmt.Errorf("%s: %w", op, err), w, req)
			return
		}
		sFn(a.State(), user, t, p, w, req)
	}, nil
}
