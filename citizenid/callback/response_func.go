// Copyright (c) The go-auth Authors
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"net/http"

	"github.com/citizenid/go-auth/citizenid"
)

// SuccessResponseFunc is used by AuthCode to create a http response when the
// callback is successful.
//
// The function state parameter will contain the state of the completed
// attempt.  The user is the value returned by the strategy's verify func, the
// citizenid.Token is the result of the token exchange and the Profile is the
// attempt's normalized profile.  The function should use the
// http.ResponseWriter to send back whatever content (headers, html, JSON,
// etc) it wishes to the client that originated the attempt (for example: set
// a session cookie and redirect).
type SuccessResponseFunc func(state string, user interface{}, t *citizenid.Token, p *citizenid.Profile, w http.ResponseWriter, req *http.Request)

// ErrorResponseFunc is used by Login and AuthCode to create a http response
// when they fail.
//
// The function receives the state returned as part of the authentication
// response.  It also gets parameters for the provider's authentication error
// response and/or the error raised while processing the request.  The function
// should use the http.ResponseWriter to send back whatever content (headers,
// html, JSON, etc) it wishes to the client that originated the attempt.
type ErrorResponseFunc func(state string, respErr *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request)

// AuthenErrorResponse represents Oauth2 error responses.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type AuthenErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Uri         string `json:"error_uri,omitempty"`
}
