// Copyright (c) The go-auth Authors
// SPDX-License-Identifier: MPL-2.0

/*
citizenid is a package for authenticating users with the CitizenID identity
provider (https://citizenid.space) using the OAuth 2.0 authorization code flow
with OpenID Connect.

Primary types provided by the package

* Config: provides the configuration for the 3-legged authorization code flow
(for example: client id/secret, redirect URL, scopes, endpoints, PKCE and
state).  Unset endpoints and scopes are resolved to CitizenID's defaults.

* Attempt: represents one authentication attempt for a user.  It contains the
data needed to correlate the authorization request with its callback and it
carries the id_token captured by the token exchange to the profile step.  All
Attempts expire.

* Token: represents an Oauth2 access_token and refresh_token, the optional
id_token and the rest of the parameters returned by the token endpoint.

* Profile: the normalized user profile, built from the id_token payload when
the token endpoint returns one, otherwise from the userinfo endpoint.

* Strategy: generates an attempt's auth URL, exchanges its authorization code,
builds its Profile and hands it to the application's verify func.

The citizenid.callback package

The callback package includes http.HandlerFuncs for the 1st leg (redirect to
the provider) and the 3rd leg (authorization code callback) of the flow.

The citizenid.store package

The store package includes concurrently safe attempt stores backed by memory
or redis.

Examples

* web application: examples/webapp
*/
package citizenid
