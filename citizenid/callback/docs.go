// Copyright (c) The go-auth Authors
// SPDX-License-Identifier: MPL-2.0

/*
callback is a package that provides handlers (in the form of http.HandlerFunc)
for the 1st leg of a CitizenID authentication attempt (redirecting the user to
the provider) and its 3rd leg (handling the provider's authorization code
response).
*/
package callback
