// Copyright (c) The go-auth Authors
// SPDX-License-Identifier: MPL-2.0

/*
store is a package that provides concurrently safe stores for
citizenid.Attempt(s) between the 1st and 3rd legs of the authorization code
flow.

Reads are single use: a successful Read removes the attempt from the store.
*/
package store
