// Copyright (c) The go-auth Authors
// SPDX-License-Identifier: MPL-2.0

// goauth provides packages which authenticate users with CitizenID, the
// Star Citizen community's OpenID Connect provider, using the authorization
// code flow.
//
// See the citizenid package and its callback and store subpackages.
package goauth
