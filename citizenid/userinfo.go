// Copyright (c) The go-auth Authors
// SPDX-License-Identifier: MPL-2.0

package citizenid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/square/go-jose.v2/jwt"
)

// CustomClaimPrefix is the namespace of the custom profile claims (discord,
// rsi, google, twitch, ...) returned when the corresponding scopes are
// requested.
const CustomClaimPrefix = "urn:user:"

// UserInfo is the claim set describing the authenticated subject.  It's
// sourced from either the id_token payload or the userinfo response.
type UserInfo struct {
	Subject           string `json:"sub"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	EmailVerified     bool   `json:"email_verified,omitempty"`
	Picture           string `json:"picture,omitempty"`
	Role              Roles  `json:"role,omitempty"`
	AuthorizationID   string `json:"oi_au_id,omitempty"`

	Issuer          string           `json:"iss,omitempty"`
	Audience        jwt.Audience     `json:"aud,omitempty"`
	Expiry          *jwt.NumericDate `json:"exp,omitempty"`
	IssuedAt        *jwt.NumericDate `json:"iat,omitempty"`
	Nonce           string           `json:"nonce,omitempty"`
	AccessTokenHash string           `json:"at_hash,omitempty"`
	TokenID         string           `json:"oi_tkn_id,omitempty"`
	AuthorizedParty string           `json:"azp,omitempty"`

	// CustomClaims holds every claim namespaced under CustomClaimPrefix.  It's
	// nil when there are none.
	CustomClaims map[string]interface{} `json:"-"`
}

// userInfoAlias keeps the default json behavior for UserInfo's fields.
type userInfoAlias UserInfo

// UnmarshalJSON decodes the standard claims and collects the custom ones.
func (u *UserInfo) UnmarshalJSON(data []byte) error {
	var alias userInfoAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k, raw := range all {
		if !strings.HasPrefix(k, CustomClaimPrefix) {
			continue
		}
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		if alias.CustomClaims == nil {
			alias.CustomClaims = map[string]interface{}{}
		}
		alias.CustomClaims[k] = v
	}
	*u = UserInfo(alias)
	return nil
}

// MarshalJSON encodes the standard claims along with the custom ones.
func (u UserInfo) MarshalJSON() ([]byte, error) {
	std, err := json.Marshal(userInfoAlias(u))
	if err != nil {
		return nil, err
	}
	if len(u.CustomClaims) == 0 {
		return std, nil
	}
	all := map[string]interface{}{}
	if err := json.Unmarshal(std, &all); err != nil {
		return nil, err
	}
	for k, v := range u.CustomClaims {
		all[k] = v
	}
	return json.Marshal(all)
}

// ParseUserInfo parses a claim set.  The claim set must be a JSON object
// with a non-empty "sub" claim.  A standard claim with the wrong JSON type
// (for example: a non-bool email_verified) is an error.
func ParseUserInfo(data []byte) (*UserInfo, error) {
	const op = "citizenid.ParseUserInfo"
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%s: claim set is not a JSON object: %w", op, ErrInvalidParameter)
	}
	var u UserInfo
	if err := json.Unmarshal(trimmed, &u); err != nil {
		return nil, fmt.Errorf("%s: unable to unmarshal claim set: %w", op, err)
	}
	if u.Subject == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingSubject)
	}
	return &u, nil
}

// Roles is the "role" claim, which providers send as either a single string
// or a list of strings.
type Roles []string

// UnmarshalJSON accepts a string, a list of strings or null.
func (r *Roles) UnmarshalJSON(data []byte) error {
	const op = "Roles.UnmarshalJSON"
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*r = nil
			return nil
		}
		*r = Roles{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("%s: role is neither a string nor a list of strings: %w", op, err)
	}
	*r = Roles(list)
	return nil
}
