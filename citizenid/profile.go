// Copyright (c) The go-auth Authors
// SPDX-License-Identifier: MPL-2.0

package citizenid

// ProviderName is the provider tag of every Profile.
const ProviderName = "citizenid"

// ProfileSource identifies where a Profile's claims came from.
type ProfileSource string

const (
	// SourceIDToken means the claims were decoded from the id_token.
	SourceIDToken ProfileSource = "id_token"

	// SourceUserInfo means the claims were fetched from the userinfo endpoint.
	SourceUserInfo ProfileSource = "userinfo"
)

// Email is one of the user's email addresses.
type Email struct {
	Value    string `json:"value"`
	Verified bool   `json:"verified"`
}

// Photo is one of the user's pictures.
type Photo struct {
	Value string `json:"value"`
}

// Profile is the normalized CitizenID user profile.  It's derived
// deterministically from a UserInfo claim set and isn't modified after it's
// created.
type Profile struct {
	// Provider is always ProviderName
	Provider string `json:"provider"`

	// ID is the user's CitizenID id (the sub claim)
	ID string `json:"id"`

	// Username is the preferred_username claim, or empty
	Username string `json:"username"`

	// DisplayName is the name claim, falling back to the preferred_username
	DisplayName string `json:"displayName"`

	Emails []Email  `json:"emails"`
	Roles  []string `json:"roles"`

	Photos          []Photo `json:"photos,omitempty"`
	AuthorizationID string  `json:"authorizationId,omitempty"`

	// CustomClaims are the claims namespaced under CustomClaimPrefix.  It's
	// nil when the claim set has none.
	CustomClaims map[string]interface{} `json:"_customClaims,omitempty"`

	// Raw is the raw id_token or userinfo response body.
	Raw string `json:"_raw"`

	// JSON is the parsed claim set.
	JSON *UserInfo `json:"_json"`

	// Source is where the claim set came from.
	Source ProfileSource `json:"_source"`
}

// NormalizeProfile maps a claim set to a Profile.  It's a pure function of
// its parameters.
func NormalizeProfile(info *UserInfo, raw string, source ProfileSource) *Profile {
	if info == nil {
		return nil
	}
	p := &Profile{
		Provider:    ProviderName,
		ID:          info.Subject,
		Username:    info.PreferredUsername,
		DisplayName: info.Name,
		Emails:      []Email{},
		Roles:       []string{},
		Raw:         raw,
		JSON:        info,
		Source:      source,
	}
	if p.DisplayName == "" {
		p.DisplayName = info.PreferredUsername
	}
	if info.Email != "" {
		p.Emails = append(p.Emails, Email{
			Value:    info.Email,
			Verified: info.EmailVerified,
		})
	}
	if len(info.Role) > 0 {
		p.Roles = append(p.Roles, info.Role...)
	}
	if info.Picture != "" {
		p.Photos = []Photo{{Value: info.Picture}}
	}
	p.AuthorizationID = info.AuthorizationID
	if len(info.CustomClaims) > 0 {
		p.CustomClaims = make(map[string]interface{}, len(info.CustomClaims))
		for k, v := range info.CustomClaims {
			p.CustomClaims[k] = v
		}
	}
	return p
}
