// Copyright (c) The go-auth Authors
// SPDX-License-Identifier: MPL-2.0

package citizenid

import "fmt"

// Prompt is a string value that specifies whether the provider prompts the
// user for reauthentication and consent.
type Prompt string

const (
	// None must not be combined with any other prompt.
	None          Prompt = "none"
	Login         Prompt = "login"
	Consent       Prompt = "consent"
	SelectAccount Prompt = "select_account"
)

// ResponseMode is how the provider returns the authorization response.
type ResponseMode string

const (
	Query    ResponseMode = "query"
	Fragment ResponseMode = "fragment"
	FormPost ResponseMode = "form_post"
)

func validatePrompts(prompts []Prompt) error {
	const op = "citizenid.validatePrompts"
	for _, p := range prompts {
		switch p {
		case None:
			if len(prompts) > 1 {
				return fmt.Errorf("%s: prompt %q can't be combined with other prompts: %w", op, None, ErrInvalidParameter)
			}
		case Login, Consent, SelectAccount:
		default:
			return fmt.Errorf("%s: unsupported prompt %q: %w", op, p, ErrInvalidParameter)
		}
	}
	return nil
}
