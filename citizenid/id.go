// Copyright (c) The go-auth Authors
// SPDX-License-Identifier: MPL-2.0

package citizenid

import (
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// DefaultIDLength is the number of random bytes used when generating ids
const DefaultIDLength = 20

// NewID generates an ID with an optional prefix.  The ID generated is suitable
// for an Attempt's state or nonce.
//
// Supported options: WithPrefix
func NewID(opt ...Option) (string, error) {
	const op = "citizenid.NewID"
	opts := getIDOpts(opt...)
	id, err := uuid.GenerateRandomBytes(DefaultIDLength)
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate id: %w", op, ErrIdGeneratorFailed)
	}
	encoded := fmt.Sprintf("%x", id)
	if opts.withPrefix != "" {
		return fmt.Sprintf("%s_%s", opts.withPrefix, encoded), nil
	}
	return encoded, nil
}

// idOptions is the set of available options.
type idOptions struct {
	withPrefix string
}

// idDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func idDefaults() idOptions {
	return idOptions{}
}

// getIDOpts gets the defaults and applies the opt overrides passed
// in.
func getIDOpts(opt ...Option) idOptions {
	opts := idDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithPrefix provides an optional prefix for a new ID.
func WithPrefix(prefix string) Option {
	return func(o interface{}) {
		if o, ok := o.(*idOptions); ok {
			o.withPrefix = prefix
		}
	}
}
