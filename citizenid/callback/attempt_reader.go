// Copyright (c) The go-auth Authors
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"sync"

	"github.com/citizenid/go-auth/citizenid"
)

// AttemptReader defines an interface for finding and reading a
// citizenid.Attempt.
//
// Implementations must be concurrently safe, since the reader will likely be
// used within a concurrent http.Handler
type AttemptReader interface {
	// Read an existing Attempt and remove it, so it can't be completed
	// twice.  The returned attempt's State() must match the state used to
	// look it up.  An unknown attempt returns citizenid.ErrNotFound.
	Read(ctx context.Context, state string) (*citizenid.Attempt, error)
}

// AttemptWriter defines an interface for storing a new citizenid.Attempt
// until its callback.  Implementations must be concurrently safe.
type AttemptWriter interface {
	// Write the attempt using its State() as the key.
	Write(ctx context.Context, a *citizenid.Attempt) error
}

// SingleAttemptReader implements the AttemptReader interface for a single
// attempt.  It is concurrently safe.
type SingleAttemptReader struct {
	mu      sync.Mutex
	Attempt *citizenid.Attempt
}

// Read() will return its single-attempt if the state matches its State(),
// otherwise it returns an error of citizenid.ErrNotFound.  The attempt can
// only be read once.  It satisfies the AttemptReader interface.
func (sr *SingleAttemptReader) Read(_ context.Context, state string) (*citizenid.Attempt, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.Attempt == nil || sr.Attempt.State() != state {
		return nil, citizenid.ErrNotFound
	}
	a := sr.Attempt
	sr.Attempt = nil
	return a, nil
}
