// Copyright (c) The go-auth Authors
// SPDX-License-Identifier: MPL-2.0

package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/citizenid/go-auth/citizenid"
)

// Memory is an in-memory attempt store.  It's concurrently safe, but it's
// local to one process: use Redis when the callback may be served by a
// different instance than the one which started the attempt.
type Memory struct {
	mu       sync.Mutex
	attempts map[string]*citizenid.Attempt
}

// NewMemory creates a new empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		attempts: map[string]*citizenid.Attempt{},
	}
}

// Write stores the attempt using its State() as the key.
func (m *Memory) Write(_ context.Context, a *citizenid.Attempt) error {
	const op = "Memory.Write"
	if a == nil {
		return fmt.Errorf("%s: attempt is nil: %w", op, citizenid.ErrNilParameter)
	}
	if a.IsExpired() {
		return fmt.Errorf("%s: %w", op, citizenid.ErrExpiredAttempt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[a.State()] = a
	return nil
}

// Read returns the attempt for the state and removes it from the store.  An
// unknown or expired attempt returns citizenid.ErrNotFound.
func (m *Memory) Read(_ context.Context, state string) (*citizenid.Attempt, error) {
	const op = "Memory.Read"
	if state == "" {
		return nil, fmt.Errorf("%s: state is empty: %w", op, citizenid.ErrInvalidParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[state]
	if !ok {
		return nil, fmt.Errorf("%s: attempt %q: %w", op, state, citizenid.ErrNotFound)
	}
	delete(m.attempts, state)
	if a.IsExpired() {
		return nil, fmt.Errorf("%s: attempt %q is expired: %w", op, state, citizenid.ErrNotFound)
	}
	return a, nil
}

// Delete removes the attempt for the state.  Deleting an unknown attempt
// isn't an error.
func (m *Memory) Delete(_ context.Context, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, state)
	return nil
}

// Cleanup removes every expired attempt and returns how many were removed.
func (m *Memory) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int
	for k, a := range m.attempts {
		if a.IsExpired() {
			delete(m.attempts, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored attempts, including expired ones which
// haven't been removed yet.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attempts)
}
