// Copyright (c) The go-auth Authors
// SPDX-License-Identifier: MPL-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/citizenid/go-auth/citizenid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock is a controllable clock for attempts
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testAttempt(t *testing.T, expireIn time.Duration, opt ...citizenid.Option) *citizenid.Attempt {
	t.Helper()
	a, err := citizenid.NewAttempt(expireIn, opt...)
	require.NoError(t, err)
	return a
}

func TestMemory_WriteRead(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Now()}

	tests := []struct {
		name      string
		attempt   func() *citizenid.Attempt
		readState func(a *citizenid.Attempt) string
		advance   time.Duration
		wantErr   bool
		wantIsErr error
	}{
		{
			name:      "valid",
			attempt:   func() *citizenid.Attempt { return testAttempt(t, time.Minute, citizenid.WithNow(clock.Now)) },
			readState: func(a *citizenid.Attempt) string { return a.State() },
		},
		{
			name:      "unknown-state",
			attempt:   func() *citizenid.Attempt { return testAttempt(t, time.Minute, citizenid.WithNow(clock.Now)) },
			readState: func(*citizenid.Attempt) string { return "st_unknown" },
			wantErr:   true,
			wantIsErr: citizenid.ErrNotFound,
		},
		{
			name:      "empty-state",
			attempt:   func() *citizenid.Attempt { return testAttempt(t, time.Minute, citizenid.WithNow(clock.Now)) },
			readState: func(*citizenid.Attempt) string { return "" },
			wantErr:   true,
			wantIsErr: citizenid.ErrInvalidParameter,
		},
		{
			name:      "expired",
			attempt:   func() *citizenid.Attempt { return testAttempt(t, time.Minute, citizenid.WithNow(clock.Now)) },
			readState: func(a *citizenid.Attempt) string { return a.State() },
			advance:   2 * time.Minute,
			wantErr:   true,
			wantIsErr: citizenid.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			m := NewMemory()
			a := tt.attempt()
			require.NoError(m.Write(ctx, a))
			clock.Add(tt.advance)

			got, err := m.Read(ctx, tt.readState(a))
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.Equal(a, got)
			assert.Equal(0, m.Len())

			_, err = m.Read(ctx, a.State())
			require.Error(err)
			assert.Truef(errors.Is(err, citizenid.ErrNotFound), "attempts are single use: got \"%s\"", err)
		})
	}
}

func TestMemory_Write(t *testing.T) {
	ctx := context.Background()
	t.Run("nil-attempt", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		err := NewMemory().Write(ctx, nil)
		require.Error(err)
		assert.Truef(errors.Is(err, citizenid.ErrNilParameter), "wanted \"%s\" but got \"%s\"", citizenid.ErrNilParameter, err)
	})
	t.Run("expired-attempt", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		clock := &testClock{now: time.Now()}
		a := testAttempt(t, time.Minute, citizenid.WithNow(clock.Now))
		clock.Add(time.Hour)
		err := NewMemory().Write(ctx, a)
		require.Error(err)
		assert.Truef(errors.Is(err, citizenid.ErrExpiredAttempt), "wanted \"%s\" but got \"%s\"", citizenid.ErrExpiredAttempt, err)
	})
}

func TestMemory_DeleteCleanup(t *testing.T) {
	ctx := context.Background()
	assert, require := assert.New(t), require.New(t)
	clock := &testClock{now: time.Now()}
	m := NewMemory()

	short := testAttempt(t, time.Minute, citizenid.WithNow(clock.Now))
	long := testAttempt(t, time.Hour, citizenid.WithNow(clock.Now))
	deleted := testAttempt(t, time.Hour, citizenid.WithNow(clock.Now))
	for _, a := range []*citizenid.Attempt{short, long, deleted} {
		require.NoError(m.Write(ctx, a))
	}
	require.Equal(3, m.Len())

	require.NoError(m.Delete(ctx, deleted.State()))
	require.NoError(m.Delete(ctx, "st_unknown"))
	assert.Equal(2, m.Len())

	clock.Add(10 * time.Minute)
	assert.Equal(1, m.Cleanup())
	assert.Equal(1, m.Len())

	got, err := m.Read(ctx, long.State())
	require.NoError(err)
	assert.Equal(long.State(), got.State())
}

func TestMemory_Concurrent(t *testing.T) {
	ctx := context.Background()
	assert, require := assert.New(t), require.New(t)
	m := NewMemory()

	const attempts = 50
	states := make([]string, attempts)
	for i := 0; i < attempts; i++ {
		a := testAttempt(t, time.Minute, citizenid.WithNonce(fmt.Sprintf("nonce-%d", i)))
		states[i] = a.State()
		require.NoError(m.Write(ctx, a))
	}

	// every attempt is read twice concurrently, only one read may succeed
	var wg sync.WaitGroup
	var mu sync.Mutex
	found := map[string]int{}
	for i := 0; i < attempts*2; i++ {
		wg.Add(1)
		go func(state string) {
			defer wg.Done()
			if a, err := m.Read(ctx, state); err == nil {
				mu.Lock()
				found[a.State()]++
				mu.Unlock()
			}
		}(states[i%attempts])
	}
	wg.Wait()

	assert.Len(found, attempts)
	for state, n := range found {
		assert.Equalf(1, n, "attempt %s read %d times", state, n)
	}
	assert.Equal(0, m.Len())
}
