// Copyright (c) The go-auth Authors
// SPDX-License-Identifier: MPL-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/citizenid/go-auth/citizenid"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix is prepended to an attempt's state to build its redis key.
const DefaultKeyPrefix = "citizenid:attempt:"

// Redis is an attempt store backed by redis, which allows every instance of
// an application to complete the attempts started by the others.  Attempts
// are stored with citizenid.EncodeAttempt (which includes the PKCE code
// verifier) and a TTL of their remaining lifetime.  Reads use GETDEL, so
// an attempt can only be read once.  Requires redis >= 6.2.
type Redis struct {
	client redis.Cmdable
	prefix string
}

// NewRedis creates a new Redis store using the client, which may be a
// *redis.Client, *redis.ClusterClient or any other redis.Cmdable.
//
// Supported options: WithKeyPrefix
func NewRedis(client redis.Cmdable, opt ...citizenid.Option) (*Redis, error) {
	const op = "store.NewRedis"
	if client == nil {
		return nil, fmt.Errorf("%s: redis client is nil: %w", op, citizenid.ErrNilParameter)
	}
	opts := getRedisOpts(opt...)
	return &Redis{
		client: client,
		prefix: opts.withKeyPrefix,
	}, nil
}

func (r *Redis) key(state string) string {
	return r.prefix + state
}

// Write stores the attempt until it expires.
func (r *Redis) Write(ctx context.Context, a *citizenid.Attempt) error {
	const op = "Redis.Write"
	if a == nil {
		return fmt.Errorf("%s: attempt is nil: %w", op, citizenid.ErrNilParameter)
	}
	ttl := time.Until(a.Expiration())
	if a.IsExpired() || ttl <= 0 {
		return fmt.Errorf("%s: %w", op, citizenid.ErrExpiredAttempt)
	}
	data, err := citizenid.EncodeAttempt(a)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := r.client.Set(ctx, r.key(a.State()), data, ttl).Err(); err != nil {
		return fmt.Errorf("%s: unable to store attempt: %w", op, err)
	}
	return nil
}

// Read returns the attempt for the state and removes it from redis.  An
// unknown or expired attempt returns citizenid.ErrNotFound.
func (r *Redis) Read(ctx context.Context, state string) (*citizenid.Attempt, error) {
	const op = "Redis.Read"
	if state == "" {
		return nil, fmt.Errorf("%s: state is empty: %w", op, citizenid.ErrInvalidParameter)
	}
	data, err := r.client.GetDel(ctx, r.key(state)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("%s: attempt %q: %w", op, state, citizenid.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("%s: unable to read attempt: %w", op, err)
	}
	a, err := citizenid.DecodeAttempt(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if a.State() != state {
		return nil, fmt.Errorf("%s: stored attempt doesn't match state %q: %w", op, state, citizenid.ErrResponseStateInvalid)
	}
	if a.IsExpired() {
		return nil, fmt.Errorf("%s: attempt %q is expired: %w", op, state, citizenid.ErrNotFound)
	}
	return a, nil
}

// Delete removes the attempt for the state.  Deleting an unknown attempt
// isn't an error.
func (r *Redis) Delete(ctx context.Context, state string) error {
	const op = "Redis.Delete"
	if err := r.client.Del(ctx, r.key(state)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// redisOptions is the set of available options for a Redis store
type redisOptions struct {
	withKeyPrefix string
}

// redisDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func redisDefaults() redisOptions {
	return redisOptions{
		withKeyPrefix: DefaultKeyPrefix,
	}
}

// getRedisOpts gets the defaults and applies the opt overrides passed in.
func getRedisOpts(opt ...citizenid.Option) redisOptions {
	opts := redisDefaults()
	citizenid.ApplyOpts(&opts, opt...)
	return opts
}

// WithKeyPrefix provides an optional prefix for the store's redis keys.
func WithKeyPrefix(prefix string) citizenid.Option {
	return func(o interface{}) {
		if o, ok := o.(*redisOptions); ok {
			o.withKeyPrefix = prefix
		}
	}
}
