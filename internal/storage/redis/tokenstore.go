// Package redis implements the device-token store on Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tinywideclouds/go-push-gateway/pkg/dispatch"
)

// keyPrefix namespaces device registrations in the keyspace.
const keyPrefix = "device:"

// TokenStore implements dispatch.TokenStore on a Redis client.
type TokenStore struct {
	rdb *redis.Client
}

// NewTokenStore connects and pings so a bad address fails at startup rather
// than on the first push.
func NewTokenStore(addr, password string, db int) (*TokenStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &TokenStore{rdb: rdb}, nil
}

func (s *TokenStore) Get(ctx context.Context, deviceKey string) (string, error) {
	token, err := s.rdb.Get(ctx, storageKey(deviceKey)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", dispatch.ErrNotFound
		}
		return "", err
	}
	if token == "" {
		// An invalidated registration: the key survives, the token is dead.
		return "", dispatch.ErrNotFound
	}
	return token, nil
}

func (s *TokenStore) Put(ctx context.Context, deviceKey string, token string) error {
	return s.rdb.Set(ctx, storageKey(deviceKey), token, 0).Err()
}

func (s *TokenStore) Delete(ctx context.Context, deviceKey string) error {
	return s.rdb.Del(ctx, storageKey(deviceKey)).Err()
}

// Count scans the device namespace. Diagnostics only; not cheap on large
// keyspaces.
func (s *TokenStore) Count(ctx context.Context) (int, error) {
	var count int
	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *TokenStore) Close() error {
	return s.rdb.Close()
}

func storageKey(deviceKey string) string {
	return keyPrefix + deviceKey
}
