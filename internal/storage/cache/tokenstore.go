// --- File: internal/storage/cache/tokenstore.go ---
package cache

import (
	"context"
	"fmt"
	"time"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"

	"github.com/tinywideclouds/go-fcm-dispatch/pkg/dispatch"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get returns the value or an error (ErrMiss) if not found.
	Get(ctx context.Context, key string, dest any) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// CachedTokenStore is a Decorator that adds Read-Aside caching to any TokenStore.
type CachedTokenStore struct {
	realStore dispatch.TokenStore
	cache     CacheClient
	ttl       time.Duration
}

// NewCachedTokenStore creates the decorator.
func NewCachedTokenStore(realStore dispatch.TokenStore, cache CacheClient, ttl time.Duration) *CachedTokenStore {
	return &CachedTokenStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
	}
}

type cachedRegistration struct {
	Token string `json:"token"`
}

// Token serves from cache, falling back to the real store.
func (s *CachedTokenStore) Token(ctx context.Context, user urn.URN) (string, error) {
	key := s.cacheKey(user)

	var cached cachedRegistration
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached.Token, nil
	}

	token, err := s.realStore.Token(ctx, user)
	if err != nil {
		return "", err
	}

	// Caching is an optimization; if Redis is down we serve from the DB.
	_ = s.cache.Set(ctx, key, cachedRegistration{Token: token}, s.ttl)

	return token, nil
}

// SaveToken writes through and invalidates, so the next dispatch sees the
// new identifier immediately.
func (s *CachedTokenStore) SaveToken(ctx context.Context, user urn.URN, token string) error {
	if err := s.realStore.SaveToken(ctx, user, token); err != nil {
		return err
	}
	return s.cache.Del(ctx, s.cacheKey(user))
}

func (s *CachedTokenStore) cacheKey(user urn.URN) string {
	return fmt.Sprintf("fcm:registration:%s", user.String())
}
