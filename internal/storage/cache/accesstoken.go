package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/tinywideclouds/go-fcm-dispatch/pkg/dispatch"
)

// expiryMargin keeps a cached token from being handed out right before the
// gateway would reject it.
const expiryMargin = time.Minute

type cachedAccessToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Expiry      time.Time `json:"expiry"`
}

// CachedTokenSource keeps access tokens in the cache until shortly before
// they expire. Entries are keyed by the identity of the credential file.
type CachedTokenSource struct {
	source dispatch.TokenSource
	cache  CacheClient
	keyID  string
	logger *slog.Logger
	now    func() time.Time
}

func NewCachedTokenSource(source dispatch.TokenSource, cache CacheClient, keyID string, logger *slog.Logger) *CachedTokenSource {
	return &CachedTokenSource{
		source: source,
		cache:  cache,
		keyID:  keyID,
		logger: logger.With("component", "CachedTokenSource"),
		now:    time.Now,
	}
}

func (s *CachedTokenSource) Token(ctx context.Context) (*oauth2.Token, error) {
	key := s.cacheKey()

	var cached cachedAccessToken
	if err := s.cache.Get(ctx, key, &cached); err == nil && s.now().Before(cached.Expiry.Add(-expiryMargin)) {
		return &oauth2.Token{
			AccessToken: cached.AccessToken,
			TokenType:   cached.TokenType,
			Expiry:      cached.Expiry,
		}, nil
	}

	tok, err := s.source.Token(ctx)
	if err != nil {
		return nil, err
	}

	// A token without an expiry is never cached.
	if tok.Expiry.IsZero() {
		return tok, nil
	}
	ttl := tok.Expiry.Sub(s.now()) - expiryMargin
	if ttl <= 0 {
		return tok, nil
	}
	entry := cachedAccessToken{AccessToken: tok.AccessToken, TokenType: tok.TokenType, Expiry: tok.Expiry}
	if err := s.cache.Set(ctx, key, entry, ttl); err != nil {
		s.logger.Warn("Failed to cache access token", "err", err)
	}
	return tok, nil
}

// Invalidate drops the cached token, e.g. after the gateway answered 401.
func (s *CachedTokenSource) Invalidate(ctx context.Context) error {
	return s.cache.Del(ctx, s.cacheKey())
}

func (s *CachedTokenSource) cacheKey() string {
	return fmt.Sprintf("fcm:access-token:%s", s.keyID)
}
