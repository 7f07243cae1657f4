package search

import (
	"context"
	"sync"
	"time"
)

// tokenRefreshMargin is how long before expiry a cached token stops being used
const tokenRefreshMargin = 60 * time.Second

// Clock abstracts time for the token cache
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Token is a bearer token with its absolute expiry
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// TokenFetcher obtains a fresh token from the issuer
type TokenFetcher func(ctx context.Context) (Token, error)

// TokenCache memoizes one bearer token until tokenRefreshMargin before it expires.
// The lock is held across a refresh, so concurrent callers share a single fetch.
type TokenCache struct {
	clock   Clock
	mu      sync.Mutex
	current Token
}

// NewTokenCache creates an empty cache; a nil clock means the wall clock
func NewTokenCache(clock Clock) *TokenCache {
	if clock == nil {
		clock = SystemClock{}
	}
	return &TokenCache{clock: clock}
}

// Get returns the cached token, refreshing it through fetch when missing or near expiry.
// A failed refresh leaves the previous value in place.
func (c *TokenCache) Get(ctx context.Context, fetch TokenFetcher) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.validLocked() {
		return c.current.Value, nil
	}

	tok, err := fetch(ctx)
	if err != nil {
		return "", err
	}
	c.current = tok
	return tok.Value, nil
}

// Invalidate drops the cached token
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.current = Token{}
	c.mu.Unlock()
}

func (c *TokenCache) validLocked() bool {
	if c.current.Value == "" {
		return false
	}
	return c.clock.Now().Before(c.current.ExpiresAt.Add(-tokenRefreshMargin))
}
