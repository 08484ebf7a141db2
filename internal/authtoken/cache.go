// Package authtoken caches short-lived bearer tokens for the external
// services. Tokens are refreshed before the provider expiry (each slot has
// a TTL margin below the real lifetime) and refreshes are single-flight:
// concurrent callers of an expired slot share one upstream exchange.
package authtoken

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchFunc performs the actual credential exchange for a service.
type FetchFunc func(ctx context.Context) (string, error)

type slot struct {
	fetch     FetchFunc
	ttl       time.Duration
	mu        sync.Mutex
	token     string
	fetchedAt time.Time
}

// Cache holds one token slot per registered service.
type Cache struct {
	now   func() time.Time
	group singleflight.Group
	mu    sync.RWMutex
	slots map[string]*slot
}

// NewCache creates an empty cache. now is injectable for tests; pass nil
// for time.Now.
func NewCache(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{now: now, slots: make(map[string]*slot)}
}

// Register adds a token slot for a service. ttlMargin must be below the
// provider's real token lifetime.
func (c *Cache) Register(service string, ttlMargin time.Duration, fetch FetchFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots[service] = &slot{fetch: fetch, ttl: ttlMargin}
}

// Token returns the cached token for a service, refreshing it when older
// than the slot's TTL margin. Failed refreshes are not cached.
func (c *Cache) Token(ctx context.Context, service string) (string, error) {
	c.mu.RLock()
	s, ok := c.slots[service]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no token slot registered for service %q", service)
	}

	s.mu.Lock()
	if s.token != "" && c.now().Sub(s.fetchedAt) < s.ttl {
		token := s.token
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Unlock()

	token, err, _ := c.group.Do(service, func() (any, error) {
		// Re-check under the flight: a caller that queued behind the
		// refresh must not trigger a second exchange.
		s.mu.Lock()
		if s.token != "" && c.now().Sub(s.fetchedAt) < s.ttl {
			token := s.token
			s.mu.Unlock()
			return token, nil
		}
		s.mu.Unlock()

		// The refresh is shared with queued followers whose contexts
		// are still live, so the leader's cancellation must not abort
		// the exchange for everyone.
		fresh, err := s.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return "", err
		}

		s.mu.Lock()
		s.token = fresh
		s.fetchedAt = c.now()
		s.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// Invalidate drops the cached token for a service, forcing the next Token
// call to refresh.
func (c *Cache) Invalidate(service string) {
	c.mu.RLock()
	s, ok := c.slots[service]
	c.mu.RUnlock()
	if !ok {
		return
	}
	s.mu.Lock()
	s.token = ""
	s.fetchedAt = time.Time{}
	s.mu.Unlock()
}
