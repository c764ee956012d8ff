package application

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedUserDirectory keeps recently resolved members in memory for notice
// rendering. Borrow eligibility must not read through it. Missing users are
// never cached.
type CachedUserDirectory struct {
	next  UserDirectory
	cache *cache.Cache
}

// NewCachedUserDirectory wraps next with a TTL cache. A non-positive ttl
// disables caching.
func NewCachedUserDirectory(next UserDirectory, ttl time.Duration) *CachedUserDirectory {
	d := &CachedUserDirectory{next: next}
	if ttl > 0 {
		d.cache = cache.New(ttl, 2*ttl)
	}
	return d
}

// GetUser implements UserDirectory.
func (d *CachedUserDirectory) GetUser(ctx context.Context, id string) (User, error) {
	if d.cache != nil {
		if cached, ok := d.cache.Get(id); ok {
			return cached.(User), nil
		}
	}
	user, err := d.next.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if d.cache != nil {
		d.cache.SetDefault(id, user)
	}
	return user, nil
}

// Invalidate drops the cached entry for id so the next lookup sees the
// current approval status.
func (d *CachedUserDirectory) Invalidate(id string) {
	if d.cache != nil {
		d.cache.Delete(id)
	}
}
