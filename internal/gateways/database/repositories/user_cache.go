package repositories

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/swapcard/marketplace/internal/domain/accounts"
	"github.com/swapcard/marketplace/internal/domain/admin"
	"github.com/swapcard/marketplace/internal/gateways/database/models"
)

const (
	userCacheSize = 2048
	userCacheTTL  = 5 * time.Minute
)

type cachedUser struct {
	user    models.User
	expires time.Time
}

// CachedUsers is a read-through LRU in front of the user table. Every
// write through it evicts the written user.
type CachedUsers struct {
	*userRepository
	cache *lru.Cache
	ttl   time.Duration
	now   func() time.Time
}

var (
	_ accounts.Repository = &CachedUsers{}
	_ admin.Users         = &CachedUsers{}
)

func NewCachedUsers(repo *userRepository, size int) (*CachedUsers, error) {
	if size <= 0 {
		size = userCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create user cache: %w", err)
	}
	return &CachedUsers{userRepository: repo, cache: cache, ttl: userCacheTTL, now: time.Now}, nil
}

func (c *CachedUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	if v, ok := c.cache.Get(id); ok {
		entry := v.(cachedUser)
		if c.now().Before(entry.expires) {
			u := entry.user
			return &u, nil
		}
		c.cache.Remove(id)
	}

	u, err := c.userRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, cachedUser{user: *u, expires: c.now().Add(c.ttl)})
	return u, nil
}

func (c *CachedUsers) Update(ctx context.Context, u *models.User) error {
	err := c.userRepository.Update(ctx, u)
	c.cache.Remove(u.ID)
	return err
}

func (c *CachedUsers) SetVerified(ctx context.Context, id string, verified bool) (*models.User, error) {
	c.cache.Remove(id)
	u, err := c.userRepository.SetVerified(ctx, id, verified)
	c.cache.Remove(id)
	return u, err
}

// Len is the number of cached users.
func (c *CachedUsers) Len() int { return c.cache.Len() }
