package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatpush/notifier/internal/domain/device"
	"github.com/chatpush/notifier/pkg/logger"
)

// JSONCache is the subset of Cache used by AddressCache.
type JSONCache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// cachedEntry is the stored form of an address book entry.
type cachedEntry struct {
	UserID      string  `json:"user_id"`
	PushAddress *string `json:"push_address,omitempty"`
}

// AddressCache is a read-through device.Repository. Only users with a push
// address are cached, so a newly registered token is seen on the next
// lookup. Token changes reach the cache through Invalidate; the TTL bounds
// staleness when an invalidation is missed. Redis failures fall through to
// the wrapped repository.
type AddressCache struct {
	next   device.Repository
	cache  JSONCache
	ttl    time.Duration
	logger *slog.Logger
}

// NewAddressCache wraps next with a Redis cache.
func NewAddressCache(next device.Repository, cache JSONCache, ttl time.Duration, log *slog.Logger) *AddressCache {
	if log == nil {
		log = slog.Default()
	}
	return &AddressCache{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: log.With(logger.Component("address_cache")),
	}
}

// GetByUserID returns the cached entry or reads through to the store.
func (c *AddressCache) GetByUserID(ctx context.Context, userID string) (*device.Entry, error) {
	key := DeviceKey(userID)

	var cached cachedEntry
	err := c.cache.Get(ctx, key, &cached)
	if err == nil {
		return &device.Entry{UserID: cached.UserID, PushAddress: cached.PushAddress}, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		c.logger.Debug("address cache read failed", logger.UserID(userID), logger.Err(err))
	}

	entry, err := c.next.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if _, ok := entry.Address(); !ok {
		return entry, nil
	}
	if err := c.cache.Set(ctx, key, cachedEntry{UserID: entry.UserID, PushAddress: entry.PushAddress}, c.ttl); err != nil {
		c.logger.Debug("address cache write failed", logger.UserID(userID), logger.Err(err))
	}

	return entry, nil
}

// Invalidate drops the cached entry for userID.
func (c *AddressCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.cache.Delete(ctx, DeviceKey(userID)); err != nil {
		return fmt.Errorf("invalidate %s: %w", userID, err)
	}
	return nil
}

var _ device.Repository = (*AddressCache)(nil)
