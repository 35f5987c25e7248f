package store

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"gamecenter-reservation-backend/internal/model"
)

// CachedDeviceRepository wraps a DeviceRepository with a TTL cache. Device
// metadata changes rarely but is consulted on every reservation request.
type CachedDeviceRepository struct {
	inner DeviceRepository
	cache *gocache.Cache
}

// NewCachedDeviceRepository creates the caching decorator.
func NewCachedDeviceRepository(inner DeviceRepository, ttl time.Duration) *CachedDeviceRepository {
	return &CachedDeviceRepository{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// FindDeviceByID serves from cache when possible. Lookup errors (including
// not-found) are never cached.
func (c *CachedDeviceRepository) FindDeviceByID(ctx context.Context, id string) (model.Device, error) {
	if cached, found := c.cache.Get(id); found {
		return cached.(model.Device), nil
	}

	dev, err := c.inner.FindDeviceByID(ctx, id)
	if err != nil {
		return model.Device{}, err
	}
	c.cache.SetDefault(id, dev)
	return dev, nil
}

// Invalidate drops a device from the cache, for admin updates that must be
// visible immediately.
func (c *CachedDeviceRepository) Invalidate(id string) {
	c.cache.Delete(id)
}
