package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/clinicsched/clinicsched/services/booking-service/internal/availability"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/model"
	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 5 * time.Minute

// ProviderCache is a read-through Redis cache in front of a ProviderStore.
// Redis failures fall back to the store.
type ProviderCache struct {
	next   availability.ProviderStore
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

func NewProviderCache(next availability.ProviderStore, rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *ProviderCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProviderCache{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func providerKey(id string) string {
	return "provider:" + id
}

// generationKey counts invalidations of a provider. A fill is only written
// when the counter has not moved since the fill started, so a read that
// raced an update cannot put the old copy back.
func generationKey(id string) string {
	return "provider:" + id + ":gen"
}

var fillScript = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or ''
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

func (c *ProviderCache) GetProvider(ctx context.Context, id string) (*model.Provider, error) {
	key := providerKey(id)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p model.Provider
		decodeErr := json.Unmarshal(raw, &p)
		if decodeErr == nil {
			return &p, nil
		}
		c.logger.Warn("provider cache entry unreadable", "provider_id", id, "err", decodeErr)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("provider cache read failed", "provider_id", id, "err", err)
		return c.next.GetProvider(ctx, id)
	}

	gen, err := c.rdb.Get(ctx, generationKey(id)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("provider cache read failed", "provider_id", id, "err", err)
		return c.next.GetProvider(ctx, id)
	}

	p, err := c.next.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, id, gen, p)
	return p, nil
}

func (c *ProviderCache) fill(ctx context.Context, id, gen string, p *model.Provider) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	keys := []string{providerKey(id), generationKey(id)}
	written, err := fillScript.Run(ctx, c.rdb, keys, gen, raw, c.ttl.Milliseconds()).Int()
	switch {
	case err != nil:
		c.logger.Warn("provider cache write failed", "provider_id", id, "err", err)
	case written == 0:
		c.logger.Debug("provider cache fill skipped after invalidation", "provider_id", id)
	}
}

// Invalidate drops the cached copy of a provider and bumps its generation so
// in-flight fills started before the change are discarded.
func (c *ProviderCache) Invalidate(ctx context.Context, id string) {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(id))
		pipe.Del(ctx, providerKey(id))
		return nil
	})
	if err != nil {
		c.logger.Warn("provider cache invalidate failed", "provider_id", id, "err", err)
	}
}
