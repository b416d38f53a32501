package cache

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/chetanchaudhari789/MOBO-sub000/pkg/logging"
	"github.com/chetanchaudhari789/MOBO-sub000/pkg/metrics"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/repository"
	"github.com/chetanchaudhari789/MOBO-sub000/shared/database/redis"
)

// RedisIDCache is a read-through cache in front of an IDTranslator. Cache
// failures are logged and fall through to the backing translator.
type RedisIDCache struct {
	next    repository.IDTranslator
	client  *redis.Client
	schema  string
	logger  *logging.Logger
	metrics *metrics.Collector
}

// NewRedisIDCache creates a new RedisIDCache for one target schema
func NewRedisIDCache(
	next repository.IDTranslator,
	client *redis.Client,
	schema string,
	logger *logging.Logger,
	collector *metrics.Collector,
) *RedisIDCache {
	return &RedisIDCache{
		next:    next,
		client:  client,
		schema:  schema,
		logger:  logger.WithComponent("id_cache").WithSchema(schema),
		metrics: collector,
	}
}

func (c *RedisIDCache) key(entityType entity.EntityType, sourceID string) string {
	return c.client.Key(c.schema, string(entityType), sourceID)
}

// Resolve checks the cache before the backing translator
func (c *RedisIDCache) Resolve(ctx context.Context, entityType entity.EntityType, sourceID string) (uuid.UUID, bool, error) {
	key := c.key(entityType, sourceID)

	cached, err := c.client.Get(ctx, key)
	switch {
	case err == nil:
		if id, parseErr := uuid.Parse(cached); parseErr == nil {
			c.metrics.RecordCacheOperation("resolve", "hit")
			return id, true, nil
		}
		c.metrics.RecordCacheOperation("resolve", "corrupt")
	case errors.Is(err, redis.ErrCacheMiss):
		c.metrics.RecordCacheOperation("resolve", "miss")
	default:
		c.metrics.RecordCacheOperation("resolve", "error")
		c.logger.Debug("ID cache read failed", logging.String("key", key), logging.Err(err))
	}

	id, found, err := c.next.Resolve(ctx, entityType, sourceID)
	if err != nil || !found {
		return id, found, err
	}

	if err := c.client.Set(ctx, key, id.String(), 0); err != nil {
		c.logger.Debug("ID cache write failed", logging.String("key", key), logging.Err(err))
	}
	return id, true, nil
}

// Remember stores a fresh mapping after a successful write
func (c *RedisIDCache) Remember(ctx context.Context, entityType entity.EntityType, sourceID string, id uuid.UUID) error {
	if err := c.next.Remember(ctx, entityType, sourceID, id); err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key(entityType, sourceID), id.String(), 0); err != nil {
		c.metrics.RecordCacheOperation("remember", "error")
		return err
	}
	return nil
}

// Forget drops a mapping after a delete
func (c *RedisIDCache) Forget(ctx context.Context, entityType entity.EntityType, sourceID string) error {
	if err := c.next.Forget(ctx, entityType, sourceID); err != nil {
		return err
	}
	if err := c.client.Del(ctx, c.key(entityType, sourceID)); err != nil {
		c.metrics.RecordCacheOperation("forget", "error")
		return err
	}
	return nil
}
