package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrCacheMiss is returned by Get when the key does not exist
var ErrCacheMiss = errors.New("cache miss")

// Client is a breaker-guarded standalone Redis client
type Client struct {
	config         *Config
	client         redis.Cmdable
	closer         func() error
	logger         *zap.Logger
	circuitBreaker *gobreaker.CircuitBreaker
	mu             sync.RWMutex
	closed         bool
}

// NewClient creates a Redis client and verifies connectivity
func NewClient(ctx context.Context, config *Config, logger *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.Address,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		PoolSize:     config.PoolSize,
	})

	client := NewClientFromCmdable(rdb, rdb.Close, config, logger)
	if err := client.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	client.logger.Info("Redis standalone client initialized",
		zap.String("address", config.Address),
		zap.Int("db", config.DB))

	return client, nil
}

// NewClientFromCmdable wraps an existing go-redis client
func NewClientFromCmdable(cmd redis.Cmdable, closer func() error, config *Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		config: config,
		client: cmd,
		closer: closer,
		logger: logger,
	}

	c.circuitBreaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-idcache",
		MaxRequests: config.CircuitBreaker.MaxRequests,
		Interval:    config.CircuitBreaker.Interval,
		Timeout:     config.CircuitBreaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.CircuitBreaker.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
	})

	return c
}

// Key builds a namespaced key
func (c *Client) Key(parts ...string) string {
	key := c.config.KeyPrefix
	for _, p := range parts {
		if key == "" {
			key = p
			continue
		}
		key += ":" + p
	}
	return key
}

// Ping tests the connection to Redis
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return c.client.Ping(ctx).Result()
	})
	return err
}

// Get retrieves a value, returning ErrCacheMiss for absent keys
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return c.client.Get(ctx, key).Result()
	})
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Set stores a value; a zero ttl uses DefaultTTL
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, c.client.Set(ctx, key, value, ttl).Err()
	})
	return err
}

// Del deletes one or more keys from Redis
func (c *Client) Del(ctx context.Context, keys ...string) error {
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, c.client.Del(ctx, keys...).Err()
	})
	return err
}

// Close closes the client
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.closer != nil {
		if err := c.closer(); err != nil {
			return fmt.Errorf("failed to close Redis client: %w", err)
		}
	}
	c.logger.Info("Redis client closed")
	return nil
}
