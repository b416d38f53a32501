package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/chetanchaudhari789/MOBO-sub000/shared/common"
)

// ErrClientClosed is returned by operations on a closed client
var ErrClientClosed = errors.New("postgres client is closed")

// Client is a small, breaker-guarded connection pool to one target schema
type Client struct {
	config         *Config
	db             *sqlx.DB
	logger         *zap.Logger
	circuitBreaker *gobreaker.CircuitBreaker
	mu             sync.RWMutex
	closed         bool
}

// Connect opens the pool, retrying connection establishment with linear
// backoff up to ConnectRetry.MaxAttempts. Fatal errors such as bad
// credentials or missing privileges are not retried.
func Connect(ctx context.Context, config *Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	dsn, err := dsnWithSearchPath(config.DSN, config.Schema)
	if err != nil {
		return nil, common.ErrConfiguration(err.Error())
	}

	var db *sqlx.DB
	err = RetryConnect(ctx, config.ConnectRetry, logger, func(ctx context.Context) error {
		conn, openErr := openPool(ctx, dsn, config)
		if openErr != nil {
			return openErr
		}
		db = conn
		return nil
	})
	if err != nil {
		return nil, err
	}

	client := NewClientFromDB(db, config, logger)

	logger.Info("PostgreSQL client initialized",
		zap.String("schema", config.Schema),
		zap.Int("max_open_conns", config.MaxOpenConns))

	return client, nil
}

// NewClientFromDB wraps an already opened pool
func NewClientFromDB(db *sqlx.DB, config *Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &Client{
		config: config,
		db:     db,
		logger: logger,
	}

	client.circuitBreaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        fmt.Sprintf("postgres-%s", config.Schema),
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
		// Constraint and data errors are the caller's concern, not a sign the store is down.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsConnectionError(err)
		},
	})

	return client
}

func openPool(ctx context.Context, dsn string, config *Config) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, config.ConnectionTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// RetryConnect runs connect until it succeeds, a fatal error occurs, the
// context ends, or the attempt ceiling is reached.
func RetryConnect(ctx context.Context, retry RetryConfig, logger *zap.Logger, connect func(context.Context) error) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	attempts := retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := connect(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsInsufficientPrivilege(err) {
			return common.ErrInsufficientPrivileges(err)
		}
		if IsAuthenticationError(err) {
			return common.ErrConfiguration(err.Error())
		}
		if attempt == attempts {
			break
		}

		delay := retry.BackoffDelay(attempt)
		logger.Warn("Database connection failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return common.ErrDatabaseConnection(fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr))
}

// DB returns the underlying pool
func (c *Client) DB() *sqlx.DB {
	return c.db
}

// Schema returns the schema the pool is bound to
func (c *Client) Schema() string {
	return c.config.Schema
}

// Available reports whether the target is accepting work
func (c *Client) Available() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed && c.circuitBreaker.State() != gobreaker.StateOpen
}

// Execute runs fn through the circuit breaker, retrying transient failures
// up to OperationRetry.MaxAttempts.
func (c *Client) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClientClosed
	}

	if c.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.QueryTimeout)
		defer cancel()
	}

	return c.executeWithRetry(ctx, fn)
}

// Transaction executes fn within a database transaction
func (c *Client) Transaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return c.Execute(ctx, func(ctx context.Context) error {
		tx, err := c.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				c.logger.Warn("Transaction rollback failed", zap.Error(rbErr))
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

func (c *Client) executeWithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := c.config.OperationRetry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
			return nil, fn(ctx)
		})
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return common.WrapError(err, common.ErrCodeServiceUnavailable, "target store unavailable")
		}
		if !IsTransient(err) || attempt == attempts {
			break
		}

		delay := c.config.OperationRetry.BackoffDelay(attempt)
		c.logger.Warn("Database operation failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// Health pings the database
func (c *Client) Health(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	return c.db.PingContext(ctx)
}

// Close closes the pool
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close postgres pool: %w", err)
	}

	c.logger.Info("PostgreSQL client closed", zap.String("schema", c.config.Schema))
	return nil
}

// dsnWithSearchPath binds the pool to schema. lib/pq forwards unknown
// parameters as run-time settings, so search_path works in both DSN forms.
func dsnWithSearchPath(dsn, schema string) (string, error) {
	if schema == "" {
		return dsn, nil
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("invalid postgres url: %w", err)
		}
		q := u.Query()
		q.Set("search_path", schema)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	return fmt.Sprintf("%s search_path=%s", strings.TrimSpace(dsn), schema), nil
}
