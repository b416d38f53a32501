package postgres

import (
	"fmt"
	"time"

	"github.com/chetanchaudhari789/MOBO-sub000/shared/common"
)

// Config represents the target PostgreSQL configuration
type Config struct {
	DSN string `mapstructure:"dsn" yaml:"dsn" json:"-"`
	// Schema is applied as search_path on every pooled connection.
	Schema string `mapstructure:"schema" yaml:"schema" json:"schema"`

	// Pool settings; the pool is small on purpose to protect the target during backfill.
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime" json:"conn_max_lifetime"`

	ConnectionTimeout time.Duration `mapstructure:"connection_timeout" yaml:"connection_timeout" json:"connection_timeout"`
	QueryTimeout      time.Duration `mapstructure:"query_timeout" yaml:"query_timeout" json:"query_timeout"`

	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker" yaml:"circuit_breaker" json:"circuit_breaker"`

	// ConnectRetry governs connection establishment.
	ConnectRetry RetryConfig `mapstructure:"connect_retry" yaml:"connect_retry" json:"connect_retry"`
	// OperationRetry governs individual statements; only transient errors are retried.
	OperationRetry RetryConfig `mapstructure:"operation_retry" yaml:"operation_retry" json:"operation_retry"`
}

// CircuitBreakerConfig defines circuit breaker settings for database connections
type CircuitBreakerConfig struct {
	MaxRequests      uint32        `mapstructure:"max_requests" yaml:"max_requests" json:"max_requests"`
	Interval         time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold" yaml:"failure_threshold" json:"failure_threshold"`
}

// RetryConfig defines linear retry behavior.
// The delay before attempt n+1 is InitialInterval * Multiplier * n, capped at MaxInterval.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts" yaml:"max_attempts" json:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval" json:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" yaml:"max_interval" json:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier" yaml:"multiplier" json:"multiplier"`
}

// DefaultConfig returns the configuration used for backfill and dual-write
func DefaultConfig() *Config {
	return &Config{
		Schema:            "public",
		MaxOpenConns:      5,
		MaxIdleConns:      2,
		ConnMaxLifetime:   30 * time.Minute,
		ConnectionTimeout: 10 * time.Second,
		QueryTimeout:      30 * time.Second,
		CircuitBreaker: CircuitBreakerConfig{
			MaxRequests:      1,
			Interval:         60 * time.Second,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
		ConnectRetry: RetryConfig{
			MaxAttempts:     5,
			InitialInterval: 2 * time.Second,
			MaxInterval:     10 * time.Second,
			Multiplier:      1,
		},
		OperationRetry: RetryConfig{
			MaxAttempts:     2,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     time.Second,
			Multiplier:      1,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs common.ValidationErrors

	if c.DSN == "" {
		errs.Add("dsn", "is required", nil)
	}
	if c.MaxOpenConns <= 0 {
		errs.Add("max_open_conns", "must be positive", c.MaxOpenConns)
	}
	if c.ConnectRetry.MaxAttempts <= 0 {
		errs.Add("connect_retry.max_attempts", "must be positive", c.ConnectRetry.MaxAttempts)
	}
	if c.OperationRetry.MaxAttempts <= 0 {
		errs.Add("operation_retry.max_attempts", "must be positive", c.OperationRetry.MaxAttempts)
	}
	if c.CircuitBreaker.FailureThreshold == 0 {
		errs.Add("circuit_breaker.failure_threshold", "must be positive", c.CircuitBreaker.FailureThreshold)
	}

	if errs.HasErrors() {
		return errs.ToAppError()
	}
	return nil
}

// BackoffDelay returns the linear delay to wait after the given 1-based failed attempt
func (r RetryConfig) BackoffDelay(attempt int) time.Duration {
	multiplier := r.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	delay := time.Duration(float64(r.InitialInterval) * (multiplier * float64(attempt)))
	if r.MaxInterval > 0 && delay > r.MaxInterval {
		delay = r.MaxInterval
	}
	return delay
}

func (c *Config) String() string {
	return fmt.Sprintf("postgres(schema=%s, max_open_conns=%d)", c.Schema, c.MaxOpenConns)
}
