package redis

import (
	"time"

	"github.com/chetanchaudhari789/MOBO-sub000/shared/common"
)

// Config represents Redis configuration for the ID translation cache
type Config struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Address      string        `mapstructure:"address" yaml:"address" json:"address"`
	Password     string        `mapstructure:"password" yaml:"password" json:"-"`
	DB           int           `mapstructure:"db" yaml:"db" json:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size" yaml:"pool_size" json:"pool_size"`

	KeyPrefix  string        `mapstructure:"key_prefix" yaml:"key_prefix" json:"key_prefix"`
	DefaultTTL time.Duration `mapstructure:"default_ttl" yaml:"default_ttl" json:"default_ttl"`

	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker" yaml:"circuit_breaker" json:"circuit_breaker"`
}

// CircuitBreakerConfig defines circuit breaker settings
type CircuitBreakerConfig struct {
	MaxRequests      uint32        `mapstructure:"max_requests" yaml:"max_requests" json:"max_requests"`
	Interval         time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold" yaml:"failure_threshold" json:"failure_threshold"`
}

// DefaultConfig returns default Redis configuration; the cache is off unless enabled.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      false,
		Address:      "localhost:6379",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     10,
		KeyPrefix:    "mobo:idmap",
		DefaultTTL:   24 * time.Hour,
		CircuitBreaker: CircuitBreakerConfig{
			MaxRequests:      1,
			Interval:         30 * time.Second,
			Timeout:          15 * time.Second,
			FailureThreshold: 5,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs common.ValidationErrors
	if c.Address == "" {
		errs.Add("address", "is required when the cache is enabled", nil)
	}
	if c.DefaultTTL <= 0 {
		errs.Add("default_ttl", "must be positive", c.DefaultTTL)
	}
	if errs.HasErrors() {
		return errs.ToAppError()
	}
	return nil
}
