package mongodb

import (
	"time"

	"github.com/chetanchaudhari789/MOBO-sub000/shared/common"
)

// Config represents the source MongoDB configuration
type Config struct {
	URI      string `mapstructure:"uri" yaml:"uri" json:"-"`
	Database string `mapstructure:"database" yaml:"database" json:"database"`

	MaxPoolSize     uint64        `mapstructure:"max_pool_size" yaml:"max_pool_size" json:"max_pool_size"`
	MinPoolSize     uint64        `mapstructure:"min_pool_size" yaml:"min_pool_size" json:"min_pool_size"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time" yaml:"max_conn_idle_time" json:"max_conn_idle_time"`

	ConnectTimeout         time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout" json:"connect_timeout"`
	ServerSelectionTimeout time.Duration `mapstructure:"server_selection_timeout" yaml:"server_selection_timeout" json:"server_selection_timeout"`
	SocketTimeout          time.Duration `mapstructure:"socket_timeout" yaml:"socket_timeout" json:"socket_timeout"`

	// ReadPreference for backfill scans; secondaryPreferred keeps load off the primary.
	ReadPreference string `mapstructure:"read_preference" yaml:"read_preference" json:"read_preference"`
	ReadConcern    string `mapstructure:"read_concern" yaml:"read_concern" json:"read_concern"`

	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker" yaml:"circuit_breaker" json:"circuit_breaker"`
}

// CircuitBreakerConfig defines circuit breaker settings
type CircuitBreakerConfig struct {
	MaxRequests      uint32        `mapstructure:"max_requests" yaml:"max_requests" json:"max_requests"`
	Interval         time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold" yaml:"failure_threshold" json:"failure_threshold"`
}

// DefaultConfig returns default source configuration
func DefaultConfig() *Config {
	return &Config{
		URI:                    "mongodb://localhost:27017",
		Database:               "mobo",
		MaxPoolSize:            20,
		MinPoolSize:            1,
		MaxConnIdleTime:        5 * time.Minute,
		ConnectTimeout:         10 * time.Second,
		ServerSelectionTimeout: 10 * time.Second,
		SocketTimeout:          60 * time.Second,
		ReadPreference:         "primaryPreferred",
		ReadConcern:            "majority",
		CircuitBreaker: CircuitBreakerConfig{
			MaxRequests:      1,
			Interval:         60 * time.Second,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs common.ValidationErrors

	if c.URI == "" {
		errs.Add("uri", "is required", nil)
	}
	if c.Database == "" {
		errs.Add("database", "is required", nil)
	}
	if c.ConnectTimeout <= 0 {
		errs.Add("connect_timeout", "must be positive", c.ConnectTimeout)
	}

	if errs.HasErrors() {
		return errs.ToAppError()
	}
	return nil
}
