package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chetanchaudhari789/MOBO-sub000/pkg/logging"
	"github.com/chetanchaudhari789/MOBO-sub000/pkg/metrics"
	httpdelivery "github.com/chetanchaudhari789/MOBO-sub000/services/replication/delivery/http"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/infrastructure/messaging"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/usecase"
	"github.com/chetanchaudhari789/MOBO-sub000/shared/common"
	"github.com/chetanchaudhari789/MOBO-sub000/shared/database/mongodb"
	"github.com/chetanchaudhari789/MOBO-sub000/shared/database/postgres"
	"github.com/chetanchaudhari789/MOBO-sub000/shared/database/redis"
)

// DefaultTargetName is used when no targets map is configured
const DefaultTargetName = "default"

// Config represents the configuration of the replication service
type Config struct {
	Service ServiceConfig  `mapstructure:"service"`
	Logging logging.Config `mapstructure:"logging"`
	Metrics metrics.Config `mapstructure:"metrics"`

	// Source store
	MongoDB mongodb.Config `mapstructure:"mongodb"`

	// Postgres holds connection settings shared by every target. Targets
	// override the DSN and schema per tenant database.
	Postgres postgres.Config         `mapstructure:"postgres"`
	Targets  map[string]TargetConfig `mapstructure:"targets"`

	Redis     redis.Config          `mapstructure:"redis"`
	Kafka     messaging.KafkaConfig `mapstructure:"kafka"`
	DualWrite DualWriteConfig       `mapstructure:"dual_write"`
	Migration MigrationConfig       `mapstructure:"migration"`
	HTTP      httpdelivery.Config   `mapstructure:"http"`
}

// ServiceConfig contains service identity
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// TargetConfig is one target database
type TargetConfig struct {
	DSN    string `mapstructure:"dsn"`
	Schema string `mapstructure:"schema"`
}

// DualWriteConfig configures live mirroring
type DualWriteConfig struct {
	usecase.DispatcherConfig `mapstructure:",squash"`

	// Target names the entry of targets that receives live writes.
	Target       string                       `mapstructure:"target"`
	ChangeStream messaging.ChangeStreamConfig `mapstructure:"change_stream"`
}

// MigrationConfig configures batch migration and verification
type MigrationConfig struct {
	usecase.DriverConfig `mapstructure:",squash"`

	// VerifyPageSize bounds reads during reconciliation.
	VerifyPageSize int           `mapstructure:"verify_page_size"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`
}

// NamedTarget is a fully resolved target connection
type NamedTarget struct {
	Name     string
	Postgres *postgres.Config
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "mobo-replication",
			Version:     "dev",
			Environment: "development",
		},
		Logging: logging.Config{
			Level:       "info",
			Format:      "json",
			Output:      "stdout",
			ServiceName: "mobo-replication",
		},
		Metrics: metrics.Config{
			Enabled:   true,
			Namespace: "mobo_replication",
			Path:      "/metrics",
		},
		MongoDB:  *mongodb.DefaultConfig(),
		Postgres: *postgres.DefaultConfig(),
		Redis:    *redis.DefaultConfig(),
		Kafka:    messaging.DefaultKafkaConfig(),
		DualWrite: DualWriteConfig{
			DispatcherConfig: usecase.DefaultDispatcherConfig(),
			Target:           DefaultTargetName,
			ChangeStream:     messaging.DefaultChangeStreamConfig(),
		},
		Migration: MigrationConfig{
			DriverConfig:   usecase.DefaultDriverConfig(),
			VerifyPageSize: 500,
			QueryTimeout:   60 * time.Second,
		},
		HTTP: httpdelivery.DefaultConfig(),
	}
}

// envBindings are secrets commonly injected without the MOBO_ prefix
var envBindings = map[string]string{
	"mongodb.uri":    "MONGODB_URI",
	"postgres.dsn":   "POSTGRES_DSN",
	"redis.password": "REDIS_PASSWORD",
}

// Load reads replication.yaml (or configFile) and MOBO_* environment
// variables over the defaults, then validates the result.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	_, err := common.LoadConfig(common.LoaderOptions{
		ConfigFile:  configFile,
		ConfigName:  "replication",
		SearchPaths: []string{"./config", "/etc/mobo"},
		EnvPrefix:   "MOBO",
		Defaults:    envDefaults(cfg),
		EnvBindings: envBindings,
	}, cfg)
	if err != nil {
		return nil, common.WrapError(err, common.ErrCodeConfiguration, "failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envDefaults registers the keys that may be set from the environment alone
func envDefaults(cfg *Config) map[string]interface{} {
	return map[string]interface{}{
		"mongodb.uri":        cfg.MongoDB.URI,
		"mongodb.database":   cfg.MongoDB.Database,
		"postgres.dsn":       cfg.Postgres.DSN,
		"postgres.schema":    cfg.Postgres.Schema,
		"redis.enabled":      cfg.Redis.Enabled,
		"redis.address":      cfg.Redis.Address,
		"redis.password":     cfg.Redis.Password,
		"kafka.enabled":      cfg.Kafka.Enabled,
		"kafka.brokers":      cfg.Kafka.Brokers,
		"kafka.topic":        cfg.Kafka.Topic,
		"dual_write.enabled": cfg.DualWrite.Enabled,
		"dual_write.target":  cfg.DualWrite.Target,
		"logging.level":      cfg.Logging.Level,
		"logging.format":     cfg.Logging.Format,
		"http.address":       cfg.HTTP.Address,
	}
}

// Validate checks cross-section settings. Per-target postgres settings are
// validated when a target is opened so one bad tenant cannot block the rest.
func (c *Config) Validate() error {
	var errs common.ValidationErrors

	if err := c.MongoDB.Validate(); err != nil {
		errs.Add("mongodb", err.Error(), nil)
	}
	if err := c.Redis.Validate(); err != nil {
		errs.Add("redis", err.Error(), nil)
	}
	if c.Migration.BatchSize <= 0 {
		errs.Add("migration.batch_size", "must be positive", c.Migration.BatchSize)
	}
	if c.Migration.Workers <= 0 {
		errs.Add("migration.workers", "must be positive", c.Migration.Workers)
	}
	if c.Migration.BatchesPerSecond < 0 {
		errs.Add("migration.batches_per_second", "must not be negative", c.Migration.BatchesPerSecond)
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs.Add("kafka.brokers", "is required when kafka is enabled", nil)
		}
		if c.Kafka.Topic == "" {
			errs.Add("kafka.topic", "is required when kafka is enabled", nil)
		}
	}
	for _, name := range c.DualWrite.ChangeStream.Collections {
		if _, ok := entity.EntityTypeForCollection(name); !ok {
			errs.Add("dual_write.change_stream.collections", "unknown collection", name)
		}
	}

	if errs.HasErrors() {
		return errs.ToAppError()
	}
	return nil
}

// TargetNames returns the configured target names in order
func (c *Config) TargetNames() []string {
	if len(c.Targets) == 0 {
		return []string{DefaultTargetName}
	}
	names := make([]string, 0, len(c.Targets))
	for name := range c.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveTargets expands selector ("all", empty, or a comma separated list
// of names) into connection settings.
func (c *Config) ResolveTargets(selector string) ([]NamedTarget, error) {
	selector = strings.TrimSpace(selector)

	var names []string
	if selector == "" || strings.EqualFold(selector, "all") {
		names = c.TargetNames()
	} else {
		names = common.StringUtils{}.SplitList(selector)
	}

	targets := make([]NamedTarget, 0, len(names))
	for _, name := range names {
		target, err := c.Target(name)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, nil
}

// Target resolves one named target over the shared postgres settings
func (c *Config) Target(name string) (NamedTarget, error) {
	pg := c.Postgres

	if len(c.Targets) == 0 {
		if name != DefaultTargetName {
			return NamedTarget{}, common.ErrConfiguration(fmt.Sprintf("unknown target %q", name))
		}
		return NamedTarget{Name: name, Postgres: &pg}, nil
	}

	target, ok := c.Targets[name]
	if !ok {
		return NamedTarget{}, common.ErrConfiguration(fmt.Sprintf("unknown target %q", name))
	}
	if target.DSN != "" {
		pg.DSN = target.DSN
	}
	if target.Schema != "" {
		pg.Schema = target.Schema
	}
	return NamedTarget{Name: name, Postgres: &pg}, nil
}
