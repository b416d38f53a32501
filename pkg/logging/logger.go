package logging

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with replication-specific helpers
type Logger struct {
	*zap.Logger
	serviceName string
}

// Config represents logger configuration
type Config struct {
	Level       string `json:"level" yaml:"level" mapstructure:"level"`
	Format      string `json:"format" yaml:"format" mapstructure:"format"`
	Output      string `json:"output" yaml:"output" mapstructure:"output"`
	ServiceName string `json:"service_name" yaml:"service_name" mapstructure:"service_name"`
	Development bool   `json:"development" yaml:"development" mapstructure:"development"`
}

// Field represents a log field
type Field = zapcore.Field

// NewLogger creates a new logger instance
func NewLogger(config Config) (*Logger, error) {
	levelName := config.Level
	if levelName == "" {
		levelName = "info"
	}
	level, err := zapcore.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var zapConfig zap.Config
	if config.Development {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig.Level = zap.NewAtomicLevelAt(level)

	switch strings.ToLower(config.Format) {
	case "console":
		zapConfig.Encoding = "console"
	default:
		zapConfig.Encoding = "json"
	}

	switch strings.ToLower(config.Output) {
	case "", "stdout":
		zapConfig.OutputPaths = []string{"stdout"}
	case "stderr":
		zapConfig.OutputPaths = []string{"stderr"}
	default:
		zapConfig.OutputPaths = []string{config.Output}
	}

	zapConfig.InitialFields = map[string]interface{}{
		"service": config.ServiceName,
	}

	zapLogger, err := zapConfig.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return &Logger{Logger: zapLogger, serviceName: config.ServiceName}, nil
}

// Wrap adapts an existing zap logger, mainly for tests using zaptest.
func Wrap(zapLogger *zap.Logger, serviceName string) *Logger {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &Logger{Logger: zapLogger, serviceName: serviceName}
}

// ServiceName returns the service the logger was built for
func (l *Logger) ServiceName() string {
	return l.serviceName
}

// WithComponent adds component information to logger
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:      l.Logger.With(zap.String("component", component)),
		serviceName: l.serviceName,
	}
}

// WithSchema scopes the logger to one target schema
func (l *Logger) WithSchema(schema string) *Logger {
	return &Logger{
		Logger:      l.Logger.With(zap.String("schema", schema)),
		serviceName: l.serviceName,
	}
}

// WithEntity scopes the logger to one entity type
func (l *Logger) WithEntity(entityType string) *Logger {
	return &Logger{
		Logger:      l.Logger.With(zap.String("entity_type", entityType)),
		serviceName: l.serviceName,
	}
}

// WithFields adds multiple fields to logger
func (l *Logger) WithFields(fields ...Field) *Logger {
	return &Logger{
		Logger:      l.Logger.With(fields...),
		serviceName: l.serviceName,
	}
}

// LogPerformance logs the duration of a named operation
func (l *Logger) LogPerformance(operation string, duration time.Duration, fields ...Field) {
	allFields := append([]Field{
		zap.String("event_type", "performance"),
		zap.String("operation", operation),
		zap.Duration("duration", duration),
		zap.Float64("duration_ms", float64(duration.Nanoseconds())/1000000),
	}, fields...)

	l.Info("Performance metric", allFields...)
}

// LogBatch logs the outcome of one migration batch. It sets entity_type
// itself, so call it on a logger not scoped with WithEntity.
func (l *Logger) LogBatch(entityType string, skip, size, synced, failed int, duration time.Duration) {
	l.Info("Batch processed",
		zap.String("event_type", "migration_batch"),
		zap.String("entity_type", entityType),
		zap.Int("skip", skip),
		zap.Int("size", size),
		zap.Int("synced", synced),
		zap.Int("failed", failed),
		zap.Duration("duration", duration),
	)
}

// LogDeferred logs a record skipped because a referenced parent has not
// been replicated yet. Like LogBatch it sets entity_type itself.
func (l *Logger) LogDeferred(entityType, sourceID string, err error) {
	l.Warn("Record deferred until referenced parent is replicated",
		zap.String("event_type", "deferred_reference"),
		zap.String("entity_type", entityType),
		zap.String("source_id", sourceID),
		zap.Error(err),
	)
}

// Cleanup flushes buffered entries; errors from stdout syncs are ignored.
func (l *Logger) Cleanup() {
	if l.Logger != nil {
		_ = l.Logger.Sync()
	}
}

// Field helpers

func String(key, value string) Field {
	return zap.String(key, value)
}

func Strings(key string, values []string) Field {
	return zap.Strings(key, values)
}

func Int(key string, value int) Field {
	return zap.Int(key, value)
}

func Int64(key string, value int64) Field {
	return zap.Int64(key, value)
}

func Bool(key string, value bool) Field {
	return zap.Bool(key, value)
}

func Duration(key string, value time.Duration) Field {
	return zap.Duration(key, value)
}

func Any(key string, value interface{}) Field {
	return zap.Any(key, value)
}

// Err attaches an error under the "error" key
func Err(err error) Field {
	return zap.Error(err)
}
