package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return Wrap(zap.New(core), "replication"), logs
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(Config{Level: "warn", Format: "console", Output: "stderr", ServiceName: "replication"})
	require.NoError(t, err)
	assert.Equal(t, "replication", logger.ServiceName())
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	_, err = NewLogger(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestScopedLoggers(t *testing.T) {
	logger, logs := observed()

	logger.WithComponent("dispatcher").WithSchema("tenant_a").WithEntity("Order").Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "dispatcher", fields["component"])
	assert.Equal(t, "tenant_a", fields["schema"])
	assert.Equal(t, "Order", fields["entity_type"])
}

func TestLogHelpers(t *testing.T) {
	logger, logs := observed()

	logger.LogBatch("User", 500, 500, 498, 2, time.Second)
	logger.LogDeferred("Wallet", "w1", errors.New("owner missing"))

	batches := logs.FilterMessage("Batch processed").All()
	require.Len(t, batches, 1)
	assert.Equal(t, int64(498), batches[0].ContextMap()["synced"])

	deferred := logs.FilterField(String("event_type", "deferred_reference")).All()
	require.Len(t, deferred, 1)
	assert.Equal(t, zapcore.WarnLevel, deferred[0].Level)
	assert.Equal(t, "w1", deferred[0].ContextMap()["source_id"])
}
