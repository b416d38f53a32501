package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/chetanchaudhari789/MOBO-sub000/pkg/logging"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
	"github.com/chetanchaudhari789/MOBO-sub000/shared/common"
)

func summaryFor(t *testing.T, report *SchemaReport, entityType entity.EntityType) EntitySummary {
	t.Helper()
	for _, e := range report.Entities {
		if e.EntityType == entityType {
			return e
		}
	}
	t.Fatalf("no summary for %s", entityType)
	return EntitySummary{}
}

func TestMigrationDriver_ScenarioA(t *testing.T) {
	h := newHarness(t)
	h.source.add(entity.EntityUser,
		userDoc("u1", "9000000001"),
		userDoc("u2", "9000000002"),
		userDoc("u3", "9000000003"),
	)
	h.source.add(entity.EntityWallet, walletDoc("w1", "missing-owner"))

	report, err := h.driver(t, DriverConfig{BatchSize: 2}).Run(context.Background(), MigrationOptions{
		Types: []entity.EntityType{entity.EntityWallet, entity.EntityUser},
	})
	require.NoError(t, err)

	require.Len(t, report.Entities, 2)
	assert.Equal(t, entity.EntityUser, report.Entities[0].EntityType)

	users := summaryFor(t, report, entity.EntityUser)
	assert.Equal(t, entity.SyncStatusCompleted, users.Status)
	assert.Equal(t, int64(3), users.Synced)
	assert.Equal(t, int64(3), users.TargetCount)
	assert.Zero(t, users.Errors)

	wallets := summaryFor(t, report, entity.EntityWallet)
	assert.Equal(t, entity.SyncStatusPartial, wallets.Status)
	assert.GreaterOrEqual(t, wallets.Errors, int64(1))
	assert.Equal(t, int64(1), wallets.Deferred)
	assert.Equal(t, int64(0), wallets.TargetCount)
	assert.True(t, report.HasErrors())

	state, err := h.states.Get(context.Background(), "public", entity.EntityWallet)
	require.NoError(t, err)
	assert.Equal(t, entity.SyncStatusPartial, state.Status)
	assert.Equal(t, int64(1), state.ErrorCount)
}

func TestMigrationDriver_DeferredRecordPicksUpOnRerun(t *testing.T) {
	h := newHarness(t)
	h.source.add(entity.EntityWallet, walletDoc("w1", "u1"))
	driver := h.driver(t, DriverConfig{})
	opts := MigrationOptions{Types: []entity.EntityType{entity.EntityUser, entity.EntityWallet}}

	report, err := driver.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, entity.SyncStatusPartial, summaryFor(t, report, entity.EntityWallet).Status)

	h.source.add(entity.EntityUser, userDoc("u1", "9000000001"))

	report, err = driver.Run(context.Background(), opts)
	require.NoError(t, err)
	wallets := summaryFor(t, report, entity.EntityWallet)
	assert.Equal(t, entity.SyncStatusCompleted, wallets.Status)
	assert.Equal(t, int64(1), wallets.TargetCount)
	assert.False(t, report.HasErrors())
}

func TestMigrationDriver_Resumability(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		h.source.add(entity.EntityUser, userDoc(fmt.Sprintf("u%d", i), fmt.Sprintf("900000000%d", i)))
	}
	driver := h.driver(t, DriverConfig{BatchSize: 2})
	opts := MigrationOptions{Types: []entity.EntityType{entity.EntityUser}}

	_, err := driver.Run(context.Background(), opts)
	require.NoError(t, err)
	writes := h.target.writeCount()
	assert.Equal(t, 5, writes)

	report, err := driver.Run(context.Background(), opts)
	require.NoError(t, err)

	users := summaryFor(t, report, entity.EntityUser)
	assert.True(t, users.Skipped)
	assert.Equal(t, writes, h.target.writeCount())

	state, err := h.states.Get(context.Background(), "public", entity.EntityUser)
	require.NoError(t, err)
	assert.Equal(t, int64(5), state.SyncedCount)
	assert.Equal(t, entity.SyncStatusCompleted, state.Status)
}

func TestMigrationDriver_SourceGrowthDefeatsSkip(t *testing.T) {
	h := newHarness(t)
	h.source.add(entity.EntityUser, userDoc("u1", "9000000001"))
	driver := h.driver(t, DriverConfig{})
	opts := MigrationOptions{Types: []entity.EntityType{entity.EntityUser}}

	_, err := driver.Run(context.Background(), opts)
	require.NoError(t, err)

	h.source.add(entity.EntityUser, userDoc("u2", "9000000002"))
	report, err := driver.Run(context.Background(), opts)
	require.NoError(t, err)

	users := summaryFor(t, report, entity.EntityUser)
	assert.False(t, users.Skipped)
	assert.Equal(t, int64(2), users.Synced)
}

func TestMigrationDriver_ForceReprocesses(t *testing.T) {
	h := newHarness(t)
	h.source.add(entity.EntityUser, userDoc("u1", "9000000001"))
	driver := h.driver(t, DriverConfig{})

	_, err := driver.Run(context.Background(), MigrationOptions{Types: []entity.EntityType{entity.EntityUser}})
	require.NoError(t, err)

	report, err := driver.Run(context.Background(), MigrationOptions{Force: true, Types: []entity.EntityType{entity.EntityUser}})
	require.NoError(t, err)

	users := summaryFor(t, report, entity.EntityUser)
	assert.False(t, users.Skipped)
	assert.Equal(t, int64(1), users.Synced)
	// idempotent rewrite changes nothing
	assert.Equal(t, 1, h.target.writeCount())
}

func TestMigrationDriver_ForcedRerunAfterMerge(t *testing.T) {
	h := newHarness(t)
	h.source.add(entity.EntityUser, userDoc("u-old", "9000000001"), userDoc("u-new", "+91 90000 00001"))
	driver := h.driver(t, DriverConfig{})
	types := []entity.EntityType{entity.EntityUser}

	report, err := driver.Run(context.Background(), MigrationOptions{Types: types})
	require.NoError(t, err)
	assert.False(t, report.HasErrors())

	report, err = driver.Run(context.Background(), MigrationOptions{Force: true, Types: types})
	require.NoError(t, err)

	users := summaryFor(t, report, entity.EntityUser)
	assert.Equal(t, entity.SyncStatusCompleted, users.Status)
	assert.Zero(t, users.Errors)
	assert.Equal(t, int64(2), users.Synced)
	assert.Equal(t, int64(1), users.TargetCount)

	row, ok := h.target.row(entity.EntityUser, "u-new")
	require.True(t, ok)
	assert.Equal(t, "9000000001", row.columns["mobile"])
}

func TestMigrationDriver_DryRunWritesNothing(t *testing.T) {
	h := newHarness(t)
	h.source.add(entity.EntityUser, userDoc("u1", "9000000001"), userDoc("u2", ""))

	report, err := h.driver(t, DriverConfig{}).Run(context.Background(), MigrationOptions{
		DryRun: true,
		Types:  []entity.EntityType{entity.EntityUser},
	})
	require.NoError(t, err)

	users := summaryFor(t, report, entity.EntityUser)
	assert.Equal(t, int64(1), users.Synced)
	assert.Equal(t, int64(1), users.Errors)
	assert.Zero(t, h.target.writeCount())

	states, err := h.states.List(context.Background(), "public")
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestMigrationDriver_DryRunDeferralsAreNotErrors(t *testing.T) {
	h := newHarness(t)
	h.source.add(entity.EntityUser, userDoc("u1", "9000000001"))
	h.source.add(entity.EntityWallet, walletDoc("w1", "u1"))

	report, err := h.driver(t, DriverConfig{}).Run(context.Background(), MigrationOptions{
		DryRun: true,
		Types:  []entity.EntityType{entity.EntityUser, entity.EntityWallet},
	})
	require.NoError(t, err)

	wallets := summaryFor(t, report, entity.EntityWallet)
	assert.Equal(t, entity.SyncStatusCompleted, wallets.Status)
	assert.Zero(t, wallets.Errors)
	assert.Equal(t, int64(1), wallets.Deferred)
	assert.Empty(t, wallets.ErrorSamples)
	assert.False(t, report.HasErrors())
	assert.Zero(t, h.target.writeCount())
}

func TestMigrationDriver_LogHelpersOnUnscopedLogger(t *testing.T) {
	h := newHarness(t)
	h.source.add(entity.EntityUser, userDoc("u1", "9000000001"))
	h.source.add(entity.EntityWallet, walletDoc("w1", "missing-owner"))

	core, logs := observer.New(zapcore.DebugLevel)
	logger := logging.Wrap(zap.New(core), "replication-test")
	driver := NewMigrationDriver("public", h.source, h.target, h.states, h.processor, DriverConfig{}, logger, nil)

	_, err := driver.Run(context.Background(), MigrationOptions{
		Types: []entity.EntityType{entity.EntityUser, entity.EntityWallet},
	})
	require.NoError(t, err)

	for _, message := range []string{"Batch processed", "Record deferred until referenced parent is replicated"} {
		entries := logs.FilterMessage(message).All()
		require.NotEmpty(t, entries, message)
		for _, e := range entries {
			n := 0
			for _, f := range e.Context {
				if f.Key == "entity_type" {
					n++
				}
			}
			assert.Equal(t, 1, n, message)
		}
	}
}

func TestMigrationDriver_ErrorSamplesAreCapped(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 15; i++ {
		h.source.add(entity.EntityUser, userDoc(fmt.Sprintf("bad%d", i), ""))
	}

	report, err := h.driver(t, DriverConfig{BatchSize: 4, Workers: 3}).Run(context.Background(), MigrationOptions{
		Types: []entity.EntityType{entity.EntityUser},
	})
	require.NoError(t, err)

	users := summaryFor(t, report, entity.EntityUser)
	assert.Equal(t, int64(15), users.Errors)
	assert.Len(t, users.ErrorSamples, 10)
	assert.Equal(t, entity.SyncStatusPartial, users.Status)
}

func TestMigrationDriver_FatalAbortsSchema(t *testing.T) {
	h := newHarness(t)
	h.source.add(entity.EntityUser, userDoc("u1", "9000000001"))
	h.source.add(entity.EntityInvite, bson.M{"_id": "i1", "code": "X1"})
	h.target.failAll = common.ErrInsufficientPrivileges(errors.New("permission denied for table users"))

	report, err := h.driver(t, DriverConfig{}).Run(context.Background(), MigrationOptions{})

	require.Error(t, err)
	assert.True(t, common.HasErrorCode(err, common.ErrCodeInsufficientPrivileges))
	assert.Equal(t, err, report.Fatal)
	require.Len(t, report.Entities, 1)
	assert.Equal(t, entity.EntityUser, report.Entities[0].EntityType)
}

func TestMigrationDriver_EnsureFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.states.ensureErr = common.ErrInsufficientPrivileges(errors.New("permission denied for schema public"))

	report, err := h.driver(t, DriverConfig{}).Run(context.Background(), MigrationOptions{})

	require.Error(t, err)
	assert.Empty(t, report.Entities)
	assert.True(t, report.HasErrors())
}

func TestMigrationDriver_CancelledRunStops(t *testing.T) {
	h := newHarness(t)
	h.source.add(entity.EntityUser, userDoc("u1", "9000000001"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.driver(t, DriverConfig{}).Run(ctx, MigrationOptions{})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestOrchestrator_FatalIsolatedPerSchema(t *testing.T) {
	h := newHarness(t)
	h.source.add(entity.EntityUser, userDoc("u1", "9000000001"))
	released := false

	orchestrator := NewOrchestrator([]MigrationTarget{
		{
			Name: "broken",
			Open: func(context.Context) (*MigrationDriver, func(), error) {
				return nil, nil, common.ErrDatabaseConnection(errors.New("connection refused"))
			},
		},
		{
			Name: "public",
			Open: func(context.Context) (*MigrationDriver, func(), error) {
				return h.driver(t, DriverConfig{}), func() { released = true }, nil
			},
		},
	}, testLogger(t))

	run := orchestrator.Run(context.Background(), MigrationOptions{Types: []entity.EntityType{entity.EntityUser}})

	require.Len(t, run.Schemas, 2)
	assert.Error(t, run.Schemas[0].Fatal)
	assert.NoError(t, run.Schemas[1].Fatal)
	assert.Equal(t, entity.SyncStatusCompleted, run.Schemas[1].Entities[0].Status)
	assert.True(t, released)
	assert.True(t, run.HasErrors())

	var out bytes.Buffer
	PrintRunSummary(&out, run)
	assert.Contains(t, out.String(), "Schema broken")
	assert.Contains(t, out.String(), "Schema aborted")
	assert.Contains(t, out.String(), "completed")
}
