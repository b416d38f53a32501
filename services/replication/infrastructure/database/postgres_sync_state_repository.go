package database

import (
	"context"

	"github.com/chetanchaudhari789/MOBO-sub000/pkg/logging"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
	"github.com/chetanchaudhari789/MOBO-sub000/shared/database/postgres"
)

const syncStateTable = "migration_sync_state"

const createSyncStateTable = `
	CREATE TABLE IF NOT EXISTS migration_sync_state (
		schema_name  TEXT        NOT NULL,
		entity_type  TEXT        NOT NULL,
		status       TEXT        NOT NULL DEFAULT 'pending',
		synced_count BIGINT      NOT NULL DEFAULT 0,
		error_count  BIGINT      NOT NULL DEFAULT 0,
		last_sync_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (schema_name, entity_type)
	)`

// PostgresSyncStateRepository implements repository.SyncStateRepository
// in the target schema itself.
type PostgresSyncStateRepository struct {
	client *postgres.Client
	logger *logging.Logger
}

// NewPostgresSyncStateRepository creates a new sync state repository
func NewPostgresSyncStateRepository(client *postgres.Client, logger *logging.Logger) *PostgresSyncStateRepository {
	return &PostgresSyncStateRepository{
		client: client,
		logger: logger.WithComponent("sync_state").WithSchema(client.Schema()),
	}
}

// Ensure creates the bookkeeping table if needed. Missing privileges are fatal.
func (r *PostgresSyncStateRepository) Ensure(ctx context.Context) error {
	return r.client.Execute(ctx, func(ctx context.Context) error {
		if _, err := r.client.DB().ExecContext(ctx, createSyncStateTable); err != nil {
			return classify(syncStateTable, err)
		}
		return nil
	})
}

// Get returns nil when the entity type has never been migrated
func (r *PostgresSyncStateRepository) Get(ctx context.Context, schema string, entityType entity.EntityType) (*entity.SyncState, error) {
	query := `
		SELECT schema_name, entity_type, status, synced_count, error_count, last_sync_at
		FROM migration_sync_state
		WHERE schema_name = $1 AND entity_type = $2`

	var state entity.SyncState
	var found bool
	err := r.client.Execute(ctx, func(ctx context.Context) error {
		err := r.client.DB().GetContext(ctx, &state, query, schema, string(entityType))
		if postgres.IsNoRowsError(err) {
			return nil
		}
		if err != nil {
			return classify(syncStateTable, err)
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return nil, err
	}
	return &state, nil
}

// Save upserts the state row
func (r *PostgresSyncStateRepository) Save(ctx context.Context, state *entity.SyncState) error {
	query := `
		INSERT INTO migration_sync_state (
			schema_name, entity_type, status, synced_count, error_count, last_sync_at
		) VALUES (
			:schema_name, :entity_type, :status, :synced_count, :error_count, :last_sync_at
		)
		ON CONFLICT (schema_name, entity_type) DO UPDATE SET
			status       = EXCLUDED.status,
			synced_count = EXCLUDED.synced_count,
			error_count  = EXCLUDED.error_count,
			last_sync_at = EXCLUDED.last_sync_at`

	err := r.client.Execute(ctx, func(ctx context.Context) error {
		if _, err := r.client.DB().NamedExecContext(ctx, query, state); err != nil {
			return classify(syncStateTable, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Debug("Sync state saved",
		logging.String("entity_type", state.EntityType.String()),
		logging.String("status", string(state.Status)),
		logging.Int64("synced_count", state.SyncedCount),
		logging.Int64("error_count", state.ErrorCount),
	)
	return nil
}

// List returns every state row of a schema
func (r *PostgresSyncStateRepository) List(ctx context.Context, schema string) ([]entity.SyncState, error) {
	query := `
		SELECT schema_name, entity_type, status, synced_count, error_count, last_sync_at
		FROM migration_sync_state
		WHERE schema_name = $1
		ORDER BY entity_type`

	var states []entity.SyncState
	err := r.client.Execute(ctx, func(ctx context.Context) error {
		states = nil
		if err := r.client.DB().SelectContext(ctx, &states, query, schema); err != nil {
			return classify(syncStateTable, err)
		}
		return nil
	})
	return states, err
}
