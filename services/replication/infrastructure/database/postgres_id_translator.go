package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
	"github.com/chetanchaudhari789/MOBO-sub000/shared/database/postgres"
)

// PostgresIDTranslator resolves source ids through the mongo_id column of
// the target tables. The rows are the mapping, so Remember and Forget are no-ops.
type PostgresIDTranslator struct {
	client *postgres.Client
}

// NewPostgresIDTranslator creates a new PostgresIDTranslator
func NewPostgresIDTranslator(client *postgres.Client) *PostgresIDTranslator {
	return &PostgresIDTranslator{client: client}
}

// Resolve returns the primary key of the row replicated from sourceID
func (t *PostgresIDTranslator) Resolve(ctx context.Context, entityType entity.EntityType, sourceID string) (uuid.UUID, bool, error) {
	if !entityType.Valid() {
		return uuid.Nil, false, fmt.Errorf("%w: %s", entity.ErrUnknownEntityType, entityType)
	}
	query := fmt.Sprintf("SELECT id FROM %s WHERE mongo_id = $1", pq.QuoteIdentifier(entityType.Table()))

	var id uuid.UUID
	var found bool
	err := t.client.Execute(ctx, func(ctx context.Context) error {
		err := t.client.DB().GetContext(ctx, &id, query, sourceID)
		if postgres.IsNoRowsError(err) {
			return nil
		}
		if err != nil {
			return classify(entityType.Table(), err)
		}
		found = true
		return nil
	})
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, found, nil
}

func (t *PostgresIDTranslator) Remember(context.Context, entity.EntityType, string, uuid.UUID) error {
	return nil
}

func (t *PostgresIDTranslator) Forget(context.Context, entity.EntityType, string) error {
	return nil
}
