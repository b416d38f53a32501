package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/chetanchaudhari789/MOBO-sub000/pkg/logging"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
	"github.com/chetanchaudhari789/MOBO-sub000/shared/common"
	"github.com/chetanchaudhari789/MOBO-sub000/shared/database/postgres"
)

// PostgresTargetRepository implements repository.TargetRepository. Every
// target table has an id UUID primary key and a unique mongo_id column.
type PostgresTargetRepository struct {
	client *postgres.Client
	logger *logging.Logger
}

// NewPostgresTargetRepository creates a new PostgreSQL target repository
func NewPostgresTargetRepository(client *postgres.Client, logger *logging.Logger) *PostgresTargetRepository {
	return &PostgresTargetRepository{
		client: client,
		logger: logger.WithComponent("postgres_target").WithSchema(client.Schema()),
	}
}

// Upsert inserts or updates rec by mongo_id and replaces its child sets in
// the same transaction. Rows whose columns already match are left untouched.
func (r *PostgresTargetRepository) Upsert(ctx context.Context, rec *entity.TargetRecord) (entity.WriteResult, error) {
	query, args := buildUpsert(rec)
	var result entity.WriteResult

	err := r.client.Transaction(ctx, func(tx *sqlx.Tx) error {
		var id uuid.UUID
		var inserted bool
		err := tx.QueryRowxContext(ctx, query, args...).Scan(&id, &inserted)
		switch {
		case err == nil:
			result = entity.WriteResult{TargetID: id, Outcome: entity.OutcomeUpdated}
			if inserted {
				result.Outcome = entity.OutcomeCreated
			}
		case postgres.IsNoRowsError(err):
			// the conflict update was filtered out: nothing changed
			lookup := fmt.Sprintf("SELECT id FROM %s WHERE mongo_id = $1", pq.QuoteIdentifier(rec.Table))
			if err := tx.GetContext(ctx, &id, lookup, rec.SourceID); err != nil {
				return classify(rec.Table, err)
			}
			result = entity.WriteResult{TargetID: id, Outcome: entity.OutcomeUnchanged}
		default:
			return classify(rec.Table, err)
		}

		return replaceChildren(ctx, tx, rec, result.TargetID)
	})
	if err != nil {
		return entity.WriteResult{}, err
	}
	return result, nil
}

// UpdateByNaturalKey rewrites the row holding rec's natural key and attaches rec.SourceID to it
func (r *PostgresTargetRepository) UpdateByNaturalKey(ctx context.Context, rec *entity.TargetRecord) (entity.WriteResult, error) {
	if rec.NaturalKey == nil {
		return entity.WriteResult{}, fmt.Errorf("%s %s has no natural key", rec.EntityType, rec.SourceID)
	}

	query, args := buildNaturalKeyUpdate(rec)
	var id uuid.UUID
	var displaced string

	err := r.client.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := tx.QueryRowxContext(ctx, query, args...).Scan(&id, &displaced); err != nil {
			if postgres.IsNoRowsError(err) {
				return entity.ErrTargetRowMissing
			}
			return classify(rec.Table, err)
		}
		return replaceChildren(ctx, tx, rec, id)
	})
	if err != nil {
		return entity.WriteResult{}, err
	}
	return entity.WriteResult{TargetID: id, Outcome: entity.OutcomeMerged, Displaced: displaced}, nil
}

// DeleteBySourceID hard-deletes one row; child rows cascade in the DDL
func (r *PostgresTargetRepository) DeleteBySourceID(ctx context.Context, entityType entity.EntityType, sourceID string) (bool, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE mongo_id = $1", pq.QuoteIdentifier(entityType.Table()))

	var affected int64
	err := r.client.Execute(ctx, func(ctx context.Context) error {
		res, err := r.client.DB().ExecContext(ctx, query, sourceID)
		if err != nil {
			return classify(entityType.Table(), err)
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Count counts rows matching every column equality in filter
func (r *PostgresTargetRepository) Count(ctx context.Context, entityType entity.EntityType, filter map[string]interface{}) (int64, error) {
	query, args := buildCount(entityType.Table(), filter)

	var count int64
	err := r.client.Execute(ctx, func(ctx context.Context) error {
		if err := r.client.DB().GetContext(ctx, &count, query, args...); err != nil {
			return classify(entityType.Table(), err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func replaceChildren(ctx context.Context, tx *sqlx.Tx, rec *entity.TargetRecord, parentID uuid.UUID) error {
	for _, child := range rec.Children {
		del := fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
			pq.QuoteIdentifier(child.Table), pq.QuoteIdentifier(child.ParentColumn))
		if _, err := tx.ExecContext(ctx, del, parentID); err != nil {
			return classify(child.Table, err)
		}

		if len(child.Rows) == 0 {
			continue
		}
		insert, args := buildChildInsert(child, parentID)
		if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
			return classify(child.Table, err)
		}
	}
	return nil
}

func buildUpsert(rec *entity.TargetRecord) (string, []interface{}) {
	table := pq.QuoteIdentifier(rec.Table)

	columns := []string{"id", "mongo_id"}
	args := []interface{}{rec.ID, rec.SourceID}
	var current, incoming, assignments []string

	for _, c := range rec.Columns {
		name := pq.QuoteIdentifier(c.Name)
		columns = append(columns, name)
		args = append(args, sqlValue(c.Value))
		current = append(current, "t."+name)
		incoming = append(incoming, "EXCLUDED."+name)
		assignments = append(assignments, fmt.Sprintf("%s = EXCLUDED.%s", name, name))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s AS t (%s) VALUES (%s)", table, strings.Join(columns, ", "), placeholders(1, len(args)))
	if len(assignments) == 0 {
		b.WriteString(" ON CONFLICT (mongo_id) DO NOTHING")
	} else {
		fmt.Fprintf(&b, " ON CONFLICT (mongo_id) DO UPDATE SET %s WHERE (%s) IS DISTINCT FROM (%s)",
			strings.Join(assignments, ", "), strings.Join(current, ", "), strings.Join(incoming, ", "))
	}
	b.WriteString(" RETURNING id, (xmax = 0) AS inserted")
	return b.String(), args
}

// buildNaturalKeyUpdate locks the row holding the natural key and returns
// its id along with the mongo_id it held before the update.
func buildNaturalKeyUpdate(rec *entity.TargetRecord) (string, []interface{}) {
	table := pq.QuoteIdentifier(rec.Table)
	assignments := []string{"mongo_id = $1"}
	args := []interface{}{rec.SourceID}

	for _, c := range rec.Columns {
		args = append(args, sqlValue(c.Value))
		assignments = append(assignments, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(c.Name), len(args)))
	}
	args = append(args, sqlValue(rec.NaturalKey.Value))

	query := fmt.Sprintf("UPDATE %s AS t SET %s FROM (SELECT id, mongo_id FROM %s WHERE %s = $%d FOR UPDATE) AS prev"+
		" WHERE t.id = prev.id RETURNING t.id, prev.mongo_id",
		table,
		strings.Join(assignments, ", "),
		table,
		pq.QuoteIdentifier(rec.NaturalKey.Column),
		len(args))
	return query, args
}

func buildChildInsert(child entity.ChildSet, parentID uuid.UUID) (string, []interface{}) {
	columns := []string{pq.QuoteIdentifier(child.ParentColumn)}
	for _, c := range child.Columns {
		columns = append(columns, pq.QuoteIdentifier(c))
	}

	width := len(columns)
	args := make([]interface{}, 0, width*len(child.Rows))
	tuples := make([]string, 0, len(child.Rows))
	for _, row := range child.Rows {
		tuples = append(tuples, "("+placeholders(len(args)+1, width)+")")
		args = append(args, parentID)
		for _, v := range row {
			args = append(args, sqlValue(v))
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		pq.QuoteIdentifier(child.Table), strings.Join(columns, ", "), strings.Join(tuples, ", "))
	return query, args
}

func buildCount(table string, filter map[string]interface{}) (string, []interface{}) {
	query := "SELECT COUNT(*) FROM " + pq.QuoteIdentifier(table)
	if len(filter) == 0 {
		return query, nil
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conditions := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		v := filter[k]
		if v == nil {
			conditions = append(conditions, pq.QuoteIdentifier(k)+" IS NULL")
			continue
		}
		args = append(args, sqlValue(v))
		conditions = append(conditions, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(k), len(args)))
	}
	return query + " WHERE " + strings.Join(conditions, " AND "), args
}

// placeholders renders n positional parameters starting at $start
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

func sqlValue(v interface{}) interface{} {
	switch value := v.(type) {
	case []string:
		return pq.Array(value)
	case []int64:
		return pq.Array(value)
	}
	return v
}

// classify maps driver errors onto domain and application errors
func classify(table string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if constraint, ok := postgres.UniqueViolation(err); ok {
		return &entity.UniqueConflictError{Table: table, Constraint: constraint, Cause: err}
	}
	if postgres.IsInsufficientPrivilege(err) {
		return common.ErrInsufficientPrivileges(err)
	}
	if postgres.IsForeignKeyConstraintError(err) {
		return common.WrapError(err, common.ErrCodeDatabaseConstraint, "foreign key violation on "+table)
	}
	return common.WrapError(err, common.ErrCodeDatabaseQuery, "query failed on "+table)
}
