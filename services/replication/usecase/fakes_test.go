package usecase

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap/zaptest"

	"github.com/chetanchaudhari789/MOBO-sub000/pkg/logging"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/service"
)

func testLogger(t *testing.T) *logging.Logger {
	return logging.Wrap(zaptest.NewLogger(t), "replication-test")
}

// fakeSource is an in-memory document store ordered by insertion
type fakeSource struct {
	mu   sync.Mutex
	docs map[entity.EntityType][]bson.M
}

func newFakeSource() *fakeSource {
	return &fakeSource{docs: make(map[entity.EntityType][]bson.M)}
}

func (s *fakeSource) add(entityType entity.EntityType, docs ...bson.M) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[entityType] = append(s.docs[entityType], docs...)
}

func (s *fakeSource) remove(entityType entity.EntityType, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.docs[entityType][:0]
	for _, d := range s.docs[entityType] {
		if d["_id"] != id {
			kept = append(kept, d)
		}
	}
	s.docs[entityType] = kept
}

func matches(doc bson.M, filter bson.M) bool {
	for k, v := range filter {
		if !reflect.DeepEqual(doc[k], v) {
			return false
		}
	}
	return true
}

func (s *fakeSource) filtered(entityType entity.EntityType, filter bson.M) []bson.M {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []bson.M
	for _, d := range s.docs[entityType] {
		if matches(d, filter) {
			out = append(out, d)
		}
	}
	return out
}

func (s *fakeSource) Count(_ context.Context, entityType entity.EntityType, filter bson.M) (int64, error) {
	return int64(len(s.filtered(entityType, filter))), nil
}

func (s *fakeSource) FindPage(_ context.Context, entityType entity.EntityType, filter bson.M, skip, limit int64) ([]entity.SourceRecord, error) {
	docs := s.filtered(entityType, filter)
	var out []entity.SourceRecord
	for i := skip; i < int64(len(docs)) && i < skip+limit; i++ {
		rec, err := entity.NewSourceRecord(entityType, docs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *fakeSource) FindByID(_ context.Context, entityType entity.EntityType, sourceID string) (entity.SourceRecord, error) {
	for _, d := range s.filtered(entityType, nil) {
		if d["_id"] == sourceID {
			return entity.NewSourceRecord(entityType, d)
		}
	}
	return entity.SourceRecord{}, entity.ErrSourceNotFound
}

type fakeRow struct {
	id      uuid.UUID
	columns map[string]interface{}
}

// fakeTarget is an in-memory relational store keyed by table and mongo_id.
// It enforces primary-key and natural-key uniqueness like the real
// constraints do.
type fakeTarget struct {
	mu        sync.Mutex
	rows      map[string]map[string]*fakeRow
	writes    int
	failFor   map[string]error
	failAll   error
	forgotten []string
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		rows:    make(map[string]map[string]*fakeRow),
		failFor: make(map[string]error),
	}
}

func (t *fakeTarget) table(name string) map[string]*fakeRow {
	if t.rows[name] == nil {
		t.rows[name] = make(map[string]*fakeRow)
	}
	return t.rows[name]
}

func columnMap(rec *entity.TargetRecord) map[string]interface{} {
	out := make(map[string]interface{}, len(rec.Columns))
	for _, c := range rec.Columns {
		out[c.Name] = c.Value
	}
	return out
}

func (t *fakeTarget) naturalOwner(rec *entity.TargetRecord) (string, bool) {
	if rec.NaturalKey == nil {
		return "", false
	}
	for mongoID, row := range t.table(rec.Table) {
		if reflect.DeepEqual(row.columns[rec.NaturalKey.Column], rec.NaturalKey.Value) {
			return mongoID, true
		}
	}
	return "", false
}

func (t *fakeTarget) Upsert(_ context.Context, rec *entity.TargetRecord) (entity.WriteResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failAll != nil {
		return entity.WriteResult{}, t.failAll
	}
	if err, ok := t.failFor[rec.SourceID]; ok {
		return entity.WriteResult{}, err
	}

	table := t.table(rec.Table)
	if _, exists := table[rec.SourceID]; !exists {
		for mongoID, row := range table {
			if row.id == rec.ID && mongoID != rec.SourceID {
				return entity.WriteResult{}, &entity.UniqueConflictError{Table: rec.Table, Constraint: rec.Table + "_pkey"}
			}
		}
	}
	if owner, ok := t.naturalOwner(rec); ok && owner != rec.SourceID {
		return entity.WriteResult{}, &entity.UniqueConflictError{Table: rec.Table, Constraint: rec.NaturalKey.Constraint}
	}

	columns := columnMap(rec)
	if existing, ok := table[rec.SourceID]; ok {
		if reflect.DeepEqual(existing.columns, columns) {
			return entity.WriteResult{Outcome: entity.OutcomeUnchanged, TargetID: existing.id}, nil
		}
		existing.columns = columns
		t.writes++
		return entity.WriteResult{Outcome: entity.OutcomeUpdated, TargetID: existing.id}, nil
	}

	table[rec.SourceID] = &fakeRow{id: rec.ID, columns: columns}
	t.writes++
	return entity.WriteResult{Outcome: entity.OutcomeCreated, TargetID: rec.ID}, nil
}

func (t *fakeTarget) UpdateByNaturalKey(_ context.Context, rec *entity.TargetRecord) (entity.WriteResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	owner, ok := t.naturalOwner(rec)
	if !ok {
		return entity.WriteResult{}, entity.ErrTargetRowMissing
	}
	table := t.table(rec.Table)
	row := table[owner]
	delete(table, owner)
	row.columns = columnMap(rec)
	table[rec.SourceID] = row
	t.writes++
	return entity.WriteResult{Outcome: entity.OutcomeMerged, TargetID: row.id, Displaced: owner}, nil
}

func (t *fakeTarget) DeleteBySourceID(_ context.Context, entityType entity.EntityType, sourceID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	table := t.table(entityType.Table())
	if _, ok := table[sourceID]; !ok {
		return false, nil
	}
	delete(table, sourceID)
	t.writes++
	return true, nil
}

func (t *fakeTarget) Count(_ context.Context, entityType entity.EntityType, filter map[string]interface{}) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var n int64
	for _, row := range t.table(entityType.Table()) {
		ok := true
		for k, v := range filter {
			if !reflect.DeepEqual(row.columns[k], v) {
				ok = false
				break
			}
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (t *fakeTarget) row(entityType entity.EntityType, sourceID string) (*fakeRow, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.table(entityType.Table())[sourceID]
	return r, ok
}

func (t *fakeTarget) writeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writes
}

// Resolve implements the ID translator by reading the rows directly
func (t *fakeTarget) Resolve(_ context.Context, entityType entity.EntityType, sourceID string) (uuid.UUID, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.table(entityType.Table())[sourceID]; ok {
		return r.id, true, nil
	}
	return uuid.Nil, false, nil
}

func (t *fakeTarget) Remember(context.Context, entity.EntityType, string, uuid.UUID) error { return nil }

func (t *fakeTarget) Forget(_ context.Context, _ entity.EntityType, sourceID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forgotten = append(t.forgotten, sourceID)
	return nil
}

type fakeStates struct {
	mu        sync.Mutex
	states    map[string]entity.SyncState
	ensureErr error
}

func newFakeStates() *fakeStates {
	return &fakeStates{states: make(map[string]entity.SyncState)}
}

func (s *fakeStates) Ensure(context.Context) error { return s.ensureErr }

func (s *fakeStates) Get(_ context.Context, schema string, entityType entity.EntityType) (*entity.SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[schema+"/"+string(entityType)]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *fakeStates) Save(_ context.Context, state *entity.SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.Schema+"/"+string(state.EntityType)] = *state
	return nil
}

func (s *fakeStates) List(_ context.Context, schema string) ([]entity.SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.SyncState
	for _, st := range s.states {
		if st.Schema == schema {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityType < out[j].EntityType })
	return out, nil
}

type harness struct {
	source    *fakeSource
	target    *fakeTarget
	states    *fakeStates
	writer    *UpsertWriter
	processor *RecordProcessor
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		source: newFakeSource(),
		target: newFakeTarget(),
		states: newFakeStates(),
	}
	logger := testLogger(t)
	h.writer = NewUpsertWriter(h.target, h.target, logger)
	h.processor = NewRecordProcessor(service.NewRegistry(), h.target, h.writer, logger)
	return h
}

func (h *harness) driver(t *testing.T, config DriverConfig) *MigrationDriver {
	return NewMigrationDriver("public", h.source, h.target, h.states, h.processor, config, testLogger(t), nil)
}

func userDoc(id, mobile string) bson.M {
	return bson.M{"_id": id, "name": "user " + id, "mobile": mobile}
}

func walletDoc(id, owner string) bson.M {
	return bson.M{"_id": id, "ownerUserId": owner, "availablePaise": int64(100)}
}
