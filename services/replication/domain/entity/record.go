package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SourceRecord is a document from the legacy store
type SourceRecord struct {
	EntityType EntityType
	ID         string
	Fields     bson.M
	// IDTime is the creation time embedded in an ObjectID, zero for other id kinds.
	IDTime time.Time
}

// NewSourceRecord extracts the source id from doc
func NewSourceRecord(entityType EntityType, doc bson.M) (SourceRecord, error) {
	rec := SourceRecord{EntityType: entityType, Fields: doc}

	switch id := doc["_id"].(type) {
	case primitive.ObjectID:
		rec.ID = id.Hex()
		rec.IDTime = id.Timestamp().UTC()
	case string:
		rec.ID = id
	case int32:
		rec.ID = fmt.Sprintf("%d", id)
	case int64:
		rec.ID = fmt.Sprintf("%d", id)
	}

	if rec.ID == "" {
		return rec, ErrMissingSourceID
	}
	return rec, nil
}

// Column is one target column value
type Column struct {
	Name  string
	Value interface{}
}

// NaturalKey identifies a real-world unique value used as conflict fallback
type NaturalKey struct {
	Column     string
	Value      interface{}
	Constraint string
}

// ChildSet is a one-to-many collection replaced wholesale with its parent
type ChildSet struct {
	Table        string
	ParentColumn string
	Columns      []string
	Rows         [][]interface{}
}

// TargetRecord is a fully transformed row ready for the relational store
type TargetRecord struct {
	EntityType EntityType
	Table      string
	SourceID   string
	// ID is the key used when the row is first inserted.
	ID         uuid.UUID
	Columns    []Column
	NaturalKey *NaturalKey
	Children   []ChildSet
	// Warnings collects non-fatal transform notes such as nulled optional references.
	Warnings []string
}

// Rekeyed returns a copy of r with a replacement insert key derived from
// ID. It is used when ID already belongs to a row that a natural-key merge
// moved onto another source id.
func (r *TargetRecord) Rekeyed() *TargetRecord {
	out := *r
	out.ID = uuid.NewSHA1(r.ID, []byte(r.SourceID))
	return &out
}

// Value returns the value of a named column
func (r *TargetRecord) Value(name string) (interface{}, bool) {
	for _, c := range r.Columns {
		if c.Name == name {
			return c.Value, true
		}
	}
	return nil, false
}

// WriteOutcome describes what a write did to the target
type WriteOutcome string

const (
	OutcomeCreated   WriteOutcome = "created"
	OutcomeUpdated   WriteOutcome = "updated"
	OutcomeUnchanged WriteOutcome = "unchanged"
	OutcomeMerged    WriteOutcome = "merged"
	OutcomeDeleted   WriteOutcome = "deleted"
	OutcomeSkipped   WriteOutcome = "skipped"
)

// WriteResult is returned by the upsert writer
type WriteResult struct {
	Outcome  WriteOutcome
	TargetID uuid.UUID
	// Displaced is the source id a natural-key merge detached from the row.
	Displaced string
}
