package entity

import "go.mongodb.org/mongo-driver/bson"

// Operation names a source mutation kind
type Operation string

const (
	OperationSave       Operation = "save"
	OperationInsertMany Operation = "insertMany"
	OperationDelete     Operation = "delete"
	OperationBulkUpdate Operation = "bulkUpdate"
	OperationBulkDelete Operation = "bulkDelete"
)

// ChangeEvent is a "record changed" signal from the source store
type ChangeEvent struct {
	EntityType EntityType
	Operation  Operation
	SourceID   string
	Records    []SourceRecord
	// Filter carries the selector of a bulk mutation.
	Filter bson.M
}

// FailureKey builds the failure counter key for an entity type and operation
func FailureKey(entityType EntityType, op Operation) string {
	return string(entityType) + ":" + string(op)
}
