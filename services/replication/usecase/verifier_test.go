package usecase

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
)

func migratedHarness(t *testing.T, users int) *harness {
	t.Helper()
	h := newHarness(t)
	for i := 0; i < users; i++ {
		id := string(rune('a' + i))
		h.source.add(entity.EntityUser, userDoc(id, "900000000"+string(rune('0'+i))))
	}
	_, err := h.driver(t, DriverConfig{}).Run(context.Background(), MigrationOptions{Types: []entity.EntityType{entity.EntityUser}})
	require.NoError(t, err)
	return h
}

func TestVerifier_DetectsDriftFromUnmirroredDeletes(t *testing.T) {
	h := migratedHarness(t, 4)
	verifier := NewVerifier(h.source, h.target, h.processor, 2, testLogger(t), nil)

	report, err := verifier.Verify(context.Background(), entity.EntityUser, nil)
	require.NoError(t, err)
	assert.True(t, report.Match)

	h.source.remove(entity.EntityUser, "a")
	h.source.remove(entity.EntityUser, "b")

	report, err = verifier.Verify(context.Background(), entity.EntityUser, nil)
	require.NoError(t, err)
	assert.False(t, report.Match)
	assert.Equal(t, int64(2), report.SourceCount)
	assert.Equal(t, int64(4), report.TargetCount)

	all, err := verifier.VerifyAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, len(entity.DependencyOrder))

	var out bytes.Buffer
	PrintDrift(&out, all)
	assert.Contains(t, out.String(), "User")
	assert.Contains(t, out.String(), "false")
}

func TestVerifier_FilteredCounts(t *testing.T) {
	h := migratedHarness(t, 3)
	verifier := NewVerifier(h.source, h.target, h.processor, 0, testLogger(t), nil)

	report, err := verifier.Verify(context.Background(), entity.EntityUser, &entity.CountFilter{
		Source: bson.M{"_id": "a"},
		Target: map[string]interface{}{"mobile": "9000000000"},
	})
	require.NoError(t, err)
	assert.True(t, report.Match)
	assert.Equal(t, int64(1), report.SourceCount)
}

func TestVerifier_ReconcileFiltered(t *testing.T) {
	h := migratedHarness(t, 3)
	verifier := NewVerifier(h.source, h.target, h.processor, 2, testLogger(t), nil)

	// simulate a bulk update that was not mirrored
	h.source.mu.Lock()
	for _, d := range h.source.docs[entity.EntityUser] {
		d["status"] = "blocked"
	}
	h.source.mu.Unlock()

	result, err := verifier.ReconcileFiltered(context.Background(), entity.EntityUser, bson.M{"status": "blocked"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Processed)
	assert.Equal(t, int64(3), result.Written)

	blocked, err := h.target.Count(context.Background(), entity.EntityUser, map[string]interface{}{"status": "blocked"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), blocked)
}

func TestVerifier_ReconcileDeleted(t *testing.T) {
	h := migratedHarness(t, 3)
	verifier := NewVerifier(h.source, h.target, h.processor, 0, testLogger(t), nil)
	h.source.remove(entity.EntityUser, "a")

	result, err := verifier.ReconcileDeleted(context.Background(), entity.EntityUser, []string{"a", "b", "zz"})
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.Processed)
	assert.Equal(t, int64(1), result.Deleted)
	assert.Zero(t, result.Failed)

	report, err := verifier.Verify(context.Background(), entity.EntityUser, nil)
	require.NoError(t, err)
	assert.True(t, report.Match)
}

func TestFailureCounter(t *testing.T) {
	c := NewFailureCounter()
	c.Increment("User:save")
	c.Increment("User:save")
	c.Increment("Order:delete")

	assert.Equal(t, int64(2), c.Get("User:save"))
	assert.Equal(t, int64(3), c.Total())

	snapshot := c.Snapshot()
	c.Reset()
	assert.Equal(t, int64(2), snapshot["User:save"])
	assert.Zero(t, c.Total())
}
