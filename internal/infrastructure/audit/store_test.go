package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/formbridge/backend/internal/domain/submission"
	"github.com/formbridge/backend/internal/infrastructure/config"
)

func newTestAuditStore(t *testing.T, retention time.Duration) *Store {
	t.Helper()
	store, err := NewStore(config.AuditConfig{
		Driver:    "sqlite",
		DSN:       filepath.Join(t.TempDir(), "audit.db"),
		Retention: retention,
	}, gormlogger.Discard, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreRecordRequest(t *testing.T) {
	store := newTestAuditStore(t, 24*time.Hour)
	ctx := context.Background()

	require.NoError(t, store.RecordRequest(ctx, APILog{
		RequestID: "req-1",
		Method:    "POST",
		Path:      "/api/v1/forms/contact-form/submit",
		Status:    200,
		LatencyMs: 42,
		ClientIP:  "10.0.0.1",
		CreatedAt: time.Now(),
	}))

	var count int64
	require.NoError(t, store.db.Model(&APILog{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestStoreRecordOutcome(t *testing.T) {
	store := newTestAuditStore(t, 24*time.Hour)

	store.RecordOutcome(context.Background(), submission.Outcome{
		ContextID:   "contact-form:abc",
		FormID:      "contact-form",
		TrackingID:  "track-1",
		Success:     true,
		IsDuplicate: false,
		DurationMs:  120,
		SubmittedAt: time.Now(),
	})

	var entry SubmissionLog
	require.NoError(t, store.db.First(&entry).Error)
	assert.Equal(t, "contact-form:abc", entry.ContextID)
	assert.True(t, entry.Success)
	assert.NotEmpty(t, entry.Detail, "full outcome serialized alongside the columns")
}

func TestStoreSweepRespectsRetention(t *testing.T) {
	store := newTestAuditStore(t, time.Hour)
	ctx := context.Background()

	old := time.Now().Add(-2 * time.Hour)
	recent := time.Now().Add(-10 * time.Minute)

	require.NoError(t, store.RecordRequest(ctx, APILog{Path: "/old", CreatedAt: old}))
	require.NoError(t, store.RecordRequest(ctx, APILog{Path: "/recent", CreatedAt: recent}))
	store.RecordOutcome(ctx, submission.Outcome{ContextID: "old", SubmittedAt: old})
	store.RecordOutcome(ctx, submission.Outcome{ContextID: "recent", SubmittedAt: recent})

	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	var apiCount, outcomeCount int64
	require.NoError(t, store.db.Model(&APILog{}).Count(&apiCount).Error)
	require.NoError(t, store.db.Model(&SubmissionLog{}).Count(&outcomeCount).Error)
	assert.EqualValues(t, 1, apiCount)
	assert.EqualValues(t, 1, outcomeCount)
}
