package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/formbridge/backend/internal/domain/session"
)

func newTestStore(t *testing.T, ttl time.Duration) *MemoryStore {
	t.Helper()
	store := NewMemoryStore(ttl, 0, zap.NewNop())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMemoryStoreCreate(t *testing.T) {
	store := newTestStore(t, time.Hour)
	ctx := context.Background()

	sess, err := store.Create(ctx, "contact-form", "")
	require.NoError(t, err)
	assert.True(t, session.IsUUIDv4(sess.SessionID), "generated id must be a UUIDv4")
	assert.Equal(t, "contact-form", sess.FormID)
	assert.Equal(t, "contact-form:"+sess.SessionID, sess.ContextID)
	assert.Equal(t, sess.CreatedAt.Add(time.Hour), sess.ExpiresAt)

	supplied := uuid.NewString()
	sess2, err := store.Create(ctx, "contact-form", supplied)
	require.NoError(t, err)
	assert.Equal(t, supplied, sess2.SessionID)
}

func TestMemoryStoreExpiryIsFixedNotSliding(t *testing.T) {
	store := newTestStore(t, time.Hour)
	ctx := context.Background()

	base := time.Now()
	store.now = func() time.Time { return base }

	sess, err := store.Create(ctx, "contact-form", "")
	require.NoError(t, err)

	// Activity 59 minutes in does not extend the deadline
	store.now = func() time.Time { return base.Add(59 * time.Minute) }
	_, err = store.Get(ctx, sess.SessionID)
	require.NoError(t, err)

	store.now = func() time.Time { return base.Add(61 * time.Minute) }
	_, err = store.Get(ctx, sess.SessionID)
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Zero(t, store.Size(), "expired session is removed on access")
}

func TestMemoryStoreUpdateMerges(t *testing.T) {
	store := newTestStore(t, time.Hour)
	ctx := context.Background()

	sess, err := store.Create(ctx, "contact-form", "")
	require.NoError(t, err)

	_, err = store.Update(ctx, sess.SessionID, session.Patch{
		FormData: map[string]any{"email": "a@b.c", "phone": "555"},
	})
	require.NoError(t, err)

	updated, err := store.Update(ctx, sess.SessionID, session.Patch{
		FormData:     map[string]any{"phone": "5551234567"},
		AgentContext: map[string]any{"step": "qualify"},
	})
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", updated.FormData["email"], "unnamed keys survive a patch")
	assert.Equal(t, "5551234567", updated.FormData["phone"])
	assert.Equal(t, "qualify", updated.AgentContext["step"])
}

func TestMemoryStoreUpdateExpired(t *testing.T) {
	store := newTestStore(t, time.Hour)
	ctx := context.Background()

	base := time.Now()
	store.now = func() time.Time { return base }
	sess, err := store.Create(ctx, "contact-form", "")
	require.NoError(t, err)

	store.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, err = store.Update(ctx, sess.SessionID, session.Patch{FormData: map[string]any{"a": 1}})
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestMemoryStoreDelete(t *testing.T) {
	store := newTestStore(t, time.Hour)
	ctx := context.Background()

	sess, err := store.Create(ctx, "contact-form", "")
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, sess.SessionID))

	_, err = store.Get(ctx, sess.SessionID)
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, sess.SessionID), session.ErrNotFound)
}

func TestMemoryStoreSweep(t *testing.T) {
	store := newTestStore(t, time.Hour)
	ctx := context.Background()

	base := time.Now()
	store.now = func() time.Time { return base }
	for range 3 {
		_, err := store.Create(ctx, "contact-form", "")
		require.NoError(t, err)
	}
	store.now = func() time.Time { return base.Add(30 * time.Minute) }
	live, err := store.Create(ctx, "contact-form", "")
	require.NoError(t, err)

	store.now = func() time.Time { return base.Add(90 * time.Minute) }
	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Equal(t, 1, store.Size())

	_, err = store.Get(ctx, live.SessionID)
	assert.NoError(t, err)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := newTestStore(t, time.Hour)
	ctx := context.Background()

	sess, err := store.Create(ctx, "contact-form", "")
	require.NoError(t, err)

	sess.FormData["injected"] = true
	fresh, err := store.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	_, ok := fresh.FormData["injected"]
	assert.False(t, ok, "callers must not mutate stored state through the returned value")
}
