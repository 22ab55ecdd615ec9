package application

import (
	"context"
	"testing"
	"time"

	"archie-core-session-layer/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCleanupFixture() (*fakeSessionRepo, *fakeTokenCache, *CleanupScheduler) {
	repo := newFakeSessionRepo()
	cache := newFakeTokenCache()
	scheduler := NewCleanupScheduler(
		repo,
		cache,
		zerolog.Nop(),
		time.Hour,    // inactivity window
		30*time.Hour, // retention window
		time.Minute,
		time.Minute,
	)
	return repo, cache, scheduler
}

func TestInactivitySweepDeactivatesIdleSessions(t *testing.T) {
	repo, _, scheduler := newCleanupFixture()
	ctx := context.Background()

	_, err := repo.Upsert(ctx, &domain.Session{ID: "idle", Shop: "acme.example", Token: "tok-1"})
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, &domain.Session{ID: "fresh", Shop: "acme.example", Token: "tok-2"})
	require.NoError(t, err)
	repo.setLastAccessed("idle", time.Now().Add(-2*time.Hour))

	require.NoError(t, scheduler.RunInactivitySweep(ctx))

	active, err := repo.ListActive(ctx, "acme.example")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "fresh", active[0].ID)

	// Deactivated sessions stay queryable for audit.
	idle, err := repo.GetBySession(ctx, "acme.example", "idle")
	require.NoError(t, err)
	require.NotNil(t, idle)
	assert.False(t, idle.Active)

	// Idempotent: a second run changes nothing.
	require.NoError(t, scheduler.RunInactivitySweep(ctx))
	active, err = repo.ListActive(ctx, "acme.example")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestRetentionSweepDeletesAndEvictsCache(t *testing.T) {
	repo, cache, scheduler := newCleanupFixture()
	ctx := context.Background()

	_, err := repo.Upsert(ctx, &domain.Session{ID: "ancient", Shop: "acme.example", Token: "tok-1"})
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, &domain.Session{ID: "recent", Shop: "acme.example", Token: "tok-2"})
	require.NoError(t, err)
	repo.setCreatedAt("ancient", time.Now().Add(-31*time.Hour))
	// Retention applies to inactive sessions too.
	require.NoError(t, repo.SetActive(ctx, "acme.example", "ancient", false))
	require.NoError(t, cache.Put(ctx, "acme.example", "ancient", "tok-1"))

	require.NoError(t, scheduler.RunRetentionSweep(ctx))

	gone, err := repo.GetBySession(ctx, "acme.example", "ancient")
	require.NoError(t, err)
	assert.Nil(t, gone, "hard-deleted")
	assert.False(t, cache.hasSessionEntry("acme.example", "ancient"))

	kept, err := repo.GetBySession(ctx, "acme.example", "recent")
	require.NoError(t, err)
	require.NotNil(t, kept)
}

func TestSweepsRecordLastRunTimes(t *testing.T) {
	_, _, scheduler := newCleanupFixture()
	ctx := context.Background()

	inactivity, retention := scheduler.LastRuns()
	assert.True(t, inactivity.IsZero())
	assert.True(t, retention.IsZero())

	require.NoError(t, scheduler.RunInactivitySweep(ctx))
	require.NoError(t, scheduler.RunRetentionSweep(ctx))

	inactivity, retention = scheduler.LastRuns()
	assert.False(t, inactivity.IsZero())
	assert.False(t, retention.IsZero())
}

func TestSweepsSurfaceStoreFailure(t *testing.T) {
	repo, _, scheduler := newCleanupFixture()
	ctx := context.Background()

	repo.failNext(1)
	require.Error(t, scheduler.RunInactivitySweep(ctx))

	repo.failNext(1)
	require.Error(t, scheduler.RunRetentionSweep(ctx))
}
