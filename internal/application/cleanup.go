package application

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"archie-core-session-layer/internal/metrics"
	"archie-core-session-layer/internal/ports"

	"github.com/rs/zerolog"
)

// CleanupScheduler runs the two periodic session sweeps:
//
//   - inactivity sweep: sessions idle past the inactivity window are marked
//     inactive
//   - retention sweep: sessions older than the retention window are
//     hard-deleted together with their cache entries
//
// Both sweeps are idempotent, operate select-then-mutate on snapshots, and
// never hold a lock that blocks resolver reads. Each sweep is guarded
// against overlapping with itself; the two sweeps are independent.
type CleanupScheduler struct {
	sessions ports.SessionRepository
	cache    ports.TokenCache
	logger   zerolog.Logger

	inactivityWindow   time.Duration
	retentionWindow    time.Duration
	inactivityInterval time.Duration
	retentionInterval  time.Duration

	inactivityRunning atomic.Bool
	retentionRunning  atomic.Bool

	mu                  sync.RWMutex
	lastInactivitySweep time.Time
	lastRetentionSweep  time.Time
}

// NewCleanupScheduler creates a new cleanup scheduler
func NewCleanupScheduler(
	sessions ports.SessionRepository,
	cache ports.TokenCache,
	logger zerolog.Logger,
	inactivityWindow time.Duration,
	retentionWindow time.Duration,
	inactivityInterval time.Duration,
	retentionInterval time.Duration,
) *CleanupScheduler {
	return &CleanupScheduler{
		sessions:           sessions,
		cache:              cache,
		logger:             logger,
		inactivityWindow:   inactivityWindow,
		retentionWindow:    retentionWindow,
		inactivityInterval: inactivityInterval,
		retentionInterval:  retentionInterval,
	}
}

// Start launches both sweep loops. They stop when ctx is cancelled. Start
// returns immediately.
func (c *CleanupScheduler) Start(ctx context.Context) {
	go c.loop(ctx, "inactivity", c.inactivityInterval, c.RunInactivitySweep)
	go c.loop(ctx, "retention", c.retentionInterval, c.RunRetentionSweep)
}

func (c *CleanupScheduler) loop(ctx context.Context, name string, interval time.Duration, sweep func(context.Context) error) {
	// Jitter the first run so multiple instances do not sweep in lockstep.
	var jitter time.Duration
	if quarter := int64(interval / 4); quarter > 0 {
		jitter = time.Duration(rand.Int63n(quarter))
	}
	select {
	case <-ctx.Done():
		return
	case <-time.After(jitter):
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := sweep(ctx); err != nil {
			c.logger.Error().Err(err).Str("sweep", name).Msg("Cleanup sweep failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunInactivitySweep marks sessions idle past the inactivity window as
// inactive. Safe to call concurrently; overlapping runs are skipped.
func (c *CleanupScheduler) RunInactivitySweep(ctx context.Context) error {
	if !c.inactivityRunning.CompareAndSwap(false, true) {
		return nil
	}
	defer c.inactivityRunning.Store(false)

	cutoff := time.Now().Add(-c.inactivityWindow)
	affected, err := c.sessions.MarkInactiveBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("inactivity sweep failed: %w", err)
	}

	metrics.SweepRuns.WithLabelValues("inactivity").Inc()
	metrics.SweepAffected.WithLabelValues("inactivity").Add(float64(affected))

	c.mu.Lock()
	c.lastInactivitySweep = time.Now()
	c.mu.Unlock()

	if affected > 0 {
		c.logger.Info().Int64("sessions", affected).Time("cutoff", cutoff).Msg("Inactivity sweep deactivated sessions")
	}
	return nil
}

// RunRetentionSweep hard-deletes sessions older than the retention window,
// active or not, and evicts their cache entries. Safe to call concurrently;
// overlapping runs are skipped.
func (c *CleanupScheduler) RunRetentionSweep(ctx context.Context) error {
	if !c.retentionRunning.CompareAndSwap(false, true) {
		return nil
	}
	defer c.retentionRunning.Store(false)

	cutoff := time.Now().Add(-c.retentionWindow)
	deleted, err := c.sessions.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("retention sweep failed: %w", err)
	}

	for _, sess := range deleted {
		if err := c.cache.DeleteSession(ctx, sess.Shop, sess.ID); err != nil {
			c.logger.Warn().Err(err).Str("shop", sess.Shop).Str("session_id", sess.ID).Msg("Failed to evict cache entry for deleted session")
		}
	}

	metrics.SweepRuns.WithLabelValues("retention").Inc()
	metrics.SweepAffected.WithLabelValues("retention").Add(float64(len(deleted)))

	c.mu.Lock()
	c.lastRetentionSweep = time.Now()
	c.mu.Unlock()

	if len(deleted) > 0 {
		c.logger.Info().Int("sessions", len(deleted)).Time("cutoff", cutoff).Msg("Retention sweep deleted sessions")
	}
	return nil
}

// LastRuns reports when each sweep last completed, for the health endpoint.
// Zero times mean the sweep has not run yet.
func (c *CleanupScheduler) LastRuns() (inactivity, retention time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastInactivitySweep, c.lastRetentionSweep
}
