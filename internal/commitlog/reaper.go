package commitlog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// reapQueryTimeout bounds a single sweep's database round trip.
const reapQueryTimeout = 30 * time.Second

// Reaper is a background goroutine that periodically rolls back commit
// rows stuck in status='pending' past a configurable TTL, generalizing
// LineageStore's idempotency-key cleanup goroutine (runCleanup /
// cleanupExpiredIdempotencyKeys) to the commit log's own stale-row
// problem: an ingestion attempt that crashed between createPendingCommit
// and promoteCommit/rollbackCommit would otherwise leave an orphaned
// pending row forever.
type Reaper struct {
	store     *Store
	interval  time.Duration
	ttl       time.Duration
	logger    *slog.Logger
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewReaper constructs a Reaper. interval is how often the sweep runs;
// ttl is how long a pending row may live before it is considered
// abandoned and rolled back.
func NewReaper(store *Store, interval, ttl time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{
		store:    store,
		interval: interval,
		ttl:      ttl,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop in its own goroutine until Stop is called.
func (r *Reaper) Start() {
	go r.run()
}

// Stop signals the sweep loop to exit and waits (briefly) for it to do so.
// Safe to call multiple times.
func (r *Reaper) Stop() {
	r.closeOnce.Do(func() {
		close(r.stop)

		select {
		case <-r.done:
		case <-time.After(5 * time.Second):
			r.logger.Warn("commit log reaper did not stop within timeout")
		}
	})
}

func (r *Reaper) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), reapQueryTimeout)
			r.sweep(ctx)
			cancel()
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.ttl)

	rows, err := r.store.db.QueryContext(ctx,
		`SELECT dataset_id, version FROM dataset_commits WHERE status = $1 AND ingested_at < $2`,
		StatusPending, cutoff,
	)
	if err != nil {
		r.logger.Error("commit log reaper: sweep query failed", slog.String("error", err.Error()))

		return
	}
	defer rows.Close()

	type target struct {
		datasetID string
		version   int
	}

	var targets []target

	for rows.Next() {
		var t target
		if err := rows.Scan(&t.datasetID, &t.version); err != nil {
			r.logger.Error("commit log reaper: scan failed", slog.String("error", err.Error()))

			continue
		}

		targets = append(targets, t)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("commit log reaper: row iteration failed", slog.String("error", err.Error()))

		return
	}

	for _, t := range targets {
		reason := fmt.Sprintf("abandoned: pending longer than %s", r.ttl)
		if err := r.store.RollbackCommit(ctx, t.datasetID, t.version, reason); err != nil {
			r.logger.Error("commit log reaper: rollback failed",
				slog.String("dataset_id", t.datasetID), slog.Int("version", t.version),
				slog.String("error", err.Error()))

			continue
		}

		r.logger.Info("commit log reaper: rolled back abandoned pending commit",
			slog.String("dataset_id", t.datasetID), slog.Int("version", t.version))
	}
}
