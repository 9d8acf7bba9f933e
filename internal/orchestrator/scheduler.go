package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dcsp-io/dcsp/internal/rules"
)

// schedulerShutdownTimeout bounds how long Close waits for an in-flight
// tick to finish, mirroring lineage_store.go's shutdownTimeout constant.
const schedulerShutdownTimeout = 5 * time.Second

// Scheduler periodically triggers Orchestrator.Ingest for every
// datasetId carrying a registered rule (spec.md §4.5's "(expansion) a
// periodic scheduler"), grounded on lineage_store.go's runCleanup
// background-goroutine idiom: a ticker plus stop/done channels guarded
// by sync.Once on shutdown.
type Scheduler struct {
	orchestrator *Orchestrator
	ruleSet      *rules.Set
	fetcherFor   func(datasetID string) Fetcher
	interval     time.Duration
	logger       *slog.Logger
	stop         chan struct{}
	done         chan struct{}
	closeOnce    sync.Once
}

// NewScheduler constructs a Scheduler. fetcherFor resolves a Fetcher for
// a given datasetId; returning nil for a datasetId skips it for that
// tick (e.g. no upstream source wired yet).
func NewScheduler(
	o *Orchestrator,
	ruleSet *rules.Set,
	fetcherFor func(datasetID string) Fetcher,
	interval time.Duration,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		orchestrator: o,
		ruleSet:      ruleSet,
		fetcherFor:   fetcherFor,
		interval:     interval,
		logger:       logger,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start launches the background ticker goroutine. Safe to call once;
// call Close to stop it.
func (s *Scheduler) Start() {
	go s.run()
}

func (s *Scheduler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick drives one ingestion attempt per registered dataset. A single
// dataset's failure (ingestion error, missing fetcher) never stops the
// sweep over the rest.
func (s *Scheduler) tick() {
	for _, datasetID := range s.ruleSet.DatasetIDs() {
		fetch := s.fetcherFor(datasetID)
		if fetch == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.interval)
		result, err := s.orchestrator.Ingest(ctx, datasetID, fetch)
		cancel()

		if err != nil {
			s.logger.Error("scheduler: ingestion attempt errored",
				slog.String("dataset_id", datasetID), slog.Any("error", err))

			continue
		}

		s.logger.Info("scheduler: ingestion attempt completed",
			slog.String("dataset_id", datasetID),
			slog.Bool("committed", result.Committed),
			slog.Int("version", result.Version),
			slog.Int("http_status", result.HTTPStatus),
			slog.Bool("is_serving_lkg", result.IsServingLKG),
		)
	}
}

// Close stops the background goroutine gracefully, waiting up to
// schedulerShutdownTimeout for an in-flight tick to finish. Safe to call
// more than once.
func (s *Scheduler) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)

		select {
		case <-s.done:
			s.logger.Info("scheduler: stopped gracefully")
		case <-time.After(schedulerShutdownTimeout):
			s.logger.Warn("scheduler: did not stop within timeout")
		}
	})

	return nil
}
