package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/liamcoop/campaignrules/history"
	"github.com/liamcoop/campaignrules/internal/logger"
	"github.com/liamcoop/campaignrules/internal/metrics"
)

// StatsFunc returns key/value pairs logged by the periodic stats job.
type StatsFunc func() []any

// Scheduler runs the housekeeping cron jobs.
type Scheduler struct {
	Cron      *cron.Cron
	Recorder  history.Recorder
	Retention time.Duration
	Stats     StatsFunc
	Ctx       context.Context

	now func() time.Time
}

// NewScheduler creates a new Scheduler. Snapshots older than retention are pruned.
func NewScheduler(ctx context.Context, rec history.Recorder, retention time.Duration, stats StatsFunc) *Scheduler {
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Recorder:  rec,
		Retention: retention,
		Stats:     stats,
		Ctx:       ctx,
		now:       time.Now,
	}
}

// RegisterAll registers the retention and stats jobs. An empty spec skips that job.
func (s *Scheduler) RegisterAll(retentionCron, statsCron string) error {
	if retentionCron != "" {
		if s.Retention <= 0 {
			return fmt.Errorf("register retention task: retention must be positive, got %s", s.Retention)
		}
		if _, err := s.Cron.AddFunc(retentionCron, s.retentionTask); err != nil {
			return fmt.Errorf("register retention task: %w", err)
		}
	}
	if statsCron != "" && s.Stats != nil {
		if _, err := s.Cron.AddFunc(statsCron, s.statsTask); err != nil {
			return fmt.Errorf("register stats task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	logger.Info("Scheduler started", "jobs", len(s.Cron.Entries()))
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	logger.Info("Scheduler stopped")
}

// PruneNow runs the retention job immediately and returns the number of
// snapshots removed.
func (s *Scheduler) PruneNow() (int64, error) {
	cutoff := s.now().Add(-s.Retention)
	n, err := s.Recorder.PruneSnapshots(s.Ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.SnapshotsPrunedTotal.Add(float64(n))
	return n, nil
}

func (s *Scheduler) retentionTask() {
	n, err := s.PruneNow()
	if err != nil {
		logger.Error("Snapshot retention failed", "error", err)
		return
	}
	logger.Info("Snapshot retention complete", "pruned", n, "retention", s.Retention.String())
}

func (s *Scheduler) statsTask() {
	logger.Info("stats", s.Stats()...)
}
