package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/liamcoop/campaignrules/feed"
	"github.com/liamcoop/campaignrules/history"
	"github.com/liamcoop/campaignrules/internal/logger"
	"github.com/liamcoop/campaignrules/internal/metrics"
	"github.com/liamcoop/campaignrules/notify"
	"github.com/liamcoop/campaignrules/rules"
)

var (
	ErrClosed          = errors.New("pipeline is closed")
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

// EngineSource resolves the rule engine that owns an account's snapshots.
type EngineSource interface {
	GetEngine(accountID string) (*rules.Engine, error)
}

// Config holds pipeline dependencies and sizing
type Config struct {
	Engines     EngineSource
	Recorder    history.Recorder
	Broadcaster notify.Broadcaster
	Notifier    notify.Notifier
	Workers     int
	QueueSize   int
}

// Pipeline evaluates incoming snapshots on a fixed pool of workers.
type Pipeline struct {
	engines     EngineSource
	recorder    history.Recorder
	broadcaster notify.Broadcaster
	notifier    notify.Notifier
	workers     int

	queue  chan *rules.Snapshot
	closed bool
	mu     sync.RWMutex
	wg     sync.WaitGroup
	now    func() time.Time

	processed atomic.Uint64
	failed    atomic.Uint64
	actions   atomic.Uint64
}

// New creates a pipeline. Recorder, Broadcaster and Notifier are optional.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Engines == nil {
		return nil, errors.New("engine source is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}

	return &Pipeline{
		engines:     cfg.Engines,
		recorder:    cfg.Recorder,
		broadcaster: cfg.Broadcaster,
		notifier:    cfg.Notifier,
		workers:     cfg.Workers,
		queue:       make(chan *rules.Snapshot, cfg.QueueSize),
		now:         time.Now,
	}, nil
}

// Start launches the workers
func (p *Pipeline) Start() {
	logger.Info("Starting evaluation pipeline", "workers", p.workers, "queue_size", cap(p.queue))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit validates s and queues it for evaluation. It blocks while the queue
// is full. Snapshots for unknown accounts are rejected before queueing.
func (p *Pipeline) Submit(ctx context.Context, s *rules.Snapshot) error {
	if s == nil {
		return fmt.Errorf("%w: snapshot is required", ErrInvalidSnapshot)
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if _, err := p.engines.GetEngine(s.AccountID); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case p.queue <- s:
		metrics.PipelineQueueSize.Set(float64(len(p.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Process records s, evaluates the owning account's active rules and
// dispatches a notification for every rule that fired.
func (p *Pipeline) Process(ctx context.Context, s *rules.Snapshot) ([]*rules.EvaluationResult, error) {
	engine, err := p.engines.GetEngine(s.AccountID)
	if err != nil {
		return nil, err
	}

	if p.recorder != nil {
		if err := p.recorder.RecordSnapshot(ctx, s); err != nil {
			// evaluation still runs; history is best effort
			logger.Error("Failed to record snapshot",
				"account_id", s.AccountID,
				"campaign_id", s.CampaignID,
				"error", err)
		}
	}

	if p.broadcaster != nil {
		if err := p.broadcaster.Broadcast(feed.MessageCampaignUpdate, s); err != nil && !errors.Is(err, feed.ErrHubClosed) {
			logger.Warn("Failed to broadcast snapshot", "error", err)
		}
	}

	results, err := engine.EvaluateAll(s)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate rules for account %s: %w", s.AccountID, err)
	}

	at := p.now().UTC()
	for _, res := range rules.Matched(results) {
		metrics.ActionsTriggeredTotal.WithLabelValues(string(res.Action)).Inc()
		p.actions.Add(1)

		if p.notifier == nil {
			continue
		}
		evt := history.NewActionEvent(s, res, at)
		if err := p.notifier.Notify(ctx, evt); err != nil {
			logger.Error("Failed to deliver action notification",
				"account_id", s.AccountID,
				"rule_id", res.RuleID,
				"error", err)
		}
	}

	return results, nil
}

func (p *Pipeline) worker(id int) {
	defer p.wg.Done()
	logger.Debug("Pipeline worker started", "worker_id", id)
	defer logger.Debug("Pipeline worker stopped", "worker_id", id)

	for s := range p.queue {
		metrics.PipelineQueueSize.Set(float64(len(p.queue)))
		p.handle(id, s)
	}
}

func (p *Pipeline) handle(id int, s *rules.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			metrics.PanicsRecovered.WithLabelValues("pipeline").Inc()
			logger.Error("Pipeline worker panic recovered",
				"worker_id", id,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	if _, err := p.Process(context.Background(), s); err != nil {
		p.failed.Add(1)
		logger.Error("Failed to process snapshot",
			"account_id", s.AccountID,
			"campaign_id", s.CampaignID,
			"error", err)
		return
	}
	p.processed.Add(1)
}

// Stop rejects new snapshots and waits for queued ones to drain, or for ctx
// to expire.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Evaluation pipeline stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Evaluation pipeline shutdown timed out", "queued", len(p.queue))
		return ctx.Err()
	}
}

// Stats holds pipeline counters
type Stats struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Actions   uint64 `json:"actions"`
	Queued    int    `json:"queued"`
	Capacity  int    `json:"capacity"`
}

// Stats returns pipeline statistics
func (p *Pipeline) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Actions:   p.actions.Load(),
		Queued:    len(p.queue),
		Capacity:  cap(p.queue),
	}
}
