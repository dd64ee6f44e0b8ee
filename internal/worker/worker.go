// Package worker assesses procurements requested over the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/procuresight/internal/domain"
)

// Assessor is the part of the assessment engine the worker drives.
type Assessor interface {
	Assess(ctx context.Context, recordID string) (*domain.Assessment, error)
	Version() string
}

// Worker consumes TopicAssessmentRequested, assesses the record and publishes
// the result to TopicAssessmentCompleted. Results with a high severity finding
// are also published to TopicAssessmentFlagged.
type Worker struct {
	bus      domain.EventBus
	assessor Assessor
	cache    domain.Cache
	cacheTTL time.Duration
	logger   *slog.Logger

	jobs          chan job
	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
	flagged   atomic.Int64
}

type job struct {
	ctx context.Context
	msg *domain.Message
}

// Config holds worker configuration.
type Config struct {
	// WorkerCount is the number of concurrent assessments.
	WorkerCount int

	// QueueSize bounds requests accepted but not yet started.
	QueueSize int

	// CacheTTL is how long completed assessments stay cached.
	CacheTTL time.Duration
}

// NewWorker creates a new async worker. cache may be nil.
func NewWorker(bus domain.EventBus, assessor Assessor, cache domain.Cache, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		assessor: assessor,
		cache:    cache,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to assessment requests and launches the worker pool.
func (w *Worker) Start(cfg Config) error {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.WorkerCount * 16
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	w.cacheTTL = cfg.CacheTTL
	w.jobs = make(chan job, cfg.QueueSize)

	for i := 0; i < cfg.WorkerCount; i++ {
		w.wg.Add(1)
		go w.loop()
	}

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicAssessmentRequested, w.enqueue)
	if err != nil {
		w.cancel()
		w.wg.Wait()
		return fmt.Errorf("subscribe %s: %w", domain.TopicAssessmentRequested, err)
	}
	w.subscriptions = append(w.subscriptions, sub)

	w.logger.Info("workers started",
		"worker_count", cfg.WorkerCount,
		"queue_size", cfg.QueueSize,
		"topic", domain.TopicAssessmentRequested,
	)
	return nil
}

// enqueue blocks until a slot frees up so a slow pool pushes back on the bus.
func (w *Worker) enqueue(ctx context.Context, msg *domain.Message) error {
	select {
	case w.jobs <- job{ctx: ctx, msg: msg}:
		return nil
	case <-w.ctx.Done():
		return w.ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case j := <-w.jobs:
			if err := w.process(j.ctx, j.msg); err != nil {
				w.failed.Add(1)
			}
		}
	}
}

// process assesses one request. Failures are logged and never re-queued.
func (w *Worker) process(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req domain.AssessmentRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		w.logger.Error("failed to parse assessment request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if req.RecordID == "" {
		w.logger.Error("assessment request without record id", "message_id", msg.ID)
		return errors.New("missing record id")
	}

	as, err := w.assessor.Assess(ctx, req.RecordID)
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, domain.ErrNoData) {
			level = slog.LevelWarn
		}
		w.logger.Log(ctx, level, "assessment failed",
			"record_id", req.RecordID,
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if req.TraceID != "" {
		as.Metadata.TraceID = req.TraceID
	}

	if w.cache != nil {
		if err := w.cache.SetAssessment(ctx, as.Metadata.SnapshotVersion, as, w.cacheTTL); err != nil {
			w.logger.Warn("failed to cache assessment",
				"record_id", req.RecordID,
				"error", err,
			)
		}
	}

	payload, err := json.Marshal(as)
	if err != nil {
		return err
	}

	if err := w.bus.Publish(ctx, domain.TopicAssessmentCompleted, payload); err != nil {
		w.logger.Error("failed to publish assessment",
			"record_id", req.RecordID,
			"error", err,
		)
	}

	if as.HasHighSeverity() {
		w.flagged.Add(1)
		if err := w.bus.Publish(ctx, domain.TopicAssessmentFlagged, payload); err != nil {
			w.logger.Error("failed to publish flag",
				"record_id", req.RecordID,
				"error", err,
			)
		}
	}

	w.processed.Add(1)
	w.logger.Info("assessment processed",
		"record_id", req.RecordID,
		"trace_id", as.Metadata.TraceID,
		"risk_label", as.RiskLabel,
		"findings", len(as.Findings),
		"component_errors", len(as.ComponentErrors),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.cancel()
	w.wg.Wait()

	w.logger.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
	Flagged           int64    `json:"flagged"`
	Queued            int      `json:"queued"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
		Flagged:           w.flagged.Load(),
		Queued:            len(w.jobs),
	}
}
