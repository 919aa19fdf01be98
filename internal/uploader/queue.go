package uploader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"proofbox/internal/api"
	"proofbox/internal/config"
	"proofbox/internal/logging"
	"proofbox/internal/notifications"
	"proofbox/internal/processing"
	"proofbox/internal/store"
	"proofbox/internal/telemetry"
)

// RemoteClient is the slice of the evidence-service client the queue needs.
type RemoteClient interface {
	CreateUploadTarget(ctx context.Context, req api.UploadTargetRequest) (api.UploadTargetResponse, error)
	PutObject(ctx context.Context, url string, data []byte, contentType string) error
	CreatePhotoRecord(ctx context.Context, req api.PhotoRecordRequest) error
	RegisterAnalysis(ctx context.Context, req api.AnalysisRequest) error
}

// Queue owns the upload state machine and its concurrency policy.
type Queue struct {
	cfg      config.Upload
	store    *store.Store
	pipeline *processing.Pipeline
	client   RemoteClient
	notifier notifications.Service
	logger   *slog.Logger

	sem     chan struct{}
	backoff []time.Duration

	mu       sync.Mutex
	runCtx   context.Context
	inflight map[string]struct{}
	timers   map[string]*time.Timer
	paused   bool
	closed   bool

	active      bool
	activeSince time.Time
	uploaded    int
	failed      int

	wg sync.WaitGroup
}

// NewQueue constructs an upload queue. Nothing runs until Start.
func NewQueue(cfg config.Upload, st *store.Store, pipe *processing.Pipeline, client RemoteClient, notifier notifications.Service, logger *slog.Logger) *Queue {
	backoff := make([]time.Duration, 0, len(cfg.BackoffSeconds))
	for _, seconds := range cfg.BackoffSeconds {
		backoff = append(backoff, time.Duration(seconds)*time.Second)
	}
	if len(backoff) == 0 {
		backoff = []time.Duration{time.Second}
	}
	if notifier == nil {
		notifier = notifications.NewService(&config.Config{})
	}
	return &Queue{
		cfg:      cfg,
		store:    st,
		pipeline: pipe,
		client:   client,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "uploader"),
		sem:      make(chan struct{}, cfg.ConcurrentUploads),
		backoff:  backoff,
		inflight: make(map[string]struct{}),
		timers:   make(map[string]*time.Timer),
	}
}

// Start binds the queue to its run context. Backoff timers and completion
// rescans use this context, not the one a trigger happened to carry.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	q.runCtx = ctx
	q.mu.Unlock()
}

// Stop cancels pending backoff timers and waits for in-flight uploads.
// It does not interrupt a transfer already on the wire; the transfer
// timeout bounds how long Stop can block.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.closed = true
	for id, timer := range q.timers {
		timer.Stop()
		delete(q.timers, id)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Pause gates the driving loop without altering record state. In-flight
// uploads finish; no new ones start.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
	q.logger.Info("upload queue paused")
}

// Resume lifts the gate. Callers follow up with ProcessQueue.
func (q *Queue) Resume() {
	q.mu.Lock()
	resumed := q.paused
	q.paused = false
	q.mu.Unlock()
	if resumed {
		q.logger.Info("upload queue resumed")
	}
}

// Paused reports whether the queue gate is closed.
func (q *Queue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// InFlight returns how many uploads are currently running.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

// ProcessQueue fetches a batch of pending records and starts uploads up to
// the concurrency ceiling. Each completing upload rescans, so one call is
// enough to drain the backlog.
func (q *Queue) ProcessQueue(ctx context.Context) error {
	if q.Paused() {
		return nil
	}

	records, err := q.store.ListByStatus(ctx, store.StatusPending, q.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list pending records: %w", err)
	}
	if stats, err := q.store.Stats(ctx); err == nil {
		telemetry.QueueDepth.Set(float64(stats[store.StatusPending]))
	}

	for _, rec := range records {
		q.maybeStart(ctx, rec.ID)
	}
	return nil
}

// maybeStart claims a slot and launches the upload goroutine. Returns
// false when the record is already in flight, the ceiling is saturated,
// or the queue is paused or closed.
func (q *Queue) maybeStart(ctx context.Context, id string) bool {
	q.mu.Lock()
	if q.paused || q.closed {
		q.mu.Unlock()
		return false
	}
	if _, running := q.inflight[id]; running {
		q.mu.Unlock()
		return false
	}
	if _, waiting := q.timers[id]; waiting {
		// Serving its backoff delay; the timer re-enters it, and manual
		// retry cancels the timer first.
		q.mu.Unlock()
		return false
	}
	select {
	case q.sem <- struct{}{}:
	default:
		q.mu.Unlock()
		return false
	}
	q.inflight[id] = struct{}{}
	if !q.active {
		q.active = true
		q.activeSince = time.Now()
	}
	q.mu.Unlock()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		// The upload runs under the queue's own context, not the trigger's.
		// A sync request returning must not cancel a transfer it started.
		outcome := q.uploadOne(q.processCtx(ctx), id)
		q.release(id, outcome)

		// Work-conserving: a finished slot immediately pulls more work.
		if err := q.ProcessQueue(q.processCtx(ctx)); err != nil {
			q.logger.Error("queue rescan failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_rescan_failed"),
				logging.String(logging.FieldErrorHint, "check capture database access"),
			)
		}
	}()
	return true
}

func (q *Queue) processCtx(fallback context.Context) context.Context {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.runCtx != nil {
		return q.runCtx
	}
	if fallback != nil {
		return fallback
	}
	return context.Background()
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeUploaded
	outcomeRetrying
	outcomeFailed
)

func (q *Queue) release(id string, result outcome) {
	q.mu.Lock()
	delete(q.inflight, id)
	<-q.sem
	switch result {
	case outcomeUploaded:
		q.uploaded++
	case outcomeFailed:
		q.failed++
	}
	drained := len(q.inflight) == 0
	q.mu.Unlock()

	if drained {
		q.maybeNotifyDrained()
	}
}

// maybeNotifyDrained fires the queue-drained notification once the backlog
// is empty and nothing is in flight.
func (q *Queue) maybeNotifyDrained() {
	ctx := q.processCtx(nil)
	pending, err := q.store.ListByStatus(ctx, store.StatusPending, 1)
	if err != nil || len(pending) > 0 {
		return
	}

	q.mu.Lock()
	if !q.active || len(q.inflight) > 0 {
		q.mu.Unlock()
		return
	}
	uploaded, failed := q.uploaded, q.failed
	duration := time.Since(q.activeSince)
	q.active = false
	q.uploaded = 0
	q.failed = 0
	q.mu.Unlock()

	if uploaded == 0 && failed == 0 {
		return
	}
	if err := q.notifier.NotifyQueueDrained(ctx, uploaded, failed, duration); err != nil {
		q.logger.Debug("queue drained notification failed", logging.Error(err))
	}
}

// RetryUpload resets a failed record and re-enters it into the queue. A
// record in any other state is left alone.
func (q *Queue) RetryUpload(ctx context.Context, id string) error {
	q.cancelRetryTimer(id)
	count, err := q.store.RetryFailed(ctx, id)
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("record %s is not in a failed state", id)
	}
	return q.ProcessQueue(ctx)
}

// RetryAllFailed resets every failed record and re-enters them.
func (q *Queue) RetryAllFailed(ctx context.Context) (int64, error) {
	count, err := q.store.RetryFailed(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		if err := q.ProcessQueue(ctx); err != nil {
			return count, err
		}
	}
	return count, nil
}

// Stuck lists records sitting in uploading past the configured threshold.
func (q *Queue) Stuck(ctx context.Context) ([]*store.Record, error) {
	cutoff := time.Now().Add(-time.Duration(q.cfg.StuckAfterSeconds) * time.Second)
	return q.store.StuckUploading(ctx, cutoff)
}

// ForceResetStuck is the operator escape hatch for records wedged in
// uploading: back to pending with attempts cleared, then rescan.
func (q *Queue) ForceResetStuck(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-time.Duration(q.cfg.StuckAfterSeconds) * time.Second)
	count, err := q.store.ForceResetUploading(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		if err := q.ProcessQueue(ctx); err != nil {
			return count, err
		}
	}
	return count, nil
}

func (q *Queue) scheduleRetry(id string, attempts int) {
	delay := q.backoffDelay(attempts)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if existing, ok := q.timers[id]; ok {
		existing.Stop()
	}
	q.timers[id] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, id)
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return
		}
		// A stale timer is harmless: if the record moved on out-of-band,
		// the pending -> uploading guard rejects the claim.
		if err := q.ProcessQueue(q.processCtx(nil)); err != nil {
			q.logger.Error("retry rescan failed", logging.Error(err))
		}
	})
	q.mu.Unlock()

	q.logger.Info("upload retry scheduled",
		logging.String(logging.FieldRecordID, id),
		logging.Int("attempts", attempts),
		logging.Duration("delay", delay),
	)
}

func (q *Queue) cancelRetryTimer(id string) {
	q.mu.Lock()
	if timer, ok := q.timers[id]; ok {
		timer.Stop()
		delete(q.timers, id)
	}
	q.mu.Unlock()
}

// backoffDelay indexes the schedule by attempt number, clamped to the last
// entry beyond the end.
func (q *Queue) backoffDelay(attempts int) time.Duration {
	index := attempts - 1
	if index < 0 {
		index = 0
	}
	if index >= len(q.backoff) {
		index = len(q.backoff) - 1
	}
	return q.backoff[index]
}

// IsTransitionConflict reports whether an error came from the transition
// guard rather than from storage trouble.
func IsTransitionConflict(err error) bool {
	return errors.Is(err, store.ErrInvalidTransition)
}
