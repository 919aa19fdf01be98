package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"proofbox/internal/config"
	"proofbox/internal/logging"
	"proofbox/internal/store"
)

// Reason identifies what prompted a sync attempt. Each reason carries its
// own throttle window so chatty sources cannot monopolize the queue.
type Reason string

const (
	ReasonStartup         Reason = "startup"
	ReasonManual          Reason = "manual"
	ReasonNetworkRestored Reason = "network_restored"
	ReasonForegrounded    Reason = "foregrounded"
	ReasonReviewOpened    Reason = "review_opened"
	ReasonCaptured        Reason = "captured"
)

// Probe answers whether the remote service is reachable right now.
type Probe interface {
	Online(ctx context.Context) bool
}

// Runner drains the upload queue. Satisfied by uploader.Queue.
type Runner interface {
	Resume()
	ProcessQueue(ctx context.Context) error
}

// Orchestrator decides when the upload queue runs. It throttles per
// trigger reason, debounces capture bursts, and defers while offline.
type Orchestrator struct {
	cfg    config.Sync
	store  *store.Store
	runner Runner
	probe  Probe
	logger *slog.Logger

	mu        sync.Mutex
	runCtx    context.Context
	lastFired map[Reason]time.Time
	debounce  *time.Timer
	closed    bool

	// now is swappable for tests.
	now func() time.Time
}

// New constructs an orchestrator. Nothing fires until Start.
func New(cfg config.Sync, st *store.Store, runner Runner, probe Probe, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		store:     st,
		runner:    runner,
		probe:     probe,
		logger:    logging.NewComponentLogger(logger, "orchestrator"),
		lastFired: make(map[Reason]time.Time),
		now:       time.Now,
	}
}

// Start recovers records orphaned in uploading by a previous crash, then
// fires the startup sync. Orphan recovery runs before any upload can
// start so a recovered record cannot race a fresh claim.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	o.runCtx = ctx
	o.mu.Unlock()

	recovered, err := o.store.ResetOrphanedUploading(ctx)
	if err != nil {
		return err
	}
	if recovered > 0 {
		o.logger.Info("recovered orphaned uploads",
			logging.Int64("count", recovered),
			logging.String(logging.FieldEventType, "orphan_recovery"),
		)
	}

	return o.Trigger(ctx, ReasonStartup)
}

// Stop cancels the pending capture debounce timer.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.closed = true
	if o.debounce != nil {
		o.debounce.Stop()
		o.debounce = nil
	}
	o.mu.Unlock()
}

// Trigger requests a sync for the given reason. Throttled or offline
// triggers return nil; they are deferrals, not failures.
func (o *Orchestrator) Trigger(ctx context.Context, reason Reason) error {
	if reason == ReasonCaptured {
		o.debounceCapture()
		return nil
	}

	if !o.admit(reason) {
		o.logger.Debug("sync trigger throttled", logging.String(logging.FieldReason, string(reason)))
		return nil
	}

	return o.fire(ctx, reason)
}

// admit checks the throttle window for a reason and, when admitted,
// records the firing time. Manual and startup triggers always pass.
func (o *Orchestrator) admit(reason Reason) bool {
	window := o.throttleWindow(reason)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	now := o.now()
	if window > 0 {
		if last, ok := o.lastFired[reason]; ok && now.Sub(last) < window {
			return false
		}
	}
	o.lastFired[reason] = now
	return true
}

func (o *Orchestrator) throttleWindow(reason Reason) time.Duration {
	switch reason {
	case ReasonNetworkRestored:
		return time.Duration(o.cfg.NetworkRestoredThrottle) * time.Second
	case ReasonForegrounded:
		return time.Duration(o.cfg.ForegroundThrottle) * time.Second
	case ReasonReviewOpened:
		return time.Duration(o.cfg.ReviewThrottle) * time.Second
	default:
		return 0
	}
}

// debounceCapture restarts the capture quiet timer. A burst of captures
// produces exactly one sync, after the burst has settled.
func (o *Orchestrator) debounceCapture() {
	delay := time.Duration(o.cfg.CaptureDebounce) * time.Second
	if delay <= 0 {
		_ = o.fire(o.triggerCtx(nil), ReasonCaptured)
		return
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	if o.debounce != nil {
		o.debounce.Stop()
	}
	o.debounce = time.AfterFunc(delay, func() {
		o.mu.Lock()
		o.debounce = nil
		closed := o.closed
		o.mu.Unlock()
		if closed {
			return
		}
		if err := o.fire(o.triggerCtx(nil), ReasonCaptured); err != nil {
			o.logger.Error("debounced sync failed",
				logging.Error(err),
				logging.String(logging.FieldReason, string(ReasonCaptured)),
			)
		}
	})
	o.mu.Unlock()
}

// fire probes connectivity and runs the queue. While offline the sync is
// deferred; the network watcher will trigger again once the link returns.
// An admitted online trigger also lifts a pause, so a queue paused during
// an outage restarts without an explicit resume call.
func (o *Orchestrator) fire(ctx context.Context, reason Reason) error {
	if o.probe != nil && !o.probe.Online(ctx) {
		o.logger.Info("sync deferred while offline",
			logging.String(logging.FieldReason, string(reason)),
			logging.String(logging.FieldEventType, "sync_deferred"),
		)
		return nil
	}

	o.logger.Info("sync started",
		logging.String(logging.FieldReason, string(reason)),
		logging.String(logging.FieldEventType, "sync_started"),
	)
	o.runner.Resume()
	return o.runner.ProcessQueue(ctx)
}

func (o *Orchestrator) triggerCtx(fallback context.Context) context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runCtx != nil {
		return o.runCtx
	}
	if fallback != nil {
		return fallback
	}
	return context.Background()
}
