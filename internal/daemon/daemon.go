package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"proofbox/internal/config"
	"proofbox/internal/logging"
	"proofbox/internal/notifications"
	"proofbox/internal/orchestrator"
	"proofbox/internal/store"
	"proofbox/internal/telemetry"
	"proofbox/internal/uploader"
)

// Daemon coordinates the background services and enforces single-instance
// execution via a lock file in the data directory.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	queue    *uploader.Queue
	orch     *orchestrator.Orchestrator
	netwatch *orchestrator.NetWatcher
	notifier notifications.Service
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running  bool
	Paused   bool
	InFlight int
	Queue    store.HealthSummary
	NetWatch bool
	DBPath   string
	LockPath string
}

// New constructs a daemon with initialized dependencies.
func New(
	cfg *config.Config,
	st *store.Store,
	queue *uploader.Queue,
	orch *orchestrator.Orchestrator,
	netwatch *orchestrator.NetWatcher,
	notifier notifications.Service,
	logger *slog.Logger,
) (*Daemon, error) {
	if cfg == nil || st == nil || queue == nil || orch == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, queue, orchestrator, and logger")
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "proofboxd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		queue:    queue,
		orch:     orch,
		netwatch: netwatch,
		notifier: notifier,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock and launches the queue, orchestrator,
// network watcher, payload sweep, and local API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another proofbox daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	d.queue.Start(d.ctx)
	if err := d.orch.Start(d.ctx); err != nil {
		d.teardown()
		return fmt.Errorf("start orchestrator: %w", err)
	}
	if d.netwatch != nil {
		if err := d.netwatch.Start(d.ctx); err != nil {
			d.teardown()
			return fmt.Errorf("start network watcher: %w", err)
		}
	}
	if d.api != nil {
		if err := d.api.start(d.ctx); err != nil {
			d.teardown()
			return fmt.Errorf("start api server: %w", err)
		}
	}

	go d.sweepLoop(d.ctx)

	d.running.Store(true)
	d.logger.Info("proofbox daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.teardown()
	d.running.Store(false)
	d.logger.Info("proofbox daemon stopped")
}

func (d *Daemon) teardown() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.api != nil {
		d.api.stop()
	}
	d.netwatch.Stop()
	d.orch.Stop()
	d.queue.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddr returns the bound address of the local API listener, or an empty
// string when the server is not running.
func (d *Daemon) APIAddr() string {
	if d.api == nil || d.api.listener == nil {
		return ""
	}
	return d.api.listener.Addr().String()
}

// Status reports current runtime state.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:  d.running.Load(),
		Paused:   d.queue.Paused(),
		InFlight: d.queue.InFlight(),
		NetWatch: d.netwatch.Running(),
		DBPath:   d.store.Path(),
		LockPath: d.lockPath,
	}
	if health, err := d.store.Health(ctx); err == nil {
		status.Queue = health
	}
	return status
}

// sweepLoop reclaims expired payloads on the configured interval. Record
// metadata survives a sweep; only the local bytes go.
func (d *Daemon) sweepLoop(ctx context.Context) {
	interval := time.Duration(d.cfg.Sync.SweepIntervalMinutes) * time.Minute
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runSweep(ctx)
		}
	}
}

// RunSweep reclaims expired payloads immediately.
func (d *Daemon) RunSweep(ctx context.Context) (int64, error) {
	reclaimed, err := d.store.DeleteExpiredPayloads(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		telemetry.PayloadsReclaimed.Add(float64(reclaimed))
		d.logger.Info("payload sweep completed",
			logging.Int64("reclaimed", reclaimed),
			logging.String(logging.FieldEventType, "payload_sweep"),
		)
		if err := d.notifier.NotifySweepCompleted(ctx, reclaimed); err != nil {
			d.logger.Debug("sweep notification failed", logging.Error(err))
		}
	}
	return reclaimed, nil
}

func (d *Daemon) runSweep(ctx context.Context) {
	if _, err := d.RunSweep(ctx); err != nil {
		d.logger.Error("payload sweep failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "payload_sweep_failed"),
			logging.String(logging.FieldErrorHint, "check capture database access"),
		)
	}
}
