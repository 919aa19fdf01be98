package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"proofbox/internal/logging"
)

// NetWatcher listens for udev netlink events on the net subsystem and
// fires a network-restored sync when an interface comes up. This is how
// the daemon notices connectivity returning without polling the remote.
type NetWatcher struct {
	orch   *Orchestrator
	logger *slog.Logger

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewNetWatcher creates a watcher bound to the orchestrator.
func NewNetWatcher(orch *Orchestrator, logger *slog.Logger) *NetWatcher {
	return &NetWatcher{
		orch:   orch,
		logger: logging.NewComponentLogger(logger, "netwatch"),
	}
}

// Start begins listening for udev netlink events. A failed socket connect
// is non-fatal; syncs then rely on the other triggers.
func (w *NetWatcher) Start(ctx context.Context) error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		w.logger.Warn("failed to connect to netlink socket; network-restored syncs unavailable",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
		)
		return nil
	}

	w.conn = conn
	w.quit = make(chan struct{})
	w.running = true

	quit := w.quit
	go w.watchLoop(ctx, quit)

	w.logger.Info("network watcher started",
		logging.String(logging.FieldEventType, "netwatch_started"),
	)
	return nil
}

// Stop shuts down the watcher.
func (w *NetWatcher) Stop() {
	if w == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	if w.quit != nil {
		close(w.quit)
		w.quit = nil
	}
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.running = false

	w.logger.Info("network watcher stopped",
		logging.String(logging.FieldEventType, "netwatch_stopped"),
	)
}

// Running reports whether the watcher is active.
func (w *NetWatcher) Running() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *NetWatcher) watchLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	matcher := w.buildMatcher()

	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, matcher)

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			w.handleEvent(ctx, uevent)
		case err := <-errs:
			w.logger.Warn("network watcher error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netwatch_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
			)
		}
	}
}

// buildMatcher matches interface add/change/move events on the net
// subsystem. Interface removal is uninteresting; the orchestrator's
// connectivity probe handles the offline case on its own.
func (w *NetWatcher) buildMatcher() netlink.Matcher {
	action := "add|change|move"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "net",
		},
	})
	return rules
}

func (w *NetWatcher) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	iface := uevent.Env["INTERFACE"]
	if iface == "lo" {
		return
	}

	w.logger.Debug("network interface event",
		logging.String("interface", iface),
		logging.String("action", string(uevent.Action)),
	)

	// The orchestrator re-probes and applies the network-restored
	// throttle, so a flapping interface costs one attempt per window.
	if err := w.orch.Trigger(ctx, ReasonNetworkRestored); err != nil {
		w.logger.Warn("network-restored sync failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netwatch_sync_failed"),
		)
	}
}
