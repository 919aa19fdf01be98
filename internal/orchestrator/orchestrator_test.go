package orchestrator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"proofbox/internal/config"
	"proofbox/internal/logging"
	"proofbox/internal/store"
	"proofbox/internal/testsupport"
)

type fakeRunner struct {
	runs    atomic.Int32
	resumes atomic.Int32
}

func (f *fakeRunner) Resume() {
	f.resumes.Add(1)
}

func (f *fakeRunner) ProcessQueue(ctx context.Context) error {
	f.runs.Add(1)
	return nil
}

type fakeProbe struct {
	online atomic.Bool
}

func (f *fakeProbe) Online(ctx context.Context) bool {
	return f.online.Load()
}

func newTestOrchestrator(t *testing.T, sync config.Sync) (*Orchestrator, *fakeRunner, *fakeProbe, *store.Store) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	runner := &fakeRunner{}
	probe := &fakeProbe{}
	probe.online.Store(true)

	orch := New(sync, st, runner, probe, logging.NewNop())
	t.Cleanup(orch.Stop)
	return orch, runner, probe, st
}

func TestTriggerThrottlesPerReason(t *testing.T) {
	orch, runner, _, _ := newTestOrchestrator(t, config.Sync{
		NetworkRestoredThrottle: 10,
		ForegroundThrottle:      30,
	})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	orch.now = func() time.Time { return now }

	ctx := context.Background()
	if err := orch.Trigger(ctx, ReasonNetworkRestored); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if runner.runs.Load() != 1 {
		t.Fatalf("expected 1 run, got %d", runner.runs.Load())
	}

	// Inside the window the reason is throttled.
	now = now.Add(5 * time.Second)
	if err := orch.Trigger(ctx, ReasonNetworkRestored); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if runner.runs.Load() != 1 {
		t.Fatalf("expected throttled trigger to be dropped, got %d runs", runner.runs.Load())
	}

	// A different reason has its own window.
	if err := orch.Trigger(ctx, ReasonForegrounded); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if runner.runs.Load() != 2 {
		t.Fatalf("expected independent reason to run, got %d runs", runner.runs.Load())
	}

	// Past the window the reason fires again.
	now = now.Add(6 * time.Second)
	if err := orch.Trigger(ctx, ReasonNetworkRestored); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if runner.runs.Load() != 3 {
		t.Fatalf("expected trigger after window, got %d runs", runner.runs.Load())
	}
}

func TestManualTriggerBypassesThrottle(t *testing.T) {
	orch, runner, _, _ := newTestOrchestrator(t, config.Sync{})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := orch.Trigger(ctx, ReasonManual); err != nil {
			t.Fatalf("Trigger failed: %v", err)
		}
	}
	if runner.runs.Load() != 3 {
		t.Fatalf("expected every manual trigger to run, got %d", runner.runs.Load())
	}
}

func TestTriggerDefersWhileOffline(t *testing.T) {
	orch, runner, probe, _ := newTestOrchestrator(t, config.Sync{})
	probe.online.Store(false)

	ctx := context.Background()
	if err := orch.Trigger(ctx, ReasonManual); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if runner.runs.Load() != 0 {
		t.Fatalf("expected no run while offline, got %d", runner.runs.Load())
	}

	probe.online.Store(true)
	if err := orch.Trigger(ctx, ReasonManual); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if runner.runs.Load() != 1 {
		t.Fatalf("expected run once online, got %d", runner.runs.Load())
	}
}

func TestTriggerResumesPausedQueue(t *testing.T) {
	orch, runner, _, _ := newTestOrchestrator(t, config.Sync{})

	ctx := context.Background()
	if err := orch.Trigger(ctx, ReasonNetworkRestored); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if runner.resumes.Load() != 1 {
		t.Fatalf("expected trigger to resume the queue, got %d resumes", runner.resumes.Load())
	}
	if runner.runs.Load() != 1 {
		t.Fatalf("expected trigger to drain the queue, got %d runs", runner.runs.Load())
	}
}

func TestCaptureTriggerDebounces(t *testing.T) {
	orch, runner, _, _ := newTestOrchestrator(t, config.Sync{CaptureDebounce: 1})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := orch.Trigger(ctx, ReasonCaptured); err != nil {
			t.Fatalf("Trigger failed: %v", err)
		}
	}
	if runner.runs.Load() != 0 {
		t.Fatal("expected capture burst to be debounced")
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if runner.runs.Load() == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if runner.runs.Load() != 1 {
		t.Fatalf("expected exactly one debounced run, got %d", runner.runs.Load())
	}
}

func TestCaptureTriggerFiresImmediatelyWithoutDebounce(t *testing.T) {
	orch, runner, _, _ := newTestOrchestrator(t, config.Sync{CaptureDebounce: 0})

	if err := orch.Trigger(context.Background(), ReasonCaptured); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if runner.runs.Load() != 1 {
		t.Fatalf("expected immediate run, got %d", runner.runs.Load())
	}
}

func TestStartRecoversOrphansAndSyncs(t *testing.T) {
	orch, runner, _, st := newTestOrchestrator(t, config.Sync{})

	ctx := context.Background()
	orphan := testsupport.NewCapture(t, st, "job-crash", []byte("payload"))
	attempts := 2
	if _, err := st.UpdateStatus(ctx, orphan.ID, store.StatusUploading, &store.StatusFields{Attempts: &attempts}); err != nil {
		t.Fatalf("seed orphan failed: %v", err)
	}

	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	recovered, err := st.GetByID(ctx, orphan.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if recovered.Status != store.StatusPending {
		t.Fatalf("expected orphan back in pending, got %s", recovered.Status)
	}
	if recovered.Attempts != 0 {
		t.Fatalf("expected attempts cleared, got %d", recovered.Attempts)
	}
	if runner.runs.Load() != 1 {
		t.Fatalf("expected startup sync, got %d runs", runner.runs.Load())
	}
}

func TestStopCancelsPendingDebounce(t *testing.T) {
	orch, runner, _, _ := newTestOrchestrator(t, config.Sync{CaptureDebounce: 1})

	if err := orch.Trigger(context.Background(), ReasonCaptured); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	orch.Stop()

	time.Sleep(1200 * time.Millisecond)
	if runner.runs.Load() != 0 {
		t.Fatalf("expected no run after Stop, got %d", runner.runs.Load())
	}
}
