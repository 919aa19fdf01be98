package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"proofbox/internal/config"
	"proofbox/internal/notifications"
)

type recordedRequest struct {
	title    string
	tags     string
	priority string
	body     string
}

func newNtfyServer(t *testing.T) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	requests := &[]recordedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*requests = append(*requests, recordedRequest{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, requests
}

func testConfig(topic string) *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = topic
	cfg.Notifications.Captures = true
	cfg.Notifications.Failures = true
	cfg.Notifications.QueueDrained = true
	return &cfg
}

func TestNotifyUploadFailedSendsHighPriority(t *testing.T) {
	server, requests := newNtfyServer(t)
	svc := notifications.NewService(testConfig(server.URL))

	if err := svc.NotifyUploadFailed(context.Background(), "rec-9", "remote rejected record"); err != nil {
		t.Fatalf("NotifyUploadFailed failed: %v", err)
	}

	if len(*requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*requests))
	}
	got := (*requests)[0]
	if got.title != "Proofbox - Upload Failed" {
		t.Fatalf("unexpected title %q", got.title)
	}
	if got.priority != "high" {
		t.Fatalf("expected high priority, got %q", got.priority)
	}
	if got.tags != "proofbox,upload,failed" {
		t.Fatalf("unexpected tags %q", got.tags)
	}
}

func TestNotifyCaptureIngestedHonorsToggle(t *testing.T) {
	server, requests := newNtfyServer(t)
	cfg := testConfig(server.URL)
	cfg.Notifications.Captures = false
	svc := notifications.NewService(cfg)

	if err := svc.NotifyCaptureIngested(context.Background(), "Job 12", 3); err != nil {
		t.Fatalf("NotifyCaptureIngested failed: %v", err)
	}
	if len(*requests) != 0 {
		t.Fatalf("expected no requests when captures disabled, got %d", len(*requests))
	}
}

func TestSweepNotificationSkipsZeroReclaimed(t *testing.T) {
	server, requests := newNtfyServer(t)
	svc := notifications.NewService(testConfig(server.URL))

	if err := svc.NotifySweepCompleted(context.Background(), 0); err != nil {
		t.Fatalf("NotifySweepCompleted failed: %v", err)
	}
	if len(*requests) != 0 {
		t.Fatalf("expected no request for zero reclaimed, got %d", len(*requests))
	}
}

func TestNoopServiceWithoutTopic(t *testing.T) {
	svc := notifications.NewService(testConfig(""))
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("noop service returned error: %v", err)
	}
}

func TestRejectedNotificationReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	svc := notifications.NewService(testConfig(server.URL))
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for rejected notification")
	}
}
