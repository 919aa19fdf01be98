package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"proofbox/internal/config"
)

const userAgent = "Proofbox-Go/0.1.0"

// Service defines the operator push-notification surface. Every call is
// best-effort; callers log failures and move on.
type Service interface {
	NotifyCaptureIngested(ctx context.Context, jobName string, count int) error
	NotifyUploadFailed(ctx context.Context, recordID, reason string) error
	NotifyQueueDrained(ctx context.Context, uploaded, failed int, duration time.Duration) error
	NotifySweepCompleted(ctx context.Context, reclaimed int64) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		settings: cfg.Notifications,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	settings config.Notifications
}

func (n *ntfyService) NotifyCaptureIngested(ctx context.Context, jobName string, count int) error {
	if !n.settings.Captures {
		return nil
	}
	data := payload{
		title:   "Proofbox - Capture",
		message: fmt.Sprintf("%d photo(s) captured for %s", count, jobName),
		tags:    []string{"proofbox", "capture"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyUploadFailed(ctx context.Context, recordID, reason string) error {
	if !n.settings.Failures {
		return nil
	}
	data := payload{
		title:    "Proofbox - Upload Failed",
		message:  fmt.Sprintf("Photo %s exhausted its retries: %s", recordID, reason),
		tags:     []string{"proofbox", "upload", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQueueDrained(ctx context.Context, uploaded, failed int, duration time.Duration) error {
	if !n.settings.QueueDrained {
		return nil
	}
	data := payload{
		title:   "Proofbox - Queue Drained",
		message: fmt.Sprintf("%d uploaded, %d failed in %s", uploaded, failed, duration.Round(time.Second)),
		tags:    []string{"proofbox", "queue"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySweepCompleted(ctx context.Context, reclaimed int64) error {
	if reclaimed == 0 {
		return nil
	}
	data := payload{
		title:   "Proofbox - Cleanup",
		message: fmt.Sprintf("Reclaimed %d expired payload(s)", reclaimed),
		tags:    []string{"proofbox", "cleanup"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:   "Proofbox - Test",
		message: "Notifications are working",
		tags:    []string{"proofbox", "test"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification rejected: %d", resp.StatusCode)
	}
	return nil
}

type noopService struct{}

func (noopService) NotifyCaptureIngested(context.Context, string, int) error { return nil }
func (noopService) NotifyUploadFailed(context.Context, string, string) error { return nil }
func (noopService) NotifyQueueDrained(context.Context, int, int, time.Duration) error {
	return nil
}
func (noopService) NotifySweepCompleted(context.Context, int64) error { return nil }
func (noopService) TestNotification(context.Context) error            { return nil }
