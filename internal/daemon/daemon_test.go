package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"testing"
	"time"

	"proofbox/internal/api"
	"proofbox/internal/config"
	"proofbox/internal/logging"
	"proofbox/internal/orchestrator"
	"proofbox/internal/store"
	"proofbox/internal/testsupport"
	"proofbox/internal/uploader"
)

type fakeRemote struct{}

func (fakeRemote) CreateUploadTarget(ctx context.Context, req api.UploadTargetRequest) (api.UploadTargetResponse, error) {
	key := req.RemoteKey
	if key == "" {
		key = "photos/" + req.PhotoID + ".jpg"
	}
	return api.UploadTargetResponse{
		PresignedURL: "https://storage.test/" + key,
		FileURL:      "https://cdn.test/" + key,
		RemoteKey:    key,
	}, nil
}

func (fakeRemote) PutObject(ctx context.Context, url string, data []byte, contentType string) error {
	return nil
}

func (fakeRemote) CreatePhotoRecord(ctx context.Context, req api.PhotoRecordRequest) error {
	return nil
}

func (fakeRemote) RegisterAnalysis(ctx context.Context, req api.AnalysisRequest) error {
	return nil
}

func startTestDaemon(t *testing.T, opts ...testsupport.ConfigOption) (*Daemon, *config.Config, string) {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)

	logger := logging.NewNop()
	queue := uploader.NewQueue(cfg.Upload, st, nil, fakeRemote{}, nil, logger)
	orch := orchestrator.New(cfg.Sync, st, queue, nil, logger)

	d, err := New(cfg, st, queue, orch, nil, nil, logger)
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start failed: %v", err)
	}
	t.Cleanup(d.Stop)

	return d, cfg, "http://" + d.api.listener.Addr().String()
}

func postCapture(t *testing.T, baseURL, token, jobID string) api.CaptureView {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	_ = writer.WriteField("job_id", jobID)
	_ = writer.WriteField("job_name", "Test Job")
	_ = writer.WriteField("stage", "during")
	part, err := writer.CreateFormFile("photo", "site.jpg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(testsupport.JPEGImage(t, 40, 30)); err != nil {
		t.Fatalf("write photo: %v", err)
	}
	_ = writer.Close()

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/captures", body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post capture: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(resp.Body)
		t.Fatalf("unexpected ingest status %d: %s", resp.StatusCode, data)
	}

	var view api.CaptureView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode ingest response: %v", err)
	}
	return view
}

func TestIngestAndStatus(t *testing.T) {
	d, _, baseURL := startTestDaemon(t)

	view := postCapture(t, baseURL, "", "job-api")
	if view.ID == "" || view.Status != string(store.StatusPending) {
		t.Fatalf("unexpected ingest view %#v", view)
	}

	resp, err := http.Get(baseURL + "/api/captures?job_id=job-api")
	if err != nil {
		t.Fatalf("list captures: %v", err)
	}
	defer resp.Body.Close()
	var list api.CaptureListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 1 || list.Captures[0].ID != view.ID {
		t.Fatalf("unexpected list %#v", list)
	}

	// The capture trigger drives the queue; the fake remote accepts it.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status := d.Status(context.Background())
		if status.Queue.Uploaded == 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if status := d.Status(context.Background()); status.Queue.Uploaded != 1 {
		t.Fatalf("expected capture uploaded, queue %#v", status.Queue)
	}

	statusResp, err := http.Get(baseURL + "/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer statusResp.Body.Close()
	var statusView api.StatusResponse
	if err := json.NewDecoder(statusResp.Body).Decode(&statusView); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !statusView.Running || statusView.Queue.Uploaded != 1 {
		t.Fatalf("unexpected status %#v", statusView)
	}
}

func TestIngestValidation(t *testing.T) {
	_, _, baseURL := startTestDaemon(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	_ = writer.WriteField("stage", "during")
	part, _ := writer.CreateFormFile("photo", "site.jpg")
	_, _ = part.Write([]byte("data"))
	_ = writer.Close()

	resp, err := http.Post(baseURL+"/api/captures", writer.FormDataContentType(), body)
	if err != nil {
		t.Fatalf("post capture: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing job_id, got %d", resp.StatusCode)
	}
}

func TestBearerAuth(t *testing.T) {
	_, _, baseURL := startTestDaemon(t, func(cfg *config.Config) {
		cfg.Paths.APIToken = "cli-token"
	})

	resp, err := http.Get(baseURL + "/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, baseURL+"/api/status", nil)
	req.Header.Set("Authorization", "Bearer cli-token")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authorized status: %v", err)
	}
	authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", authed.StatusCode)
	}

	// Health stays open for probes.
	health, err := http.Get(baseURL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("expected open healthz, got %d", health.StatusCode)
	}
}

func TestPauseAndResume(t *testing.T) {
	d, _, baseURL := startTestDaemon(t)

	resp, err := http.Post(baseURL+"/api/pause", "", nil)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	resp.Body.Close()
	if !d.queue.Paused() {
		t.Fatal("expected queue paused")
	}

	resp, err = http.Post(baseURL+"/api/resume", "", nil)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	resp.Body.Close()
	if d.queue.Paused() {
		t.Fatal("expected queue resumed")
	}
}

func TestSecondInstanceRejected(t *testing.T) {
	d, cfg, _ := startTestDaemon(t)
	_ = d

	st2, err := store.OpenPath(cfg.Paths.DataDir + "/captures2.db")
	if err != nil {
		t.Fatalf("open second store: %v", err)
	}
	t.Cleanup(func() { st2.Close() })

	logger := logging.NewNop()
	queue := uploader.NewQueue(cfg.Upload, st2, nil, fakeRemote{}, nil, logger)
	orch := orchestrator.New(cfg.Sync, st2, queue, nil, logger)
	second, err := New(cfg, st2, queue, orch, nil, nil, logger)
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second instance to be rejected by the lock")
	}
}

func TestSweepEndpoint(t *testing.T) {
	d, _, baseURL := startTestDaemon(t)

	ctx := context.Background()
	rec := testsupport.NewCapture(t, d.store, "job-sweep", []byte("payload"))
	if err := d.store.SetExpiry(ctx, rec.ID, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("SetExpiry failed: %v", err)
	}

	resp, err := http.Post(baseURL+"/api/cleanup", "", nil)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	defer resp.Body.Close()
	var count api.CountResponse
	if err := json.NewDecoder(resp.Body).Decode(&count); err != nil {
		t.Fatalf("decode cleanup: %v", err)
	}
	if count.Count != 1 {
		t.Fatalf("expected 1 reclaimed, got %d", count.Count)
	}

	payload, err := d.store.GetPayload(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetPayload failed: %v", err)
	}
	if payload != nil {
		t.Fatal("expected payload reclaimed")
	}
}
