package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"proofbox/internal/api"
	"proofbox/internal/config"
)

func remoteConfig(baseURL string) config.Remote {
	return config.Remote{
		BaseURL:                baseURL,
		APIToken:               "secret-token",
		RequestTimeoutSeconds:  5,
		TransferTimeoutSeconds: 5,
		ProbePath:              "/healthz",
	}
}

func TestCreateUploadTarget(t *testing.T) {
	var got api.UploadTargetRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/photos/upload-target" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret-token" {
			t.Fatalf("unexpected authorization header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(api.UploadTargetResponse{
			PresignedURL: "https://storage.test/presigned",
			FileURL:      "https://cdn.test/photo.jpg",
			RemoteKey:    "photos/photo.jpg",
		})
	}))
	defer server.Close()

	client := api.NewClient(remoteConfig(server.URL))
	resp, err := client.CreateUploadTarget(context.Background(), api.UploadTargetRequest{
		PhotoID:     "rec-1",
		ContentType: "image/jpeg",
	})
	if err != nil {
		t.Fatalf("CreateUploadTarget failed: %v", err)
	}
	if resp.PresignedURL != "https://storage.test/presigned" {
		t.Fatalf("unexpected presigned url %q", resp.PresignedURL)
	}
	if got.PhotoID != "rec-1" || got.ContentType != "image/jpeg" {
		t.Fatalf("unexpected request payload %#v", got)
	}
}

func TestCreateUploadTargetErrorBecomesStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "job is closed", http.StatusConflict)
	}))
	defer server.Close()

	client := api.NewClient(remoteConfig(server.URL))
	_, err := client.CreateUploadTarget(context.Background(), api.UploadTargetRequest{PhotoID: "rec-1"})

	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Status != http.StatusConflict {
		t.Fatalf("unexpected status %d", statusErr.Status)
	}
	if statusErr.Message != "job is closed" {
		t.Fatalf("unexpected message %q", statusErr.Message)
	}
}

func TestPutObject(t *testing.T) {
	payload := []byte("image-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Fatalf("expected PUT, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Fatalf("unexpected content type %q", ct)
		}
		if r.ContentLength != int64(len(payload)) {
			t.Fatalf("unexpected content length %d", r.ContentLength)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != string(payload) {
			t.Fatal("payload bytes did not round-trip")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := api.NewClient(remoteConfig(server.URL))
	if err := client.PutObject(context.Background(), server.URL+"/bucket/key", payload, "image/jpeg"); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}
}

func TestPutObjectRejectedByStorage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := api.NewClient(remoteConfig(server.URL))
	err := client.PutObject(context.Background(), server.URL+"/bucket/key", []byte("x"), "image/jpeg")

	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusForbidden {
		t.Fatalf("expected 403 StatusError, got %v", err)
	}
}

func TestOnline(t *testing.T) {
	probed := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead && r.URL.Path == "/healthz" {
			probed = true
		}
		// An unhealthy response still proves reachability.
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := api.NewClient(remoteConfig(server.URL))
	if !client.Online(context.Background()) {
		t.Fatal("expected online against a responding server")
	}
	if !probed {
		t.Fatal("expected HEAD probe against the configured path")
	}

	server.Close()
	if client.Online(context.Background()) {
		t.Fatal("expected offline once the server is gone")
	}
}

func TestCreatePhotoRecord(t *testing.T) {
	var got api.PhotoRecordRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/photos" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := api.NewClient(remoteConfig(server.URL))
	err := client.CreatePhotoRecord(context.Background(), api.PhotoRecordRequest{
		ClientPhotoID: "rec-1",
		RemoteKey:     "photos/rec-1.jpg",
		FileSize:      123,
		MimeType:      "image/jpeg",
		Stage:         "during",
		JobID:         "job-1",
	})
	if err != nil {
		t.Fatalf("CreatePhotoRecord failed: %v", err)
	}
	if got.ClientPhotoID != "rec-1" || got.JobID != "job-1" {
		t.Fatalf("unexpected request payload %#v", got)
	}
}
