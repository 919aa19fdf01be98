package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"proofbox/internal/config"
)

const userAgent = "Proofbox-Go/0.1.0"

// StatusError reports a non-2xx response from the evidence service.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return fmt.Sprintf("evidence service: %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("evidence service: %d", e.Status)
}

// Client talks to the remote evidence service.
type Client struct {
	baseURL   string
	probePath string
	token     string
	http      *http.Client
	transfer  *http.Client
}

// NewClient builds a client from remote configuration. The transfer client
// carries the longer timeout used for payload PUTs.
func NewClient(cfg config.Remote) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		probePath: cfg.ProbePath,
		token:     cfg.APIToken,
		http:      &http.Client{Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second},
		transfer:  &http.Client{Timeout: time.Duration(cfg.TransferTimeoutSeconds) * time.Second},
	}
}

// CreateUploadTarget performs phase one of the upload protocol.
func (c *Client) CreateUploadTarget(ctx context.Context, req UploadTargetRequest) (UploadTargetResponse, error) {
	var resp UploadTargetResponse
	err := c.do(ctx, http.MethodPost, "/api/photos/upload-target", req, &resp)
	return resp, err
}

// PutObject performs phase two: raw bytes to the presigned URL. The
// transfer timeout bounds the whole request.
func (c *Client) PutObject(ctx context.Context, url string, data []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(data))

	resp, err := c.transfer.Do(req)
	if err != nil {
		return fmt.Errorf("transfer bytes: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Status: resp.StatusCode, Message: readErrorBody(resp.Body)}
	}
	return nil
}

// CreatePhotoRecord performs phase three: the durable server-side record,
// upserted on client_photo_id.
func (c *Client) CreatePhotoRecord(ctx context.Context, req PhotoRecordRequest) error {
	return c.do(ctx, http.MethodPost, "/api/photos", req, nil)
}

// RegisterAnalysis queues the artifact for downstream analysis. Callers
// treat failures as non-fatal.
func (c *Client) RegisterAnalysis(ctx context.Context, req AnalysisRequest) error {
	return c.do(ctx, http.MethodPost, "/api/photos/analysis", req, nil)
}

// Online probes the evidence service. Any response, including an error
// status, proves the network path; only transport failures count as
// offline.
func (c *Client) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+c.probePath, nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Status: resp.StatusCode, Message: readErrorBody(resp.Body)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func readErrorBody(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 512))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
