package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"proofbox/internal/api"
)

// daemonClient speaks the daemon's local HTTP API.
type daemonClient struct {
	address string
	base    string
	token   string
	http    *http.Client
}

func newDaemonClient(address, token string) *daemonClient {
	return &daemonClient{
		address: address,
		base:    "http://" + address,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *daemonClient) status(ctx context.Context) (api.StatusResponse, error) {
	var out api.StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

func (c *daemonClient) listCaptures(ctx context.Context, jobID, status string) (api.CaptureListResponse, error) {
	query := url.Values{}
	if jobID != "" {
		query.Set("job_id", jobID)
	}
	if status != "" {
		query.Set("status", status)
	}
	path := "/api/captures"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out api.CaptureListResponse
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *daemonClient) getCapture(ctx context.Context, id string) (api.CaptureView, error) {
	var out api.CaptureView
	err := c.do(ctx, http.MethodGet, "/api/captures/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *daemonClient) retryCapture(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/captures/"+url.PathEscape(id)+"/retry", nil, nil)
}

func (c *daemonClient) deleteCapture(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/captures/"+url.PathEscape(id), nil, nil)
}

func (c *daemonClient) retryAll(ctx context.Context) (int64, error) {
	var out api.CountResponse
	err := c.do(ctx, http.MethodPost, "/api/retry-all", nil, &out)
	return out.Count, err
}

func (c *daemonClient) listStuck(ctx context.Context) (api.CaptureListResponse, error) {
	var out api.CaptureListResponse
	err := c.do(ctx, http.MethodGet, "/api/stuck", nil, &out)
	return out, err
}

func (c *daemonClient) resetStuck(ctx context.Context) (int64, error) {
	var out api.CountResponse
	err := c.do(ctx, http.MethodPost, "/api/stuck/reset", nil, &out)
	return out.Count, err
}

func (c *daemonClient) sync(ctx context.Context, reason string) error {
	path := "/api/sync"
	if reason != "" {
		path += "?reason=" + url.QueryEscape(reason)
	}
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *daemonClient) pause(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/pause", nil, nil)
}

func (c *daemonClient) resume(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/resume", nil, nil)
}

func (c *daemonClient) cleanup(ctx context.Context) (int64, error) {
	var out api.CountResponse
	err := c.do(ctx, http.MethodPost, "/api/cleanup", nil, &out)
	return out.Count, err
}

// captureFields carries the form fields of a capture ingest.
type captureFields struct {
	JobID    string
	JobName  string
	Location string
	Stage    string
	TakenAt  string
}

func (c *daemonClient) ingest(ctx context.Context, fields captureFields, filename, mimeType string, data []byte) (api.CaptureView, error) {
	var out api.CaptureView

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	formFields := map[string]string{
		"job_id":   fields.JobID,
		"job_name": fields.JobName,
		"location": fields.Location,
		"stage":    fields.Stage,
		"taken_at": fields.TakenAt,
	}
	for key, value := range formFields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(key, value); err != nil {
			return out, fmt.Errorf("write form field %s: %w", key, err)
		}
	}

	header := make(map[string][]string)
	header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="photo"; filename=%q`, filename)}
	if mimeType != "" {
		header["Content-Type"] = []string{mimeType}
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		return out, fmt.Errorf("create photo part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return out, fmt.Errorf("write photo part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return out, fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/captures", body)
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return out, wrapDialError(err, c.address)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return out, apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func (c *daemonClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return wrapDialError(err, c.address)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *daemonClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	var envelope api.ErrorResponse
	if err := json.Unmarshal(data, &envelope); err == nil && strings.TrimSpace(envelope.Error) != "" {
		return fmt.Errorf("daemon: %s", envelope.Error)
	}
	return fmt.Errorf("daemon returned status %d", resp.StatusCode)
}
