package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"proofbox/internal/api"
	"proofbox/internal/config"
	"proofbox/internal/logging"
	"proofbox/internal/orchestrator"
	"proofbox/internal/store"
	"proofbox/internal/telemetry"
	"proofbox/internal/version"
)

// apiServer exposes the daemon's local control surface over HTTP. It is
// loopback-only by default; a bearer token gates it when configured.
type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	router := chi.NewRouter()
	router.Get("/healthz", srv.handleHealthz)
	if cfg.Telemetry.Enabled {
		router.Handle("/metrics", telemetry.Handler())
	}

	router.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(strings.TrimSpace(cfg.Paths.APIToken)))
		r.Get("/status", srv.handleStatus)
		r.Post("/captures", srv.handleIngest)
		r.Get("/captures", srv.handleListCaptures)
		r.Get("/captures/{id}", srv.handleGetCapture)
		r.Post("/captures/{id}/retry", srv.handleRetryCapture)
		r.Delete("/captures/{id}", srv.handleDeleteCapture)
		r.Post("/retry-all", srv.handleRetryAll)
		r.Get("/stuck", srv.handleListStuck)
		r.Post("/stuck/reset", srv.handleResetStuck)
		r.Post("/sync", srv.handleSync)
		r.Post("/pause", srv.handlePause)
		r.Post("/resume", srv.handleResume)
		r.Post("/cleanup", srv.handleCleanup)
	})

	srv.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.MessageResponse{Message: "ok"})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.StatusResponse{
		Running:  status.Running,
		Paused:   status.Paused,
		InFlight: status.InFlight,
		Queue: api.QueueCounts{
			Total:     status.Queue.Total,
			Pending:   status.Queue.Pending,
			Uploading: status.Queue.Uploading,
			Uploaded:  status.Queue.Uploaded,
			Failed:    status.Queue.Failed,
		},
		NetWatch: status.NetWatch,
		DBPath:   status.DBPath,
		LockPath: status.LockPath,
		Version:  version.Version,
	})
}

// handleIngest accepts a multipart capture: a "photo" file part plus
// job_id, job_name, location, stage, and taken_at form fields. The record
// is durable before the response is written; upload happens later.
func (s *apiServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.daemon.cfg.Processing.MaxSourceBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("parse multipart form: %v", err))
		return
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing photo file part")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("read photo: %v", err))
		return
	}
	if int64(len(data)) > maxBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, "photo exceeds maximum source size")
		return
	}
	if len(data) == 0 {
		s.writeError(w, http.StatusBadRequest, "photo is empty")
		return
	}

	jobID := strings.TrimSpace(r.FormValue("job_id"))
	if jobID == "" {
		s.writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}

	stage, ok := store.ParseStage(r.FormValue("stage"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "stage must be before, during, or after")
		return
	}

	takenAt := time.Now()
	if raw := strings.TrimSpace(r.FormValue("taken_at")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "taken_at must be RFC 3339")
			return
		}
		takenAt = parsed
	}

	mimeType := header.Header.Get("Content-Type")

	rec, err := s.daemon.store.Create(r.Context(), store.NewCapture{
		JobID:    jobID,
		JobName:  strings.TrimSpace(r.FormValue("job_name")),
		Location: strings.TrimSpace(r.FormValue("location")),
		Stage:    stage,
		TakenAt:  takenAt,
		MimeType: mimeType,
		Data:     data,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("store capture: %v", err))
		return
	}

	telemetry.CapturesTotal.Inc()
	s.logger.Info("capture ingested",
		logging.String(logging.FieldRecordID, rec.ID),
		logging.String(logging.FieldJobID, rec.JobID),
		logging.Int("bytes", len(data)),
	)
	if err := s.daemon.notifier.NotifyCaptureIngested(r.Context(), rec.JobName, 1); err != nil {
		s.logger.Debug("capture notification failed", logging.Error(err))
	}
	if err := s.daemon.orch.Trigger(r.Context(), orchestrator.ReasonCaptured); err != nil {
		s.logger.Warn("capture sync trigger failed", logging.Error(err))
	}

	s.writeJSON(w, http.StatusCreated, captureView(rec))
}

func (s *apiServer) handleListCaptures(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		records []*store.Record
		err     error
	)
	if jobID := strings.TrimSpace(r.URL.Query().Get("job_id")); jobID != "" {
		records, err = s.daemon.store.ListByJob(ctx, jobID)
	} else if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, ok := store.ParseStatus(raw)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw))
			return
		}
		records, err = s.daemon.store.List(ctx, status)
	} else {
		records, err = s.daemon.store.List(ctx)
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("list captures: %v", err))
		return
	}

	views := make([]api.CaptureView, 0, len(records))
	for _, rec := range records {
		views = append(views, captureView(rec))
	}
	s.writeJSON(w, http.StatusOK, api.CaptureListResponse{Captures: views, Total: len(views)})
}

func (s *apiServer) handleGetCapture(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.daemon.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("load capture: %v", err))
		return
	}
	if rec == nil {
		s.writeError(w, http.StatusNotFound, "capture not found")
		return
	}
	s.writeJSON(w, http.StatusOK, captureView(rec))
}

func (s *apiServer) handleRetryCapture(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.daemon.queue.RetryUpload(r.Context(), id); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.MessageResponse{Message: "retry scheduled"})
}

func (s *apiServer) handleDeleteCapture(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := s.daemon.store.Delete(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("delete capture: %v", err))
		return
	}
	if !deleted {
		s.writeError(w, http.StatusNotFound, "capture not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.MessageResponse{Message: "capture deleted"})
}

func (s *apiServer) handleRetryAll(w http.ResponseWriter, r *http.Request) {
	count, err := s.daemon.queue.RetryAllFailed(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("retry failed captures: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: count})
}

func (s *apiServer) handleListStuck(w http.ResponseWriter, r *http.Request) {
	records, err := s.daemon.queue.Stuck(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("list stuck uploads: %v", err))
		return
	}
	views := make([]api.CaptureView, 0, len(records))
	for _, rec := range records {
		views = append(views, captureView(rec))
	}
	s.writeJSON(w, http.StatusOK, api.CaptureListResponse{Captures: views, Total: len(views)})
}

func (s *apiServer) handleResetStuck(w http.ResponseWriter, r *http.Request) {
	count, err := s.daemon.queue.ForceResetStuck(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("reset stuck uploads: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: count})
}

func (s *apiServer) handleSync(w http.ResponseWriter, r *http.Request) {
	reason := orchestrator.ReasonManual
	if raw := strings.TrimSpace(r.URL.Query().Get("reason")); raw != "" {
		switch orchestrator.Reason(raw) {
		case orchestrator.ReasonForegrounded, orchestrator.ReasonReviewOpened,
			orchestrator.ReasonNetworkRestored, orchestrator.ReasonCaptured, orchestrator.ReasonManual:
			reason = orchestrator.Reason(raw)
		default:
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown sync reason %q", raw))
			return
		}
	}
	if err := s.daemon.orch.Trigger(r.Context(), reason); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("trigger sync: %v", err))
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.MessageResponse{Message: "sync triggered"})
}

func (s *apiServer) handlePause(w http.ResponseWriter, r *http.Request) {
	s.daemon.queue.Pause()
	s.writeJSON(w, http.StatusOK, api.MessageResponse{Message: "uploads paused"})
}

func (s *apiServer) handleResume(w http.ResponseWriter, r *http.Request) {
	s.daemon.queue.Resume()
	if err := s.daemon.queue.ProcessQueue(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("resume uploads: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, api.MessageResponse{Message: "uploads resumed"})
}

func (s *apiServer) handleCleanup(w http.ResponseWriter, r *http.Request) {
	reclaimed, err := s.daemon.RunSweep(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("sweep payloads: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: reclaimed})
}

func captureView(rec *store.Record) api.CaptureView {
	return api.CaptureView{
		ID:         rec.ID,
		JobID:      rec.JobID,
		JobName:    rec.JobName,
		Location:   rec.Location,
		Stage:      string(rec.Stage),
		TakenAt:    rec.TakenAt,
		Status:     string(rec.Status),
		Attempts:   rec.Attempts,
		LastError:  rec.LastError,
		UploadedAt: rec.UploadedAt,
		RemoteKey:  rec.RemoteKey,
		MimeType:   rec.MimeType,
		ByteSize:   rec.ByteSize,
		Processed:  rec.Provenance.Complete(),
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode api response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
