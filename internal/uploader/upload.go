package uploader

import (
	"context"
	"errors"
	"time"

	"proofbox/internal/api"
	"proofbox/internal/logging"
	"proofbox/internal/store"
	"proofbox/internal/telemetry"
)

// uploadOne drives a single record through claim, preprocessing, and the
// two-phase upload protocol.
func (q *Queue) uploadOne(ctx context.Context, id string) outcome {
	rec, err := q.store.UpdateStatus(ctx, id, store.StatusUploading, nil)
	if err != nil {
		if IsTransitionConflict(err) {
			// Claimed elsewhere or state moved on; not our work anymore.
			q.logger.Debug("record claim rejected", logging.String(logging.FieldRecordID, id), logging.Error(err))
			return outcomeSkipped
		}
		q.logger.Error("record claim failed",
			logging.String(logging.FieldRecordID, id),
			logging.Error(err),
			logging.String(logging.FieldEventType, "claim_failed"),
			logging.String(logging.FieldErrorHint, "check capture database access"),
		)
		return outcomeSkipped
	}
	if rec == nil {
		return outcomeSkipped
	}

	telemetry.UploadsInFlight.Inc()
	defer telemetry.UploadsInFlight.Dec()

	payload, err := q.store.GetPayload(ctx, id)
	if err != nil {
		return q.finishFailure(ctx, rec, err)
	}
	if payload == nil {
		// Payload reclaimed by the sweep while the record was still
		// pending. Unrecoverable; go terminal without burning retries.
		return q.finishTerminal(ctx, rec, errors.New("payload no longer present locally"))
	}

	data, contentType, err := q.preprocess(ctx, rec, payload.Data)
	if err != nil {
		return q.finishFailure(ctx, rec, err)
	}

	remoteKey, fileURL, err := q.transfer(ctx, rec, data, contentType)
	if err != nil {
		return q.finishFailure(ctx, rec, err)
	}

	return q.finishSuccess(ctx, rec, remoteKey, fileURL)
}

// preprocess runs the pipeline when provenance shows outstanding stages
// and persists the transformed payload before any bytes hit the network,
// so a crash between processing and upload resumes with the work intact.
func (q *Queue) preprocess(ctx context.Context, rec *store.Record, data []byte) ([]byte, string, error) {
	contentType := rec.MimeType
	if rec.Provenance.Compressed() {
		contentType = "image/jpeg"
	}
	if q.pipeline == nil || rec.Provenance.Complete() {
		return data, contentType, nil
	}

	result := q.pipeline.Process(ctx, rec, data)
	if result.Changed {
		if err := q.store.UpdatePayload(ctx, rec.ID, result.Data, result.Thumbnail); err != nil {
			return nil, "", err
		}
		if err := q.store.SetProvenance(ctx, rec.ID, result.Provenance); err != nil {
			return nil, "", err
		}
		rec.Provenance = result.Provenance
	}
	if result.Provenance.Compressed() {
		contentType = "image/jpeg"
	}
	return result.Data, contentType, nil
}

// transfer executes the two-phase protocol. Both the target issuance and
// the server-side record are idempotent on the record id, so a retry after
// a partial failure never duplicates remote state.
func (q *Queue) transfer(ctx context.Context, rec *store.Record, data []byte, contentType string) (string, string, error) {
	target, err := q.client.CreateUploadTarget(ctx, api.UploadTargetRequest{
		PhotoID:     rec.ID,
		RemoteKey:   rec.RemoteKey,
		ContentType: contentType,
	})
	if err != nil {
		return "", "", err
	}

	if err := q.client.PutObject(ctx, target.PresignedURL, data, contentType); err != nil {
		return "", "", err
	}

	if err := q.client.CreatePhotoRecord(ctx, api.PhotoRecordRequest{
		ClientPhotoID: rec.ID,
		RemoteKey:     target.RemoteKey,
		FileURL:       target.FileURL,
		FileSize:      int64(len(data)),
		MimeType:      contentType,
		TakenAt:       rec.TakenAt.UTC().Format(time.RFC3339),
		Stage:         string(rec.Stage),
		JobID:         rec.JobID,
		Location:      rec.Location,
	}); err != nil {
		return "", "", err
	}

	return target.RemoteKey, target.FileURL, nil
}

func (q *Queue) finishSuccess(ctx context.Context, rec *store.Record, remoteKey, fileURL string) outcome {
	now := time.Now()
	clearError := ""
	if _, err := q.store.UpdateStatus(ctx, rec.ID, store.StatusUploaded, &store.StatusFields{
		UploadedAt: &now,
		RemoteKey:  &remoteKey,
		LastError:  &clearError,
	}); err != nil {
		q.logger.Error("confirm upload failed",
			logging.String(logging.FieldRecordID, rec.ID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "confirm_failed"),
		)
		return outcomeSkipped
	}

	retention := time.Duration(q.cfg.RetentionDays) * 24 * time.Hour
	if err := q.store.SetExpiry(ctx, rec.ID, now.Add(retention)); err != nil {
		q.logger.Warn("schedule payload expiry failed",
			logging.String(logging.FieldRecordID, rec.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "payload will be kept until a later sweep"),
		)
	}

	if err := q.client.RegisterAnalysis(ctx, api.AnalysisRequest{
		ClientPhotoID: rec.ID,
		FileURL:       fileURL,
	}); err != nil {
		// Analysis is downstream convenience; the upload already counts.
		q.logger.Warn("analysis registration failed",
			logging.String(logging.FieldRecordID, rec.ID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "analysis_register_failed"),
		)
	}

	telemetry.UploadsTotal.Inc()
	q.logger.Info("upload confirmed",
		logging.String(logging.FieldRecordID, rec.ID),
		logging.String(logging.FieldJobID, rec.JobID),
		logging.String("remote_key", remoteKey),
	)
	return outcomeUploaded
}

func (q *Queue) finishFailure(ctx context.Context, rec *store.Record, cause error) outcome {
	telemetry.UploadFailures.Inc()
	attempts := rec.Attempts + 1
	message := cause.Error()

	if attempts >= q.cfg.MaxAttempts {
		if _, err := q.store.UpdateStatus(ctx, rec.ID, store.StatusFailed, &store.StatusFields{
			Attempts:  &attempts,
			LastError: &message,
		}); err != nil {
			q.logger.Error("mark failed errored", logging.String(logging.FieldRecordID, rec.ID), logging.Error(err))
			return outcomeSkipped
		}
		q.logger.Error("upload failed terminally",
			logging.String(logging.FieldRecordID, rec.ID),
			logging.Int("attempts", attempts),
			logging.Error(cause),
			logging.String(logging.FieldEventType, "upload_failed"),
			logging.String(logging.FieldErrorHint, "retry manually with 'proofbox retry'"),
		)
		if err := q.notifier.NotifyUploadFailed(ctx, rec.ID, message); err != nil {
			q.logger.Debug("failure notification failed", logging.Error(err))
		}
		return outcomeFailed
	}

	if _, err := q.store.UpdateStatus(ctx, rec.ID, store.StatusPending, &store.StatusFields{
		Attempts:  &attempts,
		LastError: &message,
	}); err != nil {
		q.logger.Error("requeue errored", logging.String(logging.FieldRecordID, rec.ID), logging.Error(err))
		return outcomeSkipped
	}

	q.logger.Warn("upload attempt failed",
		logging.String(logging.FieldRecordID, rec.ID),
		logging.Int("attempts", attempts),
		logging.Error(cause),
		logging.String(logging.FieldEventType, "upload_retry"),
		logging.String(logging.FieldErrorHint, "will retry on backoff"),
	)
	q.scheduleRetry(rec.ID, attempts)
	return outcomeRetrying
}

// finishTerminal fails a record without consuming the retry budget, for
// conditions no retry can cure.
func (q *Queue) finishTerminal(ctx context.Context, rec *store.Record, cause error) outcome {
	telemetry.UploadFailures.Inc()
	attempts := q.cfg.MaxAttempts
	message := cause.Error()
	if _, err := q.store.UpdateStatus(ctx, rec.ID, store.StatusFailed, &store.StatusFields{
		Attempts:  &attempts,
		LastError: &message,
	}); err != nil {
		q.logger.Error("mark terminal failed errored", logging.String(logging.FieldRecordID, rec.ID), logging.Error(err))
		return outcomeSkipped
	}
	q.logger.Error("upload unrecoverable",
		logging.String(logging.FieldRecordID, rec.ID),
		logging.Error(cause),
		logging.String(logging.FieldEventType, "upload_unrecoverable"),
	)
	return outcomeFailed
}
