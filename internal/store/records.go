package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const recordColumns = "id, job_id, job_name, location, stage, taken_at, status, attempts, last_error, uploaded_at, remote_key, mime_type, byte_size, provenance_json, created_at, updated_at"

// Create durably persists a new capture record plus its payload in one
// transaction. The record starts pending with zero attempts. Create never
// touches the network; failures indicate local storage trouble and are
// wrapped in ErrStorage.
func (s *Store) Create(ctx context.Context, capture NewCapture) (*Record, error) {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(capture.JobID) == "" {
		return nil, errors.New("job id is required")
	}
	if len(capture.Data) == 0 {
		return nil, errors.New("payload data is required")
	}
	if _, ok := ParseStage(string(capture.Stage)); !ok {
		return nil, fmt.Errorf("unknown capture stage %q", capture.Stage)
	}

	id := strings.TrimSpace(capture.ID)
	if id == "" {
		id = uuid.NewString()
	}
	takenAt := capture.TakenAt
	if takenAt.IsZero() {
		takenAt = time.Now()
	}
	mimeType := strings.TrimSpace(capture.MimeType)
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin capture tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO capture_records (
                id, job_id, job_name, location, stage, taken_at, status,
                attempts, mime_type, byte_size, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id,
			capture.JobID,
			nullableString(capture.JobName),
			nullableString(capture.Location),
			string(capture.Stage),
			takenAt.UTC().Format(time.RFC3339Nano),
			StatusPending,
			0,
			mimeType,
			int64(len(capture.Data)),
			timestamp,
			timestamp,
		); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO capture_payloads (id, data, updated_at) VALUES (?, ?, ?)`,
			id,
			capture.Data,
			timestamp,
		); err != nil {
			return fmt.Errorf("insert payload: %w", err)
		}

		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a capture record by identifier. Returns nil, nil when the
// record does not exist.
func (s *Store) GetByID(ctx context.Context, id string) (*Record, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM capture_records WHERE id = ?`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

// ListByJob returns all records owned by a job, most recent capture first.
// The result is a snapshot at call time.
func (s *Store) ListByJob(ctx context.Context, jobID string) ([]*Record, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM capture_records WHERE job_id = ? ORDER BY taken_at DESC`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("list by job: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListByStatus returns records in a given status ordered by creation time.
// A limit of 0 means no limit.
func (s *Store) ListByStatus(ctx context.Context, status Status, limit int) ([]*Record, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + recordColumns + ` FROM capture_records WHERE status = ? ORDER BY created_at`
	args := []any{status}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list by status: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// List returns records filtered by status set, or all records when no
// status is provided.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Record, error) {
	ctx = ensureContext(ctx)
	baseQuery := `SELECT ` + recordColumns + ` FROM capture_records`
	orderClause := ` ORDER BY created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// StuckUploading returns records sitting in uploading since before the
// cutoff, a symptom of a crash mid-upload. Detection only; recovery goes
// through ResetOrphanedUploading or ForceResetUploading.
func (s *Store) StuckUploading(ctx context.Context, cutoff time.Time) ([]*Record, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM capture_records WHERE status = ? AND updated_at < ? ORDER BY updated_at`,
		StatusUploading,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("list stuck records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// SetProvenance stores the preprocessing markers for a record.
func (s *Store) SetProvenance(ctx context.Context, id string, prov Provenance) error {
	ctx = ensureContext(ctx)
	encoded, err := json.Marshal(prov)
	if err != nil {
		return fmt.Errorf("marshal provenance: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE capture_records SET provenance_json = ?, byte_size = CASE WHEN ? > 0 THEN ? ELSE byte_size END, updated_at = ? WHERE id = ?`,
		string(encoded),
		prov.ProcessedBytes,
		prov.ProcessedBytes,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("set provenance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("record %s not found", id)
	}
	return nil
}

// Delete removes both the record and its payload. Reserved for explicit
// user deletion; the upload lifecycle never deletes records.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	ctx = ensureContext(ctx)
	var deleted bool
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin delete tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx, `DELETE FROM capture_records WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM capture_payloads WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete payload: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		deleted = affected > 0
		return tx.Commit()
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func collectRecords(rows *sql.Rows) ([]*Record, error) {
	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id          string
		jobID       string
		jobName     sql.NullString
		location    sql.NullString
		stage       string
		takenRaw    string
		statusStr   string
		attempts    int
		lastError   sql.NullString
		uploadedRaw sql.NullString
		remoteKey   sql.NullString
		mimeType    string
		byteSize    int64
		provRaw     sql.NullString
		createdRaw  string
		updatedRaw  string
	)

	if err := scanner.Scan(
		&id,
		&jobID,
		&jobName,
		&location,
		&stage,
		&takenRaw,
		&statusStr,
		&attempts,
		&lastError,
		&uploadedRaw,
		&remoteKey,
		&mimeType,
		&byteSize,
		&provRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	record := &Record{
		ID:        id,
		JobID:     jobID,
		JobName:   jobName.String,
		Location:  location.String,
		Stage:     CaptureStage(stage),
		Status:    Status(statusStr),
		Attempts:  attempts,
		LastError: lastError.String,
		RemoteKey: remoteKey.String,
		MimeType:  mimeType,
		ByteSize:  byteSize,
	}

	if provRaw.Valid && provRaw.String != "" {
		if err := json.Unmarshal([]byte(provRaw.String), &record.Provenance); err != nil {
			return nil, fmt.Errorf("decode provenance for %s: %w", id, err)
		}
	}

	if taken, err := parseTimeString(takenRaw); err == nil {
		record.TakenAt = taken
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		record.UpdatedAt = updated
	}
	if uploadedRaw.Valid {
		if uploaded, err := parseTimeString(uploadedRaw.String); err == nil {
			record.UploadedAt = &uploaded
		}
	}
	return record, nil
}
