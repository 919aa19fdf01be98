package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UpdateStatus applies a validated status transition. The current status is
// read and checked against the legal transition table inside the same
// transaction that writes the change, so concurrent callers can never apply
// conflicting transitions to one record. Returns nil, nil when the record
// is missing and ErrInvalidTransition when the (current, to) pair is not in
// the table.
func (s *Store) UpdateStatus(ctx context.Context, id string, to Status, fields *StatusFields) (*Record, error) {
	ctx = ensureContext(ctx)
	if _, ok := statusSet[to]; !ok {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}

	var missing bool
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin status tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var currentStr string
		err = tx.QueryRowContext(ctx, `SELECT status FROM capture_records WHERE id = ?`, id).Scan(&currentStr)
		if errors.Is(err, sql.ErrNoRows) {
			missing = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("read current status: %w", err)
		}

		current := Status(currentStr)
		if !CanTransition(current, to) {
			return fmt.Errorf("%w: %s -> %s (record %s)", ErrInvalidTransition, current, to, id)
		}

		setClauses := []string{"status = ?", "updated_at = ?"}
		args := []any{to, time.Now().UTC().Format(time.RFC3339Nano)}
		if fields != nil {
			if fields.Attempts != nil {
				setClauses = append(setClauses, "attempts = ?")
				args = append(args, *fields.Attempts)
			}
			if fields.LastError != nil {
				setClauses = append(setClauses, "last_error = ?")
				args = append(args, nullableString(*fields.LastError))
			}
			if fields.UploadedAt != nil {
				setClauses = append(setClauses, "uploaded_at = ?")
				args = append(args, fields.UploadedAt.UTC().Format(time.RFC3339Nano))
			}
			if fields.RemoteKey != nil {
				setClauses = append(setClauses, "remote_key = ?")
				args = append(args, nullableString(*fields.RemoteKey))
			}
		}
		args = append(args, id)

		if _, err := tx.ExecContext(ctx,
			`UPDATE capture_records SET `+strings.Join(setClauses, ", ")+` WHERE id = ?`, args...,
		); err != nil {
			return fmt.Errorf("apply status update: %w", err)
		}

		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	if missing {
		return nil, nil
	}

	return s.GetByID(ctx, id)
}

// ResetOrphanedUploading forces every record left in uploading back to
// pending with attempts and error cleared. Run once at startup: an upload
// in flight when the process died holds no lock that survives a crash, so
// any uploading record at boot is an orphan.
func (s *Store) ResetOrphanedUploading(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE capture_records
         SET status = ?, attempts = 0, last_error = NULL, updated_at = ?
         WHERE status = ?`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusUploading,
	)
	if err != nil {
		return 0, fmt.Errorf("reset orphaned records: %w", err)
	}
	return res.RowsAffected()
}

// ForceResetUploading returns records stuck in uploading since before the
// cutoff back to pending with attempts cleared. Operator-triggered; normal
// operation never resets in-flight records.
func (s *Store) ForceResetUploading(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE capture_records
         SET status = ?, attempts = 0, last_error = NULL, updated_at = ?
         WHERE status = ? AND updated_at < ?`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusUploading,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("force reset uploading: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed records back to pending with attempts and error
// reset. With no ids, every failed record is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.execWithRetry(ctx,
			`UPDATE capture_records
             SET status = ?, attempts = 0, last_error = NULL, updated_at = ?
             WHERE status = ?`,
			StatusPending,
			now,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed records: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusPending, now)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE capture_records
        SET status = ?, attempts = 0, last_error = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status = '` + string(StatusFailed) + `'`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected records: %w", err)
	}
	return res.RowsAffected()
}
