package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetPayload fetches a capture payload by record identifier. Returns
// nil, nil when no payload row exists (deleted by the TTL sweep or never
// created).
func (s *Store) GetPayload(ctx context.Context, id string) (*Payload, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, data, thumbnail, expires_at, updated_at FROM capture_payloads WHERE id = ?`, id)

	var (
		payload    Payload
		thumbnail  []byte
		expiresRaw sql.NullString
		updatedRaw string
	)
	err := row.Scan(&payload.ID, &payload.Data, &thumbnail, &expiresRaw, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get payload: %w", err)
	}

	payload.Thumbnail = thumbnail
	if expiresRaw.Valid {
		if expires, err := parseTimeString(expiresRaw.String); err == nil {
			payload.ExpiresAt = &expires
		}
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		payload.UpdatedAt = updated
	}
	return &payload, nil
}

// UpdatePayload replaces the primary bytes (processed output) and, when
// non-nil, the thumbnail. The record's byte_size is not touched here; the
// preprocessing pipeline records sizes through SetProvenance.
func (s *Store) UpdatePayload(ctx context.Context, id string, data, thumbnail []byte) error {
	ctx = ensureContext(ctx)
	if len(data) == 0 {
		return errors.New("payload data is required")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var (
		res sql.Result
		err error
	)
	if thumbnail != nil {
		res, err = s.execWithRetry(ctx,
			`UPDATE capture_payloads SET data = ?, thumbnail = ?, updated_at = ? WHERE id = ?`,
			data, thumbnail, now, id,
		)
	} else {
		res, err = s.execWithRetry(ctx,
			`UPDATE capture_payloads SET data = ?, updated_at = ? WHERE id = ?`,
			data, now, id,
		)
	}
	if err != nil {
		return fmt.Errorf("update payload: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("payload %s not found", id)
	}
	return nil
}

// SetExpiry marks a payload eligible for deletion at the given time. The
// metadata record survives the eventual sweep.
func (s *Store) SetExpiry(ctx context.Context, id string, at time.Time) error {
	ctx = ensureContext(ctx)
	res, err := s.execWithRetry(ctx,
		`UPDATE capture_payloads SET expires_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("set expiry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("payload %s not found", id)
	}
	return nil
}

// DeleteExpiredPayloads removes payload rows whose expiry has passed and
// returns how many were reclaimed. Records are untouched.
func (s *Store) DeleteExpiredPayloads(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM capture_payloads WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired payloads: %w", err)
	}
	return res.RowsAffected()
}
