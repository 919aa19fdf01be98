package testsupport

import (
	"context"
	"testing"
	"time"

	"proofbox/internal/config"
	"proofbox/internal/store"
)

// MustOpenStore opens a capture store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewCapture persists a capture record for tests using the provided store.
func NewCapture(t testing.TB, st *store.Store, jobID string, data []byte) *store.Record {
	t.Helper()

	rec, err := st.Create(context.Background(), store.NewCapture{
		JobID:   jobID,
		JobName: "Test Job",
		Stage:   store.StageDuring,
		TakenAt: time.Now().UTC(),
		Data:    data,
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return rec
}
