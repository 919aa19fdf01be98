// Package store provides durable persistence for capture records and their
// binary payloads, backed by SQLite.
//
// Metadata and payload rows share the same client-generated identifier but
// live in separate tables so metadata scans never page blob data. All record
// status changes flow through UpdateStatus, which enforces the legal
// transition table; callers outside the upload queue should treat that
// method as private to the queue.
package store
