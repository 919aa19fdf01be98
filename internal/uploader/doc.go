// Package uploader drives capture records from pending to durably stored
// remotely.
//
// The queue is a greedy work-conserving scheduler, not a strict pipeline:
// it keeps the concurrency ceiling saturated while pending work remains,
// so records may complete out of capture order. Correctness never relies
// on cross-operation locking; the store's transition-table validation is
// the authoritative guard, and the in-memory in-flight set only prevents
// one queue instance from claiming the same record twice.
package uploader
