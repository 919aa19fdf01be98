package store

import (
	"strings"
	"time"
)

// Status represents the upload lifecycle of a capture record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusUploaded  Status = "uploaded"
	StatusFailed    Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusUploading,
	StatusUploaded,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// legalTransitions is the authoritative state machine. Any (from, to) pair
// not present here is rejected by UpdateStatus with ErrInvalidTransition.
var legalTransitions = map[Status][]Status{
	StatusPending:   {StatusUploading},
	StatusUploading: {StatusUploaded, StatusPending, StatusFailed},
	StatusFailed:    {StatusPending},
}

// CanTransition reports whether moving a record from one status to another
// is permitted by the state machine.
func CanTransition(from, to Status) bool {
	for _, candidate := range legalTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// CaptureStage tags when in the job a photo was taken.
type CaptureStage string

const (
	StageBefore CaptureStage = "before"
	StageDuring CaptureStage = "during"
	StageAfter  CaptureStage = "after"
)

// ParseStage converts a string into a known CaptureStage.
func ParseStage(value string) (CaptureStage, bool) {
	normalized := CaptureStage(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case StageBefore, StageDuring, StageAfter:
		return normalized, true
	}
	return "", false
}

// Provenance records the preprocessing work already applied to a payload.
// An empty SHA256 means the compression stage has not run; an empty
// WatermarkVersion means the watermark stage has not run. The markers let a
// crash-interrupted pipeline resume without redoing completed work.
type Provenance struct {
	SHA256           string `json:"sha256,omitempty"`
	OriginalBytes    int64  `json:"original_bytes,omitempty"`
	ProcessedBytes   int64  `json:"processed_bytes,omitempty"`
	MaxDimensionPx   int    `json:"max_dimension_px,omitempty"`
	JPEGQuality      int    `json:"jpeg_quality,omitempty"`
	WatermarkVersion string `json:"watermark_version,omitempty"`
}

// Compressed reports whether the compression stage has completed.
func (p Provenance) Compressed() bool { return p.SHA256 != "" }

// Watermarked reports whether the watermark stage has completed.
func (p Provenance) Watermarked() bool { return p.WatermarkVersion != "" }

// Complete reports whether both preprocessing stages have completed.
func (p Provenance) Complete() bool { return p.Compressed() && p.Watermarked() }

// Record is the durable metadata for one captured photo.
type Record struct {
	ID         string
	JobID      string
	JobName    string
	Location   string
	Stage      CaptureStage
	TakenAt    time.Time
	Status     Status
	Attempts   int
	LastError  string
	UploadedAt *time.Time
	RemoteKey  string
	MimeType   string
	ByteSize   int64
	Provenance Provenance
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Payload is the binary data for one capture record. Thumbnail is optional,
// ExpiresAt is set once the upload has been confirmed remotely.
type Payload struct {
	ID        string
	Data      []byte
	Thumbnail []byte
	ExpiresAt *time.Time
	UpdatedAt time.Time
}

// NewCapture describes a capture about to be persisted.
type NewCapture struct {
	ID       string
	JobID    string
	JobName  string
	Location string
	Stage    CaptureStage
	TakenAt  time.Time
	MimeType string
	Data     []byte
}

// StatusFields carries the optional mutations applied alongside a status
// transition. Nil pointers leave the column untouched.
type StatusFields struct {
	Attempts   *int
	LastError  *string
	UploadedAt *time.Time
	RemoteKey  *string
}

// HealthSummary describes aggregated record counts per lifecycle state.
type HealthSummary struct {
	Total     int
	Pending   int
	Uploading int
	Uploaded  int
	Failed    int
}

// DatabaseHealth captures diagnostic information about the capture database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TablesPresent    []string
	IntegrityCheck   bool
	TotalRecords     int
	Error            string
}
