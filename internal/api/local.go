package api

import "time"

// Types shared between the daemon's local HTTP API and the CLI client.

// CaptureView is the wire form of a capture record.
type CaptureView struct {
	ID         string     `json:"id"`
	JobID      string     `json:"job_id"`
	JobName    string     `json:"job_name,omitempty"`
	Location   string     `json:"location,omitempty"`
	Stage      string     `json:"stage"`
	TakenAt    time.Time  `json:"taken_at"`
	Status     string     `json:"status"`
	Attempts   int        `json:"attempts"`
	LastError  string     `json:"last_error,omitempty"`
	UploadedAt *time.Time `json:"uploaded_at,omitempty"`
	RemoteKey  string     `json:"remote_key,omitempty"`
	MimeType   string     `json:"mime_type"`
	ByteSize   int64      `json:"byte_size"`
	Processed  bool       `json:"processed"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// CaptureListResponse wraps a capture listing.
type CaptureListResponse struct {
	Captures []CaptureView `json:"captures"`
	Total    int           `json:"total"`
}

// QueueCounts aggregates record counts per lifecycle state.
type QueueCounts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Uploading int `json:"uploading"`
	Uploaded  int `json:"uploaded"`
	Failed    int `json:"failed"`
}

// StatusResponse is the daemon status document.
type StatusResponse struct {
	Running  bool        `json:"running"`
	Paused   bool        `json:"paused"`
	InFlight int         `json:"in_flight"`
	Queue    QueueCounts `json:"queue"`
	NetWatch bool        `json:"net_watch"`
	DBPath   string      `json:"db_path"`
	LockPath string      `json:"lock_path"`
	Version  string      `json:"version"`
}

// CountResponse reports how many records an operation touched.
type CountResponse struct {
	Count int64 `json:"count"`
}

// MessageResponse carries a human-readable acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the error envelope for the local API.
type ErrorResponse struct {
	Error string `json:"error"`
}
