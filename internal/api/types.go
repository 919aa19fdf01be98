package api

// UploadTargetRequest asks the evidence service for a presigned upload
// destination. Repeating the call with the same PhotoID must be safe: the
// server keys targets by client id and never mints a second object for one.
type UploadTargetRequest struct {
	PhotoID     string `json:"photo_id"`
	RemoteKey   string `json:"remote_key,omitempty"`
	ContentType string `json:"contentType"`
}

// UploadTargetResponse carries the presigned destination.
type UploadTargetResponse struct {
	PresignedURL string `json:"presignedUrl"`
	FileURL      string `json:"fileUrl"`
	RemoteKey    string `json:"remote_key"`
}

// PhotoRecordRequest registers the uploaded object server-side. The server
// upserts on ClientPhotoID so retries never create duplicate records.
type PhotoRecordRequest struct {
	ClientPhotoID string `json:"client_photo_id"`
	RemoteKey     string `json:"remote_key"`
	FileURL       string `json:"file_url"`
	FileSize      int64  `json:"file_size"`
	MimeType      string `json:"mime_type"`
	TakenAt       string `json:"taken_at"`
	Stage         string `json:"stage"`
	JobID         string `json:"job_id"`
	Location      string `json:"location,omitempty"`
}

// AnalysisRequest queues the uploaded artifact for downstream asynchronous
// analysis. Best-effort only.
type AnalysisRequest struct {
	ClientPhotoID string `json:"client_photo_id"`
	FileURL       string `json:"file_url"`
}
