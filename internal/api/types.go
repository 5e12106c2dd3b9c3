package api

// ExecutionInfo is opaque metadata about the backend workflow run.
// It is stored and echoed back verbatim; the client never interprets it
// beyond display.
type ExecutionInfo struct {
	ID      string `json:"id,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Mode    string `json:"mode,omitempty"`
}

// UploadResponse is the body of POST /api/jobs. A synchronous conversion
// returns DownloadURL directly and no job id.
type UploadResponse struct {
	JobID       string         `json:"jobId"`
	Filename    string         `json:"filename"`
	Execution   *ExecutionInfo `json:"execution,omitempty"`
	DownloadURL string         `json:"downloadUrl,omitempty"`
}

// StatusResponse is the body of GET /api/jobs/{jobId}/status.
type StatusResponse struct {
	Status      string         `json:"status"`
	Ready       bool           `json:"ready"`
	DownloadURL string         `json:"downloadUrl,omitempty"`
	Error       string         `json:"error,omitempty"`
	Execution   *ExecutionInfo `json:"execution,omitempty"`
}

// DownloadURLResponse is the body of GET /api/jobs/{jobId}/download-url.
type DownloadURLResponse struct {
	URL              string `json:"url"`
	Filename         string `json:"filename,omitempty"`
	ExpiresInSeconds int    `json:"expiresInSeconds,omitempty"`
}

// ExecutionResponse is the body of GET /api/jobs/{jobId}/execution.
type ExecutionResponse struct {
	JobID     string         `json:"jobId"`
	Execution *ExecutionInfo `json:"execution"`
	JobStatus string         `json:"jobStatus"`
}

type FileInfo struct {
	FileID        string `json:"fileId"`
	Filename      string `json:"filename"`
	Size          int64  `json:"size"`
	FormattedSize string `json:"formattedSize,omitempty"`
	UploadedAt    string `json:"uploadedAt,omitempty"`
}

// FilesResponse is the body of GET /api/files.
type FilesResponse struct {
	Files              []FileInfo `json:"files"`
	TotalFiles         int        `json:"totalFiles"`
	TotalSize          int64      `json:"totalSize"`
	FormattedTotalSize string     `json:"formattedTotalSize,omitempty"`
}

// DeleteResponse is the body of DELETE /api/files/{fileId}.
type DeleteResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	FileID   string `json:"fileId"`
	Filename string `json:"filename"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// JobEvent is one SSE message from GET /api/events/jobs/{jobId}.
// Servers guarantee at least type, jobId and status; the remaining fields
// mirror StatusResponse when present.
type JobEvent struct {
	Type        string         `json:"type"`
	JobID       string         `json:"jobId"`
	Status      string         `json:"status"`
	Ready       bool           `json:"ready,omitempty"`
	DownloadURL string         `json:"downloadUrl,omitempty"`
	Error       string         `json:"error,omitempty"`
	Execution   *ExecutionInfo `json:"execution,omitempty"`
}

// errorBody is the error envelope the service uses on non-2xx responses.
type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}
