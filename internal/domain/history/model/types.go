package model

import "time"

// Record statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Record is one persisted recognition outcome.
type Record struct {
	ID          string         `json:"id"`
	Model       string         `json:"model"`
	Latex       string         `json:"latex"`
	DebugPath   string         `json:"debug_path,omitempty"`
	Status      string         `json:"status"`
	ErrorKind   string         `json:"error_kind,omitempty"`
	ErrorDetail string         `json:"error_detail,omitempty"`
	Attempts    int            `json:"attempts"`
	Width       int            `json:"width,omitempty"`
	Height      int            `json:"height,omitempty"`
	SourceBytes int64          `json:"source_bytes,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
	CreatedAt   time.Time      `json:"created_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
