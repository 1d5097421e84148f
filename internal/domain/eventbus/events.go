package eventbus

import "time"

// 事件类型定义
const (
	EventRecognitionCompleted = "recognition:completed"
	EventRecognitionFailed    = "recognition:failed"
)

// RecognitionEventData describes one finished recognition request.
type RecognitionEventData struct {
	RequestID   string        `json:"request_id"`
	Model       string        `json:"model"`
	Latex       string        `json:"latex,omitempty"`
	DebugPath   string        `json:"debug_path,omitempty"`
	ErrorKind   string        `json:"error_kind,omitempty"`
	ErrorDetail string        `json:"error_detail,omitempty"`
	HTTPStatus  int           `json:"http_status"`
	Attempts    int           `json:"attempts"`
	Width       int           `json:"width,omitempty"`
	Height      int           `json:"height,omitempty"`
	SourceBytes int64         `json:"source_bytes,omitempty"`
	Filename    string        `json:"filename,omitempty"`
	ContentType string        `json:"content_type,omitempty"`
	Duration    time.Duration `json:"duration"`
	OccurredAt  time.Time     `json:"occurred_at"`
}
