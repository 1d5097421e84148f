package recognize

import (
	"context"

	domainimage "formula-ocr-server/internal/domain/image"
	"formula-ocr-server/internal/domain/recognition"
	httptransport "formula-ocr-server/internal/transport/http"
)

// Preprocessor is the image stage of the pipeline.
type Preprocessor interface {
	Validate(contentType string, declaredSize int64) error
	Process(ctx context.Context, input domainimage.Input) (*domainimage.Output, error)
}

// Recognizer is the remote model stage of the pipeline.
type Recognizer interface {
	Recognize(ctx context.Context, payload, model string) (*recognition.Result, error)
}

// Publisher receives one event per finished request.
type Publisher interface {
	PublishAsync(topic string, args ...interface{}) bool
}

// RecognizeResponse is the body of a successful POST /api/recognize.
type RecognizeResponse struct {
	Latex     string `json:"latex"`
	DebugPath string `json:"debug_path"`
}

// ErrorResponse is the body of every failed POST /api/recognize.
type ErrorResponse = httptransport.DetailResponse
