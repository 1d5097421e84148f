package observability

import (
	"context"
	"strconv"
	"time"
)

// RecognitionSample describes one finished recognizer call.
type RecognitionSample struct {
	Model       string
	Outcome     string
	Attempts    int
	RateLimited int
	Duration    time.Duration
}

// RecordRecognition emits the recognizer.* datapoints for one call.
func RecordRecognition(ctx context.Context, s RecognitionSample) {
	labels := map[string]string{
		"component": "recognizer",
		"model":     s.Model,
		"outcome":   s.Outcome,
	}
	RecordMetric(ctx, "recognizer.attempts", float64(s.Attempts), labels)
	RecordMetric(ctx, "recognizer.duration_ms", float64(s.Duration.Milliseconds()), labels)
	if s.RateLimited > 0 {
		RecordMetric(ctx, "recognizer.rate_limited", float64(s.RateLimited), labels)
	}
}

// ImageSample describes one preprocessed upload.
type ImageSample struct {
	Format       string
	SourceWidth  int
	SourceHeight int
	Downscaled   bool
	EncodedBytes int
}

// RecordImage emits the image.* datapoints for one preprocessed upload.
func RecordImage(ctx context.Context, s ImageSample) {
	labels := map[string]string{
		"component":  "image",
		"format":     s.Format,
		"downscaled": strconv.FormatBool(s.Downscaled),
	}
	RecordMetric(ctx, "image.source_pixels", float64(int64(s.SourceWidth)*int64(s.SourceHeight)), labels)
	RecordMetric(ctx, "image.encoded_bytes", float64(s.EncodedBytes), labels)
}
