package history

import (
	"context"
	"time"

	"formula-ocr-server/internal/domain/eventbus"
	"formula-ocr-server/internal/domain/history/model"
	"formula-ocr-server/internal/domain/history/store"
	"formula-ocr-server/internal/platform/logging"

	"github.com/google/uuid"
)

const saveTimeout = 5 * time.Second

// Recorder persists recognition events into a history store. Persistence
// failures are logged only.
type Recorder struct {
	store  store.Store
	logger *logging.Logger
}

func NewRecorder(s store.Store, logger *logging.Logger) *Recorder {
	return &Recorder{store: s, logger: logger}
}

// Attach subscribes the recorder to the recognition topics on bus.
func (r *Recorder) Attach(bus *eventbus.AsyncEventBus) error {
	if err := bus.Subscribe(eventbus.EventRecognitionCompleted, r.handle); err != nil {
		return err
	}
	return bus.Subscribe(eventbus.EventRecognitionFailed, r.handle)
}

func (r *Recorder) handle(data eventbus.RecognitionEventData) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	record := ToRecord(data)
	if err := r.store.Save(ctx, record); err != nil {
		r.logger.WarnTag("历史", "保存识别记录失败: id=%s err=%v", record.ID, err)
		return
	}
	r.logger.DebugTag("历史", "识别记录已保存: id=%s status=%s", record.ID, record.Status)
}

// ToRecord converts a recognition event into its persisted form.
func ToRecord(data eventbus.RecognitionEventData) model.Record {
	id := data.RequestID
	if id == "" {
		id = uuid.NewString()
	}
	status := model.StatusSuccess
	if data.ErrorKind != "" {
		status = model.StatusFailed
	}
	createdAt := data.OccurredAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	meta := map[string]any{}
	if data.Filename != "" {
		meta["filename"] = data.Filename
	}
	if data.ContentType != "" {
		meta["content_type"] = data.ContentType
	}
	if data.HTTPStatus != 0 {
		meta["http_status"] = data.HTTPStatus
	}
	if len(meta) == 0 {
		meta = nil
	}

	return model.Record{
		ID:          id,
		Model:       data.Model,
		Latex:       data.Latex,
		DebugPath:   data.DebugPath,
		Status:      status,
		ErrorKind:   data.ErrorKind,
		ErrorDetail: data.ErrorDetail,
		Attempts:    data.Attempts,
		Width:       data.Width,
		Height:      data.Height,
		SourceBytes: data.SourceBytes,
		DurationMs:  data.Duration.Milliseconds(),
		CreatedAt:   createdAt,
		Metadata:    meta,
	}
}
