package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"formula-ocr-server/internal/domain/history/model"

	"github.com/bytedance/sonic"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// recognitionRow maps the recognition_records table created by the storage migrations.
type recognitionRow struct {
	ID          string `gorm:"primaryKey;size:64"`
	Model       string `gorm:"size:255;not null"`
	Latex       string
	DebugPath   string `gorm:"size:1024"`
	Status      string `gorm:"size:32;not null;index"`
	ErrorKind   string `gorm:"size:64"`
	ErrorDetail string
	Attempts    int
	Width       int
	Height      int
	SourceBytes int64
	DurationMs  int64
	CreatedAt   time.Time `gorm:"not null;index"`
	Metadata    datatypes.JSON
}

func (recognitionRow) TableName() string {
	return "recognition_records"
}

type sqliteStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewSQLite builds a SQLite-backed history store.
func NewSQLite(db *gorm.DB, cfg Config) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	return &sqliteStore{
		db:  db,
		ttl: cfg.TTL,
	}, nil
}

func (s *sqliteStore) Save(ctx context.Context, record model.Record) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	row, err := toRow(record)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *sqliteStore) Recent(ctx context.Context, limit int) ([]model.Record, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if cutoff, ok := s.cutoff(); ok {
		query = query.Where("created_at >= ?", cutoff)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []recognitionRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]model.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

func (s *sqliteStore) Get(ctx context.Context, id string) (model.Record, error) {
	var row recognitionRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Record{}, ErrNotFound
		}
		return model.Record{}, err
	}
	if cutoff, ok := s.cutoff(); ok && row.CreatedAt.Before(cutoff) {
		return model.Record{}, ErrNotFound
	}
	return fromRow(row), nil
}

func (s *sqliteStore) Stats(ctx context.Context) (map[string]any, error) {
	var total, failed int64
	if err := s.db.WithContext(ctx).Model(&recognitionRow{}).Count(&total).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&recognitionRow{}).Where("status = ?", model.StatusFailed).Count(&failed).Error; err != nil {
		return nil, err
	}
	return map[string]any{
		"type":   DriverSQLite,
		"total":  total,
		"failed": failed,
		"ttl":    int(s.ttl.Seconds()),
	}, nil
}

// Close leaves the shared database handle open; its owner closes it.
func (s *sqliteStore) Close(context.Context) error {
	return nil
}

func (s *sqliteStore) cutoff() (time.Time, bool) {
	if s.ttl <= 0 {
		return time.Time{}, false
	}
	return time.Now().Add(-s.ttl), true
}

func toRow(record model.Record) (recognitionRow, error) {
	row := recognitionRow{
		ID:          record.ID,
		Model:       record.Model,
		Latex:       record.Latex,
		DebugPath:   record.DebugPath,
		Status:      record.Status,
		ErrorKind:   record.ErrorKind,
		ErrorDetail: record.ErrorDetail,
		Attempts:    record.Attempts,
		Width:       record.Width,
		Height:      record.Height,
		SourceBytes: record.SourceBytes,
		DurationMs:  record.DurationMs,
		CreatedAt:   record.CreatedAt,
	}
	if len(record.Metadata) > 0 {
		meta, err := sonic.Marshal(record.Metadata)
		if err != nil {
			return recognitionRow{}, fmt.Errorf("encode metadata: %w", err)
		}
		row.Metadata = datatypes.JSON(meta)
	}
	return row, nil
}

func fromRow(row recognitionRow) model.Record {
	record := model.Record{
		ID:          row.ID,
		Model:       row.Model,
		Latex:       row.Latex,
		DebugPath:   row.DebugPath,
		Status:      row.Status,
		ErrorKind:   row.ErrorKind,
		ErrorDetail: row.ErrorDetail,
		Attempts:    row.Attempts,
		Width:       row.Width,
		Height:      row.Height,
		SourceBytes: row.SourceBytes,
		DurationMs:  row.DurationMs,
		CreatedAt:   row.CreatedAt,
	}
	if len(row.Metadata) > 0 {
		var meta map[string]any
		if err := sonic.Unmarshal(row.Metadata, &meta); err == nil {
			record.Metadata = meta
		}
	}
	return record
}
