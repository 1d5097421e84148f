package migrations

import (
	"gorm.io/gorm"
)

// Migration001RecognitionRecords 创建识别历史表
type Migration001RecognitionRecords struct{}

func (m *Migration001RecognitionRecords) Version() string {
	return "001_recognition_records"
}

func (m *Migration001RecognitionRecords) Description() string {
	return "Create recognition history table"
}

func (m *Migration001RecognitionRecords) Up(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS recognition_records (
			id VARCHAR(64) PRIMARY KEY,
			model VARCHAR(255) NOT NULL,
			latex TEXT,
			debug_path VARCHAR(1024),
			status VARCHAR(32) NOT NULL,
			error_kind VARCHAR(64),
			error_detail TEXT,
			attempts INTEGER NOT NULL DEFAULT 0,
			width INTEGER NOT NULL DEFAULT 0,
			height INTEGER NOT NULL DEFAULT 0,
			source_bytes INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			metadata JSON
		)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_recognition_records_created_at ON recognition_records(created_at)`).Error; err != nil {
		return err
	}
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_recognition_records_status ON recognition_records(status)`).Error
}

func (m *Migration001RecognitionRecords) Down(db *gorm.DB) error {
	return db.Exec(`DROP TABLE IF EXISTS recognition_records`).Error
}
