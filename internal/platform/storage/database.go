package storage

import (
	"os"
	"path/filepath"
	"strings"

	"formula-ocr-server/internal/platform/errors"
	"formula-ocr-server/internal/platform/storage/migrations"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultMigrations lists the schema migrations applied by OpenSQLite.
func DefaultMigrations() []Migration {
	return []Migration{
		&migrations.Migration001RecognitionRecords{},
	}
}

// OpenSQLite opens (creating the parent directory if needed) the sqlite
// database at dsn and brings its schema up to date.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New(errors.KindConfig, "storage.open", "sqlite dsn is required")
	}

	if dir := fileDir(dsn); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(errors.KindStorage, "storage.mkdir", "failed to create data directory", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.open", "failed to open database", err)
	}

	if err := NewMigrationManager(db, DefaultMigrations()...).RunMigrations(); err != nil {
		if sqlDB, cerr := db.DB(); cerr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}

	return db, nil
}

// fileDir returns the directory of a file-backed dsn, "" for in-memory or URI forms.
func fileDir(dsn string) string {
	if strings.HasPrefix(dsn, "file:") || strings.Contains(dsn, ":memory:") {
		return ""
	}
	path := dsn
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}
