package storage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"
)

func memoryDSN() string {
	return fmt.Sprintf("file:storage-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
}

func TestOpenSQLiteRunsMigrations(t *testing.T) {
	db, err := OpenSQLite(memoryDSN())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { closeDB(t, db) })

	if !db.Migrator().HasTable("recognition_records") {
		t.Fatal("expected recognition_records table")
	}

	history, err := NewMigrationManager(db).GetMigrationHistory()
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Version != "001_recognition_records" {
		t.Fatalf("unexpected migration history: %+v", history)
	}
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	db, err := OpenSQLite(memoryDSN())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { closeDB(t, db) })

	manager := NewMigrationManager(db, DefaultMigrations()...)
	if err := manager.RunMigrations(); err != nil {
		t.Fatalf("second run: %v", err)
	}
	var count int64
	db.Model(&MigrationRecord{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 migration record, got %d", count)
	}
}

func TestRollbackMigration(t *testing.T) {
	db, err := OpenSQLite(memoryDSN())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { closeDB(t, db) })

	manager := NewMigrationManager(db, DefaultMigrations()...)
	if err := manager.RollbackMigration("001_recognition_records"); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if db.Migrator().HasTable("recognition_records") {
		t.Fatal("table should be dropped after rollback")
	}
	if err := manager.RollbackMigration("001_recognition_records"); err == nil {
		t.Fatal("expected error rolling back an unapplied migration")
	}
}

func TestOpenSQLiteCreatesDirectory(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "history.db")
	db, err := OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	closeDB(t, db)
}

func TestOpenSQLiteRequiresDSN(t *testing.T) {
	if _, err := OpenSQLite("  "); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func closeDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	_ = sqlDB.Close()
}
