// Package store is the SQLite-backed library: tracks, tags, smart playlists,
// album and artist aggregates, and mirror source state.
package store

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

//go:embed schema.sql
var schema string

// Store wraps a gorm connection to the library database.
type Store struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// Open returns a connection to a migrated sqlite3 database file on disk,
// creating the file and running migrations if necessary.
func Open(filename string, logger *logrus.Logger) (*Store, error) {
	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	dsn := filename + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database at '%s': %w", filename, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	// sqlite allows a single writer
	sqlDB.SetMaxOpenConns(1)

	if err := gdb.Exec(schema).Error; err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database at '%s': %w", filename, err)
	}

	logger.WithFields(logrus.Fields{
		"component": "store",
		"operation": "open",
		"path":      filename,
	}).Debug("Library database opened")

	return &Store{db: gdb, logger: logger}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
