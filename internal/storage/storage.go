// Package storage persists flow execution reports in SQLite through gorm.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var errNotInitialized = errors.New("storage not initialized")

// Config configures the SQLite database.
type Config struct {
	Path        string
	InMemory    bool
	BusyTimeout time.Duration
	Logger      logger.Interface
}

// Storage is the run history database.
type Storage struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// Open opens (or creates) the database and migrates the schema.
func Open(ctx context.Context, cfg Config) (*Storage, error) {
	dsn, err := dsnFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	gormCfg := &gorm.Config{Logger: logger.Discard}
	if cfg.Logger != nil {
		gormCfg.Logger = cfg.Logger
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY churn.
	sqlDB.SetMaxOpenConns(1)

	s := &Storage{db: db, sqlDB: sqlDB}

	if err := s.db.WithContext(ctx).Exec("PRAGMA foreign_keys=ON;").Error; err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the database.
func (s *Storage) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping verifies the connection.
func (s *Storage) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return errNotInitialized
	}
	return s.sqlDB.PingContext(ctx)
}

// Migrate creates or updates the schema.
func (s *Storage) Migrate(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	if err := s.db.WithContext(ctx).AutoMigrate(&RunRecord{}, &StepRecord{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func dsnFromConfig(cfg Config) (string, error) {
	timeoutMS := int(cfg.BusyTimeout / time.Millisecond)
	if timeoutMS <= 0 {
		timeoutMS = 5000
	}

	if cfg.InMemory {
		return fmt.Sprintf("file::memory:?_pragma=busy_timeout(%d)", timeoutMS), nil
	}
	if cfg.Path == "" {
		return "", errors.New("sqlite path is required when InMemory=false")
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", cfg.Path, timeoutMS), nil
}
