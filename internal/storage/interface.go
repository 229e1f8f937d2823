/*
Package storage implements the persistent storage layer for the search engine.

This package provides SQLite-based storage for search history, the embedding
cache, the vector collections behind the tool and server indices, and
workflow checkpoints. It degrades gracefully if the database is unavailable:
history and cache operations become no-ops.

The database is stored at ~/.tool-hub-search/search.db by default and uses
modernc.org/sqlite (a pure Go, CGo-free implementation).
*/
package storage

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Storage defines the interface for persistent storage operations.
type Storage interface {
	// Init initializes the database and runs migrations.
	Init() error

	// RecordSearch records a completed search for analytics.
	RecordSearch(search SearchRecord) error

	// GetSearchHistory retrieves searches recorded since a given time.
	GetSearchHistory(since time.Time) ([]SearchRecord, error)

	// SaveEmbedding caches an embedding vector under a content key.
	SaveEmbedding(key string, vector []float32, version string) error

	// GetEmbedding retrieves a cached embedding and its model version.
	GetEmbedding(key string) ([]float32, string, error)

	// Cleanup removes old records based on retention policy.
	Cleanup(retention time.Duration) error

	// DB exposes the connection for the vector and checkpoint stores.
	// It is nil when storage is disabled.
	DB() *sql.DB

	// Close closes the database connection.
	Close() error
}

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db       *sql.DB
	dbPath   string
	enabled  bool
	logger   *zap.Logger
	mu       sync.Mutex
	initOnce sync.Once
}

// DefaultPath returns ~/.tool-hub-search/search.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".tool-hub-search", "search.db"), nil
}

// NewStorage creates a new SQLite storage instance at dbPath.
//
// An empty dbPath selects DefaultPath. If the directory doesn't exist, it
// will be created by Init. If the database cannot be opened, the storage will
// be disabled but operations will not fail.
func NewStorage(dbPath string, logger *zap.Logger) *SQLiteStorage {
	if logger == nil {
		logger = zap.NewNop()
	}

	if dbPath == "" {
		path, err := DefaultPath()
		if err != nil {
			logger.Warn("storage disabled", zap.Error(err))
			return &SQLiteStorage{enabled: false, logger: logger}
		}
		dbPath = path
	}

	return &SQLiteStorage{
		dbPath:  dbPath,
		enabled: true,
		logger:  logger,
	}
}

// Init initializes the database and runs migrations.
//
// If initialization fails, storage is disabled and subsequent operations
// become no-ops (graceful degradation).
func (s *SQLiteStorage) Init() error {
	if !s.enabled {
		return nil
	}

	var initErr error
	s.initOnce.Do(func() {
		if s.dbPath != ":memory:" {
			dbDir := filepath.Dir(s.dbPath)
			if err := os.MkdirAll(dbDir, 0755); err != nil {
				initErr = fmt.Errorf("failed to create db directory: %w", err)
				s.disable(initErr)
				return
			}
		}

		db, err := sql.Open("sqlite", s.dbPath)
		if err != nil {
			initErr = fmt.Errorf("failed to open database: %w", err)
			s.disable(initErr)
			return
		}
		// One connection serializes writers and keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
		s.db = db

		if err := db.Ping(); err != nil {
			initErr = fmt.Errorf("failed to ping database: %w", err)
			s.disable(initErr)
			return
		}

		if err := s.runMigrations(); err != nil {
			initErr = fmt.Errorf("failed to run migrations: %w", err)
			s.disable(initErr)
			return
		}
	})

	return initErr
}

func (s *SQLiteStorage) disable(err error) {
	s.enabled = false
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	s.log().Warn("storage disabled", zap.Error(err))
}

func (s *SQLiteStorage) log() *zap.Logger {
	if s.logger == nil {
		return zap.NewNop()
	}
	return s.logger
}

// Enabled reports whether the database is usable.
func (s *SQLiteStorage) Enabled() bool {
	return s.enabled && s.db != nil
}

// DB returns the underlying connection, or nil when storage is disabled.
func (s *SQLiteStorage) DB() *sql.DB {
	if !s.Enabled() {
		return nil
	}
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if !s.enabled || s.db == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.db = nil
	return nil
}

// HashQuery creates a SHA256 hash of a query string for privacy.
func HashQuery(query string) string {
	hash := sha256.Sum256([]byte(query))
	return hex.EncodeToString(hash[:])
}
