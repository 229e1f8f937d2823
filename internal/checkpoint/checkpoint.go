/*
Package checkpoint persists workflow state snapshots per conversation
thread. Backends are an in-process map, the shared SQLite database, and
PostgreSQL via pgx.
*/
package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// DefaultThread is used when a request carries no thread id.
const DefaultThread = "default"

// PostgresURLEnv overrides the configured Postgres URL.
const PostgresURLEnv = "TOOLHUB_POSTGRES_URL"

// DefaultMaxPerThread is the number of snapshots kept per thread. Older
// snapshots are dropped as new ones are appended.
const DefaultMaxPerThread = 200

// ErrClosed is returned by a store after Close.
var ErrClosed = errors.New("checkpoint store closed")

// Checkpoint is one stored snapshot. Seq increases by one per thread.
type Checkpoint struct {
	ThreadID  string
	Seq       int64
	State     []byte
	CreatedAt time.Time
}

// Store appends and reads snapshots.
type Store interface {
	// Get returns the latest snapshot of a thread.
	Get(ctx context.Context, threadID string) (Checkpoint, bool, error)

	// Put appends a snapshot to a thread.
	Put(ctx context.Context, threadID string, state []byte) error

	// List returns every snapshot of a thread, oldest first.
	List(ctx context.Context, threadID string) ([]Checkpoint, error)

	Close() error
}

// Config selects a backend.
type Config struct {
	Backend      string `json:"backend"`
	PostgresURL  string `json:"postgresUrl,omitempty"`
	MaxPerThread int    `json:"maxPerThread,omitempty"`
}

// Option configures a store.
type Option func(*options)

type options struct {
	maxPerThread int
}

// WithMaxPerThread caps the snapshots kept per thread. n <= 0 selects
// DefaultMaxPerThread.
func WithMaxPerThread(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPerThread = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{maxPerThread: DefaultMaxPerThread}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Open creates the configured store. db backs the sqlite backend and may be
// nil for the others.
func Open(ctx context.Context, cfg Config, db *sql.DB) (Store, error) {
	limit := WithMaxPerThread(cfg.MaxPerThread)
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(limit), nil
	case "sqlite":
		if db == nil {
			return nil, fmt.Errorf("sqlite checkpoint backend requires storage")
		}
		return NewSQLiteStore(db, limit), nil
	case "postgres":
		url := cfg.PostgresURL
		if env := os.Getenv(PostgresURLEnv); env != "" {
			url = env
		}
		if url == "" {
			return nil, fmt.Errorf("postgres checkpoint backend requires a URL (set %s)", PostgresURLEnv)
		}
		return NewPostgresStore(ctx, url, limit)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string][]Checkpoint
	max     int
	closed  bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		threads: make(map[string][]Checkpoint),
		max:     buildOptions(opts).maxPerThread,
	}
}

func (m *MemoryStore) Get(ctx context.Context, threadID string) (Checkpoint, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Checkpoint{}, false, ErrClosed
	}
	list := m.threads[threadID]
	if len(list) == 0 {
		return Checkpoint{}, false, nil
	}
	return copyCheckpoint(list[len(list)-1]), true, nil
}

func (m *MemoryStore) Put(ctx context.Context, threadID string, state []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	list := m.threads[threadID]
	var seq int64 = 1
	if len(list) > 0 {
		seq = list[len(list)-1].Seq + 1
	}
	list = append(list, copyCheckpoint(Checkpoint{
		ThreadID:  threadID,
		Seq:       seq,
		State:     state,
		CreatedAt: time.Now().UTC(),
	}))
	if len(list) > m.max {
		list = append([]Checkpoint(nil), list[len(list)-m.max:]...)
	}
	m.threads[threadID] = list
	return nil
}

func (m *MemoryStore) List(ctx context.Context, threadID string) ([]Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	list := m.threads[threadID]
	out := make([]Checkpoint, len(list))
	for i, cp := range list {
		out[i] = copyCheckpoint(cp)
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func copyCheckpoint(cp Checkpoint) Checkpoint {
	cp.State = append([]byte(nil), cp.State...)
	return cp
}
