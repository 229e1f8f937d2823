package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore writes to the checkpoints table created by the storage
// migrations. Close does not close the shared database.
type SQLiteStore struct {
	db  *sql.DB
	max int
}

// NewSQLiteStore wraps an initialized storage database.
func NewSQLiteStore(db *sql.DB, opts ...Option) *SQLiteStore {
	return &SQLiteStore{db: db, max: buildOptions(opts).maxPerThread}
}

func (s *SQLiteStore) Get(ctx context.Context, threadID string) (Checkpoint, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, state, created_at FROM checkpoints
		WHERE thread_id = ? ORDER BY seq DESC LIMIT 1
	`, threadID)

	cp, err := scanCheckpoint(row.Scan, threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return cp, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, threadID string, state []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, seq, state, created_at)
		SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ? FROM checkpoints WHERE thread_id = ?
	`, threadID, state, time.Now().UTC().Format(time.RFC3339Nano), threadID)
	if err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM checkpoints
		WHERE thread_id = ? AND seq <= (SELECT MAX(seq) FROM checkpoints WHERE thread_id = ?) - ?
	`, threadID, threadID, s.max)
	if err != nil {
		return fmt.Errorf("failed to trim checkpoints: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, threadID string) ([]Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, state, created_at FROM checkpoints
		WHERE thread_id = ? ORDER BY seq ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows.Scan, threadID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return nil }

func scanCheckpoint(scan func(dest ...any) error, threadID string) (Checkpoint, error) {
	cp := Checkpoint{ThreadID: threadID}
	var created string
	if err := scan(&cp.Seq, &cp.State, &created); err != nil {
		return Checkpoint{}, err
	}
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		cp.CreatedAt = t
	}
	return cp, nil
}
