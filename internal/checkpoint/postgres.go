package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps snapshots in a shared PostgreSQL database so several
// processes can resume the same thread.
type PostgresStore struct {
	pool *pgxpool.Pool
	max  int
}

// NewPostgresStore connects and creates the checkpoints table if needed.
func NewPostgresStore(ctx context.Context, url string, opts ...Option) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres url: %w", err)
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS toolhub_checkpoints (
			thread_id TEXT NOT NULL,
			seq BIGINT NOT NULL,
			state BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (thread_id, seq)
		)
	`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create checkpoints table: %w", err)
	}

	return &PostgresStore{pool: pool, max: buildOptions(opts).maxPerThread}, nil
}

func (p *PostgresStore) Get(ctx context.Context, threadID string) (Checkpoint, bool, error) {
	cp := Checkpoint{ThreadID: threadID}
	err := p.pool.QueryRow(ctx, `
		SELECT seq, state, created_at FROM toolhub_checkpoints
		WHERE thread_id = $1 ORDER BY seq DESC LIMIT 1
	`, threadID).Scan(&cp.Seq, &cp.State, &cp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return cp, true, nil
}

func (p *PostgresStore) Put(ctx context.Context, threadID string, state []byte) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO toolhub_checkpoints (thread_id, seq, state, created_at)
		SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3 FROM toolhub_checkpoints WHERE thread_id = $1
	`, threadID, state, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		DELETE FROM toolhub_checkpoints
		WHERE thread_id = $1 AND seq <= (SELECT MAX(seq) FROM toolhub_checkpoints WHERE thread_id = $1) - $2
	`, threadID, p.max)
	if err != nil {
		return fmt.Errorf("failed to trim checkpoints: %w", err)
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, threadID string) ([]Checkpoint, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT seq, state, created_at FROM toolhub_checkpoints
		WHERE thread_id = $1 ORDER BY seq ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		cp := Checkpoint{ThreadID: threadID}
		if err := rows.Scan(&cp.Seq, &cp.State, &cp.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
