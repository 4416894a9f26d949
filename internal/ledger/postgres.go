package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS scenechain_jobs (
    id                      TEXT PRIMARY KEY,
    status                  TEXT NOT NULL,
    scenes                  JSONB NOT NULL,
    parameters              JSONB NOT NULL,
    seed_image              JSONB,
    clip_uris               JSONB NOT NULL DEFAULT '[]',
    final_video_uri         TEXT,
    tracked_video_uri       TEXT,
    thumbnail_uri           TEXT,
    error_message           TEXT,
    generation_time_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at            TIMESTAMPTZ
);`

// PostgresLedger stores jobs in PostgreSQL.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPool opens a connection pool for databaseURL.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return pool, nil
}

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

// EnsureSchema creates the jobs table if missing.
func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Create(ctx context.Context, req CreateRequest) (string, error) {
	scenes, err := json.Marshal(req.Scenes)
	if err != nil {
		return "", err
	}
	params, err := json.Marshal(req.Parameters)
	if err != nil {
		return "", err
	}
	var seed []byte
	if req.SeedImage != nil {
		if seed, err = json.Marshal(req.SeedImage); err != nil {
			return "", err
		}
	}

	id := NewJobID()
	query := `
INSERT INTO scenechain_jobs (id, status, scenes, parameters, seed_image)
VALUES ($1, $2, $3, $4, $5);
`
	if _, err := l.pool.Exec(ctx, query, id, string(StatusPending), scenes, params, seed); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	return id, nil
}

// Update applies the terminal transition. The status guard in the WHERE
// clause makes a second terminal update affect no rows.
func (l *PostgresLedger) Update(ctx context.Context, id string, u Update) error {
	if err := validateUpdate(u); err != nil {
		return fmt.Errorf("%w: %v", ErrUpdateFailed, err)
	}
	clipURIs := u.ClipURIs
	if clipURIs == nil {
		clipURIs = []string{}
	}
	uris, err := json.Marshal(clipURIs)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpdateFailed, err)
	}

	query := `
UPDATE scenechain_jobs
SET status = $2,
    clip_uris = $3,
    final_video_uri = $4,
    tracked_video_uri = $5,
    thumbnail_uri = $6,
    error_message = $7,
    generation_time_seconds = $8,
    completed_at = NOW()
WHERE id = $1 AND status = 'PENDING';
`
	tag, err := l.pool.Exec(ctx, query, id, string(u.Status), uris,
		u.FinalVideoURI, u.TrackedVideoURI, u.ThumbnailURI, u.ErrorMessage, u.GenerationTimeSeconds)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpdateFailed, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := l.Get(ctx, id); err != nil {
			return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
		}
		return fmt.Errorf("%w: %w", ErrUpdateFailed, ErrAlreadyTerminal)
	}
	return nil
}

func (l *PostgresLedger) Get(ctx context.Context, id string) (*Job, error) {
	query := `
SELECT id, status, scenes, parameters, seed_image, clip_uris, final_video_uri, tracked_video_uri,
       thumbnail_uri, error_message, generation_time_seconds, created_at, completed_at
FROM scenechain_jobs
WHERE id = $1;
`
	var (
		job                       Job
		status                    string
		scenes, params, seed, uri []byte
	)
	err := l.pool.QueryRow(ctx, query, id).Scan(
		&job.ID,
		&status,
		&scenes,
		&params,
		&seed,
		&uri,
		&job.FinalVideoURI,
		&job.TrackedVideoURI,
		&job.ThumbnailURI,
		&job.ErrorMessage,
		&job.GenerationTimeSeconds,
		&job.CreatedAt,
		&job.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	job.Status = Status(status)
	if err := json.Unmarshal(scenes, &job.Scenes); err != nil {
		return nil, fmt.Errorf("decode scenes: %w", err)
	}
	if err := json.Unmarshal(params, &job.Parameters); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	if len(seed) > 0 {
		if err := json.Unmarshal(seed, &job.SeedImage); err != nil {
			return nil, fmt.Errorf("decode seed image: %w", err)
		}
	}
	if err := json.Unmarshal(uri, &job.ClipURIs); err != nil {
		return nil, fmt.Errorf("decode clip uris: %w", err)
	}
	return &job, nil
}
