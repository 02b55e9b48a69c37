package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/TRob9/claude-github-buddy/internal/common/errors"
	v1 "github.com/TRob9/claude-github-buddy/pkg/api/v1"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	workflow      TEXT NOT NULL,
	repository    TEXT NOT NULL,
	branch        TEXT NOT NULL,
	outcome       TEXT NOT NULL DEFAULT '',
	detail        TEXT NOT NULL DEFAULT '',
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at DESC);
`

// PostgresStore persists run history in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to the database and ensures the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) RecordStart(ctx context.Context, record *v1.RunRecord) error {
	if record.ID == "" {
		return apperrors.BadRequest("run id is required")
	}
	if record.StartedAt.IsZero() {
		record.StartedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, session_id, workflow, repository, branch, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		record.ID, record.SessionID, string(record.Workflow),
		record.Repository, record.Branch, record.StartedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordFinish(ctx context.Context, record *v1.RunRecord) error {
	finishedAt := record.FinishedAt
	if finishedAt == nil {
		now := time.Now().UTC()
		finishedAt = &now
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs
		 SET outcome = $2, detail = $3, input_tokens = $4, output_tokens = $5, finished_at = $6
		 WHERE id = $1`,
		record.ID, record.Outcome, record.Detail,
		record.Usage.InputTokens, record.Usage.OutputTokens, finishedAt)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("run", record.ID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*v1.RunRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, session_id, workflow, repository, branch, outcome, detail,
		        input_tokens, output_tokens, started_at, finished_at
		 FROM runs WHERE id = $1`, id)
	record, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("run", id)
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]*v1.RunRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, workflow, repository, branch, outcome, detail,
		        input_tokens, output_tokens, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*v1.RunRecord
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, record)
	}
	return runs, rows.Err()
}

func scanRun(row pgx.Row) (*v1.RunRecord, error) {
	var record v1.RunRecord
	var workflow string
	err := row.Scan(&record.ID, &record.SessionID, &workflow,
		&record.Repository, &record.Branch, &record.Outcome, &record.Detail,
		&record.Usage.InputTokens, &record.Usage.OutputTokens,
		&record.StartedAt, &record.FinishedAt)
	if err != nil {
		return nil, err
	}
	record.Workflow = v1.Workflow(workflow)
	return &record, nil
}
