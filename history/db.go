package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RunRecord is one regression run as stored in Postgres.
type RunRecord struct {
	ID           string
	Design       string
	StartedAt    time.Time
	Runtime      float64
	Passed       bool
	Total        int
	PassCount    int
	FailCount    int
	CrashCount   int
	UnknownCount int
}

// ScenarioRecord is one scenario result row belonging to a run.
type ScenarioRecord struct {
	ID       int
	RunID    string
	Name     string
	Outcome  string
	ExitCode int
	Runtime  float64
	LogPath  string
	Message  string
}

type Connection interface {
	LastRun(ctx context.Context) (*RunRecord, error)

	Begin() (Transactor, error)
	Close() error
}

type Transactor interface {
	InsertRun(ctx context.Context, r RunRecord) error
	InsertScenarioResult(ctx context.Context, sr ScenarioRecord) (int, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context)
}

type PGXDB struct {
	conn *pgxpool.Pool
}

func New(ctx context.Context, uri string) (*PGXDB, error) {
	conn, err := pgxpool.New(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}

	return &PGXDB{conn: conn}, nil
}

// EnsureSchema creates the history tables when they do not exist yet.
func (p *PGXDB) EnsureSchema(ctx context.Context) error {
	sql := `
CREATE TABLE IF NOT EXISTS regression_runs (
	id TEXT PRIMARY KEY,
	design TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	runtime DOUBLE PRECISION NOT NULL,
	passed BOOLEAN NOT NULL,
	total INTEGER NOT NULL,
	pass_count INTEGER NOT NULL,
	fail_count INTEGER NOT NULL,
	crash_count INTEGER NOT NULL,
	unknown_count INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS scenario_results (
	id SERIAL PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES regression_runs(id),
	name TEXT NOT NULL,
	outcome TEXT NOT NULL,
	exit_code INTEGER NOT NULL,
	runtime DOUBLE PRECISION NOT NULL,
	log_path TEXT,
	message TEXT
);
`

	if _, err := p.conn.Exec(ctx, sql); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func (p *PGXDB) LastRun(ctx context.Context) (*RunRecord, error) {
	sql := `
SELECT id, design, started_at, runtime, passed, total, pass_count, fail_count, crash_count, unknown_count
FROM regression_runs ORDER BY started_at DESC LIMIT 1
`

	row := p.conn.QueryRow(ctx, sql)
	var r RunRecord
	if err := row.Scan(&r.ID, &r.Design, &r.StartedAt, &r.Runtime, &r.Passed,
		&r.Total, &r.PassCount, &r.FailCount, &r.CrashCount, &r.UnknownCount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to get last run: %w", err)
	}
	return &r, nil
}

func (p *PGXDB) Begin() (Transactor, error) {
	tx, err := p.conn.Begin(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &PGXTransactor{tx: tx}, nil
}

func (p *PGXDB) Close() error {
	p.conn.Close()
	return nil
}

type PGXTransactor struct {
	tx  pgx.Tx
	mtx sync.Mutex
}

func (p *PGXTransactor) InsertRun(ctx context.Context, r RunRecord) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	type queryPkg struct {
		query string
		args  []any
	}

	queries := []queryPkg{
		{
			"DELETE FROM scenario_results WHERE run_id = $1",
			[]any{r.ID},
		},
		{
			`INSERT INTO regression_runs (id, design, started_at, runtime, passed, total, pass_count, fail_count, crash_count, unknown_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) ON CONFLICT DO NOTHING`,
			[]any{
				r.ID,
				r.Design,
				r.StartedAt,
				r.Runtime,
				r.Passed,
				r.Total,
				r.PassCount,
				r.FailCount,
				r.CrashCount,
				r.UnknownCount,
			},
		},
	}

	for i, q := range queries {
		if _, err := p.tx.Exec(ctx,
			q.query,
			q.args...,
		); err != nil {
			return fmt.Errorf("failed to insert run: query %d: %w", i, err)
		}
	}

	return nil
}

func (p *PGXTransactor) InsertScenarioResult(ctx context.Context, sr ScenarioRecord) (int, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	sql := `
INSERT INTO scenario_results (run_id, name, outcome, exit_code, runtime, log_path, message)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id
`

	row := p.tx.QueryRow(ctx,
		sql,
		sr.RunID,
		sr.Name,
		sr.Outcome,
		sr.ExitCode,
		sr.Runtime,
		sr.LogPath,
		sr.Message,
	)
	var id int
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert scenario result: %w", err)
	}
	return id, nil
}

func (p *PGXTransactor) Commit(ctx context.Context) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.tx.Commit(ctx)
}

func (p *PGXTransactor) Rollback(ctx context.Context) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if err := p.tx.Rollback(context.Background()); err != nil {
		log.Error("error rolling back transaction", "err", err)
	}
}
