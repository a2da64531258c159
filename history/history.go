package history

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/verif-infra/sim-acceptor/runner"
)

// Store records completed regression runs in Postgres so trends survive
// process restarts. The hot path never depends on it: recording failures
// are reported to the caller and the run result stands either way.
type Store struct {
	log  log.Logger
	conn Connection
}

// NewStore connects to the database behind dsn and prepares the schema.
func NewStore(ctx context.Context, logger log.Logger, dsn string) (*Store, error) {
	db, err := New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return &Store{log: logger, conn: db}, nil
}

// NewStoreWithConnection wires an existing connection, used by tests.
func NewStoreWithConnection(logger log.Logger, conn Connection) *Store {
	return &Store{log: logger, conn: conn}
}

// RecordRun writes the run and all its scenario results in one transaction.
// Re-recording the same run ID replaces its scenario rows.
func (s *Store) RecordRun(ctx context.Context, result *runner.RunResult) (err error) {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	s.log.Info("Recording run history", "run_id", result.RunID, "design", result.Design)
	if err = tx.InsertRun(ctx, RunRecord{
		ID:           result.RunID,
		Design:       result.Design,
		StartedAt:    result.StartTime,
		Runtime:      result.Duration.Seconds(),
		Passed:       result.Passed,
		Total:        result.Stats.Total,
		PassCount:    result.Stats.Passed,
		FailCount:    result.Stats.Failed,
		CrashCount:   result.Stats.Crashed,
		UnknownCount: result.Stats.Unknown,
	}); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, res := range result.Results {
		record := ScenarioRecord{
			RunID:    result.RunID,
			Name:     res.Scenario.Name,
			Outcome:  string(res.Outcome),
			ExitCode: res.ExitCode,
			Runtime:  res.Duration.Seconds(),
			LogPath:  res.LogPath,
		}
		if res.Error != nil {
			record.Message = res.Error.Error()
		}
		if _, err = tx.InsertScenarioResult(ctx, record); err != nil {
			return fmt.Errorf("failed to insert scenario result: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// LastRun returns the most recently recorded run, or nil when the
// history is empty.
func (s *Store) LastRun(ctx context.Context) (*RunRecord, error) {
	return s.conn.LastRun(ctx)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.conn.Close()
}
