package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/pkg/database"
)

const runsTable = "clv.runs"

// RunRepository keeps pipeline run metadata in clv.runs
type RunRepository struct {
	db *database.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *database.DB) *RunRepository {
	return &RunRepository{db: db}
}

// StartRun inserts the run row in its running state
func (r *RunRepository) StartRun(ctx context.Context, run *contracts.RunRecord) error {
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(runsTable).
		Cols("run_id", "params_hash", "status", "started_at", "stages").
		Values(run.RunID, run.ParamsHash, run.Status, run.StartedAt, stageNames(run.Stages))
	query, args := ib.Build()

	return r.db.WithConn(ctx, func(conn *pgxpool.Conn) error {
		if _, err := conn.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert run %s: %w", run.RunID, err)
		}
		return nil
	})
}

// FinishRun stores the final status, the completed stages and the report
func (r *RunRepository) FinishRun(ctx context.Context, run *contracts.RunRecord) error {
	var report []byte
	if run.Report != nil {
		b, err := json.Marshal(run.Report)
		if err != nil {
			return fmt.Errorf("failed to encode run report: %w", err)
		}
		report = b
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(runsTable).
		Set(
			ub.Assign("status", run.Status),
			ub.Assign("finished_at", finishedAt(run)),
			ub.Assign("cutoff_date", run.CutoffDate),
			ub.Assign("stages", stageNames(run.Stages)),
			ub.Assign("error", nullable(run.Error)),
			ub.Assign("report", report),
		).
		Where(ub.Equal("run_id", run.RunID))
	query, args := ub.Build()

	return r.db.WithConn(ctx, func(conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to finish run %s: %w", run.RunID, err)
		}
		if tag.RowsAffected() == 0 {
			return contracts.ErrNotFound
		}
		return nil
	})
}

// Recent returns the latest runs, newest first, without their reports
func (r *RunRepository) Recent(ctx context.Context, limit int) ([]contracts.RunRecord, error) {
	if limit <= 0 {
		return nil, contracts.NewValidationError("limit", "must be > 0, got %d", limit)
	}
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("run_id::text", "cutoff_date", "params_hash", "status", "started_at", "finished_at", "stages", "COALESCE(error, '')").
		From(runsTable).
		OrderBy("started_at DESC").
		Limit(limit)
	query, args := sb.Build()

	var out []contracts.RunRecord
	err := r.db.WithConn(ctx, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				run    contracts.RunRecord
				stages []string
			)
			if err := rows.Scan(&run.RunID, &run.CutoffDate, &run.ParamsHash, &run.Status,
				&run.StartedAt, &run.FinishedAt, &stages, &run.Error); err != nil {
				return err
			}
			for _, s := range stages {
				run.Stages = append(run.Stages, contracts.Stage(s))
			}
			out = append(out, run)
		}
		return rows.Err()
	})
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return out, nil
}

func stageNames(stages []contracts.Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = string(s)
	}
	return out
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ contracts.RunRecorder = (*RunRepository)(nil)

func finishedAt(run *contracts.RunRecord) *time.Time {
	if run.FinishedAt != nil {
		return run.FinishedAt
	}
	now := time.Now().UTC()
	return &now
}
