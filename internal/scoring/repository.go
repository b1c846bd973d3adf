package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/pkg/database"
)

const (
	predictionsTable = "clv.predictions"
	pointersTable    = "clv.prediction_pointers"
	latestPointer    = "latest"
	insertChunk      = 2000
)

var predictionCols = contracts.PredictionColumns()

// metricColumns maps ranking metrics to SQL identifiers.
// Only identifiers from this table are ever placed into ORDER BY.
var metricColumns = map[string]string{
	contracts.MetricExpectedLoss:    "expected_loss",
	contracts.MetricExpectedCLV:     "expected_clv",
	contracts.MetricExpectedRevenue: "expected_revenue",
	contracts.MetricChurnProb:       "churn_prob",
}

// Repository stores prediction partitions and the latest pointer in PostgreSQL
type Repository struct {
	db *database.DB
}

// NewRepository creates a new prediction repository
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// ReplacePartition deletes and re-inserts one cutoff in a single transaction
func (r *Repository) ReplacePartition(ctx context.Context, cutoff time.Time, rows []contracts.PredictionRow) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		del := sqlbuilder.PostgreSQL.NewDeleteBuilder()
		del.DeleteFrom(predictionsTable).Where(del.Equal("cutoff_date", cutoff))
		query, args := del.Build()
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to delete predictions: %w", err)
		}

		for start := 0; start < len(rows); start += insertChunk {
			end := min(start+insertChunk, len(rows))
			ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
			ib.InsertInto(predictionsTable).Cols(predictionCols...)
			for _, p := range rows[start:end] {
				ib.Values(p.CutoffDate, p.CustomerID, p.ChurnProb, p.SpendProb, p.PredRevenueIfSpend,
					p.ExpectedRevenue, p.ExpectedCLV, p.ExpectedLoss)
			}
			query, args := ib.Build()
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to insert predictions: %w", err)
			}
		}
		return nil
	})
}

// SetLatest points the latest alias at an existing partition
func (r *Repository) SetLatest(ctx context.Context, cutoff time.Time) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
		sb.Select("COUNT(*)").From(predictionsTable).Where(sb.Equal("cutoff_date", cutoff))
		query, args := sb.Build()

		var n int64
		if err := tx.QueryRow(ctx, query, args...).Scan(&n); err != nil {
			return fmt.Errorf("failed to count partition: %w", err)
		}
		if n == 0 {
			return contracts.NewIntegrityError("latest_pointer", "no partition for %s", contracts.FormatDate(cutoff))
		}

		ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
		ib.InsertInto(pointersTable).Cols("name", "cutoff_date").Values(latestPointer, cutoff)
		ib.SQL("ON CONFLICT (name) DO UPDATE SET cutoff_date = EXCLUDED.cutoff_date, updated_at = NOW()")
		query, args = ib.Build()
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to move latest pointer: %w", err)
		}
		return nil
	})
}

// LatestCutoff reads the latest pointer
func (r *Repository) LatestCutoff(ctx context.Context) (time.Time, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("cutoff_date").From(pointersTable).Where(sb.Equal("name", latestPointer))
	query, args := sb.Build()

	var cutoff time.Time
	err := r.db.WithConn(ctx, func(conn *pgxpool.Conn) error {
		return conn.QueryRow(ctx, query, args...).Scan(&cutoff)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, contracts.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read latest pointer: %w", err)
	}
	return cutoff.UTC(), nil
}

// Latest returns every prediction of the latest cutoff ordered by customer
func (r *Repository) Latest(ctx context.Context) ([]contracts.PredictionRow, error) {
	cutoff, err := r.LatestCutoff(ctx)
	if err != nil {
		return nil, err
	}
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(predictionCols...).
		From(predictionsTable).
		Where(sb.Equal("cutoff_date", cutoff)).
		OrderBy("customer_id")
	return r.query(ctx, sb)
}

// TopN returns the n highest rows of the latest cutoff by metric
func (r *Repository) TopN(ctx context.Context, metric string, n int) ([]contracts.PredictionRow, error) {
	col, ok := metricColumns[metric]
	if !ok {
		return nil, contracts.NewValidationError("by", "unsupported metric %q", metric)
	}
	if n <= 0 {
		return nil, contracts.NewValidationError("n", "must be > 0, got %d", n)
	}
	cutoff, err := r.LatestCutoff(ctx)
	if err != nil {
		return nil, err
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(predictionCols...).
		From(predictionsTable).
		Where(sb.Equal("cutoff_date", cutoff)).
		OrderBy(col + " DESC", "customer_id").
		Limit(n)
	return r.query(ctx, sb)
}

// Summary aggregates the latest cutoff
func (r *Repository) Summary(ctx context.Context) (*contracts.PredictionSummary, error) {
	cutoff, err := r.LatestCutoff(ctx)
	if err != nil {
		return nil, err
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(
		"COUNT(*)",
		"COALESCE(AVG(churn_prob), 0)",
		"COALESCE(AVG(spend_prob), 0)",
		"COALESCE(SUM(expected_revenue), 0)",
		"COALESCE(SUM(expected_clv), 0)",
		"COALESCE(SUM(expected_loss), 0)",
	).From(predictionsTable).Where(sb.Equal("cutoff_date", cutoff))
	query, args := sb.Build()

	s := &contracts.PredictionSummary{CutoffDate: cutoff}
	err = r.db.WithConn(ctx, func(conn *pgxpool.Conn) error {
		return conn.QueryRow(ctx, query, args...).Scan(
			&s.Rows, &s.AvgChurnProb, &s.AvgSpendProb,
			&s.SumExpectedRevenue, &s.SumExpectedCLV, &s.SumExpectedLoss,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to summarise predictions: %w", err)
	}
	return s, nil
}

// Columns lists the live columns of the predictions table
func (r *Repository) Columns(ctx context.Context) ([]string, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("column_name").
		From("information_schema.columns").
		Where(sb.Equal("table_schema", "clv"), sb.Equal("table_name", "predictions")).
		OrderBy("ordinal_position")
	query, args := sb.Build()

	var cols []string
	err := r.db.WithConn(ctx, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		cols, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list prediction columns: %w", err)
	}
	return cols, nil
}

func (r *Repository) query(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]contracts.PredictionRow, error) {
	query, args := sb.Build()

	var out []contracts.PredictionRow
	err := r.db.WithConn(ctx, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (contracts.PredictionRow, error) {
			var p contracts.PredictionRow
			err := row.Scan(&p.CutoffDate, &p.CustomerID, &p.ChurnProb, &p.SpendProb, &p.PredRevenueIfSpend,
				&p.ExpectedRevenue, &p.ExpectedCLV, &p.ExpectedLoss)
			p.CutoffDate = p.CutoffDate.UTC()
			return p, err
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load predictions: %w", err)
	}
	return out, nil
}
