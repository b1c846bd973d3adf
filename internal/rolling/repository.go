package rolling

import (
	"context"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/pkg/database"
)

const (
	datasetTable = "clv.rolling_dataset"
	// keeps each INSERT well under the 65535 bind parameter limit
	insertChunk = 1000
)

var datasetCols = []string{
	"cutoff_date", "customer_id",
	"txn_count_obs", "invoice_count_obs", "gross_revenue_obs", "return_revenue_obs", "net_revenue_obs",
	"avg_revenue_per_line_obs", "first_purchase_obs", "last_purchase_obs",
	"recency_days_obs", "tenure_days_obs", "active_days_obs",
	"invoice_count_30d", "invoice_count_90d", "txn_count_30d", "txn_count_90d",
	"net_revenue_30d", "net_revenue_90d", "avg_days_between_invoices", "return_ratio_obs",
	"churn_label", "revenue_pred_window",
}

// Repository persists rolling dataset partitions
// ⭐ SSOT: rolling_dataset 저장/조회는 여기서만
type Repository struct {
	db *database.DB
}

// NewRepository creates a new rolling dataset repository
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// ReplacePartition deletes and re-inserts one cutoff in a single transaction
func (r *Repository) ReplacePartition(ctx context.Context, cutoff time.Time, rows []contracts.RollingDatasetRow) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		del := sqlbuilder.PostgreSQL.NewDeleteBuilder()
		del.DeleteFrom(datasetTable).Where(del.Equal("cutoff_date", cutoff))
		query, args := del.Build()
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to delete partition %s: %w", contracts.FormatDate(cutoff), err)
		}

		for start := 0; start < len(rows); start += insertChunk {
			end := min(start+insertChunk, len(rows))

			ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
			ib.InsertInto(datasetTable).Cols(datasetCols...)
			for _, row := range rows[start:end] {
				ib.Values(
					row.CutoffDate, row.CustomerID,
					row.TxnCountObs, row.InvoiceCountObs, row.GrossRevenueObs, row.ReturnRevenueObs, row.NetRevenueObs,
					row.AvgRevenuePerLineObs, row.FirstPurchaseObs, row.LastPurchaseObs,
					row.RecencyDaysObs, row.TenureDaysObs, row.ActiveDaysObs,
					row.InvoiceCount30d, row.InvoiceCount90d, row.TxnCount30d, row.TxnCount90d,
					row.NetRevenue30d, row.NetRevenue90d, row.AvgDaysBetweenInvoices, row.ReturnRatioObs,
					row.ChurnLabel, row.RevenuePredWindow,
				)
			}
			query, args := ib.Build()
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to insert partition %s: %w", contracts.FormatDate(cutoff), err)
			}
		}
		return nil
	})
}

// LoadAll reads every partition ordered by (cutoff_date, customer_id)
func (r *Repository) LoadAll(ctx context.Context) ([]contracts.RollingDatasetRow, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(datasetCols...).From(datasetTable).OrderBy("cutoff_date", "customer_id")
	return r.query(ctx, sb)
}

// LoadCutoff reads one partition
func (r *Repository) LoadCutoff(ctx context.Context, cutoff time.Time) ([]contracts.RollingDatasetRow, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(datasetCols...).
		From(datasetTable).
		Where(sb.Equal("cutoff_date", cutoff)).
		OrderBy("customer_id")
	rows, err := r.query(ctx, sb)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, contracts.ErrNotFound
	}
	return rows, nil
}

// Cutoffs lists the stored cutoffs ascending
func (r *Repository) Cutoffs(ctx context.Context) ([]time.Time, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("DISTINCT cutoff_date").From(datasetTable).OrderBy("cutoff_date")
	query, args := sb.Build()

	var cutoffs []time.Time
	err := r.db.WithConn(ctx, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		cutoffs, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (time.Time, error) {
			var c time.Time
			err := row.Scan(&c)
			return c.UTC(), err
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list cutoffs: %w", err)
	}
	return cutoffs, nil
}

func (r *Repository) query(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]contracts.RollingDatasetRow, error) {
	query, args := sb.Build()

	var out []contracts.RollingDatasetRow
	err := r.db.WithConn(ctx, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var row contracts.RollingDatasetRow
			if err := rows.Scan(
				&row.CutoffDate, &row.CustomerID,
				&row.TxnCountObs, &row.InvoiceCountObs, &row.GrossRevenueObs, &row.ReturnRevenueObs, &row.NetRevenueObs,
				&row.AvgRevenuePerLineObs, &row.FirstPurchaseObs, &row.LastPurchaseObs,
				&row.RecencyDaysObs, &row.TenureDaysObs, &row.ActiveDaysObs,
				&row.InvoiceCount30d, &row.InvoiceCount90d, &row.TxnCount30d, &row.TxnCount90d,
				&row.NetRevenue30d, &row.NetRevenue90d, &row.AvgDaysBetweenInvoices, &row.ReturnRatioObs,
				&row.ChurnLabel, &row.RevenuePredWindow,
			); err != nil {
				return err
			}
			row.CutoffDate = row.CutoffDate.UTC()
			out = append(out, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load rolling dataset: %w", err)
	}
	return out, nil
}
