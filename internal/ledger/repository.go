package ledger

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

const transactionsTable = "clv.fact_transactions"

var transactionCols = []string{
	"invoice_id", "customer_id", "sku", "quantity", "unit_price", "invoice_ts",
	"line_revenue", "gross_revenue", "return_revenue", "net_revenue", "is_cancelled",
}

// Repository stores the cleaned ledger in PostgreSQL
// ⭐ SSOT: fact_transactions 저장/조회는 여기서만
type Repository struct {
	db *database.DB
}

// NewRepository creates a new ledger repository
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// ReplaceAll swaps the whole ledger in one transaction
func (r *Repository) ReplaceAll(ctx context.Context, txns []contracts.Transaction) (int64, error) {
	var inserted int64
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "TRUNCATE "+transactionsTable); err != nil {
			return fmt.Errorf("failed to truncate ledger: %w", err)
		}

		n, err := tx.CopyFrom(ctx,
			pgx.Identifier{"clv", "fact_transactions"},
			transactionCols,
			pgx.CopyFromSlice(len(txns), func(i int) ([]any, error) {
				t := txns[i]
				return []any{
					t.InvoiceID, t.CustomerID, t.SKU, t.Quantity, t.UnitPrice, t.Timestamp,
					t.LineRevenue, t.GrossRevenue, t.ReturnRevenue, t.NetRevenue, t.IsCancelled,
				}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to copy ledger rows: %w", err)
		}
		inserted = n
		return nil
	})
	return inserted, err
}

// Span returns the min/max transaction timestamp
func (r *Repository) Span(ctx context.Context) (contracts.LedgerSpan, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("MIN(invoice_ts)", "MAX(invoice_ts)", "COUNT(*)").From(transactionsTable)
	query, args := sb.Build()

	var (
		span   contracts.LedgerSpan
		lo, hi *time.Time
	)
	err := r.db.WithConn(ctx, func(conn *pgxpool.Conn) error {
		return conn.QueryRow(ctx, query, args...).Scan(&lo, &hi, &span.Rows)
	})
	if err != nil {
		return span, fmt.Errorf("failed to read ledger span: %w", err)
	}
	if lo == nil || hi == nil {
		return span, contracts.ErrInsufficientHistory
	}
	span.Min, span.Max = lo.UTC(), hi.UTC()
	return span, nil
}

// LoadRange returns from <= ts < to ordered by timestamp
func (r *Repository) LoadRange(ctx context.Context, from, to time.Time) ([]contracts.Transaction, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(transactionCols...).
		From(transactionsTable).
		Where(
			sb.GreaterEqualThan("invoice_ts", from),
			sb.LessThan("invoice_ts", to),
		).
		OrderBy("invoice_ts", "invoice_id")
	query, args := sb.Build()

	var txns []contracts.Transaction
	err := r.db.WithConn(ctx, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var t contracts.Transaction
			if err := rows.Scan(
				&t.InvoiceID, &t.CustomerID, &t.SKU, &t.Quantity, &t.UnitPrice, &t.Timestamp,
				&t.LineRevenue, &t.GrossRevenue, &t.ReturnRevenue, &t.NetRevenue, &t.IsCancelled,
			); err != nil {
				return err
			}
			t.Timestamp = t.Timestamp.UTC()
			txns = append(txns, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger range: %w", err)
	}
	return txns, nil
}
