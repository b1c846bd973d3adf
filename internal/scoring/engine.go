// Package scoring applies a trained bundle to the rolling dataset and
// publishes prediction partitions plus the "latest" alias.
package scoring

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/internal/model"
	"github.com/wonny/clv-retention/pkg/logger"
)

// Engine scores feature rows and publishes the results
// ⭐ SSOT: S5 스코어링/게시 로직은 여기서만
type Engine struct {
	writer contracts.PredictionWriter
	log    *logger.Logger
}

// NewEngine creates a scoring engine. writer may be nil when only Score is used.
func NewEngine(writer contracts.PredictionWriter, log *logger.Logger) *Engine {
	return &Engine{writer: writer, log: log}
}

// PublishResult describes what Publish wrote
type PublishResult struct {
	Partitions []time.Time `json:"partitions"`
	Latest     time.Time   `json:"latest"`
	Rows       int         `json:"rows"`
}

// Score predicts every row. columns is the feature list the caller built
// the table for; it must equal the bundle's frozen list exactly.
func (e *Engine) Score(rows []contracts.RollingDatasetRow, columns []string, b *model.Bundle) ([]contracts.PredictionRow, error) {
	if err := b.Validate(); err != nil {
		return nil, contracts.NewValidationError("bundle", "%v", err)
	}
	if !b.FeatureSet.Matches(columns) {
		return nil, contracts.NewValidationError("feature_columns",
			"got %d columns %v, model was trained on %v", len(columns), columns, b.FeatureSet.Columns)
	}
	for _, c := range columns {
		if !contracts.IsFeatureColumn(c) {
			return nil, contracts.NewValidationError("feature_columns", "unknown column %q", c)
		}
	}

	X := b.FeatureSet.Matrix(rows)
	churn := b.Churn.PredictProba(X)
	spend := b.Spend.PredictProba(X)
	revenue := b.Revenue.PredictRevenue(X)

	preds := make([]contracts.PredictionRow, len(rows))
	for i, r := range rows {
		preds[i] = contracts.NewPredictionRow(r.Key(), churn[i], spend[i], revenue[i])
	}

	if err := CheckKeys(preds); err != nil {
		return nil, err
	}

	e.log.WithFields(map[string]interface{}{
		"rows":     len(preds),
		"features": len(columns),
	}).Info("Scoring completed")
	return preds, nil
}

// InputColumns lists the feature columns the stored dataset carries, in
// model input order. A column with no finite value in any row is not carried;
// training drops such columns the same way.
func InputColumns(rows []contracts.RollingDatasetRow) []string {
	return model.SelectFeatures(rows).Columns
}

// CheckKeys rejects null and duplicate (cutoff_date, customer_id) keys
func CheckKeys(preds []contracts.PredictionRow) error {
	seen := make(map[contracts.RowKey]struct{}, len(preds))
	for _, p := range preds {
		if p.CutoffDate.IsZero() || p.CustomerID <= 0 {
			return contracts.NewIntegrityError("prediction_key", "null key (cutoff=%s, customer=%d)",
				contracts.FormatDate(p.CutoffDate), p.CustomerID)
		}
		k := p.Key()
		if _, dup := seen[k]; dup {
			return contracts.NewIntegrityError("prediction_key", "duplicate customer %d at cutoff %s",
				k.CustomerID, contracts.FormatDate(k.CutoffDate))
		}
		seen[k] = struct{}{}
	}
	return nil
}

// Publish replaces one partition per cutoff, then points "latest" at the
// newest cutoff. The pointer does not move unless every partition was written.
func (e *Engine) Publish(ctx context.Context, preds []contracts.PredictionRow) (*PublishResult, error) {
	if e.writer == nil {
		return nil, fmt.Errorf("scoring engine has no prediction writer")
	}
	if len(preds) == 0 {
		return nil, contracts.NewValidationError("predictions", "nothing to publish")
	}
	if err := CheckKeys(preds); err != nil {
		return nil, err
	}

	parts := make(map[time.Time][]contracts.PredictionRow)
	for _, p := range preds {
		parts[p.CutoffDate] = append(parts[p.CutoffDate], p)
	}
	cutoffs := make([]time.Time, 0, len(parts))
	for c := range parts {
		cutoffs = append(cutoffs, c)
	}
	sort.Slice(cutoffs, func(i, j int) bool { return cutoffs[i].Before(cutoffs[j]) })

	for _, c := range cutoffs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.writer.ReplacePartition(ctx, c, parts[c]); err != nil {
			return nil, fmt.Errorf("publish partition %s: %w", contracts.FormatDate(c), err)
		}
	}

	latest := cutoffs[len(cutoffs)-1]
	if err := e.writer.SetLatest(ctx, latest); err != nil {
		return nil, fmt.Errorf("move latest pointer to %s: %w", contracts.FormatDate(latest), err)
	}

	e.log.WithFields(map[string]interface{}{
		"partitions": len(cutoffs),
		"latest":     contracts.FormatDate(latest),
		"rows":       len(preds),
	}).Info("Predictions published")

	return &PublishResult{Partitions: cutoffs, Latest: latest, Rows: len(preds)}, nil
}

// LatestOnly keeps the rows of the newest cutoff
func LatestOnly(preds []contracts.PredictionRow) []contracts.PredictionRow {
	var latest time.Time
	for _, p := range preds {
		if p.CutoffDate.After(latest) {
			latest = p.CutoffDate
		}
	}
	var out []contracts.PredictionRow
	for _, p := range preds {
		if p.CutoffDate.Equal(latest) {
			out = append(out, p)
		}
	}
	return out
}
