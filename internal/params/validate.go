package params

import (
	"math"

	"github.com/wonny/clv-retention/internal/contracts"
)

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

// Validate checks every hard constraint. Field names are the YAML paths.
func Validate(doc *Document) error {
	// === Data ===
	if err := doc.Data.Validate(); err != nil {
		return prefixed("data.", err)
	}

	// === Rolling ===
	if doc.Rolling.StepDays <= 0 {
		return contracts.NewValidationError("rolling.step_days", "must be > 0, got %d", doc.Rolling.StepDays)
	}
	if doc.Rolling.Workers < 1 || doc.Rolling.Workers > 64 {
		return contracts.NewValidationError("rolling.workers", "must be within [1, 64], got %d", doc.Rolling.Workers)
	}

	// === Models ===
	if err := doc.Models.Validate(); err != nil {
		return err
	}

	// === Decisioning ===
	if err := doc.Targeting().Validate(); err != nil {
		return prefixed("decisioning.", err)
	}
	if err := doc.Weights().Validate(); err != nil {
		return prefixed("decisioning.", err)
	}
	if doc.Decisioning.TopNPreview < 0 {
		return contracts.NewValidationError("decisioning.top_n_preview", "must be >= 0, got %d", doc.Decisioning.TopNPreview)
	}
	for _, w := range doc.Decisioning.SweepWeights {
		if math.IsNaN(w) || w < 0 || w > 1 {
			return contracts.NewValidationError("decisioning.sweep_weights", "must be within [0, 1], got %v", w)
		}
	}

	// === Quality ===
	return doc.Quality.Validate()
}

// Warn checks recommended constraints (non-fatal)
func Warn(doc *Document) []Warning {
	var warnings []Warning

	w := doc.Weights()
	if math.Abs(w.WLoss+w.WCLV-1) > 1e-9 {
		warnings = append(warnings, Warning{
			Code:    "WEIGHTS_NOT_NORMALISED",
			Message: "w_loss + w_clv != 1: blended scores leave the [0, 1] range",
		})
	}

	if doc.Decisioning.BudgetEUR == 0 {
		warnings = append(warnings, Warning{
			Code:    "ZERO_BUDGET",
			Message: "budget_eur = 0: no customer will be targeted",
		})
	}

	if affordable := doc.Targeting().Affordable(); affordable > doc.Decisioning.MaxCustomers {
		warnings = append(warnings, Warning{
			Code:    "CAPACITY_BINDS",
			Message: "max_customers is below what the budget affords; part of the budget stays unspent",
		})
	}

	if doc.Data.PredictionDays < doc.Rolling.StepDays {
		warnings = append(warnings, Warning{
			Code:    "SPARSE_CUTOFFS",
			Message: "step_days > prediction_days: some periods never appear in a prediction window",
		})
	}

	return warnings
}

// prefixed qualifies a ValidationError field with its section
func prefixed(section string, err error) error {
	if ve, ok := err.(*contracts.ValidationError); ok {
		return &contracts.ValidationError{Field: section + ve.Field, Message: ve.Message}
	}
	return err
}
