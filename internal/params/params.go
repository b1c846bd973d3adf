// Package params loads the pipeline parameter document.
package params

import (
	"time"

	"github.com/wonny/clv-retention/internal/model"
	"github.com/wonny/clv-retention/internal/quality"
	"github.com/wonny/clv-retention/internal/rolling"
	"github.com/wonny/clv-retention/internal/targeting"
	"github.com/wonny/clv-retention/internal/window"
)

// Document is the full params.yaml
// ⭐ SSOT: 파이프라인 파라미터는 이 구조체로만 전달
type Document struct {
	Data        window.Durations `yaml:"data" json:"data"`
	Rolling     Rolling          `yaml:"rolling" json:"rolling"`
	Models      model.Params     `yaml:"models" json:"models"`
	Decisioning Decisioning      `yaml:"decisioning" json:"decisioning"`
	Quality     quality.Params   `yaml:"quality" json:"quality"`
}

// Rolling controls cutoff spacing and the cutoff worker pool
type Rolling struct {
	StepDays int `yaml:"step_days" json:"step_days"`
	Workers  int `yaml:"workers" json:"workers"`
}

// Decisioning holds budget, blend and reporting inputs
type Decisioning struct {
	BudgetEUR       float64   `yaml:"budget_eur" json:"budget_eur"`
	CostPerCustomer float64   `yaml:"cost_per_customer" json:"cost_per_customer"`
	MaxCustomers    int       `yaml:"max_customers" json:"max_customers"`
	SaveRate        float64   `yaml:"save_rate" json:"save_rate"`
	WLoss           float64   `yaml:"w_loss" json:"w_loss"`
	WCLV            float64   `yaml:"w_clv" json:"w_clv"`
	TopNPreview     int       `yaml:"top_n_preview" json:"top_n_preview"`
	SweepWeights    []float64 `yaml:"sweep_weights" json:"sweep_weights"`
}

// Default returns the built-in parameters
func Default() *Document {
	tp := targeting.DefaultParams()
	w := targeting.DefaultWeights()
	return &Document{
		Data:    window.Durations{ObservationDays: 90, GapDays: 0, PredictionDays: 30},
		Rolling: Rolling{StepDays: 30, Workers: 4},
		Models:  model.DefaultParams(),
		Decisioning: Decisioning{
			BudgetEUR:       tp.BudgetEUR,
			CostPerCustomer: tp.CostPerCustomer,
			MaxCustomers:    tp.MaxCustomers,
			SaveRate:        tp.SaveRate,
			WLoss:           w.WLoss,
			WCLV:            w.WCLV,
			TopNPreview:     20,
			SweepWeights:    targeting.DefaultSweepWeights(),
		},
		Quality: quality.DefaultParams(),
	}
}

// RollingParams returns the assembler parameters
func (d *Document) RollingParams() rolling.Params {
	return rolling.Params{Durations: d.Data, StepDays: d.Rolling.StepDays, Workers: d.Rolling.Workers}
}

// Targeting returns the optimizer parameters
func (d *Document) Targeting() targeting.Params {
	return targeting.Params{
		BudgetEUR:       d.Decisioning.BudgetEUR,
		CostPerCustomer: d.Decisioning.CostPerCustomer,
		MaxCustomers:    d.Decisioning.MaxCustomers,
		SaveRate:        d.Decisioning.SaveRate,
	}
}

// Weights returns the blended strategy weights
func (d *Document) Weights() targeting.Weights {
	return targeting.Weights{WLoss: d.Decisioning.WLoss, WCLV: d.Decisioning.WCLV}
}

// Snapshot 실행 파라미터 스냅샷 (재현성용)
type Snapshot struct {
	Hash      string    `json:"params_hash"`
	YAML      string    `json:"params_yaml"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}
