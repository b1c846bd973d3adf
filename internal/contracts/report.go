package contracts

import (
	"time"
)

// Assumptions are the decisioning inputs echoed into every report
type Assumptions struct {
	BudgetEUR       float64 `json:"budget_eur"`
	CostPerCustomer float64 `json:"cost_per_customer"`
	MaxCustomers    int     `json:"max_customers"`
	SaveRate        float64 `json:"save_rate"`
	WLoss           float64 `json:"w_loss"`
	WCLV            float64 `json:"w_clv"`
	ParamsHash      string  `json:"params_hash,omitempty"`
}

// RunReport is everything the Report Writer receives
type RunReport struct {
	RunID       string           `json:"run_id"`
	CutoffDate  time.Time        `json:"cutoff_date"`
	GeneratedAt time.Time        `json:"generated_at"`
	Assumptions Assumptions      `json:"assumptions"`
	LossOnly    *TargetingResult `json:"strategy_loss_only"`
	Blended     *TargetingResult `json:"strategy_blended"`
	OverlapPct  float64          `json:"overlap_pct_blended_vs_loss_only"`
	TopNPreview int              `json:"top_n_preview"`
}

// ArtifactPaths are the locations written by a ReportSink
type ArtifactPaths struct {
	ReportJSON string   `json:"report_json"`
	LossCSV    string   `json:"loss_csv"`
	BlendedCSV string   `json:"blended_csv"`
	Remote     []string `json:"remote,omitempty"`
}

// Run statuses
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// RunRecord is the metadata of one pipeline run
type RunRecord struct {
	RunID      string     `json:"run_id"`
	CutoffDate *time.Time `json:"cutoff_date,omitempty"`
	ParamsHash string     `json:"params_hash"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Stages     []Stage    `json:"stages"`
	Error      string     `json:"error,omitempty"`
	Report     *RunReport `json:"report,omitempty"`
}
