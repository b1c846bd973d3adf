// Package report writes run report artifacts: a JSON summary plus the
// loss-only and blended target lists as CSV.
package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/pkg/logger"
)

// TimestampLayout stamps every artifact name of one run
const TimestampLayout = "20060102_150405"

// DefaultPreview is the number of targets echoed into the JSON report
const DefaultPreview = 20

// FileWriter saves reports into a local directory
type FileWriter struct {
	dir string
	log *logger.Logger
	now func() time.Time
}

// NewFileWriter creates a writer for dir
func NewFileWriter(dir string, log *logger.Logger) *FileWriter {
	return &FileWriter{dir: dir, log: log, now: time.Now}
}

// Dir returns the reports directory
func (w *FileWriter) Dir() string {
	return w.dir
}

type document struct {
	RunID       string                    `json:"run_id,omitempty"`
	CutoffDate  string                    `json:"cutoff_date"`
	GeneratedAt string                    `json:"generated_at"`
	Assumptions contracts.Assumptions     `json:"assumptions"`
	LossOnly    contracts.StrategySummary `json:"strategy_loss_only"`
	Blended     contracts.StrategySummary `json:"strategy_blended"`
	OverlapPct  float64                   `json:"overlap_pct_blended_vs_loss_only"`
	Files       files                     `json:"files"`
	TopPreview  preview                   `json:"top_preview"`
}

type files struct {
	LossCSV    string `json:"loss_csv"`
	BlendedCSV string `json:"blended_csv"`
	ReportJSON string `json:"report_json"`
}

type preview struct {
	LossOnlyTop []contracts.TargetedCustomer `json:"loss_only_top"`
	BlendedTop  []contracts.TargetedCustomer `json:"blended_top"`
}

// Save writes run_report_<cutoff>_<ts>.json, top_loss_<cutoff>_<ts>.csv and
// top_blended_<cutoff>_<ts>.csv. Every file goes to a temp name first, so a
// failed save leaves no partial artifact behind.
func (w *FileWriter) Save(ctx context.Context, rep *contracts.RunReport) (*contracts.ArtifactPaths, error) {
	if rep == nil || rep.LossOnly == nil || rep.Blended == nil {
		return nil, contracts.NewValidationError("report", "both strategy results are required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create reports dir: %w", err)
	}

	generated := rep.GeneratedAt
	if generated.IsZero() {
		generated = w.now()
	}
	stamp := contracts.FormatDate(rep.CutoffDate) + "_" + generated.Format(TimestampLayout)
	paths := &contracts.ArtifactPaths{
		ReportJSON: filepath.Join(w.dir, "run_report_"+stamp+".json"),
		LossCSV:    filepath.Join(w.dir, "top_loss_"+stamp+".csv"),
		BlendedCSV: filepath.Join(w.dir, "top_blended_"+stamp+".csv"),
	}

	n := rep.TopNPreview
	if n <= 0 {
		n = DefaultPreview
	}
	doc := document{
		RunID:       rep.RunID,
		CutoffDate:  contracts.FormatDate(rep.CutoffDate),
		GeneratedAt: generated.Format(TimestampLayout),
		Assumptions: rep.Assumptions,
		LossOnly:    rep.LossOnly.Summary,
		Blended:     rep.Blended.Summary,
		OverlapPct:  rep.OverlapPct,
		Files: files{
			LossCSV:    filepath.ToSlash(paths.LossCSV),
			BlendedCSV: filepath.ToSlash(paths.BlendedCSV),
			ReportJSON: filepath.ToSlash(paths.ReportJSON),
		},
		TopPreview: preview{
			LossOnlyTop: nonNil(rep.LossOnly.Top(n)),
			BlendedTop:  nonNil(rep.Blended.Top(n)),
		},
	}
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}

	lossCSV, err := encodeTargets(rep.LossOnly)
	if err != nil {
		return nil, err
	}
	blendedCSV, err := encodeTargets(rep.Blended)
	if err != nil {
		return nil, err
	}

	err = w.commit([]artifact{
		{path: paths.LossCSV, body: lossCSV},
		{path: paths.BlendedCSV, body: blendedCSV},
		{path: paths.ReportJSON, body: body},
	})
	if err != nil {
		return nil, err
	}

	w.log.WithFields(map[string]interface{}{
		"cutoff_date": doc.CutoffDate,
		"report":      paths.ReportJSON,
		"loss_rows":   len(rep.LossOnly.Selected),
		"blend_rows":  len(rep.Blended.Selected),
	}).Info("Report saved")
	return paths, nil
}

type artifact struct {
	path string
	body []byte
	tmp  string
}

// commit stages every artifact as a temp file and renames them only when all were written
func (w *FileWriter) commit(arts []artifact) (err error) {
	var renamed []string
	defer func() {
		if err == nil {
			return
		}
		for _, a := range arts {
			if a.tmp != "" {
				_ = os.Remove(a.tmp)
			}
		}
		for _, p := range renamed {
			_ = os.Remove(p)
		}
	}()

	for i := range arts {
		f, err := os.CreateTemp(w.dir, ".report-*.tmp")
		if err != nil {
			return fmt.Errorf("failed to create temp file: %w", err)
		}
		arts[i].tmp = f.Name()
		if _, err := f.Write(arts[i].body); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s: %w", filepath.Base(arts[i].path), err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", filepath.Base(arts[i].path), err)
		}
	}

	for i := range arts {
		if err := os.Rename(arts[i].tmp, arts[i].path); err != nil {
			return fmt.Errorf("failed to publish %s: %w", filepath.Base(arts[i].path), err)
		}
		arts[i].tmp = ""
		renamed = append(renamed, arts[i].path)
	}
	return nil
}

func nonNil(t []contracts.TargetedCustomer) []contracts.TargetedCustomer {
	if t == nil {
		return []contracts.TargetedCustomer{}
	}
	return t
}

var targetHeader = []string{
	"rank", "customer_id", "churn_prob", "spend_prob", "pred_revenue_if_spend",
	"expected_revenue", "expected_clv", "expected_loss", "prevented_loss",
}

// encodeTargets renders a selection as CSV. Blended selections also carry
// the score and both percentile ranks.
func encodeTargets(r *contracts.TargetingResult) ([]byte, error) {
	header := append([]string(nil), targetHeader...)
	extra := r.ScoreColumn != "" && r.ScoreColumn != contracts.MetricExpectedLoss
	if extra {
		header = append(header, r.ScoreColumn, "r_loss", "r_clv")
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(header); err != nil {
		return nil, err
	}
	for _, c := range r.Selected {
		rec := []string{
			strconv.Itoa(c.Rank),
			strconv.FormatInt(c.CustomerID, 10),
			formatFloat(c.ChurnProb),
			formatFloat(c.SpendProb),
			formatFloat(c.PredRevenueIfSpend),
			formatFloat(c.ExpectedRevenue),
			formatFloat(c.ExpectedCLV),
			formatFloat(c.ExpectedLoss),
			formatFloat(c.PreventedLoss),
		}
		if extra {
			rec = append(rec, formatFloat(c.Score), formatOptional(c.LossPctRank), formatOptional(c.CLVPctRank))
		}
		if err := cw.Write(rec); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("failed to encode %s targets: %w", r.Strategy, err)
	}
	return buf.Bytes(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
