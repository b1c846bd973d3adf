package contracts

// Pipeline Stage 정의 (SSOT)
// 모든 로그, 런 메타데이터, DB row에서 이 상수를 사용해야 함
//
// 파이프라인 흐름:
//   S0 → S1 → S2 → S3 → S4 → S5 → S6 → S7 → S8
//   Ingest  Windows  Features  Rolling  Training  Scoring  Targeting  Quality  Report

// Stage represents a pipeline stage
type Stage string

const (
	// StageIngest S0: ledger ingestion and revenue derivation
	// 위치: internal/ledger/
	StageIngest Stage = "S0_INGEST"

	// StageWindows S1: cutoff enumeration and window arithmetic
	// 위치: internal/window/
	StageWindows Stage = "S1_WINDOWS"

	// StageFeatures S2: per-window features and labels
	// 위치: internal/features/
	StageFeatures Stage = "S2_FEATURES"

	// StageRolling S3: union of every cutoff into one training table
	// 위치: internal/rolling/
	StageRolling Stage = "S3_ROLLING"

	// StageTraining S4: churn, spend and revenue models
	// 위치: internal/model/
	StageTraining Stage = "S4_TRAINING"

	// StageScoring S5: expected revenue / CLV / loss per customer
	// 위치: internal/scoring/
	StageScoring Stage = "S5_SCORING"

	// StageTargeting S6: budget-constrained selection
	// 위치: internal/targeting/
	StageTargeting Stage = "S6_TARGETING"

	// StageQuality S7: prediction store checks, drift, calibration
	// 위치: internal/quality/
	StageQuality Stage = "S7_QUALITY"

	// StageReport S8: run report artifacts
	// 위치: internal/report/
	StageReport Stage = "S8_REPORT"
)

// String returns the stage name
func (s Stage) String() string {
	return string(s)
}

// ShortName returns abbreviated stage name (e.g., "S0", "S1")
func (s Stage) ShortName() string {
	switch s {
	case StageIngest:
		return "S0"
	case StageWindows:
		return "S1"
	case StageFeatures:
		return "S2"
	case StageRolling:
		return "S3"
	case StageTraining:
		return "S4"
	case StageScoring:
		return "S5"
	case StageTargeting:
		return "S6"
	case StageQuality:
		return "S7"
	case StageReport:
		return "S8"
	default:
		return "UNKNOWN"
	}
}

// Description returns a human readable description of the stage
func (s Stage) Description() string {
	switch s {
	case StageIngest:
		return "거래 원장 적재"
	case StageWindows:
		return "컷오프/윈도우 계산"
	case StageFeatures:
		return "고객 피처/라벨 생성"
	case StageRolling:
		return "롤링 학습셋 조립"
	case StageTraining:
		return "모델 학습"
	case StageScoring:
		return "CLV/손실 스코어링"
	case StageTargeting:
		return "예산 제약 타게팅"
	case StageQuality:
		return "품질/드리프트 점검"
	case StageReport:
		return "리포트 산출"
	default:
		return "알 수 없음"
	}
}

// AllStages returns all pipeline stages in order
func AllStages() []Stage {
	return []Stage{
		StageIngest,
		StageWindows,
		StageFeatures,
		StageRolling,
		StageTraining,
		StageScoring,
		StageTargeting,
		StageQuality,
		StageReport,
	}
}

// IsValidStage checks if a stage string is valid
func IsValidStage(s string) bool {
	for _, stage := range AllStages() {
		if string(stage) == s {
			return true
		}
	}
	return false
}

// PipelineResult represents the result of a pipeline stage execution
type PipelineResult struct {
	Stage       Stage                  `json:"stage"`
	Success     bool                   `json:"success"`
	InputCount  int                    `json:"input_count"`
	OutputCount int                    `json:"output_count"`
	Duration    int64                  `json:"duration_ms"`
	Error       string                 `json:"error,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}
