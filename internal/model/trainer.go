package model

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/pkg/logger"
)

// calibrationFolds is the number of out-of-fold partitions used to fit Platt scaling
const calibrationFolds = 3

// Trainer fits the three models on a time split of the rolling dataset
// ⭐ SSOT: S4 학습 로직은 여기서만
type Trainer struct {
	params Params
	log    *logger.Logger
	now    func() time.Time
}

// NewTrainer creates a trainer
func NewTrainer(p Params, log *logger.Logger) *Trainer {
	return &Trainer{params: p, log: log, now: time.Now}
}

// Train fits churn, spend and revenue models on the train cutoffs and
// evaluates them on the held-out cutoffs.
func (t *Trainer) Train(ctx context.Context, rows []contracts.RollingDatasetRow) (*Bundle, error) {
	if err := t.params.Validate(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: rolling dataset is empty", contracts.ErrInsufficientHistory)
	}

	split := TimeSplit(rows)
	fs := SelectFeatures(split.Train)
	if len(fs.Columns) == 0 {
		return nil, contracts.NewIntegrityError("feature_set", "every feature column is empty in the training cutoffs")
	}

	t.log.WithFields(map[string]interface{}{
		"train_rows":    len(split.Train),
		"test_rows":     len(split.Test),
		"train_cutoffs": len(split.TrainCutoffs),
		"test_cutoffs":  len(split.TestCutoffs),
		"features":      len(fs.Columns),
	}).Info("Starting model training")

	Xtrain := fs.Matrix(split.Train)
	Xtest := fs.Matrix(split.Test)
	b := &Bundle{
		Version:      BundleVersion,
		TrainedAt:    t.now().UTC(),
		Params:       t.params,
		FeatureSet:   fs,
		TrainCutoffs: split.TrainCutoffs,
		TestCutoffs:  split.TestCutoffs,
	}

	// churn
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	yChurn := ChurnLabels(split.Train)
	b.Churn = t.fitChurn(Xtrain, yChurn, len(fs.Columns))
	b.Metrics.Churn = EvaluateBinary(ChurnLabels(split.Test), b.Churn.PredictProba(Xtest))

	// spend
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.Spend = t.fitSpend(Xtrain, SpendLabels(split.Train), len(fs.Columns))
	b.Metrics.Spend = EvaluateBinary(SpendLabels(split.Test), b.Spend.PredictProba(Xtest))

	// revenue, spenders only, log1p target
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	trainPos := Spenders(split.Train)
	b.Revenue = t.fitRevenue(fs.Matrix(trainPos), revenueTargets(trainPos), len(fs.Columns))

	testPos := Spenders(split.Test)
	actual := make([]float64, len(testPos))
	for i, r := range testPos {
		actual[i] = r.RevenuePredWindow
	}
	b.Metrics.Revenue = EvaluateRegression(actual, b.Revenue.PredictRevenue(fs.Matrix(testPos)))

	t.log.WithFields(map[string]interface{}{
		"churn_roc_auc": b.Metrics.Churn.ROCAUC,
		"churn_pr_auc":  b.Metrics.Churn.PRAUC,
		"spend_roc_auc": b.Metrics.Spend.ROCAUC,
		"revenue_mae":   b.Metrics.Revenue.MAE,
		"revenue_r2":    b.Metrics.Revenue.R2,
		"revenue_rows":  len(trainPos),
	}).Info("Model training completed")

	return b, nil
}

func (t *Trainer) fitChurn(X [][]float64, y []int, nCols int) *ChurnModel {
	imp := FitImputer(X, nCols)
	Xi := imp.Transform(X)

	booster := t.newChurnBooster()
	booster.Fit(Xi, y)
	m := &ChurnModel{Imputer: imp, Booster: booster}

	if t.params.Churn.Calibrate {
		if scores, ok := t.outOfFoldScores(Xi, y); ok {
			m.Platt = FitPlatt(scores, y)
		} else {
			t.log.Warn("Churn calibration skipped: a fold lacks one of the classes")
		}
	}
	return m
}

func (t *Trainer) newChurnBooster() *GradientBoostingClassifier {
	return &GradientBoostingClassifier{
		NEstimators:    t.params.Churn.NEstimators,
		LearningRate:   t.params.Churn.LearningRate,
		MaxDepth:       t.params.Churn.MaxDepth,
		MinSamplesLeaf: 1,
	}
}

// outOfFoldScores scores every row with a booster that never saw it.
// Folds are assigned round-robin by row index.
func (t *Trainer) outOfFoldScores(X [][]float64, y []int) ([]float64, bool) {
	scores := make([]float64, len(X))
	for fold := 0; fold < calibrationFolds; fold++ {
		var trX, teX [][]float64
		var trY []int
		var teIdx []int
		for i := range X {
			if i%calibrationFolds == fold {
				teX = append(teX, X[i])
				teIdx = append(teIdx, i)
			} else {
				trX = append(trX, X[i])
				trY = append(trY, y[i])
			}
		}
		if len(teX) == 0 || !twoClasses(trY) {
			return nil, false
		}

		booster := t.newChurnBooster()
		booster.Fit(trX, trY)
		for k, x := range teX {
			scores[teIdx[k]] = booster.Decision(x)
		}
	}
	return scores, twoClasses(y)
}

func (t *Trainer) fitSpend(X [][]float64, y []int, nCols int) *SpendModel {
	imp := FitImputer(X, nCols)
	Xi := imp.Transform(X)
	scaler := FitScaler(Xi, nCols)

	logit := &LogisticRegression{
		C:            t.params.Spend.C,
		MaxIter:      t.params.Spend.MaxIter,
		LearningRate: t.params.Spend.LearningRate,
	}
	logit.Fit(scaler.Transform(Xi), y)
	if logit.Coef == nil {
		logit.Coef = make([]float64, nCols)
	}
	return &SpendModel{Imputer: imp, Scaler: scaler, Logit: logit}
}

func (t *Trainer) fitRevenue(X [][]float64, y []float64, nCols int) *RevenueModel {
	imp := FitImputer(X, nCols)
	booster := &GradientBoostingRegressor{
		NEstimators:    t.params.Revenue.NEstimators,
		LearningRate:   t.params.Revenue.LearningRate,
		MaxDepth:       t.params.Revenue.MaxDepth,
		MinSamplesLeaf: t.params.Revenue.MinSamplesLeaf,
	}
	booster.Fit(imp.Transform(X), y)
	if len(X) == 0 {
		t.log.Warn("No spenders in the training cutoffs; revenue model predicts zero")
	}
	return &RevenueModel{Imputer: imp, Booster: booster}
}

func revenueTargets(rows []contracts.RollingDatasetRow) []float64 {
	y := make([]float64, len(rows))
	for i, r := range rows {
		y[i] = math.Log1p(r.RevenuePredWindow)
	}
	return y
}

func twoClasses(y []int) bool {
	pos := 0
	for _, v := range y {
		pos += v
	}
	return pos > 0 && pos < len(y)
}
