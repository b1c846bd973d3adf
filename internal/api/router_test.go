package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/clv-retention/internal/api/handlers"
	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/internal/memstore"
	"github.com/wonny/clv-retention/internal/scoring"
	"github.com/wonny/clv-retention/internal/targeting"
	"github.com/wonny/clv-retention/pkg/config"
	"github.com/wonny/clv-retention/pkg/logger"
	"github.com/wonny/clv-retention/pkg/metrics"
	"github.com/wonny/clv-retention/pkg/redis"
)

var testCutoff = time.Date(2011, 6, 1, 0, 0, 0, 0, time.UTC)

// seededStore publishes ten customers; expected_loss = 5*i², so the
// ranking by loss is 10, 9, 8, ...
func seededStore(t *testing.T) *memstore.Store {
	t.Helper()
	store := memstore.New()
	rows := make([]contracts.PredictionRow, 0, 10)
	for i := 1; i <= 10; i++ {
		key := contracts.RowKey{CutoffDate: testCutoff, CustomerID: int64(i)}
		rows = append(rows, contracts.NewPredictionRow(key, float64(i)/10, 0.5, float64(100*i)))
	}
	ctx := t.Context()
	require.NoError(t, store.Predictions().ReplacePartition(ctx, testCutoff, rows))
	require.NoError(t, store.Predictions().SetLatest(ctx, testCutoff))
	return store
}

func testDefaults() handlers.DecisioningDefaults {
	return handlers.DecisioningDefaults{
		Params:       targeting.Params{BudgetEUR: 5, CostPerCustomer: 1, MaxCustomers: 100, SaveRate: 0.2},
		Weights:      targeting.DefaultWeights(),
		TopN:         3,
		SweepWeights: []float64{1, 0.5, 0},
	}
}

func newTestRouter(t *testing.T, reader contracts.PredictionReader, reg *metrics.Registry, limiter Limiter) http.Handler {
	t.Helper()
	return NewRouter(Deps{
		Predictions: reader,
		Defaults:    testDefaults(),
		ReportsDir:  t.TempDir(),
		Limiter:     limiter,
		Metrics:     reg,
	}, logger.Nop())
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	t.Run("nothing published", func(t *testing.T) {
		h := newTestRouter(t, memstore.New().Predictions(), nil, nil)
		rec := do(t, h, http.MethodGet, "/health", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "ok", body["status"])
		assert.Nil(t, body["latest_cutoff"])
	})

	t.Run("published", func(t *testing.T) {
		h := newTestRouter(t, seededStore(t).Predictions(), nil, nil)
		body := decodeBody(t, do(t, h, http.MethodGet, "/health", ""))

		assert.Equal(t, "2011-06-01", body["latest_cutoff"])
		assert.Equal(t, 10.0, body["rows"])
	})
}

func TestPredictions(t *testing.T) {
	h := newTestRouter(t, seededStore(t).Predictions(), nil, nil)

	rec := do(t, h, http.MethodGet, "/api/predictions/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	latest := decodeBody(t, rec)
	assert.Equal(t, "2011-06-01", latest["cutoff_date"])
	assert.Equal(t, 10.0, latest["count"])

	rec = do(t, h, http.MethodGet, "/api/predictions/latest/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decodeBody(t, rec)
	assert.Equal(t, 10.0, summary["rows"])
	assert.InDelta(t, 5.0*385, summary["sum_expected_loss"], 1e-9)

	rec = do(t, h, http.MethodGet, "/api/predictions/latest/top?by=expected_loss&n=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var top struct {
		By   string                    `json:"by"`
		Rows []contracts.PredictionRow `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &top))
	require.Len(t, top.Rows, 3)
	assert.Equal(t, []int64{10, 9, 8}, []int64{top.Rows[0].CustomerID, top.Rows[1].CustomerID, top.Rows[2].CustomerID})
}

func TestPredictionsTopValidation(t *testing.T) {
	h := newTestRouter(t, seededStore(t).Predictions(), nil, nil)

	for _, target := range []string{
		"/api/predictions/latest/top?by=customer_id",
		"/api/predictions/latest/top?n=0",
		"/api/predictions/latest/top?n=1001",
		"/api/predictions/latest/top?n=abc",
	} {
		rec := do(t, h, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Contains(t, decodeBody(t, rec)["error"], "validation failed", target)
	}
}

func TestPredictionsNotPublished(t *testing.T) {
	h := newTestRouter(t, memstore.New().Predictions(), nil, nil)

	for _, target := range []string{
		"/api/predictions/latest",
		"/api/predictions/latest/summary",
		"/api/predictions/latest/top",
	} {
		assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, target, "").Code, target)
	}
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/decisioning/simulate", "").Code)
}

func TestSimulate(t *testing.T) {
	h := newTestRouter(t, seededStore(t).Predictions(), nil, nil)

	t.Run("defaults", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/decisioning/simulate", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Params targeting.SimulateParams `json:"params"`
			Result targeting.Simulation     `json:"result"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 5.0, resp.Params.BudgetEUR)
		assert.Equal(t, 5, resp.Result.LossOnly.Summary.TargetedCustomers)
		assert.Len(t, resp.Result.LossOnly.Selected, 3)
		assert.Equal(t, []int64{10, 9, 8}, resp.Result.LossOnly.CustomerIDs())
	})

	t.Run("override budget", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/decisioning/simulate", `{"budget_eur": 2, "top_n": 0}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Result targeting.Simulation `json:"result"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, []int64{10, 9}, resp.Result.LossOnly.CustomerIDs())
		assert.InDelta(t, 2.0, resp.Result.LossOnly.Summary.TotalCost, 1e-12)
	})

	t.Run("zero budget", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/decisioning/simulate", `{"budget_eur": 0}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Result targeting.Simulation `json:"result"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 0, resp.Result.LossOnly.Summary.TargetedCustomers)
		assert.Nil(t, resp.Result.LossOnly.Summary.ROI)
	})

	t.Run("invalid", func(t *testing.T) {
		cases := map[string]string{
			`{"save_rate": 2}`:         "save_rate",
			`{"cost_per_customer": 0}`: "cost_per_customer",
			`{"w_loss": -1}`:           "w_loss",
			`{"top_n": 5000}`:          "top_n",
			`{"budget": 1}`:            "body",
			`{`:                        "body",
		}
		for body, field := range cases {
			rec := do(t, h, http.MethodPost, "/api/decisioning/simulate", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, body)
			assert.Contains(t, decodeBody(t, rec)["error"], field, body)
		}
	})
}

func TestSweep(t *testing.T) {
	h := newTestRouter(t, seededStore(t).Predictions(), nil, nil)

	rec := do(t, h, http.MethodPost, "/api/decisioning/sweep", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		CutoffDate string                 `json:"cutoff_date"`
		Points     []targeting.SweepPoint `json:"points"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Points, 3)
	assert.Equal(t, 1.0, resp.Points[0].WLoss)
	assert.InDelta(t, 1.0, resp.Points[0].OverlapVsBaseline, 1e-12)

	rec = do(t, h, http.MethodPost, "/api/decisioning/sweep", `{"w_losses": [0.25]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Points, 1)
	assert.InDelta(t, 0.75, resp.Points[0].WCLV, 1e-12)

	rec = do(t, h, http.MethodPost, "/api/decisioning/sweep", `{"w_losses": [1.5]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReports(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run_report_2011-06-01_20240101_000000.json"), []byte(`{"run_id":"x"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "top_loss_2011-06-01_20240101_000000.csv"), []byte("rank,customer_id\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	h := NewRouter(Deps{
		Predictions: memstore.New().Predictions(),
		Defaults:    testDefaults(),
		ReportsDir:  dir,
	}, logger.Nop())

	rec := do(t, h, http.MethodGet, "/api/reports", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, decodeBody(t, rec)["count"])

	rec = do(t, h, http.MethodGet, "/api/reports/run_report_2011-06-01_20240101_000000.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"run_id":"x"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/reports/top_loss_2011-06-01_20240101_000000.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/reports/notes.txt", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/reports/run_report_missing.json", "").Code)
}

func TestMetricsMiddleware(t *testing.T) {
	reg := metrics.New()
	h := newTestRouter(t, seededStore(t).Predictions(), reg, nil)

	do(t, h, http.MethodGet, "/api/predictions/latest/summary", "")
	do(t, h, http.MethodGet, "/api/reports/notes.txt", "")

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.HTTPRequests.WithLabelValues("/api/predictions/latest/summary", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.HTTPRequests.WithLabelValues("/api/reports/{name}", "400")))

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "clv_http_requests_total")
}

func TestRateLimitLocal(t *testing.T) {
	reg := metrics.New()
	h := newTestRouter(t, seededStore(t).Predictions(), reg, NewLocalLimiter(0.001, 1))

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/predictions/latest/summary", "").Code)
	rec := do(t, h, http.MethodGet, "/api/predictions/latest/summary", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.RateLimited))

	// health is outside the limited subrouter
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)

	// another client has its own bucket
	req := httptest.NewRequest(http.MethodGet, "/api/predictions/latest/summary", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.9, 10.0.0.1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func newMiniRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return redis.Wrap(rdb), mr
}

func TestRateLimitRedis(t *testing.T) {
	client, _ := newMiniRedis(t)
	h := newTestRouter(t, seededStore(t).Predictions(), nil, NewRedisLimiter(client, 1))

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/predictions/latest/summary", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodGet, "/api/predictions/latest/summary", "").Code)
}

func TestCachedPredictions(t *testing.T) {
	client, mr := newMiniRedis(t)
	reader := scoring.NewCachedReader(seededStore(t).Predictions(), redis.NewCache(client, "clv"))
	h := newTestRouter(t, reader, nil, nil)

	first := do(t, h, http.MethodGet, "/api/predictions/latest/summary", "")
	require.Equal(t, http.StatusOK, first.Code)
	second := do(t, h, http.MethodGet, "/api/predictions/latest/summary", "")
	require.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.NotEmpty(t, mr.Keys())

	rec := do(t, h, http.MethodGet, "/api/predictions/latest/top?n=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, decodeBody(t, rec)["n"])
}

func TestNewLimiter(t *testing.T) {
	cfg := &config.Config{APIRateLimitRPS: 5, APIRateBurst: 10}
	_, ok := NewLimiter(cfg, nil).(*LocalLimiter)
	assert.True(t, ok)

	client, _ := newMiniRedis(t)
	_, ok = NewLimiter(cfg, client).(*RedisLimiter)
	assert.True(t, ok)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := do(t, h, http.MethodGet, "/", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decodeBody(t, rec)["error"])
}
