package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	runsRepo "github.com/ShadowAlejo/parqueadero/database/repository/runs"
	"github.com/ShadowAlejo/parqueadero/models"
	"github.com/ShadowAlejo/parqueadero/services/reconcile"
	"github.com/ShadowAlejo/parqueadero/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRunner struct {
	ticks []reconcile.Tick
	err   error
}

func (f *fakeRunner) Run(_ context.Context, tick reconcile.Tick) (models.RunReport, error) {
	f.ticks = append(f.ticks, tick)
	report := models.RunReport{RunID: "r1", Pass: string(tick.Pass), TickTime: tick.Now}
	if f.err != nil {
		report.Error = f.err.Error()
	}
	return report, f.err
}

type fakeRuns struct {
	reports map[string][]models.RunReport
	err     error
}

func (f *fakeRuns) Record(_ context.Context, report models.RunReport) error {
	f.reports[report.Pass] = append([]models.RunReport{report}, f.reports[report.Pass]...)
	return nil
}

func (f *fakeRuns) Last(_ context.Context, pass string) (*models.RunReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.reports[pass]) == 0 {
		return nil, runsRepo.ErrNoRuns
	}
	r := f.reports[pass][0]
	return &r, nil
}

func (f *fakeRuns) Recent(_ context.Context, pass string, n int) ([]models.RunReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := f.reports[pass]
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

var handlerNow = time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC)

func newRunEngine(runner *fakeRunner, runs *fakeRuns) *gin.Engine {
	h := NewRunHandler(runner, runs)
	h.Clock = func() time.Time { return handlerNow }
	r := gin.New()
	r.GET("/api/runs/:pass", h.LastRunHandler)
	r.GET("/api/runs/:pass/history", h.RunHistoryHandler)
	r.POST("/api/runs/:pass", h.TriggerRunHandler)
	return r
}

func serve(r http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestTriggerRunHandler(t *testing.T) {
	runner := &fakeRunner{}
	r := newRunEngine(runner, &fakeRuns{reports: map[string][]models.RunReport{}})

	w := serve(r, http.MethodPost, "/api/runs/finalize")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, runner.ticks, 1)
	assert.Equal(t, reconcile.Tick{Pass: reconcile.PassFinalize, Now: handlerNow}, runner.ticks[0])

	w = serve(r, http.MethodPost, "/api/runs/recompute?now=2026-03-09T23:30:00-05:00")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, runner.ticks, 2)
	assert.True(t, runner.ticks[1].Now.Equal(time.Date(2026, 3, 10, 4, 30, 0, 0, time.UTC)))
}

func TestTriggerRunHandler_BadInput(t *testing.T) {
	runner := &fakeRunner{}
	r := newRunEngine(runner, &fakeRuns{reports: map[string][]models.RunReport{}})

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/api/runs/purge").Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/api/runs/finalize?now=yesterday").Code)
	assert.Empty(t, runner.ticks)
}

func TestTriggerRunHandler_Failure(t *testing.T) {
	r := newRunEngine(&fakeRunner{err: errors.New("store unavailable")}, &fakeRuns{reports: map[string][]models.RunReport{}})

	w := serve(r, http.MethodPost, "/api/runs/finalize")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body struct {
		Error string           `json:"error"`
		Run   models.RunReport `json:"run"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "store unavailable", body.Error)
	assert.Equal(t, "r1", body.Run.RunID)
}

func TestLastRunHandler(t *testing.T) {
	runs := &fakeRuns{reports: map[string][]models.RunReport{
		"finalize": {{RunID: "newest", Pass: "finalize", Finalized: 3}},
	}}
	r := newRunEngine(&fakeRunner{}, runs)

	w := serve(r, http.MethodGet, "/api/runs/finalize")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Run models.RunReport `json:"run"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "newest", body.Run.RunID)
	assert.Equal(t, 3, body.Run.Finalized)

	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/api/runs/recompute").Code)

	runs.err = errors.New("redis down")
	assert.Equal(t, http.StatusInternalServerError, serve(r, http.MethodGet, "/api/runs/finalize").Code)
}

func TestRunHistoryHandler(t *testing.T) {
	runs := &fakeRuns{reports: map[string][]models.RunReport{
		"recompute": {{RunID: "c"}, {RunID: "b"}, {RunID: "a"}},
	}}
	r := newRunEngine(&fakeRunner{}, runs)

	w := serve(r, http.MethodGet, "/api/runs/recompute/history?limit=2")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Runs []models.RunReport `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Runs, 2)
	assert.Equal(t, "c", body.Runs[0].RunID)

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodGet, "/api/runs/recompute/history?limit=0").Code)
}

func TestHealthHandler(t *testing.T) {
	healthy := true
	monitor := utils.NewHealthMonitor(map[string]utils.Pinger{
		"store": utils.PingFunc(func(context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("down")
		}),
	}, time.Minute, nil)
	r := gin.New()
	r.GET("/health", NewHealthHandler(monitor))

	monitor.Check(context.Background())
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/health").Code)

	healthy = false
	monitor.Check(context.Background())
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodGet, "/health").Code)
}
