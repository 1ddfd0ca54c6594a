package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiftbot/internal/model"
	"shiftbot/internal/pipeline"
	"shiftbot/internal/repository"
	"shiftbot/internal/testutil"
)

type fakeScheduler struct {
	running bool
	runErr  error
	runs    int
}

func (f *fakeScheduler) Start() error {
	f.running = true
	return nil
}

func (f *fakeScheduler) Stop() error {
	f.running = false
	return nil
}

func (f *fakeScheduler) IsRunning() bool { return f.running }

func (f *fakeScheduler) RunOnce(ctx context.Context) error {
	f.runs++
	return f.runErr
}

func (f *fakeScheduler) GetNextRun() time.Time { return time.Time{} }

func (f *fakeScheduler) GetLastRun() time.Time { return time.Time{} }

type fakeReporter struct {
	last *pipeline.Summary
}

func (f *fakeReporter) LastRun() *pipeline.Summary { return f.last }

func setup(t *testing.T) (*gin.Engine, *repository.Repository, *fakeScheduler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.New(testutil.NewDB(t))
	sched := &fakeScheduler{}
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "shiftbot_test_total", Help: "test"}))

	h := NewHandlers(repo, sched, &fakeReporter{last: &pipeline.Summary{RunID: 7}}, reg)
	r := gin.New()
	h.SetupRoutes(r)
	return r, repo, sched
}

func do(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	r, _, _ := setup(t)

	w := do(r, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Database)
	assert.Equal(t, "stopped", resp.Scheduler)
	require.NotNil(t, resp.LastRun)
	assert.Equal(t, uint(7), resp.LastRun.RunID)
}

func TestMetricsEndpoint(t *testing.T) {
	r, _, _ := setup(t)

	w := do(r, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "shiftbot_test_total")
}

func TestGetRuns(t *testing.T) {
	r, repo, _ := setup(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.CreateRun(ctx, &model.Run{StartedAtUTC: time.Now().UTC(), Scanned: i}))
	}

	w := do(r, http.MethodGet, "/api/v1/runs?limit=2")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Runs       []model.Run `json:"runs"`
		Pagination Pagination  `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Runs, 2)
	assert.Equal(t, int64(3), resp.Pagination.Total)
	assert.Equal(t, 2, resp.Runs[0].Scanned)

	w = do(r, http.MethodGet, "/api/v1/runs/1")
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(r, http.MethodGet, "/api/v1/runs/99")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(r, http.MethodGet, "/api/v1/runs/abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetEvents(t *testing.T) {
	r, repo, _ := setup(t)
	ctx := context.Background()

	_, err := repo.CreateMessage(ctx, &model.Message{MsgID: "m1", Status: model.MessageProcessed})
	require.NoError(t, err)
	att := &model.Attachment{MsgID: "m1", Filename: "DP_2024.pdf", SHA256: "fp"}
	_, err = repo.InsertAttachment(ctx, att)
	require.NoError(t, err)
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.CreateEvents(ctx, []model.Event{{
		EventUID: model.EventUIDFor("fp", start), AttachmentID: att.ID, SourceMsgID: "m1",
		StartUTC: start, EndUTC: start.Add(12 * time.Hour), Status: model.EventPlanned,
	}}))

	w := do(r, http.MethodGet, "/api/v1/events?status=planned")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Events []model.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Events, 1)

	w = do(r, http.MethodGet, "/api/v1/events?status=synced")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Events)

	w = do(r, http.MethodGet, "/api/v1/events?status=bogus")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/v1/events/fp20240101T0800Z")
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(r, http.MethodGet, "/api/v1/events/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSchedulerEndpoints(t *testing.T) {
	r, _, sched := setup(t)

	w := do(r, http.MethodPost, "/api/v1/scheduler/start")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, sched.running)

	w = do(r, http.MethodGet, "/api/v1/scheduler/status")
	require.Equal(t, http.StatusOK, w.Code)
	var status SchedulerStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Running)
	assert.Nil(t, status.NextRun)

	w = do(r, http.MethodPost, "/api/v1/scheduler/stop")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, sched.running)
}

func TestRunOnce(t *testing.T) {
	r, _, sched := setup(t)

	w := do(r, http.MethodPost, "/api/v1/scheduler/run-once")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, sched.runs)

	sched.runErr = pipeline.ErrRunInProgress
	w = do(r, http.MethodPost, "/api/v1/scheduler/run-once")
	assert.Equal(t, http.StatusConflict, w.Code)

	sched.runErr = assert.AnError
	w = do(r, http.MethodPost, "/api/v1/scheduler/run-once")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
