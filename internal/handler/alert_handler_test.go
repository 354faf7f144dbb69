package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"FinMonitorAPI/internal/config"
	"FinMonitorAPI/internal/engine"
	"FinMonitorAPI/internal/logger"
	"FinMonitorAPI/internal/models"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: logger.FATAL})
	require.NoError(t, err)
	return log
}

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg := config.EngineConfig{
		BaselineWindowSize:    100,
		BaselineMinSamples:    10,
		AnomalyZScore:         3.0,
		DedupWindow:           5 * time.Minute,
		StormWindow:           time.Minute,
		StormThreshold:        100,
		CorrelationWindow:     10 * time.Minute,
		CorrelationMinCluster: 3,
		DispatchTimeout:       time.Second,
		RetentionAge:          24 * time.Hour,
	}
	return engine.New(cfg, engine.Topics{}, nil, nil, nil, nil, nil, testLogger(t))
}

type stubAlertRepo struct {
	history []models.Alert
	stats   map[string]int
}

func (s *stubAlertRepo) Create(ctx context.Context, alert *models.Alert) error { return nil }
func (s *stubAlertRepo) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	return nil, nil
}
func (s *stubAlertRepo) GetHistory(ctx context.Context, limit, offset int) ([]models.Alert, error) {
	if offset >= len(s.history) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.history) {
		end = len(s.history)
	}
	return s.history[offset:end], nil
}
func (s *stubAlertRepo) Acknowledge(ctx context.Context, id string) error { return nil }
func (s *stubAlertRepo) Resolve(ctx context.Context, id string) error     { return nil }
func (s *stubAlertRepo) DeleteOld(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}
func (s *stubAlertRepo) GetStatistics(ctx context.Context) (map[string]int, error) {
	return s.stats, nil
}

type stubDLQRepo struct {
	msgs []models.DeadLetterMessage
}

func (s *stubDLQRepo) Create(ctx context.Context, msg *models.DeadLetterMessage) error { return nil }
func (s *stubDLQRepo) GetRecent(ctx context.Context, limit int) ([]models.DeadLetterMessage, error) {
	if limit > len(s.msgs) {
		limit = len(s.msgs)
	}
	return s.msgs[:limit], nil
}

func newTestRouter(t *testing.T, eng *engine.Engine, alertRepo *stubAlertRepo, dlqRepo *stubDLQRepo) *mux.Router {
	t.Helper()
	r := mux.NewRouter()
	NewAlertHandler(eng, alertRepo, dlqRepo, testLogger(t)).RegisterRoutes(r)
	NewBaselineHandler(eng, testLogger(t)).RegisterRoutes(r)
	return r
}

func seedAlert(t *testing.T, eng *engine.Engine, id, metric string) {
	t.Helper()
	require.NoError(t, eng.ProcessAlert(context.Background(), models.Alert{
		ID:        id,
		Type:      models.TypeThreshold,
		Severity:  models.SeverityHigh,
		Status:    models.StatusOpen,
		Metric:    metric,
		Service:   "payments",
		CreatedAt: time.Now(),
	}))
}

func TestGetActiveAlerts(t *testing.T) {
	eng := testEngine(t)
	seedAlert(t, eng, "a1", "api.latency")
	router := newTestRouter(t, eng, &stubAlertRepo{}, &stubDLQRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts/active", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var alerts []models.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alerts))
	require.Len(t, alerts, 1)
	assert.Equal(t, "a1", alerts[0].ID)
}

func TestAcknowledgeAlertRoute(t *testing.T) {
	eng := testEngine(t)
	seedAlert(t, eng, "a1", "api.latency")
	router := newTestRouter(t, eng, &stubAlertRepo{}, &stubDLQRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/alerts/acknowledge/a1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	active := eng.ActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, models.StatusAcknowledged, active[0].Status)
}

func TestResolveAlertRoute(t *testing.T) {
	eng := testEngine(t)
	seedAlert(t, eng, "a1", "api.latency")
	router := newTestRouter(t, eng, &stubAlertRepo{}, &stubDLQRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/alerts/resolve/a1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, eng.ActiveAlerts())
}

func TestAcknowledgeUnknownAlertIs404(t *testing.T) {
	router := newTestRouter(t, testEngine(t), &stubAlertRepo{}, &stubDLQRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/alerts/acknowledge/ghost", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAlertHistoryPagination(t *testing.T) {
	repo := &stubAlertRepo{history: []models.Alert{
		{ID: "h1"}, {ID: "h2"}, {ID: "h3"},
	}}
	router := newTestRouter(t, testEngine(t), repo, &stubDLQRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts/history?limit=2&offset=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var alerts []models.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alerts))
	require.Len(t, alerts, 2)
	assert.Equal(t, "h2", alerts[0].ID)
}

func TestGetStatisticsRoute(t *testing.T) {
	repo := &stubAlertRepo{stats: map[string]int{"HIGH": 2, "LOW": 1}}
	router := newTestRouter(t, testEngine(t), repo, &stubDLQRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts/statistics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats["HIGH"])
}

func TestGetDeadLettersRoute(t *testing.T) {
	dlq := &stubDLQRepo{msgs: []models.DeadLetterMessage{
		{ErrorReason: "Invalid message format"},
	}}
	router := newTestRouter(t, testEngine(t), &stubAlertRepo{}, dlq)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts/deadletters", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []models.DeadLetterMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "Invalid message format", msgs[0].ErrorReason)
}

func TestGetBaselineUnknownMetricIs404(t *testing.T) {
	router := newTestRouter(t, testEngine(t), &stubAlertRepo{}, &stubDLQRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/baselines/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
