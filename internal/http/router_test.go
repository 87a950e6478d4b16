package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/Super-Meta77/sefaria-backend/internal/data/db"
	"github.com/Super-Meta77/sefaria-backend/internal/data/graph"
	"github.com/Super-Meta77/sefaria-backend/internal/data/repos/runs"
	"github.com/Super-Meta77/sefaria-backend/internal/domain"
	httpH "github.com/Super-Meta77/sefaria-backend/internal/http/handlers"
	"github.com/Super-Meta77/sefaria-backend/internal/modules/sugya"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/cache"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/logger"
	"github.com/Super-Meta77/sefaria-backend/internal/services"
)

type testEnv struct {
	router *gin.Engine
	graph  *graph.MemoryGraph
	runs   services.ExtractionRunService
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("dial tcp: connection refused") }

func newTestEnv(t *testing.T, pinger httpH.Pinger) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Nop()

	g := graph.NewMemoryGraph(
		domain.TextUnit{ID: "Berakhot 2a:1", ContentPrimary: []string{"מאימתי קורין את שמע?"}},
		domain.TextUnit{ID: "Berakhot 2a:2", ContentPrimary: []string{"אמר רבי אליעזר"}},
		domain.TextUnit{ID: "Berakhot 2b:1", ContentPrimary: []string{"תנו רבנן"}},
	)
	c := cache.NewLocal(32, time.Minute)
	writer := services.NewInvalidatingSugyaStore(log, g, c)

	ex, err := sugya.NewExtractor(sugya.ExtractorDeps{Log: log, Texts: g, Sugyot: writer})
	require.NoError(t, err)

	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: gormLogger.Default.LogMode(gormLogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrateAll(gdb))

	runSvc := services.NewExtractionRunService(log, ex, runs.NewExtractionRunRepo(gdb, log))
	seeds, err := sugya.LoadSeeds()
	require.NoError(t, err)

	r := NewRouter(RouterConfig{
		Log:               log,
		HealthHandler:     httpH.NewHealthHandler(pinger),
		SugyaHandler:      httpH.NewSugyaHandler(services.NewSugyaReader(log, g, g, c)),
		ExtractionHandler: httpH.NewExtractionHandler(runSvc),
		SeedHandler:       httpH.NewSeedHandler(log, writer, seeds),
	})
	return &testEnv{router: r, graph: g, runs: runSvc}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	out := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestHealthcheck(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, _ := env.do(t, nethttp.MethodGet, "/healthcheck", nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec, body := env.do(t, nethttp.MethodGet, "/healthcheck?deep=1", nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, "unconfigured", body["neo4j"])

	down := newTestEnv(t, downPinger{})
	rec, body = down.do(t, nethttp.MethodGet, "/healthcheck?deep=1", nil)
	assert.Equal(t, nethttp.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", body["status"])
}

func TestExtractThenReadStructure(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, body := env.do(t, nethttp.MethodPost, "/api/sugya/extract", map[string]any{"tractate": "Berakhot", "start_page": "2a"})
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	stats := body["stats"].(map[string]any)
	assert.Equal(t, float64(1), stats["saved"])

	rec, body = env.do(t, nethttp.MethodGet, "/api/sugya/Berakhot_2a", nil)
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Berakhot 2a", body["ref"])
	roots := body["roots"].([]any)
	require.Len(t, roots, 1)

	rec, _ = env.do(t, nethttp.MethodGet, "/api/sugya/Berakhot_2a/flow", nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	var flow []domain.FlowStep
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &flow))
	require.NotEmpty(t, flow)
	assert.Equal(t, 0, flow[0].Position.X)
	assert.Equal(t, 0, flow[0].Position.Y)

	rec, body = env.do(t, nethttp.MethodGet, "/api/sugya/Berakhot_2a/texts?limit=5", nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Len(t, body["texts"], 2)

	rec, body = env.do(t, nethttp.MethodGet, "/api/sugya", nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Len(t, body["sugyot"], 1)
}

func TestStructureNotFoundEnvelope(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, body := env.do(t, nethttp.MethodGet, "/api/sugya/Berakhot_99a", nil)
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "sugya_not_found", errObj["code"])
	assert.NotEmpty(t, errObj["message"])
}

func TestExtractRequiresTractate(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, body := env.do(t, nethttp.MethodPost, "/api/sugya/extract", map[string]any{})
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.Equal(t, "tractate_required", body["error"].(map[string]any)["code"])

	rec, _ = env.do(t, nethttp.MethodGet, "/api/sugya/Berakhot_2a/texts?limit=0", nil)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
}

func TestExtractAllAsyncCreatesRun(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, body := env.do(t, nethttp.MethodPost, "/api/sugya/extract-all", map[string]any{"async": true, "limit_per_tractate": 10})
	require.Equal(t, nethttp.StatusAccepted, rec.Code, rec.Body.String())
	run := body["run"].(map[string]any)
	id := run["id"].(string)
	require.NoError(t, env.runs.Wait())

	rec, body = env.do(t, nethttp.MethodGet, "/api/sugya/runs/"+id, nil)
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	got := body["run"].(map[string]any)
	assert.Equal(t, domain.RunStatusSucceeded, got["status"])
	result := got["result"].(map[string]any)
	assert.Equal(t, float64(1), result["tractates_processed"])

	rec, body = env.do(t, nethttp.MethodGet, "/api/sugya/runs", nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Len(t, body["runs"], 1)

	rec, _ = env.do(t, nethttp.MethodGet, "/api/sugya/runs/not-a-uuid", nil)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
}

func TestSeedCreatesHeaders(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, body := env.do(t, nethttp.MethodPost, "/api/sugya/seed", nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(6), body["result"].(map[string]any)["created"])

	rec, body = env.do(t, nethttp.MethodGet, "/api/sugya", nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Len(t, body["sugyot"], 6)
}
