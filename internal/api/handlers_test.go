package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeovahfialho/mt5-history/internal/domain"
	"github.com/jeovahfialho/mt5-history/internal/history"
	"github.com/jeovahfialho/mt5-history/internal/ingestion"
	"github.com/jeovahfialho/mt5-history/internal/service"
	"github.com/jeovahfialho/mt5-history/internal/session"
	"github.com/jeovahfialho/mt5-history/internal/storage/cache"
)

type countingLoader struct{}

func (countingLoader) LoadTradesConcurrent(_ context.Context, _ string, trades []domain.Trade) (int64, error) {
	return int64(len(trades)), nil
}

func (countingLoader) ReplaceTrades(_ context.Context, _ string, trades []domain.Trade) (int64, error) {
	return int64(len(trades)), nil
}

type testEnv struct {
	app *fiber.App
	mr  *miniredis.Miniredis
}

func setupApp(t *testing.T, withIngestion bool) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err, "failed to start miniredis")

	redisCache := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	t.Cleanup(func() {
		_ = redisCache.Close()
		mr.Close()
	})

	profitService := service.NewProfitService(history.DemoSource{}, redisCache, time.Minute)
	sessions := session.NewManager(redisCache, time.Hour, profitService.Invalidate)
	tradeService := service.NewTradeService(history.DemoSource{})

	var ingestionService *service.IngestionService
	if withIngestion {
		pool := ingestion.NewWorkerPool(2, ingestion.NewParser(100, 1), countingLoader{})
		pool.Start(context.Background())
		t.Cleanup(pool.Stop)
		ingestionService = service.NewIngestionService(pool, profitService)
	}

	handler := NewHandler(nil, redisCache, sessions, profitService, tradeService, ingestionService, "demo", time.Hour)

	app := fiber.New()
	SetupRoutes(app, handler, RouteConfig{
		AdminUser:      "admin",
		AdminPassword:  "secret",
		RateLimit:      1000,
		MetricsEnabled: true,
	})

	return &testEnv{app: app, mr: mr}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	return resp, data
}

func (e *testEnv) connect(t *testing.T, login string) string {
	t.Helper()

	resp, body := e.do(t, http.MethodPost, "/api/v1/session", ConnectRequest{Login: login, Server: "Demo"}, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))

	var sess SessionResponse
	require.NoError(t, json.Unmarshal(body, &sess))
	require.NotEmpty(t, sess.Token)
	assert.Equal(t, login, sess.Login)

	return sess.Token
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func adminAuth() map[string]string {
	return map[string]string{"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:secret"))}
}

func TestHealthCheck(t *testing.T) {
	env := setupApp(t, false)

	resp, body := env.do(t, http.MethodGet, "/health", nil, nil)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"healthy"`)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestReadinessCheck(t *testing.T) {
	env := setupApp(t, false)

	resp, body := env.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ready", health.Status)
	assert.Equal(t, "healthy", health.Services["redis"].Status)
	assert.NotContains(t, health.Services, "database")

	env.mr.Close()
	resp, _ = env.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestDailyProfit_WithSession(t *testing.T) {
	env := setupApp(t, false)
	token := env.connect(t, "5001")

	resp, body := env.do(t, http.MethodGet, "/api/v1/profit/daily?cumulative=true", nil, bearer(token))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))

	var out DailyProfitResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "5001", out.Login)
	assert.Equal(t, 2, out.Days)
	assert.Equal(t, []domain.DailyProfitPoint{
		{Date: "2023-06-01", Profit: 110},
		{Date: "2023-06-02", Profit: -50},
	}, out.Daily)
	assert.Equal(t, []domain.DailyProfitPoint{
		{Date: "2023-06-01", Profit: 110},
		{Date: "2023-06-02", Profit: 60},
	}, out.Cumulative)

	assert.True(t, env.mr.Exists("pnl:5001:daily"))
}

func TestSessionRequired(t *testing.T) {
	env := setupApp(t, false)

	for _, path := range []string{"/api/v1/trades", "/api/v1/profit/daily", "/api/v1/profit/summary"} {
		t.Run(path, func(t *testing.T) {
			resp, body := env.do(t, http.MethodGet, path, nil, bearer("unknown"))

			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

			var errResp ErrorResponse
			require.NoError(t, json.Unmarshal(body, &errResp))
			assert.Equal(t, fiber.StatusUnauthorized, errResp.Code)
			assert.NotEmpty(t, errResp.RequestID)
		})
	}
}

func TestConnect_Validation(t *testing.T) {
	env := setupApp(t, false)

	resp, _ := env.do(t, http.MethodPost, "/api/v1/session", ConnectRequest{Login: "  "}, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/session", "{not json", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestDisconnect(t *testing.T) {
	env := setupApp(t, false)
	token := env.connect(t, "5001")

	resp, _ := env.do(t, http.MethodGet, "/api/v1/profit/daily", nil, bearer(token))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.True(t, env.mr.Exists("pnl:5001:daily"))

	resp, _ = env.do(t, http.MethodDelete, "/api/v1/session", nil, bearer(token))
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.False(t, env.mr.Exists("pnl:5001:daily"), "cache dropped on disconnect")

	resp, _ = env.do(t, http.MethodGet, "/api/v1/trades", nil, bearer(token))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, "/api/v1/session", nil, bearer(token))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestGetTrades(t *testing.T) {
	env := setupApp(t, false)
	token := env.connect(t, "5001")

	resp, body := env.do(t, http.MethodGet, "/api/v1/trades", nil, bearer(token))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out TradesResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, "EURUSD", out.Trades[0].Symbol)
	assert.Equal(t, "Sell", out.Trades[1].Type)
}

func TestGetSummary(t *testing.T) {
	env := setupApp(t, false)
	token := env.connect(t, "5001")

	resp, body := env.do(t, http.MethodGet, "/api/v1/profit/summary", nil, bearer(token))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out SummaryResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "5001", out.Login)
	assert.Equal(t, 60.0, out.TotalProfit)
	assert.Equal(t, 1, out.WinningTrades)
	assert.Equal(t, 1, out.LosingTrades)
	require.NotNil(t, out.WorstDay)
	assert.Equal(t, "2023-06-02", out.WorstDay.Date)
}

func TestAggregateTrades(t *testing.T) {
	env := setupApp(t, false)

	req := DailyProfitRequest{
		Trades: []domain.Trade{
			{Symbol: "EURUSD", Profit: 110, CloseTime: "2023-06-01 11:00:00"},
			{Symbol: "GBPUSD", Profit: -50, CloseTime: "2023-06-02 15:30:00"},
			{Symbol: "EURUSD", Profit: 20, CloseTime: "2023-06-01 09:00:00"},
		},
	}

	resp, body := env.do(t, http.MethodPost, "/api/v1/profit/daily", req, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))

	var out DailyProfitResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, []domain.DailyProfitPoint{
		{Date: "2023-06-01", Profit: 130},
		{Date: "2023-06-02", Profit: -50},
	}, out.Daily)
	assert.Empty(t, out.Cumulative)
}

func TestAggregateTrades_EmptyInput(t *testing.T) {
	env := setupApp(t, false)

	resp, body := env.do(t, http.MethodPost, "/api/v1/profit/daily", `{"trades":[]}`, nil)

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"daily":[]`)
}

func TestAdmin_RequiresAuth(t *testing.T) {
	env := setupApp(t, false)

	resp, _ := env.do(t, http.MethodGet, "/api/v1/admin/stats", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, body := env.do(t, http.MethodGet, "/api/v1/admin/stats", nil, adminAuth())
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var stats SystemStatsResponse
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, "demo", stats.HistorySource)
	assert.Nil(t, stats.Database)
}

func TestAdmin_InvalidateCache(t *testing.T) {
	env := setupApp(t, false)
	require.NoError(t, env.mr.Set("pnl:1:daily", "[]"))
	require.NoError(t, env.mr.Set("pnl:2:daily", "[]"))

	resp, body := env.do(t, http.MethodDelete, "/api/v1/admin/cache/pnl:1:*", nil, adminAuth())

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"deleted":1`)
	assert.False(t, env.mr.Exists("pnl:1:daily"))
	assert.True(t, env.mr.Exists("pnl:2:daily"))
}

func TestAdmin_LoadWithoutRepository(t *testing.T) {
	env := setupApp(t, false)

	resp, _ := env.do(t, http.MethodPost, "/api/v1/admin/load",
		LoadDataRequest{Login: "5001", Files: []string{"a.csv"}}, adminAuth())

	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestAdmin_Load(t *testing.T) {
	env := setupApp(t, true)

	dir := t.TempDir()
	file := filepath.Join(dir, "history.csv")
	require.NoError(t, os.WriteFile(file, []byte(
		"Symbol;Profit;Close Time\nEURUSD;10;2023-06-01 10:00:00\nEURUSD;oops;2023-06-01 11:00:00\n"), 0o644))
	require.NoError(t, env.mr.Set("pnl:5001:daily", "[]"))

	resp, body := env.do(t, http.MethodPost, "/api/v1/admin/load",
		LoadDataRequest{Login: "5001", Files: []string{file, filepath.Join(dir, "missing.csv")}}, adminAuth())
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))

	var out LoadDataResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "partial", out.Status)
	assert.Equal(t, int64(1), out.RecordsCount)
	require.Len(t, out.Files, 2)
	assert.Equal(t, 1, out.Files[0].Rejected)
	assert.NotEmpty(t, out.Files[1].Error)
	assert.False(t, env.mr.Exists("pnl:5001:daily"))

	resp, _ = env.do(t, http.MethodPost, "/api/v1/admin/load", LoadDataRequest{Login: "5001"}, adminAuth())
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAdmin_LoadReplace(t *testing.T) {
	env := setupApp(t, true)

	dir := t.TempDir()
	file := filepath.Join(dir, "history.csv")
	require.NoError(t, os.WriteFile(file, []byte(
		"Symbol;Profit;Close Time\nEURUSD;10;2023-06-01 10:00:00\nEURUSD;5;2023-06-02 11:00:00\n"), 0o644))
	require.NoError(t, env.mr.Set("pnl:5001:daily", "[]"))

	resp, body := env.do(t, http.MethodPost, "/api/v1/admin/load",
		LoadDataRequest{Login: "5001", Files: []string{file, filepath.Join(dir, "missing.csv")}, Replace: true}, adminAuth())
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode, string(body))
	assert.True(t, env.mr.Exists("pnl:5001:daily"))

	resp, body = env.do(t, http.MethodPost, "/api/v1/admin/load",
		LoadDataRequest{Login: "5001", Files: []string{file}, Replace: true}, adminAuth())
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))

	var out LoadDataResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "completed", out.Status)
	assert.Equal(t, int64(2), out.RecordsCount)
	assert.False(t, env.mr.Exists("pnl:5001:daily"))
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupApp(t, false)
	env.do(t, http.MethodPost, "/api/v1/profit/daily", `{"trades":[]}`, nil)

	resp, body := env.do(t, http.MethodGet, "/metrics", nil, nil)

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "mt5_http_requests_total")
}
