package api

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeovahfialho/mt5-history/internal/pnl"
	"github.com/jeovahfialho/mt5-history/internal/service"
	"github.com/jeovahfialho/mt5-history/internal/session"
	"github.com/jeovahfialho/mt5-history/internal/storage/cache"
	"github.com/jeovahfialho/mt5-history/internal/storage/postgres"
	"github.com/jeovahfialho/mt5-history/pkg/logger"
)

const Version = "1.0.0"

// Handler concentra os endpoints HTTP. db e ingestionService são nil quando
// o histórico vem da origem demo.
type Handler struct {
	db               *postgres.DB
	cacheService     *cache.RedisCache
	sessions         *session.Manager
	profitService    *service.ProfitService
	tradeService     *service.TradeService
	ingestionService *service.IngestionService
	historySource    string
	sessionTTL       time.Duration
}

func NewHandler(
	db *postgres.DB,
	cacheService *cache.RedisCache,
	sessions *session.Manager,
	profitService *service.ProfitService,
	tradeService *service.TradeService,
	ingestionService *service.IngestionService,
	historySource string,
	sessionTTL time.Duration,
) *Handler {
	return &Handler{
		db:               db,
		cacheService:     cacheService,
		sessions:         sessions,
		profitService:    profitService,
		tradeService:     tradeService,
		ingestionService: ingestionService,
		historySource:    historySource,
		sessionTTL:       sessionTTL,
	}
}

// Connect abre uma sessão para o login informado.
// @Router /session [post]
func (h *Handler) Connect(c *fiber.Ctx) error {
	var req ConnectRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "corpo da requisição inválido")
	}

	sess, err := h.sessions.Connect(c.UserContext(), session.Credentials{
		Login:  req.Login,
		Server: req.Server,
	})
	if err != nil {
		if errors.Is(err, session.ErrInvalidLogin) {
			return errorJSON(c, fiber.StatusBadRequest, err.Error())
		}
		logger.WithContext(c.UserContext()).Error("erro ao abrir sessão", zap.Error(err))
		return errorJSON(c, fiber.StatusServiceUnavailable, "não foi possível conectar")
	}

	return c.Status(fiber.StatusCreated).JSON(SessionResponse{
		Token:       sess.Token,
		Login:       sess.Login,
		Server:      sess.Server,
		ConnectedAt: sess.ConnectedAt,
		ExpiresIn:   h.sessionTTL.String(),
	})
}

// @Router /session [delete]
func (h *Handler) Disconnect(c *fiber.Ctx) error {
	if err := h.sessions.Disconnect(c.UserContext(), bearerToken(c)); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return errorJSON(c, fiber.StatusUnauthorized, "sessão inválida ou expirada")
		}
		logger.WithContext(c.UserContext()).Error("erro ao encerrar sessão", zap.Error(err))
		return errorJSON(c, fiber.StatusServiceUnavailable, "não foi possível desconectar")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// @Router /trades [get]
func (h *Handler) GetTrades(c *fiber.Ctx) error {
	sess := currentSession(c)

	trades, err := h.tradeService.History(c.UserContext(), sess)
	if err != nil {
		return h.historyError(c, err)
	}

	return c.JSON(TradesResponse{
		Login:  sess.Login,
		Trades: trades,
		Count:  len(trades),
	})
}

// GetDailyProfit devolve a série diária da sessão; ?cumulative=true inclui a curva acumulada.
// @Router /profit/daily [get]
func (h *Handler) GetDailyProfit(c *fiber.Ctx) error {
	start := time.Now()
	sess := currentSession(c)

	daily, err := h.profitService.DailyProfit(c.UserContext(), sess)
	if err != nil {
		return h.historyError(c, err)
	}

	response := DailyProfitResponse{
		Login:          sess.Login,
		Daily:          daily,
		Days:           len(daily),
		ProcessingTime: time.Since(start).String(),
	}
	if c.QueryBool("cumulative") {
		response.Cumulative = pnl.Cumulative(daily)
	}

	return c.JSON(response)
}

// AggregateTrades agrega as operações enviadas no corpo, sem sessão.
// @Router /profit/daily [post]
func (h *Handler) AggregateTrades(c *fiber.Ctx) error {
	var req DailyProfitRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "corpo da requisição inválido")
	}

	daily := h.profitService.Aggregate(req.Trades)

	response := DailyProfitResponse{
		Daily: daily,
		Days:  len(daily),
	}
	if req.Cumulative {
		response.Cumulative = pnl.Cumulative(daily)
	}

	return c.JSON(response)
}

// @Router /profit/summary [get]
func (h *Handler) GetSummary(c *fiber.Ctx) error {
	sess := currentSession(c)

	summary, err := h.profitService.Summary(c.UserContext(), sess)
	if err != nil {
		return h.historyError(c, err)
	}

	return c.JSON(SummaryResponse{Login: sess.Login, ProfitSummary: *summary})
}

// historyError traduz falhas de busca; o detalhe da origem não vai para o cliente.
func (h *Handler) historyError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return errorJSON(c, fiber.StatusUnauthorized, "sessão inválida ou expirada")
	case errors.Is(err, context.DeadlineExceeded):
		return errorJSON(c, fiber.StatusGatewayTimeout, "tempo esgotado ao buscar histórico")
	default:
		logger.WithContext(c.UserContext()).Error("erro ao buscar histórico", zap.Error(err))
		return errorJSON(c, fiber.StatusBadGateway, "falha ao buscar histórico de operações")
	}
}

func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now(),
	})
}

func (h *Handler) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	services := make(map[string]ServiceHealth)

	if h.db != nil {
		services["database"] = checkService(ctx, h.db.HealthCheck)
	}
	services["redis"] = checkService(ctx, h.cacheService.HealthCheck)

	status := "ready"
	for _, svc := range services {
		if svc.Status != "healthy" {
			status = "not_ready"
			break
		}
	}

	response := HealthResponse{
		Status:    status,
		Version:   Version,
		Timestamp: time.Now(),
		Services:  services,
	}

	if status != "ready" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(response)
	}

	return c.JSON(response)
}

func checkService(ctx context.Context, check func(context.Context) error) ServiceHealth {
	start := time.Now()
	if err := check(ctx); err != nil {
		return ServiceHealth{Status: "unhealthy", Error: err.Error()}
	}
	return ServiceHealth{Status: "healthy", Latency: time.Since(start).String()}
}

func (h *Handler) InvalidateCache(c *fiber.Ctx) error {
	pattern := c.Params("pattern", "*")

	n, err := h.cacheService.DeletePattern(c.UserContext(), pattern)
	if err != nil {
		logger.WithContext(c.UserContext()).Error("erro ao invalidar cache", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "erro ao invalidar cache")
	}

	return c.JSON(fiber.Map{
		"status":  "success",
		"deleted": n,
		"message": fmt.Sprintf("cache invalidado para padrão: %s", pattern),
	})
}

func (h *Handler) GetSystemStats(c *fiber.Ctx) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := SystemStatsResponse{
		HistorySource: h.historySource,
		API: APIStats{
			ActiveGoroutines: runtime.NumGoroutine(),
			MemoryUsed:       fmt.Sprintf("%d MB", m.Alloc/1024/1024),
		},
	}

	if h.db != nil {
		dbStats := h.db.Stats()
		response.Database = &DatabaseStats{
			ActiveConnections: dbStats.AcquiredConns(),
			IdleConnections:   dbStats.IdleConns(),
			TotalConnections:  dbStats.TotalConns(),
			WaitCount:         dbStats.EmptyAcquireCount(),
			WaitDuration:      dbStats.AcquireDuration().String(),
		}
	}

	return c.JSON(response)
}

func (h *Handler) importFiles(ctx context.Context, req LoadDataRequest) []*service.ProcessFileResult {
	if req.Replace {
		return h.ingestionService.ReplaceFiles(ctx, req.Login, req.Files)
	}
	return h.ingestionService.ProcessFiles(ctx, req.Login, req.Files)
}

func (h *Handler) LoadDataFromFile(c *fiber.Ctx) error {
	if h.ingestionService == nil {
		return errorJSON(c, fiber.StatusConflict, "importação exige HISTORY_SOURCE=postgres")
	}

	var req LoadDataRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "corpo da requisição inválido")
	}
	if req.Login == "" || len(req.Files) == 0 {
		return errorJSON(c, fiber.StatusBadRequest, "login e files são obrigatórios")
	}

	if req.Async {
		jobID := uuid.NewString()

		go func() {
			ctx := logger.ContextWithRequestID(context.Background(), jobID)
			results := h.importFiles(ctx, req)

			var total int64
			for _, r := range results {
				total += r.RecordsCount
			}
			logger.Info("importação concluída",
				zap.String("job_id", jobID),
				zap.String("login", req.Login),
				zap.Bool("replace", req.Replace),
				zap.Int64("records", total))
		}()

		return c.Status(fiber.StatusAccepted).JSON(LoadDataResponse{
			JobID:   jobID,
			Status:  "processing",
			Message: "processamento iniciado",
		})
	}

	results := h.importFiles(c.UserContext(), req)

	response := LoadDataResponse{
		Status:  "completed",
		Message: "arquivos processados",
		Files:   make([]LoadFileResult, 0, len(results)),
	}
	failed := 0
	for _, r := range results {
		item := LoadFileResult{File: r.FilePath, Records: r.RecordsCount, Rejected: r.Rejected}
		if r.Error != nil {
			item.Error = r.Error.Error()
			failed++
		}
		response.RecordsCount += r.RecordsCount
		response.Files = append(response.Files, item)
	}

	if failed == len(results) {
		response.Status = "failed"
		response.Message = "nenhum arquivo processado"
		return c.Status(fiber.StatusUnprocessableEntity).JSON(response)
	}
	if failed > 0 {
		response.Status = "partial"
	}

	return c.JSON(response)
}
