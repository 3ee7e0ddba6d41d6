package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"

	"github.com/jeovahfialho/mt5-history/internal/api"
	"github.com/jeovahfialho/mt5-history/internal/config"
	"github.com/jeovahfialho/mt5-history/internal/history"
	"github.com/jeovahfialho/mt5-history/internal/ingestion"
	"github.com/jeovahfialho/mt5-history/internal/service"
	"github.com/jeovahfialho/mt5-history/internal/session"
	"github.com/jeovahfialho/mt5-history/internal/storage/cache"
	"github.com/jeovahfialho/mt5-history/internal/storage/postgres"
	"github.com/jeovahfialho/mt5-history/pkg/logger"
	"github.com/jeovahfialho/mt5-history/pkg/tracing"
)

// @title MT5 History API
// @version 1.0
// @description Histórico de operações MT5 e lucro/prejuízo diário

// @host localhost:8000
// @BasePath /api/v1
// @schemes http https
func main() {
	cfg := config.Load()

	if err := logger.Init(cfg.LogLevel, cfg.LogFormat, cfg.Environment == "development"); err != nil {
		log.Fatal("Erro ao inicializar logger:", err)
	}
	defer logger.Close()

	if err := tracing.Init(cfg.TracingEnabled, api.Version); err != nil {
		logger.Fatal("erro ao inicializar tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.Shutdown(ctx)
	}()

	redisCache, err := cache.NewRedisCache(cfg)
	if err != nil {
		logger.Fatal("Redis é obrigatório para sessões", zap.Error(err))
	}
	defer redisCache.Close()
	logger.Info("conectado ao Redis")

	var (
		db         *postgres.DB
		source     history.Source
		ingestSvc  *service.IngestionService
		workerPool *ingestion.WorkerPool
	)

	switch cfg.HistorySource {
	case "postgres":
		db, err = connectPostgres(cfg)
		if err != nil {
			logger.Fatal("erro ao conectar PostgreSQL", zap.Error(err))
		}
		defer db.Close()

		repo := postgres.NewTradeRepository(db.Pool(), cfg.BatchSize)
		source = history.NewRepositorySource(repo)
		workerPool = ingestion.NewWorkerPool(cfg.Workers, ingestion.NewParser(cfg.BatchSize, cfg.Workers), repo).
			WithDownloader(ingestion.NewDownloader(cfg.DownloadDir, cfg.DownloadTimeout))
	case "demo":
		source = history.DemoSource{}
	default:
		logger.Fatal("HISTORY_SOURCE inválido", zap.String("value", cfg.HistorySource))
	}

	profitService := service.NewProfitService(source, redisCache, cfg.CacheTTL)
	tradeService := service.NewTradeService(source)
	sessions := session.NewManager(redisCache, cfg.SessionTTL, profitService.Invalidate)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if workerPool != nil {
		workerPool.Start(ctx)
		defer workerPool.Stop()
		ingestSvc = service.NewIngestionService(workerPool, profitService)
	}

	handler := api.NewHandler(
		db,
		redisCache,
		sessions,
		profitService,
		tradeService,
		ingestSvc,
		cfg.HistorySource,
		cfg.SessionTTL,
	)

	app := fiber.New(fiber.Config{
		ServerHeader:    "MT5-History",
		AppName:         "MT5 History v" + api.Version,
		ReadTimeout:     cfg.APIReadTimeout,
		WriteTimeout:    cfg.APIWriteTimeout,
		IdleTimeout:     120 * time.Second,
		ReadBufferSize:  8192,
		WriteBufferSize: 8192,
		BodyLimit:       10 * 1024 * 1024, // 10MB
	})

	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	api.SetupRoutes(app, handler, api.RouteConfig{
		AdminUser:      cfg.AdminUser,
		AdminPassword:  cfg.AdminPassword,
		RateLimit:      cfg.APIRateLimit,
		MetricsEnabled: cfg.MetricsEnabled,
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("encerrando servidor")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("erro ao encerrar servidor", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	logger.Info("iniciando servidor",
		zap.String("addr", addr),
		zap.String("history_source", cfg.HistorySource))

	if err := app.Listen(addr); err != nil {
		logger.Error("erro no servidor", zap.Error(err))
	}
}

func connectPostgres(cfg *config.Config) (*postgres.DB, error) {
	db, err := postgres.NewDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("erro ao criar conexão: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("erro ao testar conexão: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("erro ao aplicar schema: %w", err)
	}

	logger.Info("conectado ao PostgreSQL")
	return db, nil
}
