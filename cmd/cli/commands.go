package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jeovahfialho/mt5-history/internal/config"
	"github.com/jeovahfialho/mt5-history/internal/domain"
	"github.com/jeovahfialho/mt5-history/internal/history"
	"github.com/jeovahfialho/mt5-history/internal/ingestion"
	"github.com/jeovahfialho/mt5-history/internal/pnl"
	"github.com/jeovahfialho/mt5-history/internal/service"
	"github.com/jeovahfialho/mt5-history/internal/session"
	"github.com/jeovahfialho/mt5-history/internal/storage/cache"
	"github.com/jeovahfialho/mt5-history/internal/storage/postgres"
)

type aggregateOutput struct {
	File       string                    `json:"file"`
	Trades     int                       `json:"trades"`
	Rejected   int                       `json:"rejected"`
	Daily      []domain.DailyProfitPoint `json:"daily"`
	Cumulative []domain.DailyProfitPoint `json:"cumulative,omitempty"`
}

// runAggregate lê o arquivo e imprime a série diária; linhas rejeitadas vão para errOut.
func runAggregate(ctx context.Context, out, errOut io.Writer, path string, asJSON, cumulative bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	parser := ingestion.NewParser(1000, 4)
	result, err := parser.ParsePath(ctx, path)
	if err != nil {
		return fmt.Errorf("erro ao ler %s: %w", path, err)
	}

	for _, rerr := range result.Errors {
		fmt.Fprintf(errOut, "⚠️  %v\n", rerr)
	}

	output := aggregateOutput{
		File:     path,
		Trades:   len(result.Trades),
		Rejected: len(result.Errors),
		Daily:    pnl.DailyProfit(result.Trades),
	}
	if cumulative {
		output.Cumulative = pnl.Cumulative(output.Daily)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(output)
	}

	fmt.Fprintf(out, "📊 %s: %d operações, %d dias\n", filepath.Base(path), output.Trades, len(output.Daily))
	printDaily(out, output.Daily, output.Cumulative)

	return nil
}

func printDaily(out io.Writer, daily, cumulative []domain.DailyProfitPoint) {
	for i, p := range daily {
		prefix := "├─"
		if i == len(daily)-1 {
			prefix = "└─"
		}
		line := fmt.Sprintf("%s %s  %12s", prefix, p.Date, formatProfit(p.Profit))
		if cumulative != nil {
			line += fmt.Sprintf("  acumulado %12s", formatProfit(cumulative[i].Profit))
		}
		fmt.Fprintln(out, line)
	}
}

// formatProfit arredonda para centavos só na exibição.
func formatProfit(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// listFiles lista exports disponíveis
func listFiles(out io.Writer, dataDir string) error {
	fmt.Fprintf(out, "📂 Listando arquivos em %s\n\n", dataDir)

	found := 0
	for _, ext := range []string{"csv", "json"} {
		files, err := filepath.Glob(filepath.Join(dataDir, "*."+ext))
		if err != nil {
			return err
		}
		if len(files) == 0 {
			continue
		}
		found += len(files)

		fmt.Fprintf(out, "📊 %d arquivos %s:\n", len(files), ext)
		totalSize := int64(0)
		for _, file := range files {
			info, err := os.Stat(file)
			if err != nil {
				continue
			}
			totalSize += info.Size()
			fmt.Fprintf(out, "  - %-30s %10s\n", filepath.Base(file), formatBytes(info.Size()))
		}
		fmt.Fprintf(out, "\n💾 Tamanho total: %s\n\n", formatBytes(totalSize))
	}

	if found == 0 {
		fmt.Fprintln(out, "❌ Nenhum arquivo encontrado")
		fmt.Fprintln(out, "💡 Exporte o histórico do terminal MT5 em CSV")
	}

	return nil
}

// formatBytes formata tamanho em bytes
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// expandFiles resolve wildcards; argumentos sem correspondência seguem como estão.
func expandFiles(args []string) []string {
	var files []string
	for _, arg := range args {
		if ingestion.IsRemote(arg) {
			files = append(files, arg)
			continue
		}
		matches, err := filepath.Glob(arg)
		if err != nil || len(matches) == 0 {
			files = append(files, arg)
			continue
		}
		files = append(files, matches...)
	}
	return files
}

func connectDB(cfg *config.Config) (*postgres.DB, error) {
	db, err := postgres.NewDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("erro ao conectar ao banco: %w", err)
	}
	return db, nil
}

// connectRedis devolve nil quando o Redis não está disponível.
func connectRedis(out io.Writer, cfg *config.Config) *cache.RedisCache {
	redisCache, err := cache.NewRedisCache(cfg)
	if err != nil {
		fmt.Fprintf(out, "Aviso: Redis não disponível, continuando sem cache: %v\n", err)
		return nil
	}
	return redisCache
}

func loadFiles(ctx context.Context, out io.Writer, login string, args []string, replace bool) error {
	cfg := config.Load()

	db, err := connectDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	repo := postgres.NewTradeRepository(db.Pool(), cfg.BatchSize)
	pool := ingestion.NewWorkerPool(cfg.Workers, ingestion.NewParser(cfg.BatchSize, cfg.Workers), repo).
		WithDownloader(ingestion.NewDownloader(cfg.DownloadDir, cfg.DownloadTimeout))
	pool.Start(ctx)
	defer pool.Stop()

	var profit *service.ProfitService
	if redisCache := connectRedis(out, cfg); redisCache != nil {
		defer redisCache.Close()
		profit = service.NewProfitService(history.NewRepositorySource(repo), redisCache, cfg.CacheTTL)
	} else {
		profit = service.NewProfitService(history.NewRepositorySource(repo), nil, cfg.CacheTTL)
	}

	files := expandFiles(args)
	fmt.Fprintf(out, "📥 Carregando %d arquivo(s) para o login %s...\n\n", len(files), login)

	ingestionService := service.NewIngestionService(pool, profit)
	start := time.Now()

	var results []*service.ProcessFileResult
	if replace {
		fmt.Fprintf(out, "♻️  Substituindo o histórico existente do login %s\n\n", login)
		results = ingestionService.ReplaceFiles(ctx, login, files)
	} else {
		results = ingestionService.ProcessFiles(ctx, login, files)
	}

	var totalRecords int64
	failed := 0
	for _, result := range results {
		if result.Error != nil {
			failed++
			fmt.Fprintf(out, "❌ Erro em %s: %v\n", result.FilePath, result.Error)
			continue
		}
		totalRecords += result.RecordsCount
		fmt.Fprintf(out, "✅ Carregados %d registros de %s", result.RecordsCount, result.FilePath)
		if result.Rejected > 0 {
			fmt.Fprintf(out, " (%d linhas rejeitadas)", result.Rejected)
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "\n📊 Total: %d registros carregados em %s\n", totalRecords, time.Since(start).Round(time.Millisecond))

	if failed == len(results) {
		return fmt.Errorf("nenhum arquivo carregado")
	}
	return nil
}

func queryLogin(ctx context.Context, out io.Writer, login string, withSummary bool) error {
	cfg := config.Load()

	db, err := connectDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	source := history.NewRepositorySource(postgres.NewTradeRepository(db.Pool(), cfg.BatchSize))

	var profit *service.ProfitService
	if redisCache := connectRedis(out, cfg); redisCache != nil {
		defer redisCache.Close()
		profit = service.NewProfitService(source, redisCache, cfg.CacheTTL)
	} else {
		profit = service.NewProfitService(source, nil, cfg.CacheTTL)
	}

	sess := &session.Session{Login: login}

	fmt.Fprintf(out, "🔍 Buscando histórico do login %s...\n", login)

	daily, err := profit.DailyProfit(ctx, sess)
	if err != nil {
		return fmt.Errorf("erro na consulta: %w", err)
	}

	if len(daily) == 0 {
		fmt.Fprintln(out, "❌ Nenhuma operação encontrada")
		return nil
	}

	fmt.Fprintf(out, "\n📊 Lucro diário (%d dias):\n", len(daily))
	printDaily(out, daily, nil)

	if withSummary {
		summary, err := profit.Summary(ctx, sess)
		if err != nil {
			return fmt.Errorf("erro no resumo: %w", err)
		}
		printSummary(out, summary)
	}

	return nil
}

func printSummary(out io.Writer, s *domain.ProfitSummary) {
	fmt.Fprintln(out, "\n📈 Resumo:")
	fmt.Fprintf(out, "├─ Resultado: %s\n", formatProfit(s.TotalProfit))
	fmt.Fprintf(out, "├─ Operações: %d (%d ganhos, %d perdas)\n", s.TradeCount, s.WinningTrades, s.LosingTrades)
	fmt.Fprintf(out, "├─ Dias operados: %d\n", s.DaysTraded)
	if s.BestDay != nil && s.WorstDay != nil {
		fmt.Fprintf(out, "├─ Melhor dia: %s (%s)\n", s.BestDay.Date, formatProfit(s.BestDay.Profit))
		fmt.Fprintf(out, "└─ Pior dia: %s (%s)\n", s.WorstDay.Date, formatProfit(s.WorstDay.Profit))
	}
}

func migrate(ctx context.Context, out io.Writer) error {
	cfg := config.Load()

	db, err := connectDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Fprintln(out, "🔄 Aplicando schema...")
	if err := db.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "✅ Schema aplicado com sucesso!")
	return nil
}

func checkHealth(ctx context.Context, out io.Writer) error {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	fmt.Fprint(out, "🏥 Verificando saúde do sistema...\n\n")

	fmt.Fprint(out, "PostgreSQL: ")
	if cfg.HistorySource != "postgres" {
		fmt.Fprintln(out, "⏭️  não usado (HISTORY_SOURCE=demo)")
	} else if db, err := connectDB(cfg); err != nil {
		fmt.Fprintf(out, "❌ Erro: %v\n", err)
	} else {
		if err := db.HealthCheck(ctx); err != nil {
			fmt.Fprintf(out, "❌ Erro: %v\n", err)
		} else {
			fmt.Fprintln(out, "✅ OK")
		}
		db.Close()
	}

	fmt.Fprint(out, "Redis: ")
	redisCache := connectRedis(io.Discard, cfg)
	if redisCache == nil {
		fmt.Fprintln(out, "❌ Não disponível")
	} else {
		if err := redisCache.HealthCheck(ctx); err != nil {
			fmt.Fprintf(out, "❌ Erro: %v\n", err)
		} else {
			fmt.Fprintln(out, "✅ OK")
		}
		_ = redisCache.Close()
	}

	fmt.Fprintln(out, "\n✅ Verificação concluída!")
	return nil
}
