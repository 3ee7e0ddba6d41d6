package ingestion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/jeovahfialho/mt5-history/internal/domain"
	"github.com/jeovahfialho/mt5-history/pkg/logger"
	"github.com/jeovahfialho/mt5-history/pkg/metrics"
)

var ErrPoolStopped = errors.New("worker pool encerrado")

// Loader grava operações de um login; implementado por postgres.TradeRepository.
type Loader interface {
	LoadTradesConcurrent(ctx context.Context, login string, trades []domain.Trade) (int64, error)
	// ReplaceTrades troca todo o histórico do login por trades numa única transação.
	ReplaceTrades(ctx context.Context, login string, trades []domain.Trade) (int64, error)
}

type WorkerPool struct {
	workers    int
	parser     *Parser
	loader     Loader
	downloader *Downloader
	jobQueue   chan Job
	wg         sync.WaitGroup

	mu       sync.RWMutex
	stopped  bool
	done     chan struct{}
	stopOnce sync.Once
}

type Job struct {
	Login    string
	FilePath string
	Result   chan<- JobResult
}

type JobResult struct {
	Login        string
	FilePath     string
	RecordsCount int64
	Rejected     []error
	Error        error
}

func NewWorkerPool(workers int, parser *Parser, loader Loader) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	return &WorkerPool{
		workers:  workers,
		parser:   parser,
		loader:   loader,
		jobQueue: make(chan Job, workers*2),
		done:     make(chan struct{}),
	}
}

// WithDownloader habilita caminhos http(s); sem ele, URLs falham como arquivo inexistente.
func (wp *WorkerPool) WithDownloader(d *Downloader) *WorkerPool {
	wp.downloader = d
	return wp
}

func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Stop recusa novos jobs, deixa os workers esvaziarem a fila e espera por eles.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.done)

		wp.mu.Lock()
		wp.stopped = true
		close(wp.jobQueue)
		wp.mu.Unlock()
	})
	wp.wg.Wait()
}

// Submit enfileira o job; devolve ErrPoolStopped depois de Stop e ctx.Err() se o contexto acabar antes.
func (wp *WorkerPool) Submit(ctx context.Context, job Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.stopped {
		return ErrPoolStopped
	}

	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.done:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case job, ok := <-wp.jobQueue:
			if !ok {
				return
			}

			logger.Debug("processando arquivo",
				zap.Int("worker", id),
				zap.String("login", job.Login),
				zap.String("file", job.FilePath))

			job.Result <- wp.ProcessFile(ctx, job.Login, job.FilePath)
		}
	}
}

// ProcessFile lê o arquivo e acrescenta as operações válidas ao histórico do login.
func (wp *WorkerPool) ProcessFile(ctx context.Context, login, filePath string) JobResult {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.IngestionDuration.WithLabelValues("process_file"))

	parseResult, err := wp.parse(ctx, filePath)
	if err != nil {
		return JobResult{Login: login, FilePath: filePath, Error: err}
	}

	metrics.RecordTradesIngested("rejected", len(parseResult.Errors))

	count, err := wp.loader.LoadTradesConcurrent(ctx, login, parseResult.Trades)
	if err != nil {
		metrics.RecordTradesIngested("failed", len(parseResult.Trades))
		return JobResult{
			Login:        login,
			FilePath:     filePath,
			RecordsCount: count,
			Rejected:     parseResult.Errors,
			Error:        fmt.Errorf("erro ao carregar: %w", err),
		}
	}

	metrics.RecordTradesIngested("loaded", int(count))

	return JobResult{
		Login:        login,
		FilePath:     filePath,
		RecordsCount: count,
		Rejected:     parseResult.Errors,
	}
}

// ReplaceFiles lê todos os arquivos e troca o histórico do login pelo conteúdo deles
// numa única transação. Se qualquer arquivo falhar, nada é gravado.
func (wp *WorkerPool) ReplaceFiles(ctx context.Context, login string, filePaths []string) []JobResult {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.IngestionDuration.WithLabelValues("replace_files"))

	results := make([]JobResult, len(filePaths))
	var trades []domain.Trade
	var failed error

	for i, path := range filePaths {
		results[i] = JobResult{Login: login, FilePath: path}

		parseResult, err := wp.parse(ctx, path)
		if err != nil {
			results[i].Error = err
			if failed == nil {
				failed = fmt.Errorf("%s: %w", path, err)
			}
			continue
		}

		results[i].RecordsCount = int64(len(parseResult.Trades))
		results[i].Rejected = parseResult.Errors
		metrics.RecordTradesIngested("rejected", len(parseResult.Errors))
		trades = append(trades, parseResult.Trades...)
	}

	if failed == nil {
		if _, err := wp.loader.ReplaceTrades(ctx, login, trades); err != nil {
			failed = fmt.Errorf("erro ao substituir: %w", err)
		}
	}

	if failed != nil {
		metrics.RecordTradesIngested("failed", len(trades))
		for i := range results {
			if results[i].Error == nil {
				results[i].Error = fmt.Errorf("substituição cancelada: %w", failed)
			}
			results[i].RecordsCount = 0
		}
		return results
	}

	metrics.RecordTradesIngested("loaded", len(trades))
	logger.Info("histórico substituído",
		zap.String("login", login),
		zap.Int("files", len(filePaths)),
		zap.Int("trades", len(trades)))

	return results
}

// parse baixa o arquivo quando é uma URL e devolve as operações lidas.
func (wp *WorkerPool) parse(ctx context.Context, filePath string) (*ParseResult, error) {
	localPath := filePath
	if IsRemote(filePath) && wp.downloader != nil {
		downloaded, err := wp.downloader.Download(ctx, filePath)
		if err != nil {
			return nil, fmt.Errorf("erro no download: %w", err)
		}
		defer os.Remove(downloaded)
		localPath = downloaded
	}

	parseResult, err := wp.parser.ParsePath(ctx, localPath)
	if err != nil {
		return nil, fmt.Errorf("erro no parse: %w", err)
	}
	return parseResult, nil
}
