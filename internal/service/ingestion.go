package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/jeovahfialho/mt5-history/internal/ingestion"
	"github.com/jeovahfialho/mt5-history/pkg/logger"
)

// Invalidator descarta resultados em cache de um login.
type Invalidator interface {
	Invalidate(ctx context.Context, login string)
}

type IngestionService struct {
	pool        *ingestion.WorkerPool
	invalidator Invalidator
}

func NewIngestionService(pool *ingestion.WorkerPool, invalidator Invalidator) *IngestionService {
	return &IngestionService{
		pool:        pool,
		invalidator: invalidator,
	}
}

type ProcessFileResult struct {
	Login        string  `json:"login"`
	FilePath     string  `json:"file"`
	RecordsCount int64   `json:"records"`
	Rejected     int     `json:"rejected"`
	Errors       []error `json:"-"`
	Error        error   `json:"-"`
}

// ProcessFile importa um arquivo para o login no chamador.
func (s *IngestionService) ProcessFile(ctx context.Context, login, filePath string) *ProcessFileResult {
	logger.Info("processando arquivo", zap.String("login", login), zap.String("file", filePath))

	result := toProcessResult(s.pool.ProcessFile(ctx, login, filePath))
	s.afterLoad(ctx, result)

	return result
}

// ProcessFiles distribui os arquivos entre os workers do pool, que precisa ter sido iniciado.
// Os resultados seguem a ordem de files.
func (s *IngestionService) ProcessFiles(ctx context.Context, login string, files []string) []*ProcessFileResult {
	results := make(chan ingestion.JobResult, len(files))
	byFile := make(map[string][]*ProcessFileResult, len(files))

	pending := 0
	for _, f := range files {
		if err := s.pool.Submit(ctx, ingestion.Job{Login: login, FilePath: f, Result: results}); err != nil {
			byFile[f] = append(byFile[f], &ProcessFileResult{Login: login, FilePath: f, Error: err})
			continue
		}
		pending++
	}

collect:
	for ; pending > 0; pending-- {
		select {
		case r := <-results:
			res := toProcessResult(r)
			byFile[res.FilePath] = append(byFile[res.FilePath], res)
		case <-ctx.Done():
			break collect
		}
	}

	out := make([]*ProcessFileResult, 0, len(files))
	loaded := false
	for _, f := range files {
		var res *ProcessFileResult
		if q := byFile[f]; len(q) > 0 {
			res, byFile[f] = q[0], q[1:]
		} else {
			res = &ProcessFileResult{Login: login, FilePath: f, Error: ctx.Err()}
		}
		if res.RecordsCount > 0 {
			loaded = true
		}
		out = append(out, res)
	}

	if loaded {
		s.invalidator.Invalidate(ctx, login)
	}

	return out
}

// ReplaceFiles troca o histórico do login pelo conteúdo de files. Ou todos os arquivos
// entram, ou o histórico anterior fica intacto.
func (s *IngestionService) ReplaceFiles(ctx context.Context, login string, files []string) []*ProcessFileResult {
	logger.Info("substituindo histórico", zap.String("login", login), zap.Int("files", len(files)))

	out := make([]*ProcessFileResult, 0, len(files))
	replaced := true
	for _, r := range s.pool.ReplaceFiles(ctx, login, files) {
		res := toProcessResult(r)
		if res.Error != nil {
			replaced = false
			logger.Error("erro ao processar arquivo",
				zap.String("file", res.FilePath),
				zap.Error(res.Error))
		}
		out = append(out, res)
	}

	if replaced {
		s.invalidator.Invalidate(ctx, login)
	}

	return out
}

func (s *IngestionService) afterLoad(ctx context.Context, result *ProcessFileResult) {
	if result.Error != nil {
		logger.Error("erro ao processar arquivo",
			zap.String("file", result.FilePath),
			zap.Error(result.Error))
	}

	if result.RecordsCount > 0 {
		s.invalidator.Invalidate(ctx, result.Login)
	}

	logger.Info("arquivo processado",
		zap.String("file", result.FilePath),
		zap.Int64("records", result.RecordsCount),
		zap.Int("rejected", result.Rejected))
}

func toProcessResult(r ingestion.JobResult) *ProcessFileResult {
	return &ProcessFileResult{
		Login:        r.Login,
		FilePath:     r.FilePath,
		RecordsCount: r.RecordsCount,
		Rejected:     len(r.Rejected),
		Errors:       r.Rejected,
		Error:        r.Error,
	}
}
