package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/jeovahfialho/mt5-history/internal/domain"
	"github.com/jeovahfialho/mt5-history/internal/history"
	"github.com/jeovahfialho/mt5-history/internal/pnl"
	"github.com/jeovahfialho/mt5-history/internal/session"
	"github.com/jeovahfialho/mt5-history/internal/storage/cache"
	"github.com/jeovahfialho/mt5-history/pkg/logger"
	"github.com/jeovahfialho/mt5-history/pkg/metrics"
	"github.com/jeovahfialho/mt5-history/pkg/tracing"
)

// ErrHistoryUnavailable encobre a falha da origem; o detalhe fica no log.
var ErrHistoryUnavailable = errors.New("não foi possível obter o histórico de operações")

// Cache é o subconjunto de cache.RedisCache usado pelos serviços.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl ...time.Duration) error
	DeletePattern(ctx context.Context, pattern string) (int, error)
}

type ProfitService struct {
	source   history.Source
	cache    Cache
	cacheTTL time.Duration
}

// NewProfitService aceita cache nil: nesse caso todo pedido vai à origem.
func NewProfitService(source history.Source, c Cache, cacheTTL time.Duration) *ProfitService {
	return &ProfitService{
		source:   source,
		cache:    c,
		cacheTTL: cacheTTL,
	}
}

func dailyCacheKey(login string) string {
	return fmt.Sprintf("pnl:%s:daily", login)
}

func summaryCacheKey(login string) string {
	return fmt.Sprintf("pnl:%s:summary", login)
}

func (s *ProfitService) DailyProfit(ctx context.Context, sess *session.Session) ([]domain.DailyProfitPoint, error) {
	ctx, span := tracing.StartSpan(ctx, "ProfitService.DailyProfit")
	defer span.End()

	if sess == nil {
		return nil, session.ErrSessionNotFound
	}
	span.SetAttributes(attribute.String("mt5.login", sess.Login))

	source := history.Name(s.source)
	key := dailyCacheKey(sess.Login)

	var cached []domain.DailyProfitPoint
	if s.getFromCache(ctx, key, &cached) {
		metrics.RecordAggregationRequest(source, true, 0)
		if cached == nil {
			cached = []domain.DailyProfitPoint{}
		}
		return cached, nil
	}

	trades, err := fetchHistory(ctx, s.source, sess)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch history")
		return nil, err
	}

	daily := pnl.DailyProfit(trades)
	metrics.RecordAggregationRequest(source, false, len(trades))
	span.SetAttributes(attribute.Int("mt5.trades", len(trades)), attribute.Int("mt5.days", len(daily)))

	s.saveToCache(ctx, key, daily)

	return daily, nil
}

func (s *ProfitService) Summary(ctx context.Context, sess *session.Session) (*domain.ProfitSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "ProfitService.Summary")
	defer span.End()

	if sess == nil {
		return nil, session.ErrSessionNotFound
	}

	key := summaryCacheKey(sess.Login)

	var cached domain.ProfitSummary
	if s.getFromCache(ctx, key, &cached) {
		return &cached, nil
	}

	trades, err := fetchHistory(ctx, s.source, sess)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch history")
		return nil, err
	}

	summary := pnl.Summarize(trades)
	s.saveToCache(ctx, key, summary)

	return &summary, nil
}

// Aggregate agrega operações enviadas pelo cliente, sem sessão nem cache.
func (s *ProfitService) Aggregate(trades []domain.Trade) []domain.DailyProfitPoint {
	metrics.RecordAggregationRequest("request", false, len(trades))
	return pnl.DailyProfit(trades)
}

// Invalidate remove tudo que foi calculado para o login.
func (s *ProfitService) Invalidate(ctx context.Context, login string) {
	if s.cache == nil {
		return
	}

	n, err := s.cache.DeletePattern(ctx, fmt.Sprintf("pnl:%s:*", cache.EscapePattern(login)))
	if err != nil {
		logger.Warn("erro ao invalidar cache", zap.String("login", login), zap.Error(err))
		return
	}

	logger.Debug("cache invalidado", zap.String("login", login), zap.Int("keys", n))
}

func fetchHistory(ctx context.Context, src history.Source, sess *session.Session) ([]domain.Trade, error) {
	trades, err := src.FetchHistory(ctx, sess)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		logger.WithContext(ctx).Error("erro ao buscar histórico",
			zap.String("login", sess.Login),
			zap.String("source", history.Name(src)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrHistoryUnavailable, err)
	}
	return trades, nil
}

func (s *ProfitService) getFromCache(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}

	err := s.cache.Get(ctx, key, dest)
	switch {
	case err == nil:
		metrics.RecordCacheHit()
		return true
	case errors.Is(err, cache.ErrCacheMiss):
		metrics.RecordCacheMiss()
	default:
		// Redis fora do ar não derruba a consulta
		metrics.RecordCacheMiss()
		logger.Warn("erro ao ler cache", zap.String("key", key), zap.Error(err))
	}
	return false
}

func (s *ProfitService) saveToCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Set(ctx, key, value, s.cacheTTL); err != nil {
		logger.Warn("erro ao salvar cache", zap.String("key", key), zap.Error(err))
	}
}
