package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/jeovahfialho/mt5-history/internal/domain"
	"github.com/jeovahfialho/mt5-history/internal/history"
	"github.com/jeovahfialho/mt5-history/internal/session"
	"github.com/jeovahfialho/mt5-history/pkg/logger"
	"github.com/jeovahfialho/mt5-history/pkg/metrics"
	"github.com/jeovahfialho/mt5-history/pkg/tracing"
)

type TradeService struct {
	source history.Source
}

func NewTradeService(source history.Source) *TradeService {
	return &TradeService{source: source}
}

// History devolve as operações da sessão na ordem da origem, para a tabela de operações.
func (s *TradeService) History(ctx context.Context, sess *session.Session) ([]domain.Trade, error) {
	ctx, span := tracing.StartSpan(ctx, "TradeService.History")
	defer span.End()

	if sess == nil {
		return nil, session.ErrSessionNotFound
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DatabaseQueryDuration.WithLabelValues("trade_history"))

	trades, err := fetchHistory(ctx, s.source, sess)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if trades == nil {
		trades = []domain.Trade{}
	}

	logger.Debug("histórico recuperado",
		zap.String("login", sess.Login),
		zap.Int("records", len(trades)))

	return trades, nil
}
