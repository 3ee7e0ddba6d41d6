// Package history define de onde vem o histórico de operações de uma sessão.
package history

import (
	"context"
	"fmt"

	"github.com/jeovahfialho/mt5-history/internal/domain"
	"github.com/jeovahfialho/mt5-history/internal/session"
)

type Source interface {
	FetchHistory(ctx context.Context, sess *session.Session) ([]domain.Trade, error)
}

// DemoSource devolve um histórico fixo; substitui a API do MT5 em desenvolvimento.
type DemoSource struct{}

func (DemoSource) FetchHistory(ctx context.Context, _ *session.Session) ([]domain.Trade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return []domain.Trade{
		{
			Symbol:     "EURUSD",
			Type:       "Buy",
			Volume:     1.0,
			OpenPrice:  1.1234,
			ClosePrice: 1.1245,
			Profit:     110,
			OpenTime:   "2023-06-01 10:00:00",
			CloseTime:  "2023-06-01 11:00:00",
		},
		{
			Symbol:     "GBPUSD",
			Type:       "Sell",
			Volume:     0.5,
			OpenPrice:  1.2345,
			ClosePrice: 1.2335,
			Profit:     -50,
			OpenTime:   "2023-06-02 14:30:00",
			CloseTime:  "2023-06-02 15:30:00",
		},
	}, nil
}

type TradeLister interface {
	ListTrades(ctx context.Context, login string, filter domain.TradeFilter) ([]domain.Trade, error)
}

// RepositorySource lê o histórico importado para o login da sessão.
type RepositorySource struct {
	repo TradeLister
}

func NewRepositorySource(repo TradeLister) *RepositorySource {
	return &RepositorySource{repo: repo}
}

func (s *RepositorySource) FetchHistory(ctx context.Context, sess *session.Session) ([]domain.Trade, error) {
	if sess == nil {
		return nil, session.ErrSessionNotFound
	}

	trades, err := s.repo.ListTrades(ctx, sess.Login, domain.TradeFilter{})
	if err != nil {
		return nil, fmt.Errorf("erro ao buscar histórico do login %s: %w", sess.Login, err)
	}
	return trades, nil
}

// Name identifica a origem nas métricas.
func Name(src Source) string {
	switch src.(type) {
	case DemoSource, *DemoSource:
		return "demo"
	case *RepositorySource:
		return "postgres"
	default:
		return "custom"
	}
}
