package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/jeovahfialho/mt5-history/internal/domain"
	"github.com/jeovahfialho/mt5-history/pkg/logger"
	"github.com/jeovahfialho/mt5-history/pkg/metrics"
	"go.uber.org/zap"
)

var tradeColumns = []string{
	"login",
	"symbol",
	"type",
	"volume",
	"open_price",
	"close_price",
	"profit",
	"open_time",
	"close_time",
}

type TradeRepository struct {
	pool      *pgxpool.Pool
	batchSize int
}

func NewTradeRepository(pool *pgxpool.Pool, batchSize int) *TradeRepository {
	if batchSize <= 0 {
		batchSize = 5000
	}
	return &TradeRepository{
		pool:      pool,
		batchSize: batchSize,
	}
}

// LoadTrades grava as operações de um login via COPY numa única transação.
func (r *TradeRepository) LoadTrades(ctx context.Context, login string, trades []domain.Trade) (int64, error) {
	if len(trades) == 0 {
		return 0, nil
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DatabaseQueryDuration.WithLabelValues("load_trades"))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("erro ao iniciar transação: %w", err)
	}
	defer tx.Rollback(ctx)

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"trades"},
		tradeColumns,
		&tradeSource{login: login, trades: trades},
	)
	if err != nil {
		metrics.DatabaseQueries.WithLabelValues("load_trades", "error").Inc()
		return 0, fmt.Errorf("erro no COPY: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.DatabaseQueries.WithLabelValues("load_trades", "error").Inc()
		return 0, fmt.Errorf("erro no commit: %w", err)
	}

	metrics.DatabaseQueries.WithLabelValues("load_trades", "success").Inc()
	return copyCount, nil
}

// LoadTradesConcurrent divide em lotes de batchSize e grava cada lote em paralelo.
// Cada lote é uma transação própria; em caso de erro os lotes já gravados permanecem.
func (r *TradeRepository) LoadTradesConcurrent(ctx context.Context, login string, trades []domain.Trade) (int64, error) {
	chunks := splitIntoChunks(trades, r.batchSize)
	if len(chunks) == 0 {
		return 0, nil
	}

	results := make(chan int64, len(chunks))
	errs := make(chan error, len(chunks))

	for _, chunk := range chunks {
		go func(chunk []domain.Trade) {
			count, err := r.LoadTrades(ctx, login, chunk)
			if err != nil {
				errs <- err
				return
			}
			results <- count
		}(chunk)
	}

	var totalCount int64
	for i := 0; i < len(chunks); i++ {
		select {
		case count := <-results:
			totalCount += count
		case err := <-errs:
			return totalCount, err
		case <-ctx.Done():
			return totalCount, ctx.Err()
		}
	}

	return totalCount, nil
}

// ListTrades devolve o histórico de um login em ordem de fechamento.
func (r *TradeRepository) ListTrades(ctx context.Context, login string, filter domain.TradeFilter) ([]domain.Trade, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DatabaseQueryDuration.WithLabelValues("list_trades"))

	query, args := buildListQuery(login, filter)

	logger.Debug("executando query de histórico",
		zap.String("login", login),
		zap.String("symbol", filter.Symbol),
		zap.Any("start_date", filter.StartDate),
		zap.Any("end_date", filter.EndDate))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		metrics.DatabaseQueries.WithLabelValues("list_trades", "error").Inc()
		return nil, fmt.Errorf("erro ao buscar histórico: %w", err)
	}
	defer rows.Close()

	trades := make([]domain.Trade, 0)
	for rows.Next() {
		var (
			trade                                 domain.Trade
			volume, openPrice, closePrice, profit decimal.Decimal
		)

		err := rows.Scan(
			&trade.Symbol,
			&trade.Type,
			&volume,
			&openPrice,
			&closePrice,
			&profit,
			&trade.OpenTime,
			&trade.CloseTime,
		)
		if err != nil {
			return nil, fmt.Errorf("erro ao escanear trade: %w", err)
		}

		trade.Volume = volume.InexactFloat64()
		trade.OpenPrice = openPrice.InexactFloat64()
		trade.ClosePrice = closePrice.InexactFloat64()
		trade.Profit = profit.InexactFloat64()

		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		metrics.DatabaseQueries.WithLabelValues("list_trades", "error").Inc()
		return nil, fmt.Errorf("erro ao iterar resultados: %w", err)
	}

	metrics.DatabaseQueries.WithLabelValues("list_trades", "success").Inc()
	logger.Info("histórico recuperado",
		zap.String("login", login),
		zap.Int("records", len(trades)))

	return trades, nil
}

// ReplaceTrades apaga o histórico do login e grava trades via COPY na mesma transação.
// Com trades vazio o login fica sem histórico.
func (r *TradeRepository) ReplaceTrades(ctx context.Context, login string, trades []domain.Trade) (int64, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DatabaseQueryDuration.WithLabelValues("replace_trades"))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("erro ao iniciar transação: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, "DELETE FROM trades WHERE login = $1", login)
	if err != nil {
		metrics.DatabaseQueries.WithLabelValues("replace_trades", "error").Inc()
		return 0, fmt.Errorf("erro ao remover histórico: %w", err)
	}

	var copyCount int64
	if len(trades) > 0 {
		copyCount, err = tx.CopyFrom(
			ctx,
			pgx.Identifier{"trades"},
			tradeColumns,
			&tradeSource{login: login, trades: trades},
		)
		if err != nil {
			metrics.DatabaseQueries.WithLabelValues("replace_trades", "error").Inc()
			return 0, fmt.Errorf("erro no COPY: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.DatabaseQueries.WithLabelValues("replace_trades", "error").Inc()
		return 0, fmt.Errorf("erro no commit: %w", err)
	}

	metrics.DatabaseQueries.WithLabelValues("replace_trades", "success").Inc()
	logger.Info("histórico substituído",
		zap.String("login", login),
		zap.Int64("removed", tag.RowsAffected()),
		zap.Int64("records", copyCount))

	return copyCount, nil
}

func buildListQuery(login string, filter domain.TradeFilter) (string, []interface{}) {
	query := `
        SELECT
            symbol,
            type,
            volume,
            open_price,
            close_price,
            profit,
            open_time,
            close_time
        FROM trades
        WHERE login = $1`

	args := []interface{}{login}
	argCount := 1

	if filter.Symbol != "" {
		argCount++
		query += fmt.Sprintf(" AND symbol = $%d", argCount)
		args = append(args, filter.Symbol)
	}

	// close_time é texto "YYYY-MM-DD HH:MM:SS": comparação lexicográfica equivale à cronológica
	if filter.StartDate != nil {
		argCount++
		query += fmt.Sprintf(" AND close_time >= $%d", argCount)
		args = append(args, filter.StartDate.Format("2006-01-02"))
	}

	if filter.EndDate != nil {
		argCount++
		query += fmt.Sprintf(" AND close_time < $%d", argCount)
		args = append(args, filter.EndDate.AddDate(0, 0, 1).Format("2006-01-02"))
	}

	query += " ORDER BY close_time ASC, id ASC"

	if filter.Limit > 0 {
		argCount++
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filter.Limit)
	}

	return query, args
}

type tradeSource struct {
	login  string
	trades []domain.Trade
	index  int
}

func (ts *tradeSource) Next() bool {
	ts.index++
	return ts.index <= len(ts.trades)
}

func (ts *tradeSource) Values() ([]interface{}, error) {
	if ts.index > len(ts.trades) {
		return nil, nil
	}

	trade := ts.trades[ts.index-1]
	return []interface{}{
		ts.login,
		trade.Symbol,
		trade.Type,
		decimal.NewFromFloat(trade.Volume),
		decimal.NewFromFloat(trade.OpenPrice),
		decimal.NewFromFloat(trade.ClosePrice),
		decimal.NewFromFloat(trade.Profit),
		trade.OpenTime,
		trade.CloseTime,
	}, nil
}

func (ts *tradeSource) Err() error {
	return nil
}

func splitIntoChunks(trades []domain.Trade, size int) [][]domain.Trade {
	var chunks [][]domain.Trade

	for i := 0; i < len(trades); i += size {
		end := i + size
		if end > len(trades) {
			end = len(trades)
		}
		chunks = append(chunks, trades[i:end])
	}

	return chunks
}
