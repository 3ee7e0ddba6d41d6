// Package pnl reduz o histórico de operações em séries de lucro/prejuízo.
// Todas as funções são puras: não guardam estado e podem ser chamadas em paralelo.
package pnl

import (
	"strings"

	"github.com/jeovahfialho/mt5-history/internal/domain"
)

// DateKey devolve a parte de closeTime antes do primeiro espaço,
// ou a string inteira quando não há espaço. Não valida o formato.
func DateKey(closeTime string) string {
	date, _, _ := strings.Cut(closeTime, " ")
	return date
}

// DailyProfit soma o lucro das operações por dia de fechamento.
// A saída tem uma entrada por data, na ordem em que cada data aparece pela primeira vez.
func DailyProfit(trades []domain.Trade) []domain.DailyProfitPoint {
	points := make([]domain.DailyProfitPoint, 0)
	index := make(map[string]int)

	for _, trade := range trades {
		date := DateKey(trade.CloseTime)

		if i, ok := index[date]; ok {
			points[i].Profit += trade.Profit
			continue
		}

		index[date] = len(points)
		points = append(points, domain.DailyProfitPoint{Date: date, Profit: trade.Profit})
	}

	return points
}

// Cumulative transforma uma série diária na curva acumulada, mantendo a ordem.
func Cumulative(points []domain.DailyProfitPoint) []domain.DailyProfitPoint {
	out := make([]domain.DailyProfitPoint, len(points))

	var running float64
	for i, p := range points {
		running += p.Profit
		out[i] = domain.DailyProfitPoint{Date: p.Date, Profit: running}
	}

	return out
}
