package pnl

import "github.com/jeovahfialho/mt5-history/internal/domain"

// Summarize consolida totais do histórico. Em empate, vale o primeiro dia da série.
func Summarize(trades []domain.Trade) domain.ProfitSummary {
	summary := domain.ProfitSummary{TradeCount: len(trades)}

	for _, trade := range trades {
		summary.TotalProfit += trade.Profit
		switch {
		case trade.Profit > 0:
			summary.WinningTrades++
		case trade.Profit < 0:
			summary.LosingTrades++
		}
	}

	daily := DailyProfit(trades)
	summary.DaysTraded = len(daily)
	if len(daily) == 0 {
		return summary
	}

	best, worst := daily[0], daily[0]
	for _, p := range daily[1:] {
		if p.Profit > best.Profit {
			best = p
		}
		if p.Profit < worst.Profit {
			worst = p
		}
	}
	summary.BestDay = &best
	summary.WorstDay = &worst

	return summary
}
