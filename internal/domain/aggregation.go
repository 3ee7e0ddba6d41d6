package domain

// DailyProfitPoint é o lucro/prejuízo somado de um dia (chave = data do CloseTime).
type DailyProfitPoint struct {
	Date   string  `json:"date"`
	Profit float64 `json:"profit"`
}

type ProfitSummary struct {
	TotalProfit   float64           `json:"total_profit"`
	TradeCount    int               `json:"trade_count"`
	WinningTrades int               `json:"winning_trades"`
	LosingTrades  int               `json:"losing_trades"`
	DaysTraded    int               `json:"days_traded"`
	BestDay       *DailyProfitPoint `json:"best_day,omitempty"`
	WorstDay      *DailyProfitPoint `json:"worst_day,omitempty"`
}
