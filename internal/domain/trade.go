package domain

import "time"

// Trade é uma operação fechada do histórico do MT5.
// Symbol e Type são apenas exibidos; nenhum cálculo depende deles.
type Trade struct {
	Symbol     string  `json:"symbol"`
	Type       string  `json:"type"`
	Volume     float64 `json:"volume"`
	OpenPrice  float64 `json:"openPrice"`
	ClosePrice float64 `json:"closePrice"`
	Profit     float64 `json:"profit"`
	OpenTime   string  `json:"openTime"`
	CloseTime  string  `json:"closeTime"`
}

// TimeLayout é o formato textual de OpenTime/CloseTime.
const TimeLayout = "2006-01-02 15:04:05"

type TradeFilter struct {
	Symbol    string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
}
