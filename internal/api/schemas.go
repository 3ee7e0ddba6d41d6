package api

import (
	"time"

	"github.com/jeovahfialho/mt5-history/internal/domain"
)

type ConnectRequest struct {
	Login  string `json:"login" validate:"required"`
	Server string `json:"server"`
}

type SessionResponse struct {
	Token       string    `json:"token"`
	Login       string    `json:"login"`
	Server      string    `json:"server,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
	ExpiresIn   string    `json:"expires_in,omitempty"`
}

type TradesResponse struct {
	Login  string         `json:"login"`
	Trades []domain.Trade `json:"trades"`
	Count  int            `json:"count"`
}

type DailyProfitRequest struct {
	Trades     []domain.Trade `json:"trades"`
	Cumulative bool           `json:"cumulative"`
}

type DailyProfitResponse struct {
	Login          string                    `json:"login,omitempty"`
	Daily          []domain.DailyProfitPoint `json:"daily"`
	Cumulative     []domain.DailyProfitPoint `json:"cumulative,omitempty"`
	Days           int                       `json:"days"`
	ProcessingTime string                    `json:"processing_time,omitempty"`
}

type SummaryResponse struct {
	Login string `json:"login"`
	domain.ProfitSummary
}

type HealthResponse struct {
	Status    string                   `json:"status"`
	Version   string                   `json:"version"`
	Timestamp time.Time                `json:"timestamp"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

type ServiceHealth struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

type SystemStatsResponse struct {
	HistorySource string         `json:"history_source"`
	Database      *DatabaseStats `json:"database,omitempty"`
	API           APIStats       `json:"api"`
}

type DatabaseStats struct {
	ActiveConnections int32  `json:"active_connections"`
	IdleConnections   int32  `json:"idle_connections"`
	TotalConnections  int32  `json:"total_connections"`
	WaitCount         int64  `json:"wait_count"`
	WaitDuration      string `json:"wait_duration"`
}

type APIStats struct {
	ActiveGoroutines int    `json:"active_goroutines"`
	MemoryUsed       string `json:"memory_used"`
}

type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      int       `json:"code"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type LoadDataRequest struct {
	Login string   `json:"login" validate:"required"`
	Files []string `json:"files" validate:"required"`
	Async bool     `json:"async"`
	// Replace troca todo o histórico do login pelo conteúdo de Files.
	Replace bool `json:"replace"`
}

type LoadDataResponse struct {
	JobID        string           `json:"job_id,omitempty"`
	RecordsCount int64            `json:"records_count,omitempty"`
	Status       string           `json:"status"`
	Message      string           `json:"message"`
	Files        []LoadFileResult `json:"files,omitempty"`
}

type LoadFileResult struct {
	File     string `json:"file"`
	Records  int64  `json:"records"`
	Rejected int    `json:"rejected"`
	Error    string `json:"error,omitempty"`
}
