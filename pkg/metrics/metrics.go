package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TradesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mt5_trades_ingested_total",
		Help: "Total number of trade rows ingested from history exports",
	}, []string{"status"})

	IngestionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mt5_ingestion_duration_seconds",
		Help:    "Duration of history file ingestion",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mt5_cache_hits_total",
		Help: "Total number of cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mt5_cache_misses_total",
		Help: "Total number of cache misses",
	})

	DatabaseQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mt5_database_queries_total",
		Help: "Total number of database queries",
	}, []string{"query_type", "status"})

	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mt5_database_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query_type"})

	AggregationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mt5_profit_aggregation_requests_total",
		Help: "Total number of daily profit aggregation requests",
	}, []string{"source", "cached"})

	AggregatedTrades = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mt5_profit_aggregated_trades",
		Help:    "Number of trades folded into a single daily profit series",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	SessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mt5_sessions_opened_total",
		Help: "Total number of sessions opened",
	})

	// Sessions that expire through the TTL are not counted here.
	SessionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mt5_sessions_closed_total",
		Help: "Total number of sessions closed by an explicit disconnect",
	})
)

func RecordCacheHit() {
	CacheHits.Inc()
}

func RecordCacheMiss() {
	CacheMisses.Inc()
}

func RecordDatabaseQuery(queryType, status string, duration float64) {
	DatabaseQueries.WithLabelValues(queryType, status).Inc()
	DatabaseQueryDuration.WithLabelValues(queryType).Observe(duration)
}

func RecordTradesIngested(status string, n int) {
	TradesIngested.WithLabelValues(status).Add(float64(n))
}

func RecordAggregationRequest(source string, cached bool, trades int) {
	cachedStr := "false"
	if cached {
		cachedStr = "true"
	}
	AggregationRequests.WithLabelValues(source, cachedStr).Inc()
	if !cached {
		AggregatedTrades.Observe(float64(trades))
	}
}

type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{
		start: time.Now(),
	}
}

func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(time.Since(t.start).Seconds())
}

func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
