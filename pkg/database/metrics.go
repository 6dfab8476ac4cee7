package database

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "facility_engine_db_query_duration_seconds",
			Help:    "Database query execution time in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation", "status"},
	)

	dbSlowQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facility_engine_db_slow_queries_total",
			Help: "Total number of slow queries (>1 second)",
		},
		[]string{"operation"},
	)

	dbPoolMaxConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "facility_engine_db_pool_max_connections",
		Help: "Maximum number of database connections in the pool",
	})

	dbPoolIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "facility_engine_db_pool_idle_connections",
		Help: "Number of idle database connections in the pool",
	})

	dbPoolInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "facility_engine_db_pool_in_use_connections",
		Help: "Number of database connections currently in use",
	})
)

type queryStartKey struct{}

type queryStart struct {
	at        time.Time
	operation string
}

// QueryMetricsTracer records query duration per SQL verb. Install it on a
// pgxpool.Config via ConnConfig.Tracer.
type QueryMetricsTracer struct{}

var _ pgx.QueryTracer = QueryMetricsTracer{}

func (QueryMetricsTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{at: time.Now(), operation: sqlOperation(data.SQL)})
}

func (QueryMetricsTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	duration := time.Since(start.at).Seconds()

	status := "success"
	if data.Err != nil && data.Err != pgx.ErrNoRows {
		status = "error"
	}
	dbQueryDuration.WithLabelValues(start.operation, status).Observe(duration)
	if duration > 1.0 {
		dbSlowQueriesTotal.WithLabelValues(start.operation).Inc()
	}
}

// sqlOperation returns the leading SQL verb, upper-cased, or "OTHER".
func sqlOperation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "OTHER"
	}
	switch verb := strings.ToUpper(fields[0]); verb {
	case "SELECT", "INSERT", "UPDATE", "DELETE", "WITH":
		return verb
	default:
		return "OTHER"
	}
}

// UpdatePoolMetrics copies the current pool statistics into the gauges.
func UpdatePoolMetrics(pool *pgxpool.Pool) {
	stats := pool.Stat()
	dbPoolMaxConns.Set(float64(stats.MaxConns()))
	dbPoolIdle.Set(float64(stats.IdleConns()))
	dbPoolInUse.Set(float64(stats.AcquiredConns()))
}

// StartPoolMetricsCollector refreshes pool gauges every interval until ctx is done.
func StartPoolMetricsCollector(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			UpdatePoolMetrics(pool)
		}
	}
}
