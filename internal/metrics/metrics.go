package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the reconciliation service.
type Metrics struct {
	// Sync metrics
	SyncRuns     *prometheus.CounterVec
	SyncDuration prometheus.Histogram

	// Source metrics
	CostRecordsFetched    prometheus.Counter
	RevenueRecordsFetched prometheus.Counter

	// Merge metrics
	RecordsMerged     prometheus.Counter
	OrphanRecords     *prometheus.CounterVec
	OrphanRevenue     *prometheus.CounterVec
	ZeroWeightRevenue prometheus.Counter

	// Warehouse metrics
	WarehouseInserts *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests  *prometheus.CounterVec
	RateLimitHits *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		SyncRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_runs_total",
				Help:      "Total reconciliation runs by outcome",
			},
			[]string{"status"},
		),
		SyncDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_duration_seconds",
				Help:      "Duration of reconciliation runs",
				Buckets:   []float64{1, 5, 15, 60, 120, 300, 600, 1200},
			},
		),
		CostRecordsFetched: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cost_records_fetched_total",
				Help:      "Cost records fetched from the paid-traffic platform",
			},
		),
		RevenueRecordsFetched: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "revenue_records_fetched_total",
				Help:      "Revenue records fetched from the monetization platform",
			},
		),
		RecordsMerged: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_merged_total",
				Help:      "Merged records produced",
			},
		),
		OrphanRecords: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orphan_records_total",
				Help:      "Unmatched revenue keys by classification",
			},
			[]string{"class"},
		),
		OrphanRevenue: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orphan_revenue_total",
				Help:      "Orphan revenue by disposition (redistributed or dropped)",
			},
			[]string{"disposition"},
		),
		ZeroWeightRevenue: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "zero_weight_revenue_total",
				Help:      "Matched revenue lost to zero-click cost groups",
			},
		),
		WarehouseInserts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "warehouse_inserts_total",
				Help:      "Warehouse batch inserts by outcome",
			},
			[]string{"status"},
		),
		HTTPRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by path and status",
			},
			[]string{"path", "status"},
		),
		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Requests rejected by the rate limiter",
			},
			[]string{"path"},
		),
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSyncRun records a completed reconciliation run.
func (m *Metrics) RecordSyncRun(status string, duration time.Duration) {
	m.SyncRuns.WithLabelValues(status).Inc()
	m.SyncDuration.Observe(duration.Seconds())
}

// RecordFetch records fetched source record counts.
func (m *Metrics) RecordFetch(costRecords, revenueRecords int) {
	m.CostRecordsFetched.Add(float64(costRecords))
	m.RevenueRecordsFetched.Add(float64(revenueRecords))
}

// RecordMerge records the outcome of an attribution merge.
func (m *Metrics) RecordMerge(merged, trackingOrphans, legitimateOrphans, discardedOrphans int) {
	m.RecordsMerged.Add(float64(merged))
	m.OrphanRecords.WithLabelValues("tracking_failure").Add(float64(trackingOrphans))
	m.OrphanRecords.WithLabelValues("legitimate").Add(float64(legitimateOrphans))
	m.OrphanRecords.WithLabelValues("discarded").Add(float64(discardedOrphans))
}

// RecordOrphanRevenue records redistributed and dropped orphan revenue.
func (m *Metrics) RecordOrphanRevenue(redistributed, dropped, zeroWeight float64) {
	m.OrphanRevenue.WithLabelValues("redistributed").Add(redistributed)
	m.OrphanRevenue.WithLabelValues("dropped").Add(dropped)
	m.ZeroWeightRevenue.Add(zeroWeight)
}

// RecordWarehouseInsert records a warehouse batch insert outcome.
func (m *Metrics) RecordWarehouseInsert(status string, records int) {
	m.WarehouseInserts.WithLabelValues(status).Add(float64(records))
}

// RecordHTTPRequest records an HTTP request by path and status.
func (m *Metrics) RecordHTTPRequest(path string, status int) {
	m.HTTPRequests.WithLabelValues(path, strconv.Itoa(status)).Inc()
}

// RecordRateLimitHit records a rate limit rejection.
func (m *Metrics) RecordRateLimitHit(path string) {
	m.RateLimitHits.WithLabelValues(path).Inc()
}
