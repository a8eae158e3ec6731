package syncer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Runs          *prometheus.CounterVec
	Rows          *prometheus.CounterVec
	Discrepancies *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
}

// NewMetrics registers the sync metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mosys_sync_runs_total",
			Help: "Sync runs by outcome",
		}, []string{"family", "plant", "status"}),
		Rows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mosys_sync_rows_total",
			Help: "Target rows written by operation",
		}, []string{"family", "plant", "op"}),
		Discrepancies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mosys_sync_discrepancies_total",
			Help: "Data-quality discrepancies found",
		}, []string{"family", "plant"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mosys_sync_run_duration_seconds",
			Help:    "Wall time of a sync run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"family", "plant"}),
	}
}

func (m *Metrics) observe(res RunResult, took time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(res.Family, res.Plant, res.Status).Inc()
	m.Rows.WithLabelValues(res.Family, res.Plant, "insert").Add(float64(res.Inserted))
	m.Rows.WithLabelValues(res.Family, res.Plant, "update").Add(float64(res.Updated))
	m.Rows.WithLabelValues(res.Family, res.Plant, "delete").Add(float64(res.Deleted))
	m.Discrepancies.WithLabelValues(res.Family, res.Plant).Add(float64(res.Discrepancies))
	m.Duration.WithLabelValues(res.Family, res.Plant).Observe(took.Seconds())
}
