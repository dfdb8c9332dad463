// Package metrics exposes Prometheus counters for imports and merges,
// plus lead population gauges sampled at scrape time.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	metricsstore "github.com/dalemusser/leadtrack/internal/app/store/metrics"
	"github.com/dalemusser/leadtrack/internal/app/system/timeouts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leadtrack"

// CountsFunc samples lead totals. It is called once per scrape.
type CountsFunc func(ctx context.Context) metricsstore.Counts

// Metrics owns a private registry so tests and multiple instances never
// collide on the default one.
type Metrics struct {
	reg *prometheus.Registry

	importRows     *prometheus.CounterVec
	importRuns     *prometheus.CounterVec
	failedBatches  prometheus.Counter
	importDuration *prometheus.HistogramVec
	merges         *prometheus.CounterVec
}

// New builds the registry. counts may be nil, in which case no
// population gauges are exported.
func New(counts CountsFunc) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		reg: reg,
		importRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_total",
			Help:      "Import rows by reconciliation decision.",
		}, []string{"decision", "dry_run"}),
		importRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_runs_total",
			Help:      "Completed import runs.",
		}, []string{"dry_run"}),
		failedBatches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_failed_batches_total",
			Help:      "Import write batches that failed and were reported as row errors.",
		}),
		importDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_duration_seconds",
			Help:      "Wall time of an import run.",
			Buckets: []float64{
				0.01, 0.05,
				0.1, 0.25, 0.5,
				1, 2.5, 5, 10, 30,
			},
		}, []string{"dry_run"}),
		merges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_total",
			Help:      "Merge requests by outcome.",
		}, []string{"outcome"}),
	}

	if counts != nil {
		reg.MustRegister(&leadCollector{
			counts: counts,
			active: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "leads_active"),
				"Active leads.", nil, nil),
			merged: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "leads_merged"),
				"Leads retired by a merge.", nil, nil),
			open: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "tasks_open"),
				"Tasks not yet completed.", nil, nil),
		})
	}
	return m
}

// ObserveImport records one finished import run.
func (m *Metrics) ObserveImport(dryRun bool, decisions map[string]int, failedBatches int, elapsed time.Duration) {
	dr := strconv.FormatBool(dryRun)
	for decision, n := range decisions {
		if n > 0 {
			m.importRows.WithLabelValues(decision, dr).Add(float64(n))
		}
	}
	m.importRuns.WithLabelValues(dr).Inc()
	if failedBatches > 0 {
		m.failedBatches.Add(float64(failedBatches))
	}
	m.importDuration.WithLabelValues(dr).Observe(elapsed.Seconds())
}

// ObserveMerge records one merge request outcome.
func (m *Metrics) ObserveMerge(outcome string) {
	m.merges.WithLabelValues(outcome).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

type leadCollector struct {
	counts CountsFunc
	active *prometheus.Desc
	merged *prometheus.Desc
	open   *prometheus.Desc
}

func (c *leadCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.active
	ch <- c.merged
	ch <- c.open
}

func (c *leadCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Short())
	defer cancel()

	n := c.counts(ctx)
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(n.ActiveLeads))
	ch <- prometheus.MustNewConstMetric(c.merged, prometheus.GaugeValue, float64(n.MergedLeads))
	ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, float64(n.OpenTasks))
}
