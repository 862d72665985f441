// Package metrics collects and exposes Prometheus metrics for export
// acquisitions and report unit execution.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the metric families for one process.
type Collector struct {
	exportsSubmitted prometheus.Counter
	exportsSucceeded prometheus.Counter
	exportsFailed    prometheus.Counter
	exportsTimedOut  prometheus.Counter
	exportDuration   prometheus.Histogram
	downloadBytes    prometheus.Counter

	unitsSucceeded prometheus.Counter
	unitsFailed    prometheus.Counter
	unitsSkipped   prometheus.Counter
	unitDuration   prometheus.Histogram
}

// NewCollector creates and registers the collector's metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		exportsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportflow_exports_submitted_total",
			Help: "Total number of export jobs submitted",
		}),
		exportsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportflow_exports_succeeded_total",
			Help: "Total number of export jobs that succeeded",
		}),
		exportsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportflow_exports_failed_total",
			Help: "Total number of export jobs that failed remotely",
		}),
		exportsTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportflow_exports_timed_out_total",
			Help: "Total number of export jobs abandoned on local deadline",
		}),
		exportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reportflow_export_duration_seconds",
			Help:    "Time from submission to terminal status",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		downloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportflow_download_bytes_total",
			Help: "Total bytes downloaded for succeeded exports",
		}),
		unitsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportflow_units_succeeded_total",
			Help: "Total number of report units that succeeded",
		}),
		unitsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportflow_units_failed_total",
			Help: "Total number of report units that failed",
		}),
		unitsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportflow_units_skipped_total",
			Help: "Total number of report units skipped on a blocked dependency",
		}),
		unitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reportflow_unit_duration_seconds",
			Help:    "Report unit execution time",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.exportsSubmitted,
		c.exportsSucceeded,
		c.exportsFailed,
		c.exportsTimedOut,
		c.exportDuration,
		c.downloadBytes,
		c.unitsSucceeded,
		c.unitsFailed,
		c.unitsSkipped,
		c.unitDuration,
	)
	return c
}

// RecordExportSubmitted counts one accepted submission.
func (c *Collector) RecordExportSubmitted() {
	c.exportsSubmitted.Inc()
}

// RecordExportSucceeded counts one succeeded export with its total duration.
func (c *Collector) RecordExportSucceeded(durationSeconds float64) {
	c.exportsSucceeded.Inc()
	c.exportDuration.Observe(durationSeconds)
}

// RecordExportFailed counts one remotely failed export.
func (c *Collector) RecordExportFailed() {
	c.exportsFailed.Inc()
}

// RecordExportTimedOut counts one export abandoned on deadline.
func (c *Collector) RecordExportTimedOut() {
	c.exportsTimedOut.Inc()
}

// RecordDownloadBytes adds to the downloaded byte total.
func (c *Collector) RecordDownloadBytes(n int64) {
	c.downloadBytes.Add(float64(n))
}

// RecordUnitSucceeded counts one succeeded unit with its execution time.
func (c *Collector) RecordUnitSucceeded(durationSeconds float64) {
	c.unitsSucceeded.Inc()
	c.unitDuration.Observe(durationSeconds)
}

// RecordUnitFailed counts one failed unit.
func (c *Collector) RecordUnitFailed() {
	c.unitsFailed.Inc()
}

// RecordUnitSkipped counts one skipped unit.
func (c *Collector) RecordUnitSkipped() {
	c.unitsSkipped.Inc()
}

// StartServer exposes /metrics on the given port. Blocks; run it in its own
// goroutine.
func StartServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, nil)
}
