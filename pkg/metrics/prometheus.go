package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/mnohosten/pkto/pkg/stm"
)

// PrometheusExporter exports metrics in Prometheus text format. It
// combines the operation-latency metrics recorded in MetricsCollector
// with a live stm.Snapshot pulled from the runtime at scrape time, so
// the two never drift apart behind separate counters.
type PrometheusExporter struct {
	collector *MetricsCollector
	runtime   *stm.Runtime
	namespace string // metric namespace prefix (e.g., "pkto")
}

// NewPrometheusExporter creates a new Prometheus exporter.
func NewPrometheusExporter(collector *MetricsCollector, runtime *stm.Runtime) *PrometheusExporter {
	return &PrometheusExporter{
		collector: collector,
		runtime:   runtime,
		namespace: "pkto",
	}
}

// SetNamespace sets the metric namespace prefix.
func (pe *PrometheusExporter) SetNamespace(namespace string) {
	pe.namespace = namespace
}

// WriteMetrics writes all metrics in Prometheus text format to the
// writer. Format: https://prometheus.io/docs/instrumenting/exposition_formats/
func (pe *PrometheusExporter) WriteMetrics(w io.Writer) error {
	uptime := time.Since(pe.collector.startTime).Seconds()
	if err := pe.writeGauge(w, "uptime_seconds", "Runtime uptime in seconds", uptime); err != nil {
		return err
	}

	// Read metrics
	readsExecuted, readsAborted := pe.collector.readsExecuted, pe.collector.readsAborted
	if err := pe.writeCounter(w, "reads_total", "Total number of stmRead calls", readsExecuted); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "reads_aborted_total", "Total number of reads that returned Aborted", readsAborted); err != nil {
		return err
	}
	if err := pe.writeHistogram(w, "read_duration_seconds", "stmRead duration histogram", pe.collector.readTimings); err != nil {
		return err
	}
	if err := pe.writePercentiles(w, "read_duration_seconds", pe.collector.readTimings); err != nil {
		return err
	}

	// Write metrics
	if err := pe.writeCounter(w, "writes_total", "Total number of stmWrite calls", pe.collector.writesExecuted); err != nil {
		return err
	}
	if err := pe.writeHistogram(w, "write_duration_seconds", "stmWrite duration histogram", pe.collector.writeTimings); err != nil {
		return err
	}
	if err := pe.writePercentiles(w, "write_duration_seconds", pe.collector.writeTimings); err != nil {
		return err
	}

	// Commit metrics
	if err := pe.writeCounter(w, "commits_attempted_total", "Total number of stmTryCommit calls", pe.collector.commitsAttempted); err != nil {
		return err
	}
	if err := pe.writeHistogram(w, "commit_duration_seconds", "stmTryCommit duration histogram", pe.collector.commitTimings); err != nil {
		return err
	}
	if err := pe.writePercentiles(w, "commit_duration_seconds", pe.collector.commitTimings); err != nil {
		return err
	}

	// Connection metrics
	if err := pe.writeGauge(w, "active_connections", "Current number of active control-plane connections", float64(pe.collector.activeConnections)); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "connections_total", "Total number of control-plane connections accepted", pe.collector.totalConnections); err != nil {
		return err
	}

	// Runtime snapshot: the protocol's own counters (spec §5), not
	// derived from the HTTP layer at all.
	if pe.runtime != nil {
		snap := pe.runtime.Stats()

		if err := pe.writeGauge(w, "tobj_count", "Number of transactional objects in the registry", float64(pe.runtime.Size())); err != nil {
			return err
		}
		if err := pe.writeGauge(w, "versions_live", "Live versions across all tobjs", float64(snap.TotalVersions)); err != nil {
			return err
		}
		if err := pe.writeGauge(w, "reader_list_nodes_live", "Live reader-list nodes across all versions", float64(snap.TotalReadListNodes)); err != nil {
			return err
		}
		if err := pe.writeCounter(w, "transactions_committed_total", "Total number of transactions that reached COMMIT", snap.Commits); err != nil {
			return err
		}
		if err := pe.writeCounter(w, "transactions_aborted_missing_predecessor_total", "Aborts: a needed version was evicted before it could be read", snap.AbortsMissingPredecessor); err != nil {
			return err
		}
		if err := pe.writeCounter(w, "transactions_aborted_invalidated_total", "Aborts: transaction observed itself doomed by another committer", snap.AbortsInvalidated); err != nil {
			return err
		}
		if err := pe.writeCounter(w, "transactions_aborted_priority_loss_total", "Aborts: committer yielded to a higher-priority reader", snap.AbortsPriorityLoss); err != nil {
			return err
		}
		if err := pe.writeCounter(w, "transactions_aborted_explicit_total", "Aborts: stmAbort called directly", snap.AbortsExplicit); err != nil {
			return err
		}
		if err := pe.writeCounter(w, "transactions_doomed_total", "Total number of transactions marked doomed by a committer", snap.VictimsMarked); err != nil {
			return err
		}
	}

	return nil
}

// writeCounter writes a counter metric.
func (pe *PrometheusExporter) writeCounter(w io.Writer, name, help string, value uint64) error {
	metricName := pe.namespace + "_" + name
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n",
		metricName, help, metricName, metricName, value)
	return err
}

// writeGauge writes a gauge metric.
func (pe *PrometheusExporter) writeGauge(w io.Writer, name, help string, value float64) error {
	metricName := pe.namespace + "_" + name
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n",
		metricName, help, metricName, metricName, value)
	return err
}

// writeHistogram writes histogram metrics from timing data.
func (pe *PrometheusExporter) writeHistogram(w io.Writer, name, help string, th *TimingHistogram) error {
	metricName := pe.namespace + "_" + name

	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", metricName, help, metricName); err != nil {
		return err
	}

	buckets := th.GetBuckets()
	var cumulative uint64

	cumulative += buckets["0-1ms"]
	if _, err := fmt.Fprintf(w, "%s_bucket{le=\"0.001\"} %d\n", metricName, cumulative); err != nil {
		return err
	}
	cumulative += buckets["1-10ms"]
	if _, err := fmt.Fprintf(w, "%s_bucket{le=\"0.01\"} %d\n", metricName, cumulative); err != nil {
		return err
	}
	cumulative += buckets["10-100ms"]
	if _, err := fmt.Fprintf(w, "%s_bucket{le=\"0.1\"} %d\n", metricName, cumulative); err != nil {
		return err
	}
	cumulative += buckets["100-1000ms"]
	if _, err := fmt.Fprintf(w, "%s_bucket{le=\"1.0\"} %d\n", metricName, cumulative); err != nil {
		return err
	}
	cumulative += buckets[">1000ms"]
	if _, err := fmt.Fprintf(w, "%s_bucket{le=\"+Inf\"} %d\n", metricName, cumulative); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "%s_count %d\n", metricName, cumulative); err != nil {
		return err
	}

	return nil
}

// writePercentiles writes percentile metrics as gauges.
func (pe *PrometheusExporter) writePercentiles(w io.Writer, baseName string, th *TimingHistogram) error {
	percentiles := th.GetPercentiles()

	if err := pe.writeGauge(w, baseName+"_p50", fmt.Sprintf("50th percentile of %s", baseName), percentiles["p50"].Seconds()); err != nil {
		return err
	}
	if err := pe.writeGauge(w, baseName+"_p95", fmt.Sprintf("95th percentile of %s", baseName), percentiles["p95"].Seconds()); err != nil {
		return err
	}
	if err := pe.writeGauge(w, baseName+"_p99", fmt.Sprintf("99th percentile of %s", baseName), percentiles["p99"].Seconds()); err != nil {
		return err
	}

	return nil
}
