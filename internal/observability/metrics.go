// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Outbox metrics
	OutboxEventsProcessed prometheus.Counter
	OutboxEventsSettled   prometheus.Counter
	OutboxEventsSkipped   *prometheus.CounterVec
	OutboxEventErrors     prometheus.Counter

	// Settlement metrics
	SettlementsComputed *prometheus.CounterVec
	SettlementErrors    *prometheus.CounterVec

	// Payout metrics
	PayoutJobsScheduled  *prometheus.CounterVec
	TransfersExecuted    *prometheus.CounterVec
	TransferErrors       prometheus.Counter
	LedgerEntriesWritten *prometheus.CounterVec

	// Provider metrics
	ProviderCallLatency *prometheus.HistogramVec

	// Job metrics
	JobRunsTotal *prometheus.CounterVec
	JobDuration  *prometheus.HistogramVec

	// Ledger export metrics
	LedgerEntriesExported prometheus.Counter
	LedgerExportCursor    prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "contest_settlement"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		OutboxEventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_processed_total",
			Help:      "Total number of outbox events examined",
		}),
		OutboxEventsSettled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_settled_total",
			Help:      "Total number of outbox events that triggered settlement",
		}),
		OutboxEventsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_skipped_total",
			Help:      "Total number of outbox events skipped by reason",
		}, []string{"reason"}),
		OutboxEventErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "event_errors_total",
			Help:      "Total number of outbox events whose transaction was rolled back",
		}),

		SettlementsComputed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "computed_total",
			Help:      "Total number of settlement records written by strategy",
		}, []string{"strategy"}),
		SettlementErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "errors_total",
			Help:      "Total number of settlement failures by error code",
		}, []string{"code"}),

		PayoutJobsScheduled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payout",
			Name:      "jobs_scheduled_total",
			Help:      "Total number of payout scheduling calls by outcome",
		}, []string{"outcome"}), // created, existing
		TransfersExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payout",
			Name:      "transfers_executed_total",
			Help:      "Total number of transfer executions by resulting status",
		}, []string{"status"}),
		TransferErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payout",
			Name:      "transfer_errors_total",
			Help:      "Total number of transfer executions rolled back by an error",
		}),
		LedgerEntriesWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "entries_written_total",
			Help:      "Total number of ledger entries written by entry type",
		}, []string{"entry_type"}),

		ProviderCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Payment provider call latency by result",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"result"}), // success, retryable, permanent

		JobRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Total number of scheduled job runs by job and status",
		}, []string{"job", "status"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Scheduled job duration",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"job"}),

		LedgerEntriesExported: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger_export",
			Name:      "entries_exported_total",
			Help:      "Total number of ledger entries copied to ClickHouse",
		}),
		LedgerExportCursor: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger_export",
			Name:      "cursor_seq",
			Help:      "Highest ledger seq present in ClickHouse",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordOutboxEvent records one examined outbox event.
// outcome is "settled", "error", or a skip reason.
func RecordOutboxEvent(outcome string) {
	DefaultMetrics.OutboxEventsProcessed.Inc()
	switch outcome {
	case "settled":
		DefaultMetrics.OutboxEventsSettled.Inc()
	case "error":
		DefaultMetrics.OutboxEventErrors.Inc()
	default:
		DefaultMetrics.OutboxEventsSkipped.WithLabelValues(outcome).Inc()
	}
}

// RecordSettlement records a written settlement record.
func RecordSettlement(strategy string) {
	DefaultMetrics.SettlementsComputed.WithLabelValues(strategy).Inc()
}

// RecordSettlementError records a settlement failure.
func RecordSettlementError(code string) {
	DefaultMetrics.SettlementErrors.WithLabelValues(code).Inc()
}

// RecordPayoutScheduled records a schedule call.
func RecordPayoutScheduled(created bool) {
	outcome := "existing"
	if created {
		outcome = "created"
	}
	DefaultMetrics.PayoutJobsScheduled.WithLabelValues(outcome).Inc()
}

// RecordTransferExecuted records the status a transfer execution ended in.
func RecordTransferExecuted(status string) {
	DefaultMetrics.TransfersExecuted.WithLabelValues(status).Inc()
}

// RecordTransferError records a rolled back transfer execution.
func RecordTransferError() {
	DefaultMetrics.TransferErrors.Inc()
}

// RecordLedgerEntry records a ledger write.
func RecordLedgerEntry(entryType string) {
	DefaultMetrics.LedgerEntriesWritten.WithLabelValues(entryType).Inc()
}

// RecordProviderCall records provider call latency.
func RecordProviderCall(result string, seconds float64) {
	DefaultMetrics.ProviderCallLatency.WithLabelValues(result).Observe(seconds)
}

// RecordJobRun records a scheduled job run.
func RecordJobRun(job, status string, durationSeconds float64) {
	DefaultMetrics.JobRunsTotal.WithLabelValues(job, status).Inc()
	DefaultMetrics.JobDuration.WithLabelValues(job).Observe(durationSeconds)
}

// RecordLedgerExport records a ledger export batch.
func RecordLedgerExport(exported int, cursor int64) {
	DefaultMetrics.LedgerEntriesExported.Add(float64(exported))
	DefaultMetrics.LedgerExportCursor.Set(float64(cursor))
}
