package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetrics_IsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.OutboxEventsProcessed.Inc()
	m.TransfersExecuted.WithLabelValues("completed").Inc()
	m.TransfersExecuted.WithLabelValues("completed").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxEventsProcessed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransfersExecuted.WithLabelValues("completed")))

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRecordOutboxEvent(t *testing.T) {
	processed := testutil.ToFloat64(DefaultMetrics.OutboxEventsProcessed)
	settled := testutil.ToFloat64(DefaultMetrics.OutboxEventsSettled)
	skipped := testutil.ToFloat64(DefaultMetrics.OutboxEventsSkipped.WithLabelValues("not_completed"))

	RecordOutboxEvent("settled")
	RecordOutboxEvent("not_completed")

	assert.Equal(t, processed+2, testutil.ToFloat64(DefaultMetrics.OutboxEventsProcessed))
	assert.Equal(t, settled+1, testutil.ToFloat64(DefaultMetrics.OutboxEventsSettled))
	assert.Equal(t, skipped+1, testutil.ToFloat64(DefaultMetrics.OutboxEventsSkipped.WithLabelValues("not_completed")))
}

func TestRecordPayoutScheduled(t *testing.T) {
	created := testutil.ToFloat64(DefaultMetrics.PayoutJobsScheduled.WithLabelValues("created"))
	existing := testutil.ToFloat64(DefaultMetrics.PayoutJobsScheduled.WithLabelValues("existing"))

	RecordPayoutScheduled(true)
	RecordPayoutScheduled(false)
	RecordPayoutScheduled(false)

	assert.Equal(t, created+1, testutil.ToFloat64(DefaultMetrics.PayoutJobsScheduled.WithLabelValues("created")))
	assert.Equal(t, existing+2, testutil.ToFloat64(DefaultMetrics.PayoutJobsScheduled.WithLabelValues("existing")))
}
