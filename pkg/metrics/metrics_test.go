package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New("consult", prometheus.NewRegistry())

	m.Booking("booked")
	m.Booking("booked")
	m.Booking("all_busy")
	m.Transition("cancel", "ok")
	m.ScanItem("reminders", "duplicate")
	m.OutboxProcessed(time.Millisecond)
	m.OutboxRetry("consultation.booked")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Bookings.WithLabelValues("booked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Bookings.WithLabelValues("all_busy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("cancel", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScanItems.WithLabelValues("reminders", "duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxEventsProcessed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxRetries.WithLabelValues("consultation.booked")))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Booking("booked")
		m.Transition("book", "ok")
		m.Since("book", time.Now())
		m.LockWait(time.Millisecond)
		m.DirectoryLookup("hit")
		m.EventEmitted("consultation.booked")
		m.ScanItem("licenses", "emitted")
		m.Notification("sent")
		m.OutboxProcessed(time.Millisecond)
		m.OutboxFailed()
		m.OutboxRetry("x")
		m.OutboxBatch(3)
	})
}
