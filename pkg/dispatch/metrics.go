package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/mailqueue/pkg/queue"
)

// Metrics holds the dispatcher's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	sent          prometheus.Counter
	failed        prometheus.Counter
	duplicates    prometheus.Counter
	persistErrors prometheus.Counter
	batchDuration prometheus.Histogram
	jobs          *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailqueue_emails_sent_total",
			Help: "Emails accepted by the transport.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailqueue_emails_failed_total",
			Help: "Jobs that failed to render or send.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailqueue_duplicate_sends_suppressed_total",
			Help: "Sends skipped because the guard had already seen the job attempt.",
		}),
		persistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailqueue_status_write_errors_total",
			Help: "Status writes that failed after retries; the job stays processing.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailqueue_batch_duration_seconds",
			Help:    "Duration of ProcessBatch runs.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		jobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mailqueue_jobs",
			Help: "Jobs by status as of the last stats refresh.",
		}, []string{"status"}),
	}
	if reg != nil {
		reg.MustRegister(m.sent, m.failed, m.duplicates, m.persistErrors, m.batchDuration, m.jobs)
	}
	return m
}

func (m *Metrics) observeBatch(r *Result) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(r.Duration.Seconds())
}

func (m *Metrics) sentJob() {
	if m == nil {
		return
	}
	m.sent.Inc()
}

func (m *Metrics) failedJob() {
	if m == nil {
		return
	}
	m.failed.Inc()
}

func (m *Metrics) duplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

func (m *Metrics) persistError() {
	if m == nil {
		return
	}
	m.persistErrors.Inc()
}

func (m *Metrics) observeStats(s *queue.Stats) {
	if m == nil {
		return
	}
	for _, st := range queue.Statuses {
		m.jobs.WithLabelValues(string(st)).Set(float64(s.Get(st)))
	}
	m.jobs.WithLabelValues("retryable").Set(float64(s.Retryable))
}
