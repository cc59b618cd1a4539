// Package metrics exposes the prometheus collectors of the job updater.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

const MetricsNamespace = "contaminer"

var Module = fx.Module("metrics",
	fx.Provide(func() *Metrics { return NewMetrics(prometheus.DefaultRegisterer) }),
)

// Metrics is safe to use through a nil pointer, every call is then a no-op.
type Metrics struct {
	UpdatesTotal          *prometheus.CounterVec
	UpdateDurationSeconds prometheus.Histogram
	TasksReconciledTotal  *prometheus.CounterVec
	SubmissionsTotal      *prometheus.CounterVec
	NotificationsTotal    *prometheus.CounterVec
	JobsRemovedTotal      prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		UpdatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "job",
			Name:      "updates_total",
			Help:      "Job updates by result (updated, archived, skipped, noop, failed)",
		}, []string{"result"}),
		UpdateDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: "job",
			Name:      "update_duration_seconds",
			Help:      "Duration of one job update including remote round trips",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		TasksReconciledTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "task",
			Name:      "reconciled_total",
			Help:      "Result lines reconciled by outcome",
		}, []string{"outcome"}),
		SubmissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "job",
			Name:      "submissions_total",
			Help:      "Job submissions to the cluster by result",
		}, []string{"result"}),
		NotificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "mail",
			Name:      "notifications_total",
			Help:      "Notifications sent by kind and result",
		}, []string{"kind", "result"}),
		JobsRemovedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "job",
			Name:      "removed_total",
			Help:      "Jobs deleted by the retention cleanup",
		}),
	}
}

func (m *Metrics) ObserveUpdate(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.UpdatesTotal.WithLabelValues(result).Inc()
	m.UpdateDurationSeconds.Observe(d.Seconds())
}

func (m *Metrics) ObserveReconciled(outcome string) {
	if m == nil {
		return
	}
	m.TasksReconciledTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSubmission(result string) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveNotification(kind string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.NotificationsTotal.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveRemoved(n int) {
	if m == nil {
		return
	}
	m.JobsRemovedTotal.Add(float64(n))
}
