package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	recomputeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nextslot",
			Name:      "recompute_total",
			Help:      "Count of next-available recomputations by trigger path.",
		},
		[]string{"path"},
	)

	recomputeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nextslot",
			Name:      "recompute_errors_total",
			Help:      "Count of failed recomputations by trigger path.",
		},
		[]string{"path"},
	)

	sweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nextslot",
			Name:      "sweep_runs_total",
			Help:      "Count of scheduled sweep runs by job.",
		},
		[]string{"job"},
	)

	sweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nextslot",
			Name:      "sweep_duration_seconds",
			Help:      "Wall-clock duration of a sweep run.",
			Buckets:   []float64{.1, .5, 1, 5, 15, 60, 300},
		},
		[]string{"job"},
	)

	notificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nextslot",
			Name:      "notifications_sent_total",
			Help:      "Count of delivered notifications by channel and event.",
		},
		[]string{"channel", "event"},
	)

	notificationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nextslot",
			Name:      "notification_errors_total",
			Help:      "Count of failed deliveries by channel.",
		},
		[]string{"channel"},
	)

	remindersSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nextslot",
			Name:      "reminders_sent_total",
			Help:      "Count of reminders sent by tier.",
		},
		[]string{"tier"},
	)

	tokensPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nextslot",
			Name:      "push_tokens_pruned_total",
			Help:      "Count of invalid push tokens removed from recipients.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			recomputeTotal, recomputeErrors,
			sweepRuns, sweepDuration,
			notificationsSent, notificationErrors,
			remindersSent, tokensPruned,
		)
	})
}

func IncRecompute(path string) {
	recomputeTotal.WithLabelValues(path).Inc()
}

func IncRecomputeError(path string) {
	recomputeErrors.WithLabelValues(path).Inc()
}

func IncSweepRun(job string) {
	sweepRuns.WithLabelValues(job).Inc()
}

func ObserveSweepDuration(job string, seconds float64) {
	sweepDuration.WithLabelValues(job).Observe(seconds)
}

func IncNotificationSent(channel, event string) {
	notificationsSent.WithLabelValues(channel, event).Inc()
}

func IncNotificationError(channel string) {
	notificationErrors.WithLabelValues(channel).Inc()
}

func IncReminderSent(tier string) {
	remindersSent.WithLabelValues(tier).Inc()
}

func IncTokensPruned(n int) {
	tokensPruned.Add(float64(n))
}
