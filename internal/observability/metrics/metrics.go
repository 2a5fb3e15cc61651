package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	metricPrefix = "plantfleet_"

	resultSuccess = "success"
	resultError   = "error"

	directionUp   = "worse"
	directionDown = "better"
)

var (
	registerOnce sync.Once

	siteUpdateTotal   *prometheus.CounterVec
	siteUpdateLatency *prometheus.HistogramVec

	conditionEvaluations *prometheus.CounterVec
	conditionTransitions *prometheus.CounterVec
	conditionLevel       *prometheus.HistogramVec

	auditItemsTotal *prometheus.CounterVec

	notificationsTotal *prometheus.CounterVec
)

// Init registers observability metrics and store-backed gauges.
func Init(counter DocumentCounter, logger zerolog.Logger) {
	registerOnce.Do(func() {
		siteUpdateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "site_update_total",
				Help: "Total update site transactions by result",
			},
			[]string{"result"},
		)
		siteUpdateLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "site_update_latency_seconds",
				Help:    "Update site transaction latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		conditionEvaluations = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "condition_evaluations_total",
				Help: "Total condition evaluations by result",
			},
			[]string{"result"},
		)
		conditionTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "condition_transitions_total",
				Help: "Total condition changes by direction",
			},
			[]string{"direction"},
		)
		conditionLevel = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "condition_level",
				Help:    "Condition severity after update",
				Buckets: []float64{0, 1, 2, 3},
			},
			[]string{"phase"},
		)

		auditItemsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "audit_log_items_total",
				Help: "Total audit log items written by kind",
			},
			[]string{"kind"},
		)

		notificationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Total condition notifications by channel and result",
			},
			[]string{"channel", "result"},
		)

		prometheus.MustRegister(
			siteUpdateTotal,
			siteUpdateLatency,
			conditionEvaluations,
			conditionTransitions,
			conditionLevel,
			auditItemsTotal,
			notificationsTotal,
		)

		if counter != nil {
			registerStoreMetrics(counter, logger)
		}
	})
}

// ObserveSiteUpdate records update site duration and result.
func ObserveSiteUpdate(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if siteUpdateTotal != nil {
		siteUpdateTotal.WithLabelValues(result).Inc()
	}
	if siteUpdateLatency != nil {
		siteUpdateLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncConditionEvaluation counts a condition evaluation.
func IncConditionEvaluation(result string) {
	if result == "" {
		result = resultSuccess
	}
	if conditionEvaluations != nil {
		conditionEvaluations.WithLabelValues(result).Inc()
	}
}

// ObserveConditionTransition records the post-update condition and, when it
// moved, the direction of the change.
func ObserveConditionTransition(prev, next int) {
	if conditionLevel != nil {
		conditionLevel.WithLabelValues("after").Observe(float64(next))
	}
	if prev == next || conditionTransitions == nil {
		return
	}
	direction := directionDown
	if next > prev {
		direction = directionUp
	}
	conditionTransitions.WithLabelValues(direction).Inc()
}

// IncAuditItem counts a written audit log item.
func IncAuditItem(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if auditItemsTotal != nil {
		auditItemsTotal.WithLabelValues(kind).Inc()
	}
}

// IncNotification counts a notification attempt.
func IncNotification(channel string, ok bool) {
	if channel == "" {
		channel = "unknown"
	}
	if notificationsTotal != nil {
		notificationsTotal.WithLabelValues(channel, strconv.FormatBool(ok)).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
