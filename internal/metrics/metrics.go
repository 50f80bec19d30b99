// Package metrics holds Prometheus instruments that are used across the
// toolkit.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ActiveControllers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "formkit_active_controllers",
			Help: "Number of form controllers currently mounted.",
		})

	FormsLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "formkit_forms_loaded",
			Help: "Number of form definitions in the registry.",
		})

	AttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formkit_attempts_total",
			Help: "Resolved submission attempts by form and result.",
		}, []string{"form", "result"})

	SubmitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formkit_submit_seconds",
			Help:    "Time spent waiting for the submission endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"form"})

	FilesRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formkit_files_rejected_total",
			Help: "Files refused at selection time by form and reason.",
		}, []string{"form", "reason"})
)

func init() {
	prometheus.MustRegister(
		ActiveControllers,
		FormsLoaded,
		AttemptsTotal,
		SubmitSeconds,
		FilesRejectedTotal,
	)
}
