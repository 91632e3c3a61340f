package kubernetes

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	fluxmetrics "github.com/fluxcd/circles/pkg/metrics"
)

var (
	applyDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "circles",
		Subsystem: "cluster",
		Name:      "apply_duration_seconds",
		Help:      "Duration of applying or deleting a single object, in seconds.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{fluxmetrics.LabelKind, fluxmetrics.LabelAction, fluxmetrics.LabelSuccess})

	garbageCollected = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "circles",
		Subsystem: "cluster",
		Name:      "garbage_collected_total",
		Help:      "Count of objects deleted because they were no longer in their sync set.",
	}, []string{fluxmetrics.LabelKind})
)
