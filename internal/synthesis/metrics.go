package synthesis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SectionsTotal counts section writes.
	// Labels: section, outcome (complete, insufficient, failed, skipped, edited, store_error)
	SectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brdforge",
			Subsystem: "synthesis",
			Name:      "sections_total",
			Help:      "Total number of section generations by outcome",
		},
		[]string{"section", "outcome"},
	)

	// AgentDuration tracks how long each section agent takes.
	AgentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "brdforge",
			Subsystem: "synthesis",
			Name:      "agent_duration_seconds",
			Help:      "Section agent generation duration in seconds",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"section"},
	)
)
