package classify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsTotal counts classified fragments.
	// Labels: path (a heuristic rule, domain_gate, model, fallback, panic), label
	ItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brdforge",
			Subsystem: "classify",
			Name:      "items_total",
			Help:      "Total number of classified fragments by resolution path and label",
		},
		[]string{"path", "label"},
	)

	// BatchesTotal counts model batches by outcome (success, fallback).
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brdforge",
			Subsystem: "classify",
			Name:      "batches_total",
			Help:      "Total number of classification batches by outcome",
		},
		[]string{"outcome"},
	)

	// BatchAttemptsTotal counts failed batch attempts by cause.
	// Labels: cause (malformed, rate_limit, transient, permanent)
	BatchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brdforge",
			Subsystem: "classify",
			Name:      "batch_attempts_total",
			Help:      "Total number of failed batch attempts by cause",
		},
		[]string{"cause"},
	)
)
