package validate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FlagsTotal counts raised flags by type and severity.
	FlagsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brdforge",
			Subsystem: "validate",
			Name:      "flags_total",
			Help:      "Total number of validation flags raised",
		},
		[]string{"type", "severity"},
	)

	// GateErrorsTotal counts gates that returned an error.
	GateErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brdforge",
			Subsystem: "validate",
			Name:      "gate_errors_total",
			Help:      "Total number of validation gate failures",
		},
		[]string{"gate"},
	)
)
