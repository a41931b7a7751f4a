package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
)

const defaultNamespace = "alumni"

// AuthMetricsOptions configures the auth outcome collectors.
type AuthMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
}

// AuthMetrics counts flow outcomes and lockouts.
type AuthMetrics struct {
	Outcomes *prometheus.CounterVec
	Lockouts prometheus.Counter
}

// NewAuthMetrics registers the collectors, reusing ones that already exist.
func NewAuthMetrics(opts AuthMetricsOptions) (*AuthMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "flow_outcomes_total",
		Help:      "Auth flow results partitioned by flow and outcome.",
	}, []string{"flow", "outcome"})
	outcomes, err := Register(reg, outcomes)
	if err != nil {
		return nil, fmt.Errorf("register outcomes collector: %w", err)
	}

	lockouts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "lockouts_total",
		Help:      "Number of identifiers locked after repeated failed logins.",
	})
	lockouts, err = Register(reg, lockouts)
	if err != nil {
		return nil, fmt.Errorf("register lockouts collector: %w", err)
	}

	return &AuthMetrics{Outcomes: outcomes, Lockouts: lockouts}, nil
}

func (m *AuthMetrics) ObserveOutcome(flow, outcome string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(flow, outcome).Inc()
}

func (m *AuthMetrics) ObserveLockout() {
	if m == nil {
		return
	}
	m.Lockouts.Inc()
}

// Register adds c to reg or returns the collector registered under the same
// descriptor.
func Register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return c, err
		}
		existing, ok := already.ExistingCollector.(C)
		if !ok {
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

var _ port.AuthMetrics = (*AuthMetrics)(nil)
