package telemetry

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted by value hosts, the merge
// services and the processor.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. They should be inexpensive to call because hooks are
// executed inline with SetValue and Validate.
type Collector interface {
	IncStateChanged(valueHost string)
	IncValueChanged(valueHost string)
	ObserveValidation(valueHost, status string, duration time.Duration)
	IncMergeDecision(property, decision string)
	IncReload(file string)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncStateChanged(string)                           {}
func (noopCollector) IncValueChanged(string)                           {}
func (noopCollector) ObserveValidation(string, string, time.Duration) {}
func (noopCollector) IncMergeDecision(string, string)                  {}
func (noopCollector) IncReload(string)                                 {}

// PrometheusCollector exposes telemetry counters via Prometheus.
type PrometheusCollector struct {
	stateChanges     *prometheus.CounterVec
	valueChanges     *prometheus.CounterVec
	validations      *prometheus.CounterVec
	validationTiming *prometheus.HistogramVec
	mergeDecisions   *prometheus.CounterVec
	reloads          *prometheus.CounterVec
}

// NewPrometheusCollector registers the required metrics with the provided
// registerer. Metrics already registered with reg are reused.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var (
		p   PrometheusCollector
		err error
	)
	if p.stateChanges, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "valuehosts_instance_state_changed_total",
		Help: "Number of instance state changes reported per value host.",
	}, []string{"value_host"})); err != nil {
		return nil, err
	}
	if p.valueChanges, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "valuehosts_value_changed_total",
		Help: "Number of value changes reported per value host.",
	}, []string{"value_host"})); err != nil {
		return nil, err
	}
	if p.validations, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "valuehosts_validation_total",
		Help: "Number of validation runs per value host and resulting status.",
	}, []string{"value_host", "status"})); err != nil {
		return nil, err
	}
	if p.validationTiming, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "valuehosts_validation_duration_seconds",
		Help:    "Duration of validation runs per value host.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
	}, []string{"value_host"})); err != nil {
		return nil, err
	}
	if p.mergeDecisions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "valuehosts_config_merge_decisions_total",
		Help: "Number of configuration merge decisions per property and action.",
	}, []string{"property", "decision"})); err != nil {
		return nil, err
	}
	if p.reloads, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "valuehosts_config_reload_total",
		Help: "Number of configuration reloads triggered per source file.",
	}, []string{"file"})); err != nil {
		return nil, err
	}
	return &p, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return collector, nil
}

// IncStateChanged counts an instance state change of valueHost.
func (p *PrometheusCollector) IncStateChanged(valueHost string) {
	if p == nil || p.stateChanges == nil {
		return
	}
	p.stateChanges.WithLabelValues(valueHost).Inc()
}

// IncValueChanged counts a value change of valueHost.
func (p *PrometheusCollector) IncValueChanged(valueHost string) {
	if p == nil || p.valueChanges == nil {
		return
	}
	p.valueChanges.WithLabelValues(valueHost).Inc()
}

// ObserveValidation records the outcome and duration of a validation run.
func (p *PrometheusCollector) ObserveValidation(valueHost, status string, duration time.Duration) {
	if p == nil || p.validations == nil {
		return
	}
	p.validations.WithLabelValues(valueHost, status).Inc()
	if p.validationTiming != nil {
		p.validationTiming.WithLabelValues(valueHost).Observe(duration.Seconds())
	}
}

// IncMergeDecision counts a merge decision for a configuration property.
func (p *PrometheusCollector) IncMergeDecision(property, decision string) {
	if p == nil || p.mergeDecisions == nil {
		return
	}
	p.mergeDecisions.WithLabelValues(property, decision).Inc()
}

// IncReload increments the reload counter for the provided file path.
func (p *PrometheusCollector) IncReload(file string) {
	if p == nil || p.reloads == nil {
		return
	}
	p.reloads.WithLabelValues(file).Inc()
}
