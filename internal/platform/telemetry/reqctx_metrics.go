package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const reqctxNamespace = "reqctx"

// ReqctxMetrics exports request-context lifecycle events to Prometheus.
// It implements reqctx.Observer.
type ReqctxMetrics struct {
	hooksRun          *prometheus.CounterVec
	hookFailures      *prometheus.CounterVec
	subContexts       prometheus.Counter
	activeSubContexts prometheus.Gauge
}

// NewReqctxMetrics creates the collectors and registers them with reg.
func NewReqctxMetrics(reg prometheus.Registerer) (*ReqctxMetrics, error) {
	m := &ReqctxMetrics{
		hooksRun: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: reqctxNamespace,
			Name:      "end_hooks_total",
			Help:      "Context end hooks invoked, by transaction routine.",
		}, []string{"routine"}),
		hookFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: reqctxNamespace,
			Name:      "end_hook_failures_total",
			Help:      "Context end hooks that returned an error or panicked, by transaction routine.",
		}, []string{"routine"}),
		subContexts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: reqctxNamespace,
			Name:      "sub_contexts_total",
			Help:      "Sub-contexts entered.",
		}),
		activeSubContexts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: reqctxNamespace,
			Name:      "active_sub_contexts",
			Help:      "Sub-contexts currently running work.",
		}),
	}

	for _, c := range []prometheus.Collector{m.hooksRun, m.hookFailures, m.subContexts, m.activeSubContexts} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering reqctx metrics: %w", err)
		}
	}

	return m, nil
}

// HooksFlushed counts n hooks run for routine.
func (m *ReqctxMetrics) HooksFlushed(routine string, n int) {
	m.hooksRun.WithLabelValues(routine).Add(float64(n))
}

// HookFailed counts one failed hook for routine.
func (m *ReqctxMetrics) HookFailed(routine string) {
	m.hookFailures.WithLabelValues(routine).Inc()
}

// SubContextEntered counts a sub-context and marks it active.
func (m *ReqctxMetrics) SubContextEntered() {
	m.subContexts.Inc()
	m.activeSubContexts.Inc()
}

// SubContextExited marks a sub-context inactive.
func (m *ReqctxMetrics) SubContextExited() {
	m.activeSubContexts.Dec()
}
