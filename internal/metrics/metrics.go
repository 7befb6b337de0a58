// Package metrics defines the Prometheus collectors the controller exposes
// over the local status API, namespaced "hagex". Shaped after
// automatedhome-solar's newMetrics(reg prometheus.Registerer): one counter
// or gauge per field, registered once at construction.
package metrics

import (
	"github.com/jluzny/hag-ex"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder implements fsm.Observer and hub.ReconnectObserver, translating
// controller events into Prometheus series.
type Recorder struct {
	transitionsTotal    *prometheus.CounterVec
	partialFailureTotal *prometheus.CounterVec
	defrostCyclesTotal  prometheus.Counter
	reconnectTotal      prometheus.Counter
	reconnectExhausted  prometheus.Counter
	fsmState            *prometheus.GaugeVec
	indoorTemperature   prometheus.Gauge
	outdoorTemperature  prometheus.Gauge
}

// New builds a Recorder and registers its collectors with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hagex",
			Name:      "fsm_transitions_total",
			Help:      "Count of committed FSM transitions by event.",
		}, []string{"event"}),
		partialFailureTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hagex",
			Name:      "fsm_partial_failures_total",
			Help:      "Count of side-effect calls that failed and left a transition uncommitted, by event.",
		}, []string{"event"}),
		defrostCyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hagex",
			Name:      "defrost_cycles_total",
			Help:      "Count of completed defrost cycles.",
		}),
		reconnectTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hagex",
			Name:      "hub_reconnect_attempts_total",
			Help:      "Count of hub reconnect attempts.",
		}),
		reconnectExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hagex",
			Name:      "hub_reconnect_exhausted_total",
			Help:      "Count of times the hub reconnect budget was exhausted.",
		}),
		fsmState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hagex",
			Name:      "fsm_state",
			Help:      "1 for the FSM's current state, 0 for all others.",
		}, []string{"state"}),
		indoorTemperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hagex",
			Name:      "indoor_temperature_celsius",
			Help:      "Last observed indoor temperature.",
		}),
		outdoorTemperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hagex",
			Name:      "outdoor_temperature_celsius",
			Help:      "Last observed outdoor temperature.",
		}),
	}

	reg.MustRegister(
		r.transitionsTotal,
		r.partialFailureTotal,
		r.defrostCyclesTotal,
		r.reconnectTotal,
		r.reconnectExhausted,
		r.fsmState,
		r.indoorTemperature,
		r.outdoorTemperature,
	)
	return r
}

// Transition implements fsm.Observer.
func (r *Recorder) Transition(from, to hagex.FsmState, event hagex.FsmEvent) {
	r.transitionsTotal.WithLabelValues(string(event)).Inc()
	for _, s := range []hagex.FsmState{hagex.StateInitial, hagex.StateIdle, hagex.StateHeating, hagex.StateCooling, hagex.StateDefrost, hagex.StateStopped} {
		v := 0.0
		if s == to {
			v = 1.0
		}
		r.fsmState.WithLabelValues(string(s)).Set(v)
	}
}

// PartialFailure implements fsm.Observer.
func (r *Recorder) PartialFailure(from hagex.FsmState, event hagex.FsmEvent) {
	r.partialFailureTotal.WithLabelValues(string(event)).Inc()
}

// DefrostStarted implements fsm.Observer.
func (r *Recorder) DefrostStarted() {}

// DefrostCompleted implements fsm.Observer.
func (r *Recorder) DefrostCompleted() {
	r.defrostCyclesTotal.Inc()
}

// ReconnectAttempt implements hub.ReconnectObserver.
func (r *Recorder) ReconnectAttempt() {
	r.reconnectTotal.Inc()
}

// ReconnectExhausted implements hub.ReconnectObserver.
func (r *Recorder) ReconnectExhausted() {
	r.reconnectExhausted.Inc()
}

// ObserveIndoor records the last indoor temperature reading.
func (r *Recorder) ObserveIndoor(c float64) {
	r.indoorTemperature.Set(c)
}

// ObserveOutdoor records the last outdoor temperature reading.
func (r *Recorder) ObserveOutdoor(c float64) {
	r.outdoorTemperature.Set(c)
}
