// internal/metrics/metrics.go
// Prometheus metrics for shared memory objects and cross-process semaphores
//
// LEARN: Metrics are registered on an injected Registerer instead of the
// global default registry. Tests build a fresh prometheus.NewRegistry() per
// case and never collide on duplicate registration. Every method is safe on
// a nil *Metrics so library code can record unconditionally.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "xproc"

// Metrics holds all Prometheus collectors for this module.
type Metrics struct {
	// Shared memory
	RegionsCreated  prometheus.Counter
	CreateFailures  *prometheus.CounterVec
	HandlesCloned   prometheus.Counter
	HandlesOpen     prometheus.Gauge
	MappingsActive  prometheus.Gauge
	HandlesReceived prometheus.Counter

	// Semaphores
	SemaphoreEvents *prometheus.CounterVec
	Signals         prometheus.Counter
	WaitTimeouts    prometheus.Counter
	WaitDuration    prometheus.Histogram
}

// Semaphore lifecycle event labels.
const (
	EventCreated     = "created"
	EventAttached    = "attached"
	EventResurrected = "resurrected"
	EventDetached    = "detached"
	EventDestroyed   = "destroyed"
	EventRolledBack  = "rolled_back"
)

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RegionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shm_regions_created_total",
			Help:      "Shared memory objects created by this process",
		}),
		CreateFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shm_failures_total",
			Help:      "Shared memory failures by kind",
		}, []string{"kind"}),
		HandlesCloned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shm_handles_cloned_total",
			Help:      "Handle duplications",
		}),
		HandlesOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "shm_handles_open",
			Help:      "Shared memory handles currently owned by this process",
		}),
		MappingsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "shm_mappings_active",
			Help:      "Live shared memory mappings in this process",
		}),
		HandlesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shm_handles_received_total",
			Help:      "Handles received from another process",
		}),
		SemaphoreEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "semaphore_events_total",
			Help:      "Cross-process semaphore lifecycle events",
		}, []string{"event"}),
		Signals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "semaphore_signals_total",
			Help:      "Signal calls",
		}),
		WaitTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "semaphore_wait_timeouts_total",
			Help:      "Waits that returned without being signaled",
		}),
		WaitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "semaphore_wait_duration_seconds",
			Help:      "Time spent blocked in Wait",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.RegionsCreated,
			m.CreateFailures,
			m.HandlesCloned,
			m.HandlesOpen,
			m.MappingsActive,
			m.HandlesReceived,
			m.SemaphoreEvents,
			m.Signals,
			m.WaitTimeouts,
			m.WaitDuration,
		)
	}
	return m
}

// Failure records a shared memory failure of the given kind.
func (m *Metrics) Failure(kind string) {
	if m == nil {
		return
	}
	m.CreateFailures.WithLabelValues(kind).Inc()
}

// RegionCreated records a new shared memory object.
func (m *Metrics) RegionCreated() {
	if m == nil {
		return
	}
	m.RegionsCreated.Inc()
}

// HandleCloned records a handle duplication.
func (m *Metrics) HandleCloned() {
	if m == nil {
		return
	}
	m.HandlesCloned.Inc()
}

// HandleReceived records a handle adopted from another process.
func (m *Metrics) HandleReceived() {
	if m == nil {
		return
	}
	m.HandlesReceived.Inc()
}

// SetResources publishes the current handle and mapping counts.
func (m *Metrics) SetResources(handles, mappings int64) {
	if m == nil {
		return
	}
	m.HandlesOpen.Set(float64(handles))
	m.MappingsActive.Set(float64(mappings))
}

// Semaphore records a semaphore lifecycle event.
func (m *Metrics) Semaphore(event string) {
	if m == nil {
		return
	}
	m.SemaphoreEvents.WithLabelValues(event).Inc()
}

// Signal records a Signal call.
func (m *Metrics) Signal() {
	if m == nil {
		return
	}
	m.Signals.Inc()
}

// Wait records the outcome of a Wait call.
func (m *Metrics) Wait(elapsed time.Duration, signaled bool) {
	if m == nil {
		return
	}
	m.WaitDuration.Observe(elapsed.Seconds())
	if !signaled {
		m.WaitTimeouts.Inc()
	}
}
