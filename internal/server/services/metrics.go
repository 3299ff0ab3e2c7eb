package services

import "github.com/prometheus/client_golang/prometheus"

// KeyMetrics instruments the key service. A nil *KeyMetrics is valid and
// records nothing.
type KeyMetrics struct {
	allocated      prometheus.Counter
	allocFailures  *prometheus.CounterVec
	uploaded       prometheus.Counter
	regenerated    prometheus.Counter
	cleanupRemoved prometheus.Counter
}

func NewKeyMetrics(reg prometheus.Registerer) *KeyMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &KeyMetrics{
		allocated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyrelay_prekeys_allocated_total",
			Help: "One-time pre-keys handed out in key bundles.",
		}),
		allocFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyrelay_prekey_allocation_failures_total",
			Help: "Key bundle requests that failed, by error kind.",
		}, []string{"reason"}),
		uploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyrelay_prekeys_uploaded_total",
			Help: "One-time pre-keys stored.",
		}),
		regenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyrelay_prekey_ids_regenerated_total",
			Help: "Uploaded pre-keys stored under a generated key id after a collision.",
		}),
		cleanupRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyrelay_prekeys_cleaned_total",
			Help: "Consumed pre-keys removed by maintenance.",
		}),
	}

	reg.MustRegister(m.allocated, m.allocFailures, m.uploaded, m.regenerated, m.cleanupRemoved)
	return m
}

func (m *KeyMetrics) recordAllocated() {
	if m == nil {
		return
	}
	m.allocated.Inc()
}

func (m *KeyMetrics) recordAllocFailure(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.allocFailures.WithLabelValues(reason).Inc()
}

func (m *KeyMetrics) recordUploaded(n int) {
	if m == nil {
		return
	}
	m.uploaded.Add(float64(n))
}

func (m *KeyMetrics) recordRegenerated() {
	if m == nil {
		return
	}
	m.regenerated.Inc()
}

func (m *KeyMetrics) recordCleanup(n int64) {
	if m == nil {
		return
	}
	m.cleanupRemoved.Add(float64(n))
}
