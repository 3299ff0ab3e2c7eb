package relay

import "github.com/prometheus/client_golang/prometheus"

// Metrics instruments the relay. A nil *Metrics is valid and records nothing.
type Metrics struct {
	activeConns    prometheus.Gauge
	connsTotal     prometheus.Counter
	replaced       prometheus.Counter
	authRejected   *prometheus.CounterVec
	frames         *prometheus.CounterVec
	direct         prometheus.Counter
	enqueued       prometheus.Counter
	enqueueFailed  prometheus.Counter
	persistDropped prometheus.Counter
	drains         prometheus.Counter
	drained        prometheus.Counter
	drainFailed    prometheus.Counter
	undelivered    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		activeConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "keyrelay_connections_active",
			Help: "Open relay connections.",
		}),
		connsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyrelay_connections_total",
			Help: "Relay connections accepted since start.",
		}),
		replaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyrelay_connections_replaced_total",
			Help: "Connections whose routing entry was taken over by a newer connection of the same user.",
		}),
		authRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyrelay_auth_rejections_total",
			Help: "Upgrade requests rejected before the handshake, by reason.",
		}, []string{"reason"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyrelay_frames_total",
			Help: "Inbound frames by type and result.",
		}, []string{"type", "result"}),
		direct: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyrelay_messages_direct_total",
			Help: "Messages handed to an online recipient.",
		}),
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyrelay_offline_enqueued_total",
			Help: "Messages written to an offline queue.",
		}),
		enqueueFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyrelay_offline_enqueue_failures_total",
			Help: "Offline queue writes that failed.",
		}),
		persistDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyrelay_offline_persist_dropped_total",
			Help: "Offline queue writes dropped because the persist buffer was full.",
		}),
		drains: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyrelay_offline_drains_total",
			Help: "Offline queue drains performed on connect.",
		}),
		drained: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyrelay_offline_drained_total",
			Help: "Messages read from offline queues on connect.",
		}),
		drainFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyrelay_offline_drain_failures_total",
			Help: "Offline queue drains that failed.",
		}),
		undelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyrelay_offline_undelivered_total",
			Help: "Drained messages lost because the connection closed before they were written.",
		}),
	}

	reg.MustRegister(
		m.activeConns, m.connsTotal, m.replaced, m.authRejected, m.frames, m.direct,
		m.enqueued, m.enqueueFailed, m.persistDropped, m.drains, m.drained, m.drainFailed, m.undelivered,
	)
	return m
}

func (m *Metrics) connOpened() {
	if m == nil {
		return
	}
	m.activeConns.Inc()
	m.connsTotal.Inc()
}

func (m *Metrics) connClosed() {
	if m == nil {
		return
	}
	m.activeConns.Dec()
}

func (m *Metrics) connReplaced() {
	if m == nil {
		return
	}
	m.replaced.Inc()
}

func (m *Metrics) recordAuthRejected(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.authRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) recordFrame(frameType, result string) {
	if m == nil {
		return
	}
	if frameType == "" {
		frameType = "unknown"
	}
	m.frames.WithLabelValues(frameType, result).Inc()
}

func (m *Metrics) recordDirect() {
	if m == nil {
		return
	}
	m.direct.Inc()
}

func (m *Metrics) recordEnqueue(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.enqueueFailed.Inc()
		return
	}
	m.enqueued.Inc()
}

func (m *Metrics) recordPersistDropped() {
	if m == nil {
		return
	}
	m.persistDropped.Inc()
}

func (m *Metrics) recordDrain(n int, err error) {
	if m == nil {
		return
	}
	m.drains.Inc()
	if err != nil {
		m.drainFailed.Inc()
		return
	}
	m.drained.Add(float64(n))
}

func (m *Metrics) recordUndelivered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.undelivered.Add(float64(n))
}
