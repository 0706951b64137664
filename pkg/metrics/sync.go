package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "notifsync"

// SyncMetrics records feed admission, confirmation and connection health.
type SyncMetrics struct {
	admitted       *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	confirmations  *prometheus.CounterVec
	reconnects     prometheus.Counter
	state          *prometheus.GaugeVec
	fallbackActive prometheus.Gauge
	unread         prometheus.Gauge
}

// SupervisorStates lists the label values exported by the state gauge.
var SupervisorStates = []string{"disconnected", "connecting", "connected", "reconnecting", "failed"}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	admitted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_admitted_total",
		Help:      "Notifications admitted into the feed by source.",
	}, []string{"source"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Inbound notifications discarded before admission by reason.",
	}, []string{"reason"})
	confirmations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "confirmations_total",
		Help:      "Remote confirmation attempts for local mutations.",
	}, []string{"kind", "outcome"})
	reconnects := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconnects_total",
		Help:      "Push channel reconnect attempts.",
	})
	state := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "supervisor_state",
		Help:      "Current push channel supervisor state (1 for the active state).",
	}, []string{"state"})
	fallbackActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "fallback_active",
		Help:      "Whether the synthetic fallback feed is active.",
	})
	unread := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "unread",
		Help:      "Unread notifications in the working set.",
	})
	reg.MustRegister(admitted, dropped, confirmations, reconnects, state, fallbackActive, unread)
	return &SyncMetrics{
		admitted:       admitted,
		dropped:        dropped,
		confirmations:  confirmations,
		reconnects:     reconnects,
		state:          state,
		fallbackActive: fallbackActive,
		unread:         unread,
	}
}

// IncAdmitted counts a notification admitted from source.
func (m *SyncMetrics) IncAdmitted(source string) {
	if m == nil || m.admitted == nil {
		return
	}
	m.admitted.WithLabelValues(normalizeLabel(source)).Inc()
}

// IncDropped counts a discarded inbound notification.
func (m *SyncMetrics) IncDropped(reason string) {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncConfirmation counts a confirmation attempt outcome (confirmed, retry, abandoned).
func (m *SyncMetrics) IncConfirmation(kind, outcome string) {
	if m == nil || m.confirmations == nil {
		return
	}
	m.confirmations.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

func (m *SyncMetrics) IncReconnect() {
	if m == nil || m.reconnects == nil {
		return
	}
	m.reconnects.Inc()
}

// SetSupervisorState flips the state gauge so exactly one state reads 1.
func (m *SyncMetrics) SetSupervisorState(current string) {
	if m == nil || m.state == nil {
		return
	}
	for _, s := range SupervisorStates {
		value := 0.0
		if s == current {
			value = 1
		}
		m.state.WithLabelValues(s).Set(value)
	}
}

func (m *SyncMetrics) SetFallbackActive(active bool) {
	if m == nil || m.fallbackActive == nil {
		return
	}
	if active {
		m.fallbackActive.Set(1)
		return
	}
	m.fallbackActive.Set(0)
}

func (m *SyncMetrics) SetUnread(count int) {
	if m == nil || m.unread == nil {
		return
	}
	m.unread.Set(float64(count))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
