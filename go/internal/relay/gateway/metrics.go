package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mcdev12/facescan/go/internal/relay/protocol"
)

// relayMetrics is nil when no registry was supplied; every method is a no-op then.
type relayMetrics struct {
	connections *prometheus.GaugeVec
	received    *prometheus.CounterVec
	forwarded   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
}

func newRelayMetrics(registry prometheus.Registerer) *relayMetrics {
	if registry == nil {
		return nil
	}
	factory := promauto.With(registry)
	return &relayMetrics{
		connections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "facescan_relay_connections",
			Help: "Open relay connections by announced role",
		}, []string{"role"}),
		received: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "facescan_relay_messages_received_total",
			Help: "Frames accepted by the relay dispatcher",
		}, []string{"kind"}),
		forwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "facescan_relay_messages_forwarded_total",
			Help: "Frames queued for delivery to other connections",
		}, []string{"kind"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "facescan_relay_messages_dropped_total",
			Help: "Frames the relay could not route or deliver",
		}, []string{"reason"}),
	}
}

func (m *relayMetrics) connectionOpened(role protocol.Role) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(roleLabel(role)).Inc()
}

func (m *relayMetrics) connectionClosed(role protocol.Role) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(roleLabel(role)).Dec()
}

func (m *relayMetrics) roleAnnounced(from, to protocol.Role) {
	if m == nil || from == to {
		return
	}
	m.connections.WithLabelValues(roleLabel(from)).Dec()
	m.connections.WithLabelValues(roleLabel(to)).Inc()
}

func (m *relayMetrics) messageReceived(kind protocol.MessageKind) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(string(kind)).Inc()
}

func (m *relayMetrics) messageForwarded(kind protocol.MessageKind, n int) {
	if m == nil {
		return
	}
	m.forwarded.WithLabelValues(string(kind)).Add(float64(n))
}

func (m *relayMetrics) messageDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func roleLabel(role protocol.Role) string {
	if role == "" {
		return "unannounced"
	}
	return string(role)
}
