package ws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	activeClients   prometheus.Gauge
	totalMessages   prometheus.Counter
	droppedMessages prometheus.Counter
	rejectedClients prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		activeClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "websocket_service",
			Name:      "active_clients",
			Help:      "Number of connected websocket clients.",
		}),
		totalMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "websocket_service",
			Name:      "broadcast_messages_total",
			Help:      "Messages broadcast to clients.",
		}),
		droppedMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "websocket_service",
			Name:      "dropped_messages_total",
			Help:      "Per-client deliveries dropped because the client queue was full.",
		}),
		rejectedClients: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "websocket_service",
			Name:      "rejected_clients_total",
			Help:      "Connections refused because the hub was full or closed.",
		}),
	}
}
