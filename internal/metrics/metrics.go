package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pulsechat_ws_connections",
		Help: "Open websocket connections.",
	})

	RelayEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsechat_relay_events_total",
		Help: "Events handed to connections, by event type.",
	}, []string{"type"})

	RelayDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulsechat_relay_dropped_total",
		Help: "Connections dropped because their send buffer was full.",
	})

	MessagesCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsechat_messages_created_total",
		Help: "Persisted messages, by message type.",
	}, []string{"type"})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsechat_http_requests_total",
		Help: "HTTP requests, by method and status code.",
	}, []string{"method", "code"})

	MutesExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulsechat_mutes_expired_total",
		Help: "Participant mutes cleared by the sweeper.",
	})
)

func init() {
	prometheus.MustRegister(WSConnections)
	prometheus.MustRegister(RelayEvents)
	prometheus.MustRegister(RelayDropped)
	prometheus.MustRegister(MessagesCreated)
	prometheus.MustRegister(HTTPRequests)
	prometheus.MustRegister(MutesExpired)
}
