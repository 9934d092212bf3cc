package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Connections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "starparty_connections",
			Help: "Open websocket connections per room",
		},
		[]string{"room"},
	)

	ActiveParticipants = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "starparty_active_participants",
			Help: "Participants with a known position per room",
		},
		[]string{"room"},
	)

	MessagesRelayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starparty_messages_relayed_total",
			Help: "Frames queued for delivery by type",
		},
		[]string{"room", "type"},
	)

	MalformedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starparty_malformed_messages_total",
			Help: "Inbound frames dropped because they failed to parse",
		},
		[]string{"room"},
	)

	DeliveryFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starparty_delivery_failures_total",
			Help: "Sends that failed and closed the receiving connection",
		},
		[]string{"room"},
	)

	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starparty_rate_limited_total",
			Help: "Inbound frames dropped by the per-connection rate limit",
		},
		[]string{"room"},
	)
)

func init() {
	prometheus.MustRegister(
		Connections,
		ActiveParticipants,
		MessagesRelayed,
		MalformedMessages,
		DeliveryFailures,
		RateLimited,
	)
}
