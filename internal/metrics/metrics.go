// Package metrics exposes the hub's process-wide Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relayhub_live_connections",
		Help: "Accepted transport connections currently open.",
	})

	RoomsAll = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relayhub_rooms_all",
		Help: "Relay rooms currently registered.",
	})

	RoomsPublic = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relayhub_rooms_public",
		Help: "Relay rooms joinable without a custom room id.",
	})

	RoomsWaiting = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relayhub_rooms_waiting",
		Help: "Relay rooms that have not started their game yet.",
	})

	HandshakeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayhub_handshake_failures_total",
		Help: "Connections dropped during the relay handshake.",
	})

	ForcedDisconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayhub_forced_disconnects_total",
		Help: "Connections closed by the hub for protocol violations, idle timeouts, or kicks.",
	})
)
