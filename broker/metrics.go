package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Connections prometheus.Gauge
	OnlineUsers prometheus.Gauge
	Relayed     *prometheus.CounterVec
	Dropped     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chat_broker_connections",
			Help: "Live websocket connections.",
		}),
		OnlineUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chat_broker_online_users",
			Help: "Users in the last broadcast presence snapshot.",
		}),
		Relayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_broker_events_relayed_total",
			Help: "Events delivered to at least one peer, by event name.",
		}, []string{"event"}),
		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_broker_events_dropped_total",
			Help: "Inbound events discarded, by reason.",
		}, []string{"reason"}),
	}
}
