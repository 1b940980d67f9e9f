package network

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the link-health counters/gauges exposed per Network,
// following the connection-health instrumentation pattern of Prometheus-
// backed IRC bridges: a reconnect counter, a hook-dispatch counter, and
// live user/channel gauges. These are registered once per process and
// labeled by network name so one process linking several uplinks still
// exposes one series per Network.
type Metrics struct {
	reconnects    *prometheus.CounterVec
	hookDispatch  *prometheus.CounterVec
	users         *prometheus.GaugeVec
	channels      *prometheus.GaugeVec
}

var defaultMetrics = newMetrics()

func newMetrics() *Metrics {
	return &Metrics{
		reconnects: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "netlink_network_reconnects_total",
			Help: "Number of times a Network's Run loop has exited and needed relinking.",
		}, []string{"network"}),
		hookDispatch: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "netlink_hook_dispatch_total",
			Help: "Number of hook events dispatched to subscribers, by hook name.",
		}, []string{"network", "hook"}),
		users: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netlink_users",
			Help: "Current number of users known on a Network.",
		}, []string{"network"}),
		channels: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netlink_channels",
			Help: "Current number of channels known on a Network.",
		}, []string{"network"}),
	}
}

func (m *Metrics) noteReconnect(network string) {
	m.reconnects.WithLabelValues(network).Inc()
}

func (m *Metrics) noteHookDispatch(network, hookName string) {
	m.hookDispatch.WithLabelValues(network, hookName).Inc()
}

func (m *Metrics) setUsers(network string, n int) {
	m.users.WithLabelValues(network).Set(float64(n))
}

func (m *Metrics) setChannels(network string, n int) {
	m.channels.WithLabelValues(network).Set(float64(n))
}
