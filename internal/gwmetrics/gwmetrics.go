// Package gwmetrics exposes the Gateway Manager's operator-facing
// Prometheus metrics: how many channels are configured, how many are
// currently running, and how many plugin restarts have been refused
// (the manager never auto-restarts a plugin, per spec.md §4.9 "Failure
// semantics" — this counter makes that refusal visible to an operator
// instead of leaving it buried in the JSON log).
package gwmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the gauges and counters the diagnostics mux serves.
type Collector struct {
	ChannelsConfigured prometheus.Gauge
	ChannelsRunning    prometheus.Gauge
	ChannelsFailed     prometheus.Gauge
	RestartsRefused    prometheus.Counter
}

// New registers a fresh metric set against its own registry, so the
// diagnostics mux never collides with a host process's default registry.
func New() (*Collector, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	c := &Collector{
		ChannelsConfigured: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "atom_message_gateway_channels_configured",
			Help: "Number of channels present in the resolved gateway config.",
		}),
		ChannelsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "atom_message_gateway_channels_running",
			Help: "Number of channel plugin subprocesses currently healthy.",
		}),
		ChannelsFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "atom_message_gateway_channels_failed",
			Help: "Number of channel plugin subprocesses in a failed state.",
		}),
		RestartsRefused: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "atom_message_gateway_restarts_refused_total",
			Help: "Number of times a channel process exited or failed health and the manager declined to restart it.",
		}),
	}
	reg.MustRegister(c.ChannelsConfigured, c.ChannelsRunning, c.ChannelsFailed, c.RestartsRefused)
	return c, reg
}

// Handler returns the HTTP handler to mount at a diagnostics path (e.g.
// "/metrics") on the host program's admin mux.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Report updates the gauges from a manager health snapshot. Call this
// whenever the admin mux serves a health/metrics request, or on a timer.
func (c *Collector) Report(configured, running, failed int) {
	c.ChannelsConfigured.Set(float64(configured))
	c.ChannelsRunning.Set(float64(running))
	c.ChannelsFailed.Set(float64(failed))
}

// RefuseRestart increments the refused-restart counter. The manager calls
// this from watchExit/waitForChannelHealth whenever it marks a channel
// not-running without re-spawning it.
func (c *Collector) RefuseRestart() {
	c.RestartsRefused.Inc()
}
