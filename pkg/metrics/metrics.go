// Package metrics exposes Prometheus collectors for the SSDP, SOAP and GENA
// subsystems. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "upnp"

// Metrics holds every collector of the media server.
type Metrics struct {
	registry *prometheus.Registry

	ssdpMessages *prometheus.CounterVec // direction, type
	ssdpDropped  *prometheus.CounterVec // reason
	ssdpPeers    prometheus.Gauge

	soapActions  *prometheus.CounterVec   // action, code
	soapDuration *prometheus.HistogramVec // action

	genaDeliveries    *prometheus.CounterVec // outcome
	genaSubscriptions prometheus.Gauge
	genaCancelled     *prometheus.CounterVec // reason

	cdsUpdateID prometheus.Gauge
}

// New creates a Metrics instance with its own registry, including the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ssdpMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ssdp",
			Name:      "messages_total",
			Help:      "SSDP datagrams sent and received",
		}, []string{"direction", "type"}), // type: alive, byebye, search, response

		ssdpDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ssdp",
			Name:      "dropped_total",
			Help:      "Inbound SSDP datagrams discarded",
		}, []string{"reason"}), // reason: malformed, invalid_search, rate_limited, self

		ssdpPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ssdp",
			Name:      "peers",
			Help:      "Remote root devices currently known",
		}),

		soapActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "soap",
			Name:      "actions_total",
			Help:      "SOAP actions handled by result code (0 for success)",
		}, []string{"action", "code"}),

		soapDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "soap",
			Name:      "action_duration_seconds",
			Help:      "SOAP action handling time",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}, []string{"action"}),

		genaDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gena",
			Name:      "deliveries_total",
			Help:      "Event NOTIFY deliveries by outcome",
		}, []string{"outcome"}), // outcome: ok, failed, coalesced

		genaSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gena",
			Name:      "subscriptions",
			Help:      "Live event subscriptions",
		}),

		genaCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gena",
			Name:      "subscriptions_ended_total",
			Help:      "Subscriptions removed, by reason",
		}, []string{"reason"}), // reason: unsubscribed, expired, failures, teardown

		cdsUpdateID: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cds",
			Name:      "system_update_id",
			Help:      "Current ContentDirectory SystemUpdateID",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ssdpMessages, m.ssdpDropped, m.ssdpPeers,
		m.soapActions, m.soapDuration,
		m.genaDeliveries, m.genaSubscriptions, m.genaCancelled,
		m.cdsUpdateID,
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SSDPMessage counts a datagram. direction is "in" or "out".
func (m *Metrics) SSDPMessage(direction, kind string) {
	if m == nil {
		return
	}
	m.ssdpMessages.WithLabelValues(direction, kind).Inc()
}

// SSDPDropped counts a discarded inbound datagram.
func (m *Metrics) SSDPDropped(reason string) {
	if m == nil {
		return
	}
	m.ssdpDropped.WithLabelValues(reason).Inc()
}

// SSDPPeers sets the number of known remote root devices.
func (m *Metrics) SSDPPeers(n int) {
	if m == nil {
		return
	}
	m.ssdpPeers.Set(float64(n))
}

// SOAPAction records a handled action. code is 0 on success.
func (m *Metrics) SOAPAction(action string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.soapActions.WithLabelValues(action, strconv.Itoa(code)).Inc()
	m.soapDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// GENADelivery counts a delivery attempt outcome.
func (m *Metrics) GENADelivery(outcome string) {
	if m == nil {
		return
	}
	m.genaDeliveries.WithLabelValues(outcome).Inc()
}

// GENASubscriptions sets the number of live subscriptions.
func (m *Metrics) GENASubscriptions(n int) {
	if m == nil {
		return
	}
	m.genaSubscriptions.Set(float64(n))
}

// GENAEnded counts a removed subscription.
func (m *Metrics) GENAEnded(reason string) {
	if m == nil {
		return
	}
	m.genaCancelled.WithLabelValues(reason).Inc()
}

// CDSUpdateID publishes the current SystemUpdateID.
func (m *Metrics) CDSUpdateID(id uint32) {
	if m == nil {
		return
	}
	m.cdsUpdateID.Set(float64(id))
}
