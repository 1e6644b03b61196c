package ptpmetrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "nqptp"
	subsystem = "net"
)

// Label names for nqptp metrics.
const (
	labelFamily = "family"
	labelPort   = "port"
	labelType   = "type"
)

// -------------------------------------------------------------------------
// Collector -- Prometheus socket and frame metrics
// -------------------------------------------------------------------------

// Collector holds all nqptp Prometheus metrics.
//
//   - Socket gauges track timestamping sockets currently open per family/port.
//   - Setup failure counters flag missing privilege or a competing PTP daemon.
//   - Frame counters track received datagrams and dumped frames by type.
type Collector struct {
	// SocketsOpen tracks the number of open sockets per family and port.
	SocketsOpen *prometheus.GaugeVec

	// SocketSetupFailures counts sockets that were created but could not be
	// configured (bind, SO_TIMESTAMPING, ...).
	SocketSetupFailures *prometheus.CounterVec

	// FramesReceived counts datagrams read per family and port.
	FramesReceived *prometheus.CounterVec

	// FramesDumped counts frames written to the diagnostic log per message tag.
	FramesDumped *prometheus.CounterVec
}

// NewCollector creates a Collector with all metrics registered against
// reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.SocketsOpen,
		c.SocketSetupFailures,
		c.FramesReceived,
		c.FramesDumped,
	)

	return c
}

// newMetrics creates all metric vectors without registering them.
func newMetrics() *Collector {
	socketLabels := []string{labelFamily, labelPort}

	return &Collector{
		SocketsOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sockets_open",
			Help:      "Number of open hardware-timestamping UDP sockets.",
		}, socketLabels),

		SocketSetupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "socket_setup_failures_total",
			Help:      "Total sockets that could not be bound or configured for timestamping.",
		}, socketLabels),

		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_received_total",
			Help:      "Total PTP datagrams received.",
		}, socketLabels),

		FramesDumped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_dumped_total",
			Help:      "Total frames written to the diagnostic log, by message type tag.",
		}, []string{labelType}),
	}
}

// -------------------------------------------------------------------------
// Sockets
// -------------------------------------------------------------------------

// SocketOpened increments the open socket gauge.
func (c *Collector) SocketOpened(family string, port uint16) {
	c.SocketsOpen.WithLabelValues(family, portLabel(port)).Inc()
}

// SocketClosed decrements the open socket gauge.
func (c *Collector) SocketClosed(family string, port uint16) {
	c.SocketsOpen.WithLabelValues(family, portLabel(port)).Dec()
}

// SocketSetupFailed increments the setup failure counter.
func (c *Collector) SocketSetupFailed(family string, port uint16) {
	c.SocketSetupFailures.WithLabelValues(family, portLabel(port)).Inc()
}

// -------------------------------------------------------------------------
// Frames
// -------------------------------------------------------------------------

// FrameReceived increments the received frames counter.
func (c *Collector) FrameReceived(family string, port uint16) {
	c.FramesReceived.WithLabelValues(family, portLabel(port)).Inc()
}

// FrameDumped increments the dumped frames counter for tag.
func (c *Collector) FrameDumped(tag string) {
	c.FramesDumped.WithLabelValues(tag).Inc()
}

func portLabel(port uint16) string {
	return strconv.FormatUint(uint64(port), 10)
}
