// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TxSubmittedTotal counts packets accepted by the transmit queue
	TxSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twinport_tx_submitted_total",
			Help: "Total number of packets accepted into the transmit queue",
		},
		[]string{"port"},
	)

	// TxDroppedTotal counts packets dropped on queue-full backpressure
	TxDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twinport_tx_dropped_total",
			Help: "Total number of packets dropped because the transmit queue was full",
		},
		[]string{"port"},
	)

	// TxSentTotal counts packets successfully written to the transport
	TxSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twinport_tx_sent_total",
			Help: "Total number of packets drained to the transport FIFO",
		},
		[]string{"port"},
	)

	// ChannelErrorsTotal counts failed transport exchanges by operation
	ChannelErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twinport_channel_errors_total",
			Help: "Total number of failed transport exchanges",
		},
		[]string{"op"},
	)

	// WatchdogResetsTotal counts transmit path watchdog recoveries
	WatchdogResetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "twinport_watchdog_resets_total",
			Help: "Total number of transmit path watchdog resets",
		},
	)

	// RxFramesTotal counts frames pulled from the receive FIFO
	RxFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twinport_rx_frames_total",
			Help: "Total number of frames received",
		},
		[]string{"port"},
	)

	// RxErrorsTotal counts malformed or oversize frames discarded on receive
	RxErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twinport_rx_errors_total",
			Help: "Total number of receive frames discarded as malformed",
		},
		[]string{"port"},
	)

	// FdbSize tracks the current number of learned addresses
	FdbSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "twinport_fdb_size",
			Help: "Current number of entries in the MAC learning table",
		},
	)

	// LinkUp tracks per-port link state (0=down, 1=up)
	LinkUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "twinport_link_up",
			Help: "Per-port link state (0=down, 1=up)",
		},
		[]string{"port"},
	)

	// PortCounter mirrors the hardware per-port counters scraped by the
	// link monitor
	PortCounter = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "twinport_port_counter",
			Help: "Hardware per-port counters sampled by the link monitor",
		},
		[]string{"port", "counter"},
	)
)
