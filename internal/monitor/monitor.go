// Package monitor implements the link and statistics monitor: a
// fixed-period poll of port status and hardware counters.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"firestige.xyz/twinport/internal/core"
	"firestige.xyz/twinport/internal/metrics"
	"firestige.xyz/twinport/internal/spibus"
)

// Reader is the slice of the transport client the monitor needs.
type Reader interface {
	ReadReg(addr uint16) (uint32, error)
}

// LinkChangeFunc notifies the host of a carrier transition.
type LinkChangeFunc func(port core.PortID, up bool)

// Monitor polls port state on a fixed period. Read cycles are idempotent;
// a transient transport error just skips the cycle.
type Monitor struct {
	client   Reader
	prof     spibus.Profile
	interval time.Duration
	onChange LinkChangeFunc

	mu    sync.RWMutex
	state [core.NumPhysPorts]core.PortState
	// seeded tracks whether a port has reported at least once, so the
	// first observation doesn't fire a spurious transition.
	seeded [core.NumPhysPorts]bool
}

// New creates a monitor. A zero interval defaults to one second.
func New(client Reader, prof spibus.Profile, interval time.Duration, onChange LinkChangeFunc) *Monitor {
	if interval <= 0 {
		interval = time.Second
	}
	m := &Monitor{
		client:   client,
		prof:     prof,
		interval: interval,
		onChange: onChange,
	}
	for i := range m.state {
		m.state[i].Port = core.PhysPorts[i]
	}
	return m
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	slog.Info("link monitor started", "interval", m.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("link monitor stopped")
			return
		case <-ticker.C:
			m.Poll()
		}
	}
}

// Poll runs one status cycle over both physical ports.
func (m *Monitor) Poll() {
	for i, port := range core.PhysPorts {
		status, err := m.client.ReadReg(m.prof.PortStatus[i])
		if err != nil {
			metrics.ChannelErrorsTotal.WithLabelValues("read_reg").Inc()
			slog.Debug("port status read failed, skipping cycle",
				"port", port.String(), "error", err)
			continue
		}
		up := status&spibus.PortStatusLinkUp != 0
		enabled := status&spibus.PortStatusEnabled != 0

		m.mu.Lock()
		changed := m.seeded[i] && m.state[i].LinkUp != up
		m.state[i].LinkUp = up
		m.state[i].Enabled = enabled
		m.seeded[i] = true
		m.mu.Unlock()

		gauge := 0.0
		if up {
			gauge = 1.0
		}
		metrics.LinkUp.WithLabelValues(port.String()).Set(gauge)

		if changed {
			slog.Info("link state changed", "port", port.String(), "up", up)
			if m.onChange != nil {
				m.onChange(port, up)
			}
		}

		m.scrapeCounters(i, port)
	}
}

// scrapeCounters samples the hardware per-port counters. Errors here skip
// the sample; the next cycle catches up.
func (m *Monitor) scrapeCounters(i int, port core.PortID) {
	regs := []struct {
		addr uint16
		name string
		dst  *uint64
	}{
		{m.prof.PortRxPkts[i], "rx_pkts", &m.state[i].RxPkts},
		{m.prof.PortTxPkts[i], "tx_pkts", &m.state[i].TxPkts},
		{m.prof.PortRxErrs[i], "rx_errs", &m.state[i].RxErrors},
		{m.prof.PortTxErrs[i], "tx_errs", &m.state[i].TxErrors},
	}
	for _, r := range regs {
		v, err := m.client.ReadReg(r.addr)
		if err != nil {
			return
		}
		m.mu.Lock()
		*r.dst = uint64(v)
		m.mu.Unlock()
		metrics.PortCounter.WithLabelValues(port.String(), r.name).Set(float64(v))
	}
}

// Snapshot returns the current per-port state.
func (m *Monitor) Snapshot() []core.PortState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.PortState, len(m.state))
	copy(out, m.state[:])
	return out
}
