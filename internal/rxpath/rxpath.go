// Package rxpath implements the receive path: a blocking-capable loop that
// waits for pending data, pulls frames out of the receive FIFO, applies the
// forwarding decision and delivers or re-queues each frame.
package rxpath

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"firestige.xyz/twinport/internal/bridge"
	"firestige.xyz/twinport/internal/core"
	"firestige.xyz/twinport/internal/fdb"
	"firestige.xyz/twinport/internal/frame"
	"firestige.xyz/twinport/internal/metrics"
)

// Reader is the slice of the transport client the receive loop needs.
type Reader interface {
	ReadReg(addr uint16) (uint32, error)
	ReadFIFO(addr uint16, maxLen int) ([]byte, error)
}

// Egress re-queues frames for transmission out a physical port. Submit
// must never block; the transmit path satisfies this.
type Egress interface {
	Submit(port core.PortID, data []byte) error
}

// DeliverFunc hands a received packet to the host network stack. It is
// fire-and-forget and must not hold up the receive loop beyond a bounded
// host-stack enqueue time.
type DeliverFunc func(port core.PortID, pkt []byte)

// PendingWaiter blocks until the device signals pending receive data and
// returns a mask of ports with data. Implementations are interrupt-driven
// (chip simulator) or a timed poll (PollWaiter).
type PendingWaiter interface {
	WaitPending(ctx context.Context) (uint8, error)
}

// Metrics are the path's internal counters.
type Metrics struct {
	Frames    atomic.Uint64
	Delivered atomic.Uint64
	Forwarded atomic.Uint64
	Flooded   atomic.Uint64
	Errors    atomic.Uint64
}

// Stats is a point-in-time snapshot of Metrics.
type Stats struct {
	Frames    uint64
	Delivered uint64
	Forwarded uint64
	Flooded   uint64
	Errors    uint64
}

// Addrs carries the chip-profile registers the loop reads.
type Addrs struct {
	RxFIFO uint16
	RxSize uint16
}

// Path is the receive path instance.
type Path struct {
	client  Reader
	addrs   Addrs
	table   *fdb.Table
	bridge  *bridge.Bridge
	egress  Egress
	deliver DeliverFunc
	waiter  PendingWaiter

	metrics Metrics
}

// New assembles a receive path.
func New(client Reader, addrs Addrs, table *fdb.Table, br *bridge.Bridge,
	egress Egress, deliver DeliverFunc, waiter PendingWaiter) *Path {
	return &Path{
		client:  client,
		addrs:   addrs,
		table:   table,
		bridge:  br,
		egress:  egress,
		deliver: deliver,
		waiter:  waiter,
	}
}

// Stats snapshots the path counters.
func (p *Path) Stats() Stats {
	return Stats{
		Frames:    p.metrics.Frames.Load(),
		Delivered: p.metrics.Delivered.Load(),
		Forwarded: p.metrics.Forwarded.Load(),
		Flooded:   p.metrics.Flooded.Load(),
		Errors:    p.metrics.Errors.Load(),
	}
}

// Run is the receive loop. A malformed frame discards that frame and
// increments an error counter without stopping the loop; the loop
// terminates only when ctx is cancelled. All transport reads happen here,
// in a blocking-capable context.
func (p *Path) Run(ctx context.Context) {
	slog.Info("receive loop started")
	for {
		_, err := p.waiter.WaitPending(ctx)
		if ctx.Err() != nil {
			slog.Info("receive loop stopped")
			return
		}
		if err != nil {
			slog.Warn("wait for pending data failed", "error", err)
			continue
		}
		// The mask is a wake hint; frames pop from the shared FIFO in
		// arrival order with their ingress port in the control word.
		p.drainPending(ctx)
	}
}

// drainPending empties the receive FIFO.
func (p *Path) drainPending(ctx context.Context) {
	for ctx.Err() == nil {
		avail, err := p.client.ReadReg(p.addrs.RxSize)
		if err != nil {
			metrics.ChannelErrorsTotal.WithLabelValues("read_reg").Inc()
			slog.Warn("rx size read failed", "error", err)
			return
		}
		if avail == 0 {
			return
		}
		p.readFrame(int(avail))
	}
}

// readFrame pops one frame (control word plus payload) from the FIFO and
// processes it.
func (p *Path) readFrame(avail int) {
	toRead := avail
	if max := frame.HeaderLen + frame.MaxPayload; toRead > max {
		toRead = max
	}
	if toRead < frame.HeaderLen {
		toRead = frame.HeaderLen
	}
	buf, err := p.client.ReadFIFO(p.addrs.RxFIFO, toRead)
	if err != nil {
		metrics.ChannelErrorsTotal.WithLabelValues("read_fifo").Inc()
		slog.Warn("rx fifo read failed", "error", err)
		return
	}

	word, err := frame.WordFromBytes(buf)
	if err != nil {
		p.discard(core.PortInvalid, err)
		return
	}
	hdr, err := frame.Decode(word)
	if err != nil {
		if errors.Is(err, core.ErrNoFrame) {
			// Transport had nothing after all; not an error.
			return
		}
		p.discard(core.PortInvalid, err)
		return
	}
	if hdr.Flags&frame.FlagDataValid == 0 {
		p.discard(hdr.Port, core.ErrEncoding)
		return
	}
	if hdr.Size > len(buf)-frame.HeaderLen {
		p.discard(hdr.Port, core.ErrFrameTooShort)
		return
	}

	p.metrics.Frames.Add(1)
	metrics.RxFramesTotal.WithLabelValues(hdr.Port.String()).Inc()
	p.process(hdr.Port, buf[frame.HeaderLen:frame.HeaderLen+hdr.Size])
}

// process learns the source address and applies the forwarding decision.
func (p *Path) process(ingress core.PortID, pkt []byte) {
	dst, err := core.MACFromBytes(pkt)
	if err != nil {
		p.discard(ingress, err)
		return
	}
	src, err := core.MACFromBytes(pkt[6:])
	if err != nil {
		p.discard(ingress, err)
		return
	}

	// A multicast source address is never legitimate; don't pollute the
	// table with it.
	if !src.IsMulticast() {
		p.table.Learn(src, ingress)
		metrics.FdbSize.Set(float64(p.table.Len()))
	}

	d := p.bridge.Decide(ingress, dst)
	if d.DeliverHost && p.deliver != nil {
		p.deliver(ingress, pkt)
		p.metrics.Delivered.Add(1)
	}
	if d.Flood {
		for _, port := range core.PhysPorts {
			if port == ingress {
				continue
			}
			// Queue-full here is backpressure; Submit counts it.
			_ = p.egress.Submit(port, pkt)
		}
		p.metrics.Flooded.Add(1)
		return
	}
	if d.Egress.IsPhysical() && d.Egress != ingress {
		_ = p.egress.Submit(d.Egress, pkt)
		p.metrics.Forwarded.Add(1)
	}
}

func (p *Path) discard(port core.PortID, err error) {
	p.metrics.Errors.Add(1)
	metrics.RxErrorsTotal.WithLabelValues(port.String()).Inc()
	slog.Debug("rx frame discarded", "port", port.String(), "error", err)
}
