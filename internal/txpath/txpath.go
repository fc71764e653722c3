// Package txpath implements the transmit path: a bounded ring filled by a
// non-blocking submission context and drained by one blocking-capable
// worker that owns all transport writes.
package txpath

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"

	"firestige.xyz/twinport/internal/core"
	"firestige.xyz/twinport/internal/frame"
	"firestige.xyz/twinport/internal/metrics"
)

// Per-slot states. Tagged states rather than scattered booleans keep the
// watchdog reset auditable: a slot is either free, owned by the producer's
// completed enqueue, or owned by the drain worker.
const (
	slotIdle int32 = iota
	slotQueued
	slotInFlight
)

type slot struct {
	state atomic.Int32
	pkt   core.PendingPacket
}

// FIFOWriter is the slice of the transport client the drain worker needs.
type FIFOWriter interface {
	WriteFIFO(addr uint16, payload []byte) error
}

// Config tunes the transmit path.
type Config struct {
	// QueueSize is the ring capacity, in packets.
	QueueSize int
	// MaxRetries bounds transport write attempts per packet.
	MaxRetries int
	// Watchdog is how long the queue may sit non-empty without a single
	// successful drain before the path is reset.
	Watchdog time.Duration
	// BackoffMin/BackoffMax pace the retry attempts.
	BackoffMin time.Duration
	BackoffMax time.Duration
}

func (c *Config) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.Watchdog <= 0 {
		c.Watchdog = 5 * time.Second
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = 10 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 500 * time.Millisecond
	}
}

// Metrics are the path's internal counters.
type Metrics struct {
	Submitted      atomic.Uint64
	Dropped        atomic.Uint64
	Sent           atomic.Uint64
	Retries        atomic.Uint64
	ChannelErrors  atomic.Uint64
	WatchdogResets atomic.Uint64
}

// Stats is a point-in-time snapshot of Metrics.
type Stats struct {
	Submitted      uint64
	Dropped        uint64
	Sent           uint64
	Retries        uint64
	ChannelErrors  uint64
	WatchdogResets uint64
	Pending        int
}

// Path is the transmit path instance.
//
// head is the next slot the producer fills, tail the next slot the worker
// drains; both only ever grow. Producers serialize among themselves with
// submitMu; the worker never takes it, so Submit never waits on a transport
// exchange.
type Path struct {
	cfg      Config
	fifo     FIFOWriter
	fifoAddr uint16

	// resetFn re-initializes the transport after a watchdog reset.
	resetFn func(context.Context) error
	// onRecovery reports the host-visible recovery event.
	onRecovery func(reason string)

	slots    []slot
	head     atomic.Uint64
	tail     atomic.Uint64
	submitMu sync.Mutex
	wake     chan struct{}

	now        func() time.Time
	stallSince atomic.Int64 // unixnano of first stalled observation, 0 = healthy

	metrics Metrics
}

// Option tunes a Path beyond its Config.
type Option func(*Path)

// WithReset installs the transport re-init hook run on watchdog reset.
func WithReset(fn func(context.Context) error) Option {
	return func(p *Path) { p.resetFn = fn }
}

// WithRecoveryHook installs the host-visible recovery event callback.
func WithRecoveryHook(fn func(reason string)) Option {
	return func(p *Path) { p.onRecovery = fn }
}

// withClock injects a time source for tests.
func withClock(now func() time.Time) Option {
	return func(p *Path) { p.now = now }
}

// New creates a transmit path draining into the given FIFO address.
func New(cfg Config, fifo FIFOWriter, fifoAddr uint16, opts ...Option) *Path {
	cfg.applyDefaults()
	p := &Path{
		cfg:      cfg,
		fifo:     fifo,
		fifoAddr: fifoAddr,
		slots:    make([]slot, cfg.QueueSize),
		wake:     make(chan struct{}, 1),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit enqueues a packet for egress on a physical port. It is the sole
// transmit entry point and never blocks: there is no code path from here to
// a transport exchange. A full ring drops the packet and reports
// core.ErrQueueFull, which is expected backpressure, not a fault.
func (p *Path) Submit(port core.PortID, data []byte) error {
	if !port.IsPhysical() {
		return fmt.Errorf("%w: egress on %s", core.ErrEncoding, port)
	}
	if len(data) > frame.MaxPayload {
		p.metrics.Dropped.Add(1)
		metrics.TxDroppedTotal.WithLabelValues(port.String()).Inc()
		return fmt.Errorf("%w: packet of %d bytes", core.ErrEncoding, len(data))
	}

	p.submitMu.Lock()
	h := p.head.Load()
	if h-p.tail.Load() >= uint64(len(p.slots)) {
		p.submitMu.Unlock()
		p.metrics.Dropped.Add(1)
		metrics.TxDroppedTotal.WithLabelValues(port.String()).Inc()
		return core.ErrQueueFull
	}
	s := &p.slots[h%uint64(len(p.slots))]
	buf := make([]byte, len(data))
	copy(buf, data)
	s.pkt = core.PendingPacket{Port: port, Data: buf, EnqueuedAt: p.now()}
	s.state.Store(slotQueued)
	p.head.Store(h + 1)
	p.submitMu.Unlock()

	p.metrics.Submitted.Add(1)
	metrics.TxSubmittedTotal.WithLabelValues(port.String()).Inc()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of packets waiting in the ring.
func (p *Path) Pending() int {
	return int(p.head.Load() - p.tail.Load())
}

// Stats snapshots the path counters.
func (p *Path) Stats() Stats {
	return Stats{
		Submitted:      p.metrics.Submitted.Load(),
		Dropped:        p.metrics.Dropped.Load(),
		Sent:           p.metrics.Sent.Load(),
		Retries:        p.metrics.Retries.Load(),
		ChannelErrors:  p.metrics.ChannelErrors.Load(),
		WatchdogResets: p.metrics.WatchdogResets.Load(),
		Pending:        p.Pending(),
	}
}

// Run is the drain worker loop. It is the only goroutine that performs
// transport writes for this path and the only one that advances tail. It
// returns when ctx is cancelled; an in-flight exchange always completes
// first.
func (p *Path) Run(ctx context.Context) {
	tick := p.cfg.Watchdog / 4
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	slog.Info("transmit worker started", "queue_size", len(p.slots), "watchdog", p.cfg.Watchdog)
	for {
		select {
		case <-ctx.Done():
			slog.Info("transmit worker stopped", "pending", p.Pending())
			return
		case <-p.wake:
		case <-ticker.C:
		}
		p.drain(ctx)
		p.checkWatchdog(ctx)
	}
}

// drain pops queued packets and writes them to the transport. On a packet
// whose retries are exhausted it drops that packet and stops the cycle, so
// a wedged transport leaves the rest of the queue to the watchdog instead
// of bleeding it out one error at a time.
func (p *Path) drain(ctx context.Context) {
	n := uint64(len(p.slots))
	for p.tail.Load() != p.head.Load() {
		if ctx.Err() != nil {
			return
		}
		t := p.tail.Load()
		s := &p.slots[t%n]
		if s.state.Load() != slotQueued {
			// Slot cleared by a path reset; skip it.
			p.tail.Store(t + 1)
			continue
		}
		s.state.Store(slotInFlight)
		err := p.writeFrame(ctx, s.pkt)

		s.pkt = core.PendingPacket{}
		s.state.Store(slotIdle)
		p.tail.Store(t + 1)

		if err != nil {
			p.metrics.ChannelErrors.Add(1)
			p.metrics.Dropped.Add(1)
			slog.Warn("transmit drain failed, packet dropped", "error", err)
			return
		}
		p.metrics.Sent.Add(1)
		p.stallSince.Store(0)
	}
	if p.Pending() == 0 {
		p.stallSince.Store(0)
	}
}

// writeFrame encodes the control word and writes header plus payload in a
// single FIFO burst, retrying a bounded number of times on channel errors.
func (p *Path) writeFrame(ctx context.Context, pkt core.PendingPacket) error {
	word, err := frame.Encode(pkt.Port, len(pkt.Data), frame.FlagDataValid|frame.FlagStartValid)
	if err != nil {
		return err
	}
	buf := make([]byte, frame.HeaderLen+len(pkt.Data))
	word.Put(buf)
	copy(buf[frame.HeaderLen:], pkt.Data)

	bo := &backoff.Backoff{
		Min:    p.cfg.BackoffMin,
		Max:    p.cfg.BackoffMax,
		Factor: 2,
		Jitter: true,
	}
	for attempt := 1; ; attempt++ {
		err = p.fifo.WriteFIFO(p.fifoAddr, buf)
		if err == nil {
			metrics.TxSentTotal.WithLabelValues(pkt.Port.String()).Inc()
			return nil
		}
		metrics.ChannelErrorsTotal.WithLabelValues("write_fifo").Inc()
		if attempt >= p.cfg.MaxRetries {
			return err
		}
		p.metrics.Retries.Add(1)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(bo.Duration()):
		}
	}
}

// checkWatchdog fires the path reset when the queue has sat non-empty for
// a full watchdog period without a successful drain.
func (p *Path) checkWatchdog(ctx context.Context) {
	if p.Pending() == 0 {
		p.stallSince.Store(0)
		return
	}
	now := p.now()
	since := p.stallSince.Load()
	if since == 0 {
		p.stallSince.Store(now.UnixNano())
		return
	}
	if now.Sub(time.Unix(0, since)) < p.cfg.Watchdog {
		return
	}
	p.reset(ctx)
}

// reset clears the queue, re-initializes the transport and reports the
// recovery event. It runs on the worker goroutine, so slot ownership is
// unambiguous: everything between tail and the captured head is queued and
// gets discarded.
func (p *Path) reset(ctx context.Context) {
	h := p.head.Load()
	discarded := 0
	n := uint64(len(p.slots))
	for t := p.tail.Load(); t != h; t++ {
		s := &p.slots[t%n]
		if s.state.Load() == slotQueued {
			metrics.TxDroppedTotal.WithLabelValues(s.pkt.Port.String()).Inc()
			s.pkt = core.PendingPacket{}
			s.state.Store(slotIdle)
			discarded++
		}
	}
	p.tail.Store(h)
	p.metrics.Dropped.Add(uint64(discarded))
	p.metrics.WatchdogResets.Add(1)
	metrics.WatchdogResetsTotal.Inc()

	slog.Error("transmit watchdog fired, path reset", "discarded", discarded)

	if p.resetFn != nil {
		if err := p.resetFn(ctx); err != nil {
			slog.Error("transport re-init failed", "error", err)
		}
	}
	p.stallSince.Store(0)

	if p.onRecovery != nil {
		p.onRecovery(fmt.Sprintf("%v: %d packets discarded", core.ErrWatchdog, discarded))
	}
}
