// Package engine assembles the data-plane components and manages their
// lifecycle: one transmit drain worker, one receive loop and one link
// monitor over a shared transport client.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"firestige.xyz/twinport/internal/bridge"
	"firestige.xyz/twinport/internal/config"
	"firestige.xyz/twinport/internal/core"
	"firestige.xyz/twinport/internal/fdb"
	"firestige.xyz/twinport/internal/monitor"
	"firestige.xyz/twinport/internal/rxpath"
	"firestige.xyz/twinport/internal/spibus"
	"firestige.xyz/twinport/internal/txpath"
)

// Hooks are the host-visible event callbacks. Only watchdog recovery and
// link-state changes surface as events; steady-state errors stay in
// counters.
type Hooks struct {
	OnLinkChange func(port core.PortID, up bool)
	OnRecovery   func(reason string)
}

// Stats aggregates the per-component counters.
type Stats struct {
	TX    txpath.Stats
	RX    rxpath.Stats
	Ports []core.PortState
	Fdb   int
}

// Engine is the assembled switch data plane.
type Engine struct {
	cfg    *config.GlobalConfig
	prof   spibus.Profile
	client *spibus.Client
	table  *fdb.Table
	bridge *bridge.Bridge
	tx     *txpath.Path
	rx     *rxpath.Path
	mon    *monitor.Monitor

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New wires an engine over the given duplex channel. waiter may be nil, in
// which case the timed-poll fallback is used. deliver receives packets
// destined for the host stack.
func New(cfg *config.GlobalConfig, ex spibus.Exchanger, waiter rxpath.PendingWaiter,
	deliver rxpath.DeliverFunc, hooks Hooks) (*Engine, error) {
	prof := spibus.DefaultProfile()
	if cfg.Chip.ProfilePath != "" {
		var err error
		prof, err = spibus.LoadProfile(cfg.Chip.ProfilePath)
		if err != nil {
			return nil, err
		}
	}

	e := &Engine{
		cfg:    cfg,
		prof:   prof,
		client: spibus.NewClient(ex),
	}
	e.table = fdb.New(
		fdb.WithMaxEntries(cfg.Bridge.TableSize),
		fdb.WithMaxAge(cfg.Bridge.AgingTime),
	)
	e.bridge = bridge.New(e.table, cfg.HostMAC(), cfg.Bridge.Promiscuous)

	e.tx = txpath.New(txpath.Config{
		QueueSize:  cfg.TX.QueueSize,
		MaxRetries: cfg.TX.MaxRetries,
		Watchdog:   cfg.TX.Watchdog,
		BackoffMin: cfg.TX.BackoffMin,
		BackoffMax: cfg.TX.BackoffMax,
	}, e.client, prof.TxFIFO,
		txpath.WithReset(e.reinitTransport),
		txpath.WithRecoveryHook(hooks.OnRecovery),
	)

	if waiter == nil {
		waiter = rxpath.NewPollWaiter(cfg.RX.PollInterval)
	}
	e.rx = rxpath.New(e.client,
		rxpath.Addrs{RxFIFO: prof.RxFIFO, RxSize: prof.RxSize},
		e.table, e.bridge, e.tx, deliver, waiter)

	e.mon = monitor.New(e.client, prof, cfg.Monitor.Interval, hooks.OnLinkChange)
	return e, nil
}

// Start probes the chip, initializes it and launches the worker
// goroutines.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return fmt.Errorf("engine already started")
	}

	id, err := e.client.ReadReg(e.prof.ChipID)
	if err != nil {
		return fmt.Errorf("chip probe failed: %w", err)
	}
	if id != e.prof.ChipIDVal {
		return fmt.Errorf("unexpected chip id 0x%04x (want 0x%04x)", id, e.prof.ChipIDVal)
	}
	if err := e.reinitTransport(ctx); err != nil {
		return fmt.Errorf("chip init failed: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(3)
	go func() {
		defer e.wg.Done()
		e.tx.Run(runCtx)
	}()
	go func() {
		defer e.wg.Done()
		e.rx.Run(runCtx)
	}()
	go func() {
		defer e.wg.Done()
		e.mon.Run(runCtx)
	}()

	e.started = true
	slog.Info("engine started", "host_mac", e.bridge.HostMAC().String())
	return nil
}

// Stop signals the workers and waits for them. An in-flight transport
// exchange always runs to completion before a worker exits.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return
	}
	e.cancel()
	e.wg.Wait()
	e.started = false
	slog.Info("engine stopped")
}

// Submit is the host submission entrypoint for a known egress port. It
// never blocks; a full queue reports core.ErrQueueFull.
func (e *Engine) Submit(port core.PortID, pkt []byte) error {
	return e.tx.Submit(port, pkt)
}

// SubmitHost transmits a host-originated packet, picking egress from the
// learning table: a learned unicast destination goes out its recorded
// port, anything else floods both physical ports.
func (e *Engine) SubmitHost(pkt []byte) error {
	dst, err := core.MACFromBytes(pkt)
	if err != nil {
		return err
	}
	d := e.bridge.Decide(core.PortHost, dst)
	if d.Egress.IsPhysical() {
		return e.tx.Submit(d.Egress, pkt)
	}
	var firstErr error
	for _, port := range core.PhysPorts {
		if err := e.tx.Submit(port, pkt); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stats snapshots all counters.
func (e *Engine) Stats() Stats {
	return Stats{
		TX:    e.tx.Stats(),
		RX:    e.rx.Stats(),
		Ports: e.mon.Snapshot(),
		Fdb:   e.table.Len(),
	}
}

// Table exposes the learning table for reporting.
func (e *Engine) Table() *fdb.Table {
	return e.table
}

// reinitTransport soft-resets the device and re-enables switching. It runs
// at startup and again after a transmit watchdog reset.
func (e *Engine) reinitTransport(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.client.WriteReg(e.prof.Reset, spibus.ResetSoft); err != nil {
		return err
	}
	return e.client.WriteReg(e.prof.SwitchCfg, spibus.SwitchCfgEnable|spibus.SwitchCfgCutThrough)
}
