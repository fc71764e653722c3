package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/twinport/internal/chipsim"
	"firestige.xyz/twinport/internal/config"
	"firestige.xyz/twinport/internal/core"
	"firestige.xyz/twinport/internal/spibus"
)

var (
	macA = core.MAC{0x02, 0x10, 0x20, 0x30, 0x40, 0xAA}
	macB = core.MAC{0x02, 0x10, 0x20, 0x30, 0x40, 0xBB}
)

func ethFrame(dst, src core.MAC) []byte {
	pkt := make([]byte, 0, 20)
	pkt = append(pkt, dst[:]...)
	pkt = append(pkt, src[:]...)
	pkt = append(pkt, 0x08, 0x00, 0x01, 0x02, 0x03, 0x04)
	return pkt
}

// wireTap records frames the simulator puts on a port's wire.
type wireTap struct {
	mu     sync.Mutex
	frames map[core.PortID][][]byte
}

func newWireTap(sim *chipsim.Sim) *wireTap {
	w := &wireTap{frames: make(map[core.PortID][][]byte)}
	for _, port := range core.PhysPorts {
		port := port
		sim.OnEgress(port, func(_ core.PortID, pkt []byte) {
			w.mu.Lock()
			w.frames[port] = append(w.frames[port], pkt)
			w.mu.Unlock()
		})
	}
	return w
}

func (w *wireTap) count(port core.PortID) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.frames[port])
}

func (w *wireTap) last(port core.PortID) []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	fs := w.frames[port]
	if len(fs) == 0 {
		return nil
	}
	return fs[len(fs)-1]
}

type hostTap struct {
	mu   sync.Mutex
	pkts [][]byte
}

func (h *hostTap) deliver(_ core.PortID, pkt []byte) {
	h.mu.Lock()
	cp := make([]byte, len(pkt))
	copy(cp, pkt)
	h.pkts = append(h.pkts, cp)
	h.mu.Unlock()
}

func (h *hostTap) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pkts)
}

type testBench struct {
	sim  *chipsim.Sim
	eng  *Engine
	wire *wireTap
	host *hostTap
}

func startBench(t *testing.T) *testBench {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	sim := chipsim.New(spibus.DefaultProfile())
	sim.SetLink(core.Port1, true)
	sim.SetLink(core.Port2, true)

	b := &testBench{sim: sim, wire: newWireTap(sim), host: &hostTap{}}
	b.eng, err = New(cfg, sim, sim, b.host.deliver, Hooks{})
	require.NoError(t, err)

	require.NoError(t, b.eng.Start(context.Background()))
	t.Cleanup(b.eng.Stop)
	return b
}

func TestStartProbesChip(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	sim := chipsim.New(spibus.DefaultProfile())
	// Corrupt the identity register; the probe must refuse to start.
	client := spibus.NewClient(sim)
	require.NoError(t, client.WriteReg(spibus.DefaultProfile().ChipID, 0xDEAD))

	eng, err := New(cfg, sim, sim, nil, Hooks{})
	require.NoError(t, err)
	err = eng.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chip id")
}

func TestBroadcastFloodsAndDeliversHost(t *testing.T) {
	b := startBench(t)

	pkt := ethFrame(core.BroadcastMAC, macA)
	require.NoError(t, b.sim.Inject(core.Port1, pkt))

	require.Eventually(t, func() bool {
		return b.wire.count(core.Port2) == 1 && b.host.count() == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, pkt, b.wire.last(core.Port2))
	assert.Zero(t, b.wire.count(core.Port1), "never echoed to ingress")

	port, ok := b.eng.Table().Lookup(macA)
	require.True(t, ok)
	assert.Equal(t, core.Port1, port)
}

func TestCrossPortUnicastCutThrough(t *testing.T) {
	b := startBench(t)

	// B speaks first so the table learns it on port 2.
	require.NoError(t, b.sim.Inject(core.Port2, ethFrame(core.BroadcastMAC, macB)))
	require.Eventually(t, func() bool {
		_, ok := b.eng.Table().Lookup(macB)
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	hostBefore := b.host.count()
	pkt := ethFrame(macB, macA)
	require.NoError(t, b.sim.Inject(core.Port1, pkt))

	require.Eventually(t, func() bool {
		return b.wire.count(core.Port2) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, pkt, b.wire.last(core.Port2))
	assert.Equal(t, hostBefore, b.host.count(), "known unicast bypasses the host")
}

func TestSubmitHostFloodsUnknownDestination(t *testing.T) {
	b := startBench(t)

	pkt := ethFrame(macB, core.MAC{0x02, 0, 0, 0, 0, 0x01})
	require.NoError(t, b.eng.SubmitHost(pkt))

	require.Eventually(t, func() bool {
		return b.wire.count(core.Port1) == 1 && b.wire.count(core.Port2) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSubmitHostUsesLearnedPort(t *testing.T) {
	b := startBench(t)

	require.NoError(t, b.sim.Inject(core.Port2, ethFrame(core.BroadcastMAC, macB)))
	require.Eventually(t, func() bool {
		_, ok := b.eng.Table().Lookup(macB)
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	port1Before := b.wire.count(core.Port1)
	require.NoError(t, b.eng.SubmitHost(ethFrame(macB, core.MAC{0x02, 0, 0, 0, 0, 0x01})))

	require.Eventually(t, func() bool {
		return b.wire.count(core.Port2) == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, port1Before, b.wire.count(core.Port1), "no flood for a learned destination")
}

func TestStatsAggregate(t *testing.T) {
	b := startBench(t)

	require.NoError(t, b.sim.Inject(core.Port1, ethFrame(core.BroadcastMAC, macA)))
	require.Eventually(t, func() bool {
		return b.eng.Stats().RX.Frames == 1
	}, 2*time.Second, 5*time.Millisecond)

	st := b.eng.Stats()
	assert.Equal(t, 1, st.Fdb)
	assert.Len(t, st.Ports, 2)
	require.Eventually(t, func() bool {
		return b.eng.Stats().TX.Sent == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDoubleStartRejected(t *testing.T) {
	b := startBench(t)
	assert.Error(t, b.eng.Start(context.Background()))
}
