package monitor

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/twinport/internal/core"
	"firestige.xyz/twinport/internal/spibus"
)

// regBank serves register reads from a map and can fail wholesale.
type regBank struct {
	mu   sync.Mutex
	regs map[uint16]uint32
	fail bool
}

func (b *regBank) set(addr uint16, v uint32) {
	b.mu.Lock()
	b.regs[addr] = v
	b.mu.Unlock()
}

func (b *regBank) ReadReg(addr uint16) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return 0, fmt.Errorf("%w: read_reg 0x%04x", core.ErrChannel, addr)
	}
	return b.regs[addr], nil
}

type transition struct {
	port core.PortID
	up   bool
}

func newBank(prof spibus.Profile) *regBank {
	b := &regBank{regs: make(map[uint16]uint32)}
	for i := range core.PhysPorts {
		b.regs[prof.PortStatus[i]] = spibus.PortStatusEnabled
	}
	return b
}

func TestFirstObservationDoesNotFire(t *testing.T) {
	prof := spibus.DefaultProfile()
	bank := newBank(prof)
	bank.set(prof.PortStatus[0], spibus.PortStatusEnabled|spibus.PortStatusLinkUp)

	var got []transition
	m := New(bank, prof, 0, func(port core.PortID, up bool) {
		got = append(got, transition{port, up})
	})

	m.Poll()
	assert.Empty(t, got, "seeding poll is not a transition")

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	assert.True(t, snap[0].LinkUp)
	assert.False(t, snap[1].LinkUp)
}

func TestLinkTransitionFiresOnce(t *testing.T) {
	prof := spibus.DefaultProfile()
	bank := newBank(prof)

	var got []transition
	m := New(bank, prof, 0, func(port core.PortID, up bool) {
		got = append(got, transition{port, up})
	})

	m.Poll() // seed: both ports down

	bank.set(prof.PortStatus[1], spibus.PortStatusEnabled|spibus.PortStatusLinkUp)
	m.Poll()
	m.Poll() // steady state, no second event

	require.Len(t, got, 1)
	assert.Equal(t, transition{core.Port2, true}, got[0])

	bank.set(prof.PortStatus[1], spibus.PortStatusEnabled)
	m.Poll()
	require.Len(t, got, 2)
	assert.Equal(t, transition{core.Port2, false}, got[1])
}

func TestCountersScraped(t *testing.T) {
	prof := spibus.DefaultProfile()
	bank := newBank(prof)
	bank.set(prof.PortRxPkts[0], 17)
	bank.set(prof.PortTxPkts[0], 5)
	bank.set(prof.PortRxErrs[1], 3)

	m := New(bank, prof, 0, nil)
	m.Poll()

	snap := m.Snapshot()
	assert.Equal(t, uint64(17), snap[0].RxPkts)
	assert.Equal(t, uint64(5), snap[0].TxPkts)
	assert.Equal(t, uint64(3), snap[1].RxErrors)
}

func TestTransportErrorSkipsCycle(t *testing.T) {
	prof := spibus.DefaultProfile()
	bank := newBank(prof)
	bank.set(prof.PortStatus[0], spibus.PortStatusEnabled|spibus.PortStatusLinkUp)

	var got []transition
	m := New(bank, prof, 0, func(port core.PortID, up bool) {
		got = append(got, transition{port, up})
	})
	m.Poll() // seed with port 1 up

	bank.mu.Lock()
	bank.fail = true
	bank.mu.Unlock()
	m.Poll()

	assert.Empty(t, got, "failed cycle observes nothing")
	snap := m.Snapshot()
	assert.True(t, snap[0].LinkUp, "state retained across failed cycle")
}
