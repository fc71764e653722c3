// Package chipsim implements an in-memory model of the dual-port switch
// chip: a register file, receive/transmit FIFOs and link state behind the
// same duplex exchange contract as the real device. It backs tests and the
// simulator mode of the start command.
package chipsim

import (
	"fmt"
	"sync"

	"firestige.xyz/twinport/internal/core"
	"firestige.xyz/twinport/internal/frame"
	"firestige.xyz/twinport/internal/spibus"
)

// EgressFunc observes frames the device transmits out a physical port.
type EgressFunc func(port core.PortID, pkt []byte)

type rxFrame struct {
	port core.PortID
	// image is the FIFO image: control word plus payload.
	image []byte
}

// Sim is the simulated chip. It implements spibus.Exchanger and
// rxpath.PendingWaiter.
type Sim struct {
	mu   sync.Mutex
	prof spibus.Profile
	regs map[uint16]uint32
	rxq  []rxFrame

	egress [core.NumPhysPorts]EgressFunc

	// pending wakes WaitPending; capacity 1, edge-triggered.
	pending chan struct{}
}

// New creates a powered-up simulator with both links down.
func New(prof spibus.Profile) *Sim {
	s := &Sim{
		prof:    prof,
		regs:    make(map[uint16]uint32),
		pending: make(chan struct{}, 1),
	}
	s.regs[prof.ChipID] = prof.ChipIDVal
	s.regs[prof.Status] = spibus.StatusReady
	for i := range core.PhysPorts {
		s.regs[prof.PortStatus[i]] = spibus.PortStatusEnabled
	}
	return s
}

// OnEgress installs the observer for frames leaving a physical port.
func (s *Sim) OnEgress(port core.PortID, fn EgressFunc) {
	if port.IsPhysical() {
		s.egress[port] = fn
	}
}

// SetLink flips a port's link bit, as a cable plug/unplug would.
func (s *Sim) SetLink(port core.PortID, up bool) {
	if !port.IsPhysical() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	addr := s.prof.PortStatus[port]
	if up {
		s.regs[addr] |= spibus.PortStatusLinkUp
	} else {
		s.regs[addr] &^= spibus.PortStatusLinkUp
	}
}

// Inject delivers a wire frame into a physical port, as if a peer
// transmitted it. The frame lands in the receive FIFO behind a control
// word naming the ingress port, and the pending signal is raised.
func (s *Sim) Inject(port core.PortID, pkt []byte) error {
	if !port.IsPhysical() {
		return fmt.Errorf("inject on %s", port)
	}
	word, err := frame.Encode(port, len(pkt), frame.FlagDataValid|frame.FlagStartValid)
	if err != nil {
		return err
	}
	image := make([]byte, frame.HeaderLen+len(pkt))
	word.Put(image)
	copy(image[frame.HeaderLen:], pkt)

	s.mu.Lock()
	s.rxq = append(s.rxq, rxFrame{port: port, image: image})
	s.bumpLocked(s.prof.PortRxPkts[port])
	s.mu.Unlock()

	s.raisePending()
	return nil
}

// InjectRaw queues an arbitrary FIFO image without encoding a header.
// Tests use it to present malformed frames to the receive path.
func (s *Sim) InjectRaw(port core.PortID, image []byte) {
	buf := make([]byte, len(image))
	copy(buf, image)
	s.mu.Lock()
	s.rxq = append(s.rxq, rxFrame{port: port, image: buf})
	s.mu.Unlock()
	s.raisePending()
}

func (s *Sim) raisePending() {
	select {
	case s.pending <- struct{}{}:
	default:
	}
}

func (s *Sim) bumpLocked(addr uint16) {
	s.regs[addr] = s.regs[addr] + 1
}
