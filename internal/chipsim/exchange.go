package chipsim

import (
	"context"
	"encoding/binary"
	"fmt"

	"firestige.xyz/twinport/internal/core"
	"firestige.xyz/twinport/internal/frame"
	"firestige.xyz/twinport/internal/spibus"
)

// Exchange implements the duplex channel: equal-length, synchronous, one
// transaction at a time.
func (s *Sim) Exchange(tx []byte) ([]byte, error) {
	if len(tx) < spibus.CmdLen {
		return nil, fmt.Errorf("runt command of %d bytes", len(tx))
	}
	op := tx[0]
	addr := binary.BigEndian.Uint16(tx[1:3])
	rx := make([]byte, len(tx))

	s.mu.Lock()
	defer s.mu.Unlock()

	switch op {
	case spibus.OpRegRead:
		if len(tx) < spibus.CmdLen+spibus.RegWordLen {
			return nil, fmt.Errorf("short register read of %d bytes", len(tx))
		}
		binary.BigEndian.PutUint32(rx[spibus.CmdLen:], s.readRegLocked(addr))
	case spibus.OpRegWrite:
		if len(tx) < spibus.CmdLen+spibus.RegWordLen {
			return nil, fmt.Errorf("short register write of %d bytes", len(tx))
		}
		s.writeRegLocked(addr, binary.BigEndian.Uint32(tx[spibus.CmdLen:]))
	case spibus.OpFIFOWrite:
		s.fifoWriteLocked(addr, tx[spibus.CmdLen:])
	case spibus.OpFIFORead:
		s.fifoReadLocked(addr, rx[spibus.CmdLen:])
	default:
		return nil, fmt.Errorf("unknown opcode 0x%02x", op)
	}
	return rx, nil
}

func (s *Sim) readRegLocked(addr uint16) uint32 {
	if addr == s.prof.RxSize {
		if len(s.rxq) == 0 {
			return 0
		}
		return uint32(len(s.rxq[0].image))
	}
	return s.regs[addr]
}

func (s *Sim) writeRegLocked(addr uint16, val uint32) {
	if addr == s.prof.Reset && val&spibus.ResetSoft != 0 {
		// Soft reset drops queued frames and interrupt state but keeps
		// link and counter registers, like the reference model.
		s.rxq = nil
		s.regs[s.prof.IntStatus] = 0
		s.regs[s.prof.Status] = spibus.StatusReady
		return
	}
	s.regs[addr] = val
}

// fifoWriteLocked models the transmit FIFO: the control word picks the
// egress port and the payload goes out on its wire.
func (s *Sim) fifoWriteLocked(addr uint16, image []byte) {
	if addr != s.prof.TxFIFO {
		return
	}
	word, err := frame.WordFromBytes(image)
	if err != nil {
		return
	}
	hdr, err := frame.Decode(word)
	if err != nil || !hdr.Port.IsPhysical() {
		return
	}
	if hdr.Size > len(image)-frame.HeaderLen {
		s.bumpLocked(s.prof.PortTxErrs[hdr.Port])
		return
	}
	pkt := make([]byte, hdr.Size)
	copy(pkt, image[frame.HeaderLen:])
	s.bumpLocked(s.prof.PortTxPkts[hdr.Port])
	if fn := s.egress[hdr.Port]; fn != nil {
		// Callback runs outside the lock to keep egress observers free
		// to re-enter the simulator.
		s.mu.Unlock()
		fn(hdr.Port, pkt)
		s.mu.Lock()
	}
}

// fifoReadLocked pops the frame at the head of the receive FIFO into dst;
// a shorter dst truncates, a longer one is zero-filled.
func (s *Sim) fifoReadLocked(addr uint16, dst []byte) {
	if addr != s.prof.RxFIFO || len(s.rxq) == 0 {
		return
	}
	head := s.rxq[0]
	s.rxq = s.rxq[1:]
	copy(dst, head.image)
	if len(s.rxq) > 0 {
		// More frames queued; keep the loop awake.
		select {
		case s.pending <- struct{}{}:
		default:
		}
	}
}

// WaitPending blocks until the receive FIFO holds at least one frame or
// ctx is cancelled, and returns the mask of ports with queued frames.
func (s *Sim) WaitPending(ctx context.Context) (uint8, error) {
	for {
		s.mu.Lock()
		if len(s.rxq) > 0 {
			var mask uint8
			for _, f := range s.rxq {
				mask |= 1 << uint8(f.port)
			}
			s.mu.Unlock()
			return mask, nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-s.pending:
		}
	}
}

// PortRxCount reads back the hardware ingress counter, for tests.
func (s *Sim) PortRxCount(port core.PortID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(s.regs[s.prof.PortRxPkts[port]])
}
