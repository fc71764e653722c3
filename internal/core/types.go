// Package core defines core data structures with zero external dependencies.
package core

import (
	"fmt"
	"net"
	"time"
)

// PortID identifies a switch port. The two physical ports map to the 2-bit
// port-select field of the frame header; the host port is a logical port
// that never appears on the wire.
type PortID uint8

const (
	Port1 PortID = 0
	Port2 PortID = 1
	// PortHost is the logical port facing the host network stack.
	PortHost PortID = 2
	// PortInvalid marks the absence of an egress decision.
	PortInvalid PortID = 0xFF

	// NumPhysPorts is the number of physical ports on the switch.
	NumPhysPorts = 2
)

// PhysPorts lists the physical ports in port-number order.
var PhysPorts = [NumPhysPorts]PortID{Port1, Port2}

func (p PortID) String() string {
	switch p {
	case Port1:
		return "port1"
	case Port2:
		return "port2"
	case PortHost:
		return "host"
	default:
		return fmt.Sprintf("port?(%d)", uint8(p))
	}
}

// IsPhysical reports whether p is one of the physical switch ports.
func (p PortID) IsPhysical() bool {
	return p == Port1 || p == Port2
}

// MAC is an Ethernet hardware address.
type MAC [6]byte

// BroadcastMAC is the Ethernet broadcast address.
var BroadcastMAC = MAC{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// MACFromBytes copies the first 6 bytes of b into a MAC.
func MACFromBytes(b []byte) (MAC, error) {
	var m MAC
	if len(b) < len(m) {
		return m, ErrFrameTooShort
	}
	copy(m[:], b)
	return m, nil
}

// ParseMAC parses a textual address like "02:00:00:00:00:01".
func ParseMAC(s string) (MAC, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return MAC{}, err
	}
	return MACFromBytes(hw)
}

func (m MAC) String() string {
	return net.HardwareAddr(m[:]).String()
}

// IsBroadcast reports whether m is the all-ones broadcast address.
func (m MAC) IsBroadcast() bool {
	return m == BroadcastMAC
}

// IsMulticast reports whether the group bit is set. Broadcast is a special
// case of multicast and also satisfies this predicate.
func (m MAC) IsMulticast() bool {
	return m[0]&0x01 != 0
}

// PendingPacket is an outbound descriptor. It owns its packet bytes from
// enqueue until the drain worker hands them to the transport.
type PendingPacket struct {
	Port       PortID
	Data       []byte
	EnqueuedAt time.Time
}

// PortState is the per-port status and counter snapshot. It is mutated by
// the receive path (frame arrival) and the link monitor (status poll) and
// read for reporting.
type PortState struct {
	Port     PortID
	Enabled  bool
	LinkUp   bool
	RxPkts   uint64
	TxPkts   uint64
	RxBytes  uint64
	TxBytes  uint64
	RxErrors uint64
	TxErrors uint64
}
