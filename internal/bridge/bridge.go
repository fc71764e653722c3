// Package bridge implements the forwarding decision engine: the standard
// learning-bridge algorithm extended with a distinguished host port.
package bridge

import (
	"firestige.xyz/twinport/internal/core"
	"firestige.xyz/twinport/internal/fdb"
)

// Decision describes where an ingress frame goes. Flood means every
// physical port except ingress; Egress is only meaningful when Flood is
// false and carries core.PortInvalid when the frame stays off the wire.
type Decision struct {
	DeliverHost bool
	Flood       bool
	Egress      core.PortID
}

// Bridge decides frame delivery against the learning table.
type Bridge struct {
	table   *fdb.Table
	hostMAC core.MAC

	// promisc controls whether flooded traffic is additionally copied
	// to the host. Defaults to on in config.
	promisc bool
}

// New creates a bridge over the given table.
func New(table *fdb.Table, hostMAC core.MAC, promisc bool) *Bridge {
	return &Bridge{table: table, hostMAC: hostMAC, promisc: promisc}
}

// HostMAC returns the address claimed by the host port.
func (b *Bridge) HostMAC() core.MAC {
	return b.hostMAC
}

// Decide maps (ingress port, destination address) to a delivery decision:
//
//   - broadcast/multicast: flood all non-ingress ports, host copy when
//     promiscuous delivery is on
//   - host's own address: deliver to host only
//   - unicast hit: forward to the learned egress port only (cut-through,
//     no host involvement)
//   - unicast miss: flood all non-ingress ports; the reply, once seen,
//     drives the learning step
func (b *Bridge) Decide(ingress core.PortID, dst core.MAC) Decision {
	if dst == b.hostMAC {
		return Decision{DeliverHost: true, Egress: core.PortInvalid}
	}
	if dst.IsMulticast() {
		return Decision{DeliverHost: b.promisc, Flood: true, Egress: core.PortInvalid}
	}
	if port, ok := b.table.Lookup(dst); ok {
		if port == ingress {
			// Destination lives on the port the frame came from;
			// nothing to do.
			return Decision{Egress: core.PortInvalid}
		}
		if port == core.PortHost {
			return Decision{DeliverHost: true, Egress: core.PortInvalid}
		}
		return Decision{Egress: port}
	}
	// Unknown unicast: flood-on-miss, standard learning-bridge behavior.
	return Decision{DeliverHost: b.promisc, Flood: true, Egress: core.PortInvalid}
}
