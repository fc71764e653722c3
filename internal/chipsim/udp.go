package chipsim

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"firestige.xyz/twinport/internal/core"
	"firestige.xyz/twinport/internal/frame"
)

// UDPBridge binds a simulated physical port to a UDP socket pair, the way
// a socket netdev attaches a virtual NIC: datagrams arriving on the listen
// address are injected as ingress frames, and egress frames are sent to
// the peer address. External tools (the inject command) talk to these
// sockets.
type UDPBridge struct {
	sim  *Sim
	port core.PortID
	conn net.PacketConn
	peer *net.UDPAddr
}

// AttachUDP wires a port to listen/peer UDP addresses and starts the
// ingress reader. Close the returned bridge to detach.
func AttachUDP(ctx context.Context, sim *Sim, port core.PortID, listen, peer string) (*UDPBridge, error) {
	if !port.IsPhysical() {
		return nil, fmt.Errorf("udp bridge on %s", port)
	}
	conn, err := net.ListenPacket("udp", listen)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s bridge: %w", port, err)
	}
	peerAddr, err := net.ResolveUDPAddr("udp", peer)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("bad peer address %q: %w", peer, err)
	}
	b := &UDPBridge{sim: sim, port: port, conn: conn, peer: peerAddr}

	sim.OnEgress(port, func(_ core.PortID, pkt []byte) {
		if _, err := b.conn.WriteTo(pkt, b.peer); err != nil {
			slog.Debug("udp bridge egress failed", "port", port.String(), "error", err)
		}
	})

	go b.readLoop(ctx)
	slog.Info("udp bridge attached", "port", port.String(), "listen", listen, "peer", peer)
	return b, nil
}

func (b *UDPBridge) readLoop(ctx context.Context) {
	buf := make([]byte, frame.MaxPayload)
	for {
		n, _, err := b.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Debug("udp bridge read failed", "port", b.port.String(), "error", err)
			return
		}
		if err := b.sim.Inject(b.port, buf[:n]); err != nil {
			slog.Debug("udp bridge inject failed", "port", b.port.String(), "error", err)
		}
	}
}

// Close detaches the bridge.
func (b *UDPBridge) Close() error {
	return b.conn.Close()
}
