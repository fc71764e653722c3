// Package spibus implements the serial transport client: synchronous
// register and FIFO exchanges over a byte-oriented duplex channel.
package spibus

// Exchanger is the byte-oriented duplex channel under the client. A call
// clocks len(tx) bytes out and the same number of bytes in, one transaction
// at a time. Implementations may block for the duration of the exchange.
//
// The chip-specific side of the bus (a real SPI controller, or the
// in-memory chip simulator) plugs in here.
type Exchanger interface {
	Exchange(tx []byte) (rx []byte, err error)
}

// Wire framing shared by the client and the device side. Every exchange
// starts with a 4-byte command header: an opcode byte, a big-endian 16-bit
// register address and one turnaround byte. Register exchanges carry one
// 32-bit big-endian word after the header; FIFO exchanges carry the burst
// payload.
const (
	CmdLen = 4

	OpRegWrite  = 0x00
	OpRegRead   = 0x80
	OpFIFOWrite = 0x40
	OpFIFORead  = 0xC0

	RegWordLen = 4
)
