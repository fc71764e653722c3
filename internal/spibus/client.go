package spibus

import (
	"encoding/binary"
	"fmt"
	"sync"

	"firestige.xyz/twinport/internal/core"
)

// Client issues synchronous request-response exchanges over the duplex
// channel. Each method performs exactly one exchange and may block on the
// underlying channel; callers must therefore run in blocking-capable
// contexts. The client buffers nothing and retries nothing: transport
// failures surface wrapped in core.ErrChannel, uninterpreted, and retry
// policy stays with the caller.
//
// A single mutex serializes all exchanges. The receive loop, the transmit
// drain worker and the link monitor share one physical channel, so at most
// one transaction may be in flight at a time.
type Client struct {
	mu sync.Mutex
	ex Exchanger
}

// NewClient wraps an Exchanger in a transaction-serializing client.
func NewClient(ex Exchanger) *Client {
	return &Client{ex: ex}
}

// ReadReg reads one 32-bit register.
func (c *Client) ReadReg(addr uint16) (uint32, error) {
	tx := make([]byte, CmdLen+RegWordLen)
	putCmd(tx, OpRegRead, addr)
	rx, err := c.exchange(tx)
	if err != nil {
		return 0, channelErr("read_reg", addr, err)
	}
	return binary.BigEndian.Uint32(rx[CmdLen:]), nil
}

// WriteReg writes one 32-bit register.
func (c *Client) WriteReg(addr uint16, val uint32) error {
	tx := make([]byte, CmdLen+RegWordLen)
	putCmd(tx, OpRegWrite, addr)
	binary.BigEndian.PutUint32(tx[CmdLen:], val)
	if _, err := c.exchange(tx); err != nil {
		return channelErr("write_reg", addr, err)
	}
	return nil
}

// ReadFIFO burst-reads up to maxLen bytes from a FIFO address.
func (c *Client) ReadFIFO(addr uint16, maxLen int) ([]byte, error) {
	if maxLen <= 0 {
		return nil, fmt.Errorf("%w: fifo read of %d bytes", core.ErrChannel, maxLen)
	}
	tx := make([]byte, CmdLen+maxLen)
	putCmd(tx, OpFIFORead, addr)
	rx, err := c.exchange(tx)
	if err != nil {
		return nil, channelErr("read_fifo", addr, err)
	}
	return rx[CmdLen:], nil
}

// WriteFIFO burst-writes payload to a FIFO address.
func (c *Client) WriteFIFO(addr uint16, payload []byte) error {
	tx := make([]byte, CmdLen+len(payload))
	putCmd(tx, OpFIFOWrite, addr)
	copy(tx[CmdLen:], payload)
	if _, err := c.exchange(tx); err != nil {
		return channelErr("write_fifo", addr, err)
	}
	return nil
}

// exchange runs one serialized duplex transaction and validates the
// equal-length contract.
func (c *Client) exchange(tx []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rx, err := c.ex.Exchange(tx)
	if err != nil {
		return nil, err
	}
	if len(rx) != len(tx) {
		return nil, fmt.Errorf("short exchange: sent %d bytes, got %d", len(tx), len(rx))
	}
	return rx, nil
}

func putCmd(b []byte, op byte, addr uint16) {
	b[0] = op
	binary.BigEndian.PutUint16(b[1:3], addr)
	b[3] = 0
}

func channelErr(op string, addr uint16, err error) error {
	return fmt.Errorf("%w: %s 0x%04x: %v", core.ErrChannel, op, addr, err)
}
