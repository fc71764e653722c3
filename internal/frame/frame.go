// Package frame implements the 4-byte control word that precedes every
// FIFO payload on the serial channel.
package frame

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/twinport/internal/core"
)

const (
	// HeaderLen is the encoded size of a control word on the wire.
	HeaderLen = 4

	// MaxPayload is the per-port FIFO capacity. A header advertising a
	// larger payload is malformed by definition.
	MaxPayload = 2048
)

// Flags carries the control-word flag bits.
type Flags uint8

const (
	// FlagDataValid marks the word as describing frame data.
	FlagDataValid Flags = 1 << 0
	// FlagStartValid marks the start of a frame (set together with
	// FlagDataValid on non-fragmented transfers).
	FlagStartValid Flags = 1 << 1
	// FlagVLANSkip asks the MAC to bypass VLAN filtering for this frame.
	FlagVLANSkip Flags = 1 << 2
	// FlagNoFCS tells the MAC not to copy the frame check sequence.
	FlagNoFCS Flags = 1 << 3
)

// Word is an encoded control word.
//
// Layout: bits [15:0] payload size, bits [17:16] port select, bit 28
// do-not-copy-FCS, bit 29 VLAN-skip, bit 30 start-valid, bit 31 data-valid.
type Word uint32

const (
	sizeMask  = 0x0000FFFF
	portShift = 16
	portMask  = 0x3

	bitNoFCS      = 1 << 28
	bitVLANSkip   = 1 << 29
	bitStartValid = 1 << 30
	bitDataValid  = 1 << 31

	// A transport that is not ready answers a read with all ones (bus
	// floating high) or all zeros (device in reset). Neither is a frame.
	wordNotReadyHigh Word = 0xFFFFFFFF
	wordNotReadyLow  Word = 0x00000000
)

// Header is the decoded form of a control word.
type Header struct {
	Port  core.PortID
	Size  int
	Flags Flags
}

// Encode builds a control word. It rejects payload sizes beyond the FIFO
// capacity and ports outside the 2-bit select field.
func Encode(port core.PortID, size int, flags Flags) (Word, error) {
	if size < 0 || size > MaxPayload {
		return 0, fmt.Errorf("%w: payload size %d exceeds fifo capacity %d",
			core.ErrEncoding, size, MaxPayload)
	}
	if uint8(port) > portMask {
		return 0, fmt.Errorf("%w: port %d not encodable in 2-bit select",
			core.ErrEncoding, port)
	}
	w := Word(size) & sizeMask
	w |= Word(port&portMask) << portShift
	if flags&FlagNoFCS != 0 {
		w |= bitNoFCS
	}
	if flags&FlagVLANSkip != 0 {
		w |= bitVLANSkip
	}
	if flags&FlagStartValid != 0 {
		w |= bitStartValid
	}
	if flags&FlagDataValid != 0 {
		w |= bitDataValid
	}
	return w, nil
}

// Decode splits a control word back into its header triple. An all-ones or
// all-zeros word means the transport had nothing to say; it is reported as
// ErrNoFrame, never as a valid zero-length frame.
func Decode(w Word) (Header, error) {
	if w == wordNotReadyHigh || w == wordNotReadyLow {
		return Header{}, core.ErrNoFrame
	}
	h := Header{
		Port: core.PortID((w >> portShift) & portMask),
		Size: int(w & sizeMask),
	}
	if w&bitNoFCS != 0 {
		h.Flags |= FlagNoFCS
	}
	if w&bitVLANSkip != 0 {
		h.Flags |= FlagVLANSkip
	}
	if w&bitStartValid != 0 {
		h.Flags |= FlagStartValid
	}
	if w&bitDataValid != 0 {
		h.Flags |= FlagDataValid
	}
	if h.Size > MaxPayload {
		return Header{}, fmt.Errorf("%w: header advertises %d bytes, fifo capacity is %d",
			core.ErrEncoding, h.Size, MaxPayload)
	}
	return h, nil
}

// Put writes the control word big-endian into the first 4 bytes of b.
func (w Word) Put(b []byte) {
	binary.BigEndian.PutUint32(b, uint32(w))
}

// WordFromBytes reads a big-endian control word from the first 4 bytes of b.
func WordFromBytes(b []byte) (Word, error) {
	if len(b) < HeaderLen {
		return 0, core.ErrFrameTooShort
	}
	return Word(binary.BigEndian.Uint32(b)), nil
}
