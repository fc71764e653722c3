package frame

import (
	"errors"
	"testing"

	"firestige.xyz/twinport/internal/core"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	w, err := Encode(core.Port2, 64, FlagDataValid)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	h, err := Decode(w)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if h.Port != core.Port2 {
		t.Errorf("Expected port %v, got %v", core.Port2, h.Port)
	}
	if h.Size != 64 {
		t.Errorf("Expected size 64, got %d", h.Size)
	}
	if h.Flags != FlagDataValid {
		t.Errorf("Expected flags %#x, got %#x", FlagDataValid, h.Flags)
	}
}

func TestEncodeAllFlags(t *testing.T) {
	flags := FlagDataValid | FlagStartValid | FlagVLANSkip | FlagNoFCS
	w, err := Encode(core.Port1, 1500, flags)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	h, err := Decode(w)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if h.Flags != flags {
		t.Errorf("Expected flags %#x, got %#x", flags, h.Flags)
	}
	if h.Port != core.Port1 || h.Size != 1500 {
		t.Errorf("Unexpected header %+v", h)
	}
}

func TestEncodeOversizeRejected(t *testing.T) {
	_, err := Encode(core.Port1, MaxPayload+1, FlagDataValid)
	if !errors.Is(err, core.ErrEncoding) {
		t.Fatalf("Expected ErrEncoding, got %v", err)
	}

	// FIFO capacity itself is still valid.
	if _, err := Encode(core.Port1, MaxPayload, FlagDataValid); err != nil {
		t.Fatalf("Encode at capacity failed: %v", err)
	}
}

func TestDecodeNotReadyWords(t *testing.T) {
	for _, w := range []Word{0x00000000, 0xFFFFFFFF} {
		_, err := Decode(w)
		if !errors.Is(err, core.ErrNoFrame) {
			t.Errorf("Decode(%#x): expected ErrNoFrame, got %v", uint32(w), err)
		}
	}
}

func TestDecodeOversizeHeader(t *testing.T) {
	// A header claiming 3000 bytes is malformed regardless of flags.
	w := Word(1<<31) | Word(3000)
	_, err := Decode(w)
	if !errors.Is(err, core.ErrEncoding) {
		t.Fatalf("Expected ErrEncoding, got %v", err)
	}
}

func TestWordWireFormat(t *testing.T) {
	w, err := Encode(core.Port2, 0x0102, FlagDataValid)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var buf [HeaderLen]byte
	w.Put(buf[:])

	// Big-endian: data-valid in the top bit, port select in bits 17:16,
	// size in the low half.
	if buf[0]&0x80 == 0 {
		t.Error("data-valid bit not in the top byte")
	}
	if buf[1]&0x03 != uint8(core.Port2) {
		t.Errorf("port select bits wrong: %#x", buf[1])
	}
	if buf[2] != 0x01 || buf[3] != 0x02 {
		t.Errorf("size bytes wrong: %#x %#x", buf[2], buf[3])
	}

	got, err := WordFromBytes(buf[:])
	if err != nil {
		t.Fatalf("WordFromBytes failed: %v", err)
	}
	if got != w {
		t.Errorf("Round trip mismatch: %#x != %#x", got, w)
	}
}

func TestWordFromBytesShort(t *testing.T) {
	_, err := WordFromBytes([]byte{0x01, 0x02})
	if !errors.Is(err, core.ErrFrameTooShort) {
		t.Fatalf("Expected ErrFrameTooShort, got %v", err)
	}
}
