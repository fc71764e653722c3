// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Steady-state data-plane errors are absorbed into
// counters by the paths that observe them; none of these is fatal to a
// worker loop.
var (
	// Transport errors
	ErrChannel = errors.New("twinport: channel exchange failed")

	// Frame codec errors
	ErrEncoding      = errors.New("twinport: invalid frame header")
	ErrNoFrame       = errors.New("twinport: no frame available")
	ErrFrameTooShort = errors.New("twinport: frame too short")

	// Transmit path errors
	ErrQueueFull     = errors.New("twinport: transmit queue full")
	ErrWatchdog      = errors.New("twinport: transmit path wedged")
	ErrEngineStopped = errors.New("twinport: engine stopped")

	// Configuration errors
	ErrConfigInvalid = errors.New("twinport: invalid configuration")
)
