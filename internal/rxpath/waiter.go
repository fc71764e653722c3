package rxpath

import (
	"context"
	"time"
)

// PollWaiter is the timed-poll fallback for devices without a usable
// data-pending interrupt: it wakes the receive loop on a fixed interval
// and lets the RX size register say whether anything is actually there.
type PollWaiter struct {
	interval time.Duration
}

// NewPollWaiter creates a waiter ticking at the given interval.
func NewPollWaiter(interval time.Duration) *PollWaiter {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	return &PollWaiter{interval: interval}
}

// WaitPending blocks for one poll interval or until ctx is cancelled. The
// returned mask claims all ports; a poll cannot know better and the
// receive loop treats the mask as a hint anyway.
func (w *PollWaiter) WaitPending(ctx context.Context) (uint8, error) {
	t := time.NewTimer(w.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-t.C:
		return 0x03, nil
	}
}
