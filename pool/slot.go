package pool

import "time"

// slotState tracks where a slot is in its Idle → Busy cycle. A dead
// slot is removed from the table instead of carrying a state.
type slotState int

const (
	slotIdle slotState = iota
	slotHandshaking
	slotBusy
)

// slot is one unit of bounded parallelism: a live worker transport plus
// the coordinator's bookkeeping for it. Slots persist across tasks and
// are recycled; they are pruned only when the worker turns out to be
// non-alive (handshake failure, transport or decode fault, watchdog).
// All fields are owned by the event loop.
type slot struct {
	id    int
	tr    Transport
	out   chan Envelope // outbound messages, drained by writeLoop
	state slotState
	cur   *task // task being handshaken for or executed

	hsTimer *time.Timer // pending handshake deadline
	wdTimer *time.Timer // pending watchdog
}

// stopTimers cancels any pending handshake/watchdog timers. Late fires
// are harmless: timer events carry the task id and are ignored when
// stale.
func (s *slot) stopTimers() {
	if s.hsTimer != nil {
		s.hsTimer.Stop()
		s.hsTimer = nil
	}
	if s.wdTimer != nil {
		s.wdTimer.Stop()
		s.wdTimer = nil
	}
}
