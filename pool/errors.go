package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkerUnavailable — the worker factory failed, so the task
	// could not be handed to any execution slot.
	ErrWorkerUnavailable = errors.New("pool: worker unavailable")

	// ErrHandshakeTimeout — the slot did not acknowledge the liveness
	// probe in time. The task is not retried on another slot.
	ErrHandshakeTimeout = errors.New("pool: handshake timeout")

	// ErrTaskTimeout — the watchdog expired before the slot reported a
	// terminal result.
	ErrTaskTimeout = errors.New("pool: task watchdog expired")

	// ErrAborted — the caller cancelled the task.
	ErrAborted = errors.New("pool: aborted by caller")

	// ErrMessageDecode — a malformed or out-of-protocol message arrived
	// from the worker; the slot is discarded.
	ErrMessageDecode = errors.New("pool: message decode failed")

	// ErrPoolClosed — the pool is closed.
	ErrPoolClosed = errors.New("pool: closed")
)

// RemoteError carries a fetch failure reported by the worker, verbatim.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("pool: remote fetch failed: %s", e.Message)
}
