package pool

import "context"

// Request describes one unit of download work.
type Request struct {
	// Endpoints is the ordered candidate list. The worker tries the
	// next endpoint only after the current one fails outright.
	Endpoints []string

	// OnProgress, if set, receives monotonically increasing values in
	// [0, 100]; 100 is emitted exactly once, on success. It is called
	// from the pool's coordinator goroutine and must not block.
	OnProgress func(value int)
}

// Result is the terminal payload of a successful task.
type Result struct {
	Bytes          []byte
	MIMEType       string
	Filename       string
	SourceEndpoint string
}

// task is the coordinator-owned lifecycle record of one submission.
// All fields except done/res/err are touched only by the event loop;
// res and err are published before done is closed.
type task struct {
	id  string
	req Request
	ctx context.Context

	res  Result
	err  error
	done chan struct{}

	settled      bool  // loop-owned
	slot         *slot // loop-owned; nil while queued
	lastProgress int   // loop-owned; last value forwarded to OnProgress
}

// dequeue removes t from q, preserving FIFO order of the rest.
func dequeue(q []*task, t *task) []*task {
	for i, qt := range q {
		if qt == t {
			return append(q[:i], q[i+1:]...)
		}
	}
	return q
}
