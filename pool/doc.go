// Package pool provides a bounded parallel executor for binary asset
// downloads, with a FIFO task queue, per-slot liveness handshakes, a
// configurable execution watchdog, progress reporting, and advisory
// cancellation.
//
// # Design
//
//   - Coordinator: a single event-loop goroutine owns the task queue
//     and the slot table. Callers, timers, and slot readers only post
//     events to it, so the coordinator's data structures need no locks.
//
//   - Slots: one slot is one unit of parallelism, bound to one live
//     worker. Slots are created lazily up to the parallelism bound
//     (host CPUs clamped to [1,4] by default) and recycled across many
//     tasks. A slot that turns out to be non-alive — failed handshake,
//     transport or decode fault, expired watchdog — is pruned, and a
//     replacement is created on the next need.
//
//   - Handshake: before each dispatch the coordinator sends a ping and
//     waits up to HandshakeTimeout for the ready ack. A miss fails that
//     task with ErrHandshakeTimeout; the task is not retried on another
//     slot.
//
//   - Watchdog: TaskTimeout covers the whole execution after dispatch.
//     Asset downloads can legitimately run for tens of minutes, so the
//     default ceiling is 30m and explicitly configurable.
//
//   - Cancellation: cancelling the Submit ctx rejects the caller
//     immediately with ErrAborted. A queued task never starts; a
//     running task gets an advisory abort message and its slot frees
//     up only once the worker reports a terminal message.
//
//   - Wire protocol: coordinator and worker exchange JSON Envelopes
//     (download/abort/ping → ready/progress/result/error) over a
//     Transport. The default WorkerFactory connects an in-process
//     ServeWorker over a real JSON pipe; a malformed message is a
//     decode fault that kills the slot, exactly as it would across a
//     process boundary.
//
// # Basic usage
//
//	p := pool.New(pool.Options{Parallelism: 2})
//	defer p.Close()
//
//	res, err := p.Submit(ctx, pool.Request{
//	    Endpoints:  []string{"https://cdn-a/rock.glb", "https://cdn-b/rock.glb"},
//	    OnProgress: func(v int) { fmt.Printf("\r%d%%", v) },
//	})
//
// # Failure isolation
//
// Every task settles with exactly one outcome: the Result, or one of
// ErrWorkerUnavailable, ErrHandshakeTimeout, ErrTaskTimeout,
// ErrAborted, ErrMessageDecode, ErrPoolClosed, or a *RemoteError
// carrying the worker's message verbatim. A failing task never affects
// other queued or running tasks.
package pool
