package pool

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Message kinds exchanged between the coordinator and a worker.
const (
	// coordinator → worker
	KindDownload = "download"
	KindAbort    = "abort"
	KindPing     = "ping"

	// worker → coordinator
	KindReady    = "ready"
	KindProgress = "progress"
	KindResult   = "result"
	KindError    = "error"
)

// Envelope is the single JSON message shape crossing the parallelism
// boundary. Unused fields are omitted per kind.
type Envelope struct {
	Kind string `json:"kind"`

	// Set on download, abort, progress, result, error.
	ID string `json:"requestId,omitempty"`

	// download
	URLs []string `json:"urlCandidates,omitempty"`

	// progress, 0..99
	Value int `json:"value,omitempty"`

	// result
	URL      string `json:"url,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
	Filename string `json:"filename,omitempty"`
	Data     []byte `json:"buffer,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

// Transport carries Envelopes between the coordinator and one worker.
// Send may be called from one goroutine at a time per side; Recv blocks
// until a message or a transport fault.
type Transport interface {
	Send(Envelope) error
	Recv() (Envelope, error)
	Close() error
}

// WorkerFactory produces the coordinator-side transport of a live
// worker. The pool calls it lazily, at most once per slot.
type WorkerFactory func() (Transport, error)

// jsonTransport frames Envelopes as a JSON stream over an io pipe.
type jsonTransport struct {
	mu  sync.Mutex
	enc *json.Encoder
	dec *json.Decoder
	w   io.Closer
	r   io.Closer
}

func (t *jsonTransport) Send(env Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enc.Encode(env); err != nil {
		return fmt.Errorf("pool: send %s: %w", env.Kind, err)
	}
	return nil
}

func (t *jsonTransport) Recv() (Envelope, error) {
	var env Envelope
	if err := t.dec.Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMessageDecode, err)
	}
	return env, nil
}

func (t *jsonTransport) Close() error {
	_ = t.w.Close()
	return t.r.Close()
}

// NewPipeTransport returns a connected coordinator/worker transport
// pair backed by in-process pipes. Messages really are encoded and
// decoded as JSON, so protocol faults surface the same way they would
// across a process boundary.
func NewPipeTransport() (coordinator, worker Transport) {
	cr, ww := io.Pipe() // worker writes, coordinator reads
	wr, cw := io.Pipe() // coordinator writes, worker reads

	coordinator = &jsonTransport{
		enc: json.NewEncoder(cw),
		dec: json.NewDecoder(cr),
		w:   cw,
		r:   cr,
	}
	worker = &jsonTransport{
		enc: json.NewEncoder(ww),
		dec: json.NewDecoder(wr),
		w:   ww,
		r:   wr,
	}
	return coordinator, worker
}
