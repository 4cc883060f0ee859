package pool

// Outcome labels a task's terminal state for metrics.
type Outcome string

const (
	OutcomeOK                Outcome = "ok"
	OutcomeRemoteError       Outcome = "remote_error"
	OutcomeHandshakeTimeout  Outcome = "handshake_timeout"
	OutcomeTimeout           Outcome = "timeout"
	OutcomeAborted           Outcome = "aborted"
	OutcomeDecodeError       Outcome = "decode_error"
	OutcomeWorkerUnavailable Outcome = "worker_unavailable"
	OutcomeClosed            Outcome = "closed"
)

// Metrics exposes pool-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	QueueDepth(n int)
	BusySlots(n int)
	TaskDone(o Outcome)
	SlotDied()
}

// NoopMetrics is a drop-in Metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) QueueDepth(int)   {}
func (NoopMetrics) BusySlots(int)    {}
func (NoopMetrics) TaskDone(Outcome) {}
func (NoopMetrics) SlotDied()        {}

var _ Metrics = NoopMetrics{}
