package watchdog

// Recorder receives telemetry about supervision decisions. Implemented
// by the metrics package; the core never depends on a metrics backend.
type Recorder interface {
	RecordPhase(worker string, phase Phase)
	RecordRestart(worker string)
	RecordFailure(worker string, reason ExitReason)
	RecordRSS(worker string, bytes uint64)
}

// LimitEnforcer applies kernel-level resource ceilings to a worker
// process and reports limit kills after exit. Implemented by the limits
// package.
type LimitEnforcer interface {
	// Apply attaches pid to the worker's ceiling. Best-effort: an error
	// here is logged, never fatal.
	Apply(worker string, pid int) error

	// Enforcing reports whether kernel enforcement is active for the
	// worker's current run. When it is not, the watchdog falls back to
	// RSS polling.
	Enforcing(worker string) bool

	// OOMKilled reports whether the worker's last exit was a kernel
	// memory-limit kill.
	OOMKilled(worker string) bool

	// Release drops per-run enforcement state after the worker exits
	Release(worker string)
}

type nopRecorder struct{}

func (nopRecorder) RecordPhase(string, Phase)        {}
func (nopRecorder) RecordRestart(string)             {}
func (nopRecorder) RecordFailure(string, ExitReason) {}
func (nopRecorder) RecordRSS(string, uint64)         {}
