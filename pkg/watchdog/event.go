package watchdog

import (
	"fmt"
	"syscall"
	"time"
)

// ExitReason describes why a worker left its previous phase
type ExitReason string

const (
	ReasonNormalExit  ExitReason = "normal_exit"  // Exit code 0, no stop requested
	ReasonCrash       ExitReason = "crash"        // Non-zero exit code
	ReasonSignal      ExitReason = "signal"       // Terminated by signal
	ReasonMemoryLimit ExitReason = "memory_limit" // Killed for exceeding the memory ceiling
	ReasonLaunchError ExitReason = "launch_error" // Executable missing or spawn failed
	ReasonManualStop  ExitReason = "manual_stop"  // Operator-requested stop
	ReasonNone        ExitReason = ""             // Transition not caused by an exit
)

// LifecycleEvent is an immutable record of a single phase transition.
// Exactly one event is emitted per transition; serialization is the
// sink's concern.
type LifecycleEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Worker    string        `json:"worker"`
	Phase     Phase         `json:"phase"`
	Reason    ExitReason    `json:"reason,omitempty"`
	PID       int           `json:"pid,omitempty"`
	ExitCode  int           `json:"exit_code"`
	Signal    string        `json:"signal,omitempty"`
	Failures  int           `json:"failure_count"`
	Backoff   time.Duration `json:"backoff,omitempty"`
	Message   string        `json:"message,omitempty"`
}

// EventSink consumes lifecycle events. Implementations must not block;
// a slow or failing sink never delays restart decisions.
type EventSink interface {
	Emit(event LifecycleEvent)
}

// NopSink discards all events
type NopSink struct{}

func (NopSink) Emit(LifecycleEvent) {}

// IsFailure reports whether the reason counts against the
// consecutive-failure ceiling
func (r ExitReason) IsFailure() bool {
	return r == ReasonCrash || r == ReasonSignal || r == ReasonMemoryLimit || r == ReasonLaunchError
}

// ClassifyExit determines the exit reason for a reaped child.
// memKilled is set when the supervisor (or the kernel OOM killer acting on
// the configured ceiling) terminated the child for exceeding its memory
// limit; that case is tagged distinctly from an application crash.
func ClassifyExit(status *ExitStatus, memKilled bool) ExitReason {
	if memKilled {
		return ReasonMemoryLimit
	}

	if status.Signaled {
		return ReasonSignal
	}

	if status.Code == 0 {
		return ReasonNormalExit
	}

	return ReasonCrash
}

// SignalName returns the signal name for a signal number
func SignalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGKILL:
		return "SIGKILL"
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGHUP:
		return "SIGHUP"
	case syscall.SIGQUIT:
		return "SIGQUIT"
	case syscall.SIGABRT:
		return "SIGABRT"
	case syscall.SIGSEGV:
		return "SIGSEGV"
	case syscall.SIGPIPE:
		return "SIGPIPE"
	case syscall.SIGXCPU:
		return "SIGXCPU"
	case syscall.SIGXFSZ:
		return "SIGXFSZ"
	default:
		return fmt.Sprintf("SIG%d", sig)
	}
}
