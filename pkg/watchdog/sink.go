package watchdog

import (
	"github.com/psantana5/procwatch/pkg/logging"
)

// LogSink renders lifecycle events through the structured logger. The
// watchdog itself never writes log files; this sink is the default
// logging collaborator wired in by the CLI.
type LogSink struct {
	log *logging.Logger
}

// NewLogSink creates a sink that writes events via the given logger
func NewLogSink(l *logging.Logger) *LogSink {
	return &LogSink{log: l}
}

// Emit writes one event as a structured log line
func (s *LogSink) Emit(ev LifecycleEvent) {
	fields := map[string]interface{}{
		"worker":        ev.Worker,
		"phase":         string(ev.Phase),
		"failure_count": ev.Failures,
	}
	if ev.Reason != ReasonNone {
		fields["reason"] = string(ev.Reason)
		fields["exit_code"] = ev.ExitCode
	}
	if ev.Signal != "" {
		fields["signal"] = ev.Signal
	}
	if ev.Backoff > 0 {
		fields["backoff"] = ev.Backoff.String()
	}
	if ev.PID > 0 {
		fields["pid"] = ev.PID
	}

	msg := ev.Message
	if msg == "" {
		msg = "Lifecycle transition"
	}

	if ev.Phase == PhaseFailed {
		s.log.Error(msg, fields)
		return
	}
	s.log.Info(msg, fields)
}

// MultiSink fans one event out to several sinks
type MultiSink []EventSink

// Emit delivers the event to every sink in order
func (m MultiSink) Emit(ev LifecycleEvent) {
	for _, s := range m {
		s.Emit(ev)
	}
}
