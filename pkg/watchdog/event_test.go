package watchdog

import (
	"syscall"
	"testing"
)

func TestClassifyExit(t *testing.T) {
	tests := []struct {
		name      string
		status    ExitStatus
		memKilled bool
		expected  ExitReason
	}{
		{"clean exit", ExitStatus{Code: 0}, false, ReasonNormalExit},
		{"non-zero exit", ExitStatus{Code: 1}, false, ReasonCrash},
		{"exit 137", ExitStatus{Code: 137}, false, ReasonCrash},
		{"sigterm", ExitStatus{Code: -1, Signaled: true, Signal: syscall.SIGTERM}, false, ReasonSignal},
		{"sigsegv", ExitStatus{Code: -1, Signaled: true, Signal: syscall.SIGSEGV}, false, ReasonSignal},
		{"memory kill overrides signal", ExitStatus{Code: -1, Signaled: true, Signal: syscall.SIGKILL}, true, ReasonMemoryLimit},
		{"memory kill overrides code", ExitStatus{Code: 137}, true, ReasonMemoryLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyExit(&tt.status, tt.memKilled); got != tt.expected {
				t.Errorf("ClassifyExit(%+v, %v) = %s, want %s", tt.status, tt.memKilled, got, tt.expected)
			}
		})
	}
}

func TestExitReasonIsFailure(t *testing.T) {
	failures := []ExitReason{ReasonCrash, ReasonSignal, ReasonMemoryLimit, ReasonLaunchError}
	for _, r := range failures {
		if !r.IsFailure() {
			t.Errorf("%s should count as a failure", r)
		}
	}

	nonFailures := []ExitReason{ReasonNormalExit, ReasonManualStop, ReasonNone}
	for _, r := range nonFailures {
		if r.IsFailure() {
			t.Errorf("%s should not count as a failure", r)
		}
	}
}

func TestSignalName(t *testing.T) {
	tests := []struct {
		sig      syscall.Signal
		expected string
	}{
		{syscall.SIGKILL, "SIGKILL"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGSEGV, "SIGSEGV"},
		{syscall.Signal(64), "SIG64"},
	}

	for _, tt := range tests {
		if got := SignalName(tt.sig); got != tt.expected {
			t.Errorf("SignalName(%d) = %s, want %s", tt.sig, got, tt.expected)
		}
	}
}
