package watchdog

import "fmt"

// Phase represents the lifecycle phase of a supervised worker
type Phase string

const (
	PhaseStopped     Phase = "stopped"      // No child process, not supervising
	PhaseStarting    Phase = "starting"     // Spawn in progress
	PhaseRunning     Phase = "running"      // Child alive and being polled
	PhaseTerminating Phase = "terminating"  // Graceful shutdown in progress
	PhaseBackoffWait Phase = "backoff_wait" // Child exited, restart scheduled
	PhaseFailed      Phase = "failed"       // Consecutive-failure ceiling hit, terminal
)

// validTransitions maps from-phase to allowed to-phases
var validTransitions = map[Phase]map[Phase]bool{
	PhaseStopped: {
		PhaseStarting: true, // Stopped → Starting (supervisor starts the worker)
	},
	PhaseStarting: {
		PhaseRunning:     true, // Starting → Running (spawn succeeded)
		PhaseBackoffWait: true, // Starting → BackoffWait (spawn failed, retry scheduled)
		PhaseFailed:      true, // Starting → Failed (spawn failed, ceiling hit)
		PhaseTerminating: true, // Starting → Terminating (stop requested mid-start)
	},
	PhaseRunning: {
		PhaseBackoffWait: true, // Running → BackoffWait (child exited, restart scheduled)
		PhaseFailed:      true, // Running → Failed (child exited, ceiling hit)
		PhaseTerminating: true, // Running → Terminating (stop requested)
	},
	PhaseBackoffWait: {
		PhaseStarting:    true, // BackoffWait → Starting (backoff elapsed)
		PhaseTerminating: true, // BackoffWait → Terminating (stop requested)
	},
	PhaseTerminating: {
		PhaseStopped: true, // Terminating → Stopped (child confirmed gone)
	},
	// Terminal phase (no transitions allowed)
	PhaseFailed: {},
}

// ValidateTransition checks if a phase transition is valid
func ValidateTransition(from, to Phase) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source phase: %s", from)
	}

	if !allowed[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}

	return nil
}

// IsTerminal returns true if the phase is terminal (no further transitions)
func IsTerminal(phase Phase) bool {
	return phase == PhaseFailed
}

// IsActive returns true if a child process may be alive in this phase
func IsActive(phase Phase) bool {
	return phase == PhaseStarting || phase == PhaseRunning || phase == PhaseTerminating
}
