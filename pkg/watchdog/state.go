package watchdog

import "time"

// WorkerState is the run-time record of one supervised worker. It is
// owned exclusively by its Watchdog; Snapshot returns copies for
// reporting surfaces.
type WorkerState struct {
	Name          string     `json:"name"`
	Phase         Phase      `json:"phase"`
	PID           int        `json:"pid,omitempty"`
	StartedAt     time.Time  `json:"started_at,omitempty"`
	StoppedAt     time.Time  `json:"stopped_at,omitempty"`
	Failures      int        `json:"failure_count"`
	Restarts      int        `json:"restart_count"`
	LastExitCode  int        `json:"last_exit_code"`
	LastSignal    string     `json:"last_signal,omitempty"`
	LastReason    ExitReason `json:"last_reason,omitempty"`
	NextRestartAt time.Time  `json:"next_restart_at,omitempty"`
}

// Uptime returns how long the current (or last) run has been alive
func (s WorkerState) Uptime() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if s.Phase == PhaseRunning || s.Phase == PhaseTerminating {
		return time.Since(s.StartedAt)
	}
	if !s.StoppedAt.IsZero() && s.StoppedAt.After(s.StartedAt) {
		return s.StoppedAt.Sub(s.StartedAt)
	}
	return 0
}
