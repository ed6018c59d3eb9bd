package watchdog

import (
	"fmt"
	"math/rand"
	"time"
)

// baselineFailures is the failure count assigned after a normal exit.
// A long-running service that exits cleanly is still restarted, but with
// at least the initial backoff so an immediately-exiting binary cannot
// hot-loop the supervisor.
const baselineFailures = 1

// WorkerSpec is the immutable description of one supervised worker
type WorkerSpec struct {
	Name    string
	Command string
	Args    []string
	WorkDir string
	Env     map[string]string

	// User and Group the child runs as (empty = inherit)
	User  string
	Group string

	// MemoryLimitMB is the resident-memory ceiling in MB (0 = unlimited)
	MemoryLimitMB int64

	// GracePeriod is how long Stop waits after SIGTERM before SIGKILL
	GracePeriod time.Duration

	// PollInterval bounds how often the supervisor checks the child and
	// how quickly a stop request takes effect
	PollInterval time.Duration

	Restart RestartPolicy
}

// RestartPolicy defines backoff and give-up behavior
type RestartPolicy struct {
	InitialBackoff         time.Duration
	MaxBackoff             time.Duration
	Multiplier             float64
	MaxConsecutiveFailures int
	StableDuration         time.Duration
	Jitter                 float64 // 0..1 fraction of the delay, randomized
}

// DefaultRestartPolicy returns the default restart policy
func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{
		InitialBackoff:         1 * time.Second,
		MaxBackoff:             30 * time.Second,
		Multiplier:             2.0,
		MaxConsecutiveFailures: 5,
		StableDuration:         60 * time.Second,
		Jitter:                 0,
	}
}

// Validate checks the spec for launch-time problems
func (s *WorkerSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("worker name is required")
	}
	if s.Command == "" {
		return fmt.Errorf("worker %s: command is required", s.Name)
	}
	if s.GracePeriod <= 0 {
		s.GracePeriod = 10 * time.Second
	}
	if s.PollInterval <= 0 {
		s.PollInterval = 500 * time.Millisecond
	}
	return s.Restart.Validate()
}

// Validate clamps policy values into acceptable ranges
func (p *RestartPolicy) Validate() error {
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 1 * time.Second
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}
	if p.MaxConsecutiveFailures <= 0 {
		p.MaxConsecutiveFailures = 5
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	} else if p.Jitter > 1 {
		p.Jitter = 1
	}
	return nil
}

// Backoff calculates the restart delay for a given consecutive-failure
// count: initialBackoff * multiplier^(failures-1), capped at maxBackoff,
// with optional jitter to avoid thundering-herd restarts
func (p *RestartPolicy) Backoff(failures int) time.Duration {
	if failures <= 0 {
		return p.InitialBackoff
	}

	backoff := float64(p.InitialBackoff)
	for i := 1; i < failures; i++ {
		backoff *= p.Multiplier
		if backoff >= float64(p.MaxBackoff) {
			backoff = float64(p.MaxBackoff)
			break
		}
	}

	delay := time.Duration(backoff)
	if delay > p.MaxBackoff {
		delay = p.MaxBackoff
	}

	if p.Jitter > 0 {
		// Spread delay across [1-jitter, 1+jitter]
		spread := 1 - p.Jitter + 2*p.Jitter*rand.Float64()
		delay = time.Duration(float64(delay) * spread)
		if delay > p.MaxBackoff {
			delay = p.MaxBackoff
		}
	}

	return delay
}
