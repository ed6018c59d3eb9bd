package watchdog

import (
	"testing"
	"time"
)

func TestBackoffSequence(t *testing.T) {
	policy := RestartPolicy{
		InitialBackoff:         1 * time.Second,
		MaxBackoff:             30 * time.Second,
		Multiplier:             2.0,
		MaxConsecutiveFailures: 5,
	}

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}

	for i, want := range expected {
		failures := i + 1
		if got := policy.Backoff(failures); got != want {
			t.Errorf("Backoff(%d) = %v, want %v", failures, got, want)
		}
	}
}

func TestBackoffMonotoneAndCapped(t *testing.T) {
	policy := RestartPolicy{
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
	}

	prev := time.Duration(0)
	for failures := 1; failures <= 20; failures++ {
		got := policy.Backoff(failures)
		if got < prev {
			t.Errorf("Backoff(%d) = %v decreased from %v", failures, got, prev)
		}
		if got > policy.MaxBackoff {
			t.Errorf("Backoff(%d) = %v exceeds cap %v", failures, got, policy.MaxBackoff)
		}
		prev = got
	}

	if got := policy.Backoff(20); got != policy.MaxBackoff {
		t.Errorf("Backoff(20) = %v, want cap %v", got, policy.MaxBackoff)
	}
}

func TestBackoffZeroFailures(t *testing.T) {
	policy := DefaultRestartPolicy()
	if got := policy.Backoff(0); got != policy.InitialBackoff {
		t.Errorf("Backoff(0) = %v, want initial %v", got, policy.InitialBackoff)
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	policy := RestartPolicy{
		InitialBackoff: 10 * time.Second,
		MaxBackoff:     60 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.5,
	}

	// failures=1 base delay is 10s; jitter 0.5 spreads across [5s, 15s]
	for i := 0; i < 100; i++ {
		got := policy.Backoff(1)
		if got < 5*time.Second || got > 15*time.Second {
			t.Fatalf("jittered Backoff(1) = %v, want within [5s, 15s]", got)
		}
	}
}

func TestRestartPolicyValidateDefaults(t *testing.T) {
	p := RestartPolicy{}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}

	if p.InitialBackoff <= 0 {
		t.Error("Validate should default InitialBackoff")
	}
	if p.MaxBackoff < p.InitialBackoff {
		t.Error("Validate should raise MaxBackoff to at least InitialBackoff")
	}
	if p.Multiplier < 1.0 {
		t.Error("Validate should default Multiplier")
	}
	if p.MaxConsecutiveFailures <= 0 {
		t.Error("Validate should default MaxConsecutiveFailures")
	}
}

func TestWorkerSpecValidate(t *testing.T) {
	spec := WorkerSpec{}
	if err := spec.Validate(); err == nil {
		t.Error("Validate should reject a spec without a name")
	}

	spec = WorkerSpec{Name: "agent"}
	if err := spec.Validate(); err == nil {
		t.Error("Validate should reject a spec without a command")
	}

	spec = WorkerSpec{Name: "agent", Command: "/usr/bin/agent"}
	if err := spec.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if spec.GracePeriod <= 0 || spec.PollInterval <= 0 {
		t.Error("Validate should default grace period and poll interval")
	}
}
