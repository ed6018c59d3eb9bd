package watchdog

import (
	"context"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/psantana5/procwatch/pkg/logging"
)

// Watchdog owns the lifecycle of one worker process: start it, detect
// termination, apply the restart policy, and emit one LifecycleEvent per
// phase transition. Instances share no state and may run concurrently.
type Watchdog struct {
	spec   WorkerSpec
	ctrl   Controller
	sink   EventSink
	rec    Recorder
	limits LimitEnforcer
	log    *logging.Logger

	mu        sync.Mutex
	state     WorkerState
	handle    Handle
	memKilled bool
	everRun   bool
	restartAt time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
	stopAsked bool
}

// Options carries the watchdog's collaborators. Zero values get
// production defaults (real OS controller, discarding sink).
type Options struct {
	Controller Controller
	Sink       EventSink
	Recorder   Recorder
	Limits     LimitEnforcer
	Logger     *logging.Logger
}

// SupervisorFatalError is returned by RunForever when the
// consecutive-failure ceiling is reached and the watchdog gives up.
type SupervisorFatalError struct {
	Worker   string
	Failures int
}

func (e *SupervisorFatalError) Error() string {
	return fmt.Sprintf("worker %s: giving up after %d consecutive failures, operator intervention required", e.Worker, e.Failures)
}

// New creates a watchdog for the given worker spec
func New(spec WorkerSpec, opts Options) (*Watchdog, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	if opts.Controller == nil {
		opts.Controller = NewOSController()
	}
	if opts.Sink == nil {
		opts.Sink = NopSink{}
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger(logging.INFO, false)
	}

	return &Watchdog{
		spec:   spec,
		ctrl:   opts.Controller,
		sink:   opts.Sink,
		rec:    opts.Recorder,
		limits: opts.Limits,
		log:    opts.Logger.WithField("worker", spec.Name),
		state: WorkerState{
			Name:  spec.Name,
			Phase: PhaseStopped,
		},
		stopCh: make(chan struct{}),
	}, nil
}

// Snapshot returns a copy of the current worker state
func (w *Watchdog) Snapshot() WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Start launches the worker process. A spawn failure counts as a worker
// failure and schedules a restart; it is never propagated to the caller.
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.startLocked()
}

func (w *Watchdog) startLocked() {
	if w.stopAsked {
		return
	}
	if w.state.Phase != PhaseStopped && w.state.Phase != PhaseBackoffWait {
		return
	}

	w.transitionLocked(PhaseStarting, LifecycleEvent{Message: "spawning worker process"})

	h, err := w.ctrl.Spawn(&w.spec)
	if err != nil {
		w.log.Error("Failed to spawn worker", map[string]interface{}{"error": err.Error()})
		w.state.LastExitCode = -1
		w.state.LastSignal = ""
		w.failLocked(ReasonLaunchError, nil, err.Error())
		return
	}

	w.handle = h
	w.memKilled = false
	w.state.PID = h.Pid()
	w.state.StartedAt = time.Now()
	w.state.NextRestartAt = time.Time{}
	if w.everRun {
		w.state.Restarts++
		w.rec.RecordRestart(w.spec.Name)
	}
	w.everRun = true

	if w.limits != nil {
		if err := w.limits.Apply(w.spec.Name, h.Pid()); err != nil {
			w.log.Warn("Failed to apply resource limits", map[string]interface{}{"error": err.Error()})
		}
	}

	w.log.Info("Worker started", map[string]interface{}{"pid": h.Pid()})
	w.transitionLocked(PhaseRunning, LifecycleEvent{
		PID:     h.Pid(),
		Message: fmt.Sprintf("PID %d started", h.Pid()),
	})
}

// Poll is a non-blocking check of the child. If it has exited, the exit
// is classified and the restart policy applied. While the child is alive
// its resident memory is sampled; when kernel enforcement of the memory
// ceiling is unavailable the watchdog kills the child itself on breach.
func (w *Watchdog) Poll() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state.Phase != PhaseRunning || w.handle == nil {
		return
	}

	if status, exited := w.ctrl.TryWait(w.handle); exited {
		w.onExitLocked(status)
		return
	}

	rss, err := w.ctrl.RSS(w.handle)
	if err != nil {
		return
	}
	w.rec.RecordRSS(w.spec.Name, rss)

	if w.spec.MemoryLimitMB <= 0 || w.memKilled {
		return
	}
	if w.limits != nil && w.limits.Enforcing(w.spec.Name) {
		return
	}
	if rss > uint64(w.spec.MemoryLimitMB)*1024*1024 {
		w.log.Warn("Worker exceeded memory ceiling, killing", map[string]interface{}{
			"rss_bytes": rss,
			"limit_mb":  w.spec.MemoryLimitMB,
		})
		w.memKilled = true
		if err := w.ctrl.Kill(w.handle); err != nil {
			w.log.Error("Failed to kill worker over memory ceiling", map[string]interface{}{"error": err.Error()})
		}
	}
}

// onExitLocked classifies a reaped child and applies the restart policy
func (w *Watchdog) onExitLocked(status *ExitStatus) {
	uptime := time.Since(w.state.StartedAt)
	w.handle = nil
	w.state.PID = 0
	w.state.StoppedAt = time.Now()

	memKilled := w.memKilled
	if w.limits != nil {
		if w.limits.OOMKilled(w.spec.Name) {
			memKilled = true
		}
		w.limits.Release(w.spec.Name)
	}

	// A stable run forgives accumulated failures before this exit is counted
	if w.spec.Restart.StableDuration > 0 && uptime >= w.spec.Restart.StableDuration {
		w.state.Failures = 0
	}

	reason := ClassifyExit(status, memKilled)
	w.state.LastExitCode = status.Code
	w.state.LastSignal = ""
	if status.Signaled {
		w.state.LastSignal = SignalName(status.Signal)
	}
	w.state.LastReason = reason

	w.log.Info("Worker exited", map[string]interface{}{
		"reason":    string(reason),
		"exit_code": status.Code,
		"signal":    w.state.LastSignal,
		"uptime":    uptime.String(),
	})

	if reason == ReasonNormalExit {
		// Still restarted: this is a long-running service. The counter is
		// set to a positive baseline so the initial backoff always applies.
		w.state.Failures = baselineFailures
		delay := w.spec.Restart.Backoff(w.state.Failures)
		w.restartAt = time.Now().Add(delay)
		w.state.NextRestartAt = w.restartAt
		w.transitionLocked(PhaseBackoffWait, LifecycleEvent{
			Reason:   reason,
			ExitCode: status.Code,
			Backoff:  delay,
			Message:  "clean exit, restarting",
		})
		return
	}

	w.failLocked(reason, status, "")
}

// failLocked counts a failure and schedules a restart or gives up
func (w *Watchdog) failLocked(reason ExitReason, status *ExitStatus, msg string) {
	w.state.Failures++
	w.state.LastReason = reason
	w.rec.RecordFailure(w.spec.Name, reason)

	delay := w.spec.Restart.Backoff(w.state.Failures)

	ev := LifecycleEvent{
		Reason:   reason,
		Failures: w.state.Failures,
		Backoff:  delay,
		Message:  msg,
	}
	if status != nil {
		ev.ExitCode = status.Code
		if status.Signaled {
			ev.Signal = SignalName(status.Signal)
		}
	} else {
		ev.ExitCode = -1
	}

	if w.state.Failures >= w.spec.Restart.MaxConsecutiveFailures {
		ev.Message = fmt.Sprintf("giving up after %d consecutive failures", w.state.Failures)
		w.state.NextRestartAt = time.Time{}
		w.transitionLocked(PhaseFailed, ev)
		w.log.Error("Worker entered terminal failed state", map[string]interface{}{
			"failures": w.state.Failures,
		})
		return
	}

	w.restartAt = time.Now().Add(delay)
	w.state.NextRestartAt = w.restartAt
	w.transitionLocked(PhaseBackoffWait, ev)
}

// Stop requests graceful termination: SIGTERM, bounded wait, then
// SIGKILL. It never triggers the restart policy and is idempotent.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	switch w.state.Phase {
	case PhaseStopped, PhaseFailed, PhaseTerminating:
		// Already stopped, terminal, or a stop is in flight
		w.stopAsked = true
		w.stopOnce.Do(func() { close(w.stopCh) })
		w.mu.Unlock()
		return
	}

	w.stopAsked = true
	w.stopOnce.Do(func() { close(w.stopCh) })

	h := w.handle
	w.transitionLocked(PhaseTerminating, LifecycleEvent{
		Reason:  ReasonManualStop,
		PID:     w.state.PID,
		Message: "stop requested",
	})
	w.mu.Unlock()

	if h != nil {
		w.terminate(h)
	}

	w.mu.Lock()
	w.handle = nil
	w.state.PID = 0
	w.state.StoppedAt = time.Now()
	w.state.NextRestartAt = time.Time{}
	if w.limits != nil {
		w.limits.Release(w.spec.Name)
	}
	w.transitionLocked(PhaseStopped, LifecycleEvent{
		Reason:  ReasonManualStop,
		Message: "worker stopped",
	})
	w.mu.Unlock()
}

// terminate signals the child and waits out the grace period, then
// force-kills. Returns once the child is confirmed reaped (best effort
// on a kill that cannot be delivered).
func (w *Watchdog) terminate(h Handle) {
	if _, exited := w.ctrl.TryWait(h); exited {
		return
	}

	if err := w.ctrl.Signal(h, syscall.SIGTERM); err != nil {
		w.log.Warn("Failed to signal worker", map[string]interface{}{"error": err.Error()})
	}

	deadline := time.Now().Add(w.spec.GracePeriod)
	for time.Now().Before(deadline) {
		if _, exited := w.ctrl.TryWait(h); exited {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}

	w.log.Warn("Worker did not exit within grace period, killing", map[string]interface{}{
		"grace_period": w.spec.GracePeriod.String(),
	})
	if err := w.ctrl.Kill(h); err != nil {
		w.log.Error("Failed to kill worker", map[string]interface{}{"error": err.Error()})
		return
	}

	// SIGKILL cannot be ignored; wait for the reaper
	for i := 0; i < 100; i++ {
		if _, exited := w.ctrl.TryWait(h); exited {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// RunForever is the supervising loop. It returns nil on an explicit stop
// request (or context cancellation, after cleaning up the child) and a
// SupervisorFatalError when the failure ceiling was reached.
func (w *Watchdog) RunForever(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return nil
		case <-w.stopCh:
			return nil
		default:
		}

		w.mu.Lock()
		phase := w.state.Phase
		restartAt := w.restartAt
		failures := w.state.Failures
		w.mu.Unlock()

		switch phase {
		case PhaseStopped:
			w.Start()
		case PhaseStarting, PhaseRunning:
			w.Poll()
		case PhaseBackoffWait:
			if !time.Now().Before(restartAt) {
				w.Start()
			}
		case PhaseFailed:
			return &SupervisorFatalError{Worker: w.spec.Name, Failures: failures}
		case PhaseTerminating:
			// Stop in progress on another goroutine
		}

		sleep := w.spec.PollInterval
		if phase == PhaseBackoffWait {
			if remain := time.Until(restartAt); remain > 0 && remain < sleep {
				sleep = remain
			}
		}

		select {
		case <-ctx.Done():
			w.Stop()
			return nil
		case <-w.stopCh:
			return nil
		case <-time.After(sleep):
		}
	}
}

// transitionLocked validates and applies a phase change, emitting exactly
// one LifecycleEvent. An invalid transition is a supervisor bug; it is
// logged and refused rather than crashing the loop.
func (w *Watchdog) transitionLocked(to Phase, ev LifecycleEvent) {
	from := w.state.Phase
	if err := ValidateTransition(from, to); err != nil {
		w.log.Error("Refusing invalid phase transition", map[string]interface{}{"error": err.Error()})
		return
	}

	w.state.Phase = to
	w.rec.RecordPhase(w.spec.Name, to)

	ev.Timestamp = time.Now()
	ev.Worker = w.spec.Name
	ev.Phase = to
	if ev.Failures == 0 {
		ev.Failures = w.state.Failures
	}
	w.sink.Emit(ev)
}
