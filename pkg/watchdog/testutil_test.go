package watchdog

import (
	"sync"
	"syscall"
)

// fakeProc is a simulated child process
type fakeProc struct {
	pid int

	mu     sync.Mutex
	status *ExitStatus
	rss    uint64
}

func (p *fakeProc) Pid() int { return p.pid }

func (p *fakeProc) exit(st ExitStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == nil {
		p.status = &st
	}
}

// fakeController scripts child behavior for supervising-loop tests
type fakeController struct {
	mu sync.Mutex

	// autoExit, when set, makes every spawned child exit immediately
	autoExit *ExitStatus
	// spawnErr, when set, makes Spawn fail
	spawnErr error
	// exitOnTerm makes SIGTERM terminate the child (set for well-behaved workers)
	exitOnTerm bool
	// rss reported for live children
	rss uint64

	spawned int
	killed  int
	signals []syscall.Signal
	current *fakeProc
}

func newFakeController() *fakeController {
	return &fakeController{exitOnTerm: true}
}

func (c *fakeController) Spawn(spec *WorkerSpec) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.spawnErr != nil {
		return nil, c.spawnErr
	}

	c.spawned++
	p := &fakeProc{pid: 1000 + c.spawned, rss: c.rss}
	if c.autoExit != nil {
		st := *c.autoExit
		p.status = &st
	}
	c.current = p
	return p, nil
}

func (c *fakeController) Signal(h Handle, sig syscall.Signal) error {
	c.mu.Lock()
	c.signals = append(c.signals, sig)
	term := c.exitOnTerm
	c.mu.Unlock()

	if sig == syscall.SIGTERM && term {
		h.(*fakeProc).exit(ExitStatus{Code: -1, Signaled: true, Signal: syscall.SIGTERM})
	}
	return nil
}

func (c *fakeController) TryWait(h Handle) (*ExitStatus, bool) {
	p := h.(*fakeProc)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == nil {
		return nil, false
	}
	st := *p.status
	return &st, true
}

func (c *fakeController) Kill(h Handle) error {
	c.mu.Lock()
	c.killed++
	c.mu.Unlock()
	h.(*fakeProc).exit(ExitStatus{Code: -1, Signaled: true, Signal: syscall.SIGKILL})
	return nil
}

func (c *fakeController) RSS(h Handle) (uint64, error) {
	p := h.(*fakeProc)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rss, nil
}

func (c *fakeController) spawnCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spawned
}

func (c *fakeController) proc() *fakeProc {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *fakeController) alive() bool {
	c.mu.Lock()
	p := c.current
	c.mu.Unlock()
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status == nil
}

// recordSink captures emitted lifecycle events
type recordSink struct {
	mu     sync.Mutex
	events []LifecycleEvent
}

func (s *recordSink) Emit(ev LifecycleEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordSink) all() []LifecycleEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LifecycleEvent, len(s.events))
	copy(out, s.events)
	return out
}

// byPhase returns events that landed in the given phase
func (s *recordSink) byPhase(phase Phase) []LifecycleEvent {
	var out []LifecycleEvent
	for _, ev := range s.all() {
		if ev.Phase == phase {
			out = append(out, ev)
		}
	}
	return out
}
