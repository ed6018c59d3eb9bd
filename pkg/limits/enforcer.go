package limits

import (
	"sync"

	"github.com/psantana5/procwatch/pkg/logging"
)

// Enforcer applies per-worker resource ceilings through cgroups and
// process attributes. It implements the watchdog's LimitEnforcer
// collaborator; one Enforcer serves all workers of a supervisor.
type Enforcer struct {
	cgroup *CgroupManager
	log    *logging.Logger

	mu          sync.Mutex
	constraints map[string]*Constraints
	paths       map[string]string
}

// NewEnforcer creates an enforcer under the given cgroup namespace
func NewEnforcer(namespace string, log *logging.Logger) *Enforcer {
	return &Enforcer{
		cgroup:      NewCgroupManager(namespace, log),
		log:         log,
		constraints: make(map[string]*Constraints),
		paths:       make(map[string]string),
	}
}

// Configure registers the ceiling for a worker. Must be called before
// the worker is first started.
func (e *Enforcer) Configure(worker string, c *Constraints) {
	c.Validate()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.constraints[worker] = c
}

// Apply attaches a freshly spawned worker process to its ceiling
func (e *Enforcer) Apply(worker string, pid int) error {
	e.mu.Lock()
	c, ok := e.constraints[worker]
	e.mu.Unlock()
	if !ok {
		return nil
	}

	path, err := e.cgroup.Create(worker, c)
	if err != nil {
		return err
	}

	if path != "" {
		if err := e.cgroup.Attach(path, pid); err != nil {
			// An unattached cgroup enforces nothing; drop it so the
			// watchdog knows to fall back to RSS polling
			e.cgroup.Remove(path)
			path = ""
			e.log.Warn("Failed to attach worker to cgroup", map[string]interface{}{
				"worker": worker,
				"error":  err.Error(),
			})
		}
	}

	e.mu.Lock()
	e.paths[worker] = path
	e.mu.Unlock()

	if c.NicePriority != 0 {
		if err := ApplyNicePriority(pid, c.NicePriority); err != nil {
			e.log.Warn("Failed to set nice priority", map[string]interface{}{"worker": worker, "error": err.Error()})
		}
	}

	if c.OOMScoreAdj != 0 {
		if err := ApplyOOMScoreAdj(pid, c.OOMScoreAdj); err != nil {
			e.log.Warn("Failed to set OOM score", map[string]interface{}{"worker": worker, "error": err.Error()})
		}
	}

	return nil
}

// Enforcing reports whether kernel-level enforcement is active for the
// worker's current run
func (e *Enforcer) Enforcing(worker string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paths[worker] != ""
}

// OOMKilled reports whether the worker's cgroup recorded a kernel
// memory-limit kill during the current run
func (e *Enforcer) OOMKilled(worker string) bool {
	e.mu.Lock()
	path := e.paths[worker]
	e.mu.Unlock()

	return e.cgroup.OOMKillCount(path) > 0
}

// Release removes the worker's per-run cgroup after exit
func (e *Enforcer) Release(worker string) {
	e.mu.Lock()
	path := e.paths[worker]
	delete(e.paths, worker)
	e.mu.Unlock()

	if err := e.cgroup.Remove(path); err != nil {
		e.log.Warn("Failed to remove cgroup", map[string]interface{}{"worker": worker, "error": err.Error()})
	}
}
