package watchdog

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"sync"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
)

// ExitStatus describes how a child process terminated
type ExitStatus struct {
	Code     int
	Signaled bool
	Signal   syscall.Signal
}

// Handle is an opaque reference to a live child process
type Handle interface {
	Pid() int
}

// Controller is the OS-level process-management boundary. The watchdog
// only ever talks to the OS through this interface so the supervising
// loop can be exercised against simulated children.
type Controller interface {
	// Spawn launches the child described by spec
	Spawn(spec *WorkerSpec) (Handle, error)

	// Signal delivers sig to the child's process group
	Signal(h Handle, sig syscall.Signal) error

	// TryWait is a non-blocking check for child exit. It returns the
	// exit status and true once the child has been reaped.
	TryWait(h Handle) (*ExitStatus, bool)

	// Kill force-terminates the child's process group
	Kill(h Handle) error

	// RSS returns the child's current resident memory in bytes
	RSS(h Handle) (uint64, error)
}

// osHandle wraps an exec.Cmd with asynchronous reaping so TryWait
// never blocks
type osHandle struct {
	cmd  *exec.Cmd
	pid  int
	done chan struct{}

	mu     sync.Mutex
	status ExitStatus
}

func (h *osHandle) Pid() int { return h.pid }

// OSController runs children as real OS processes
type OSController struct{}

// NewOSController creates the production process controller
func NewOSController() *OSController {
	return &OSController{}
}

// Spawn starts the worker process in its own process group so signals
// reach the whole tree and a supervisor crash never leaves a half-killed
// group behind
func (c *OSController) Spawn(spec *WorkerSpec) (Handle, error) {
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.WorkDir

	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}

	if spec.User != "" {
		cred, err := lookupCredential(spec.User, spec.Group)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve run-as user: %w", err)
		}
		cmd.SysProcAttr.Credential = cred
	}

	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}

	h := &osHandle{
		cmd:  cmd,
		pid:  cmd.Process.Pid,
		done: make(chan struct{}),
	}

	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.status = exitStatusFromWait(err)
		h.mu.Unlock()
		close(h.done)
	}()

	return h, nil
}

// Signal delivers sig to the child's process group
func (c *OSController) Signal(h Handle, sig syscall.Signal) error {
	// Negative PID targets the process group
	return syscall.Kill(-h.Pid(), sig)
}

// TryWait reports whether the child has exited, without blocking
func (c *OSController) TryWait(h Handle) (*ExitStatus, bool) {
	oh, ok := h.(*osHandle)
	if !ok {
		return nil, false
	}

	select {
	case <-oh.done:
		oh.mu.Lock()
		st := oh.status
		oh.mu.Unlock()
		return &st, true
	default:
		return nil, false
	}
}

// Kill force-terminates the child's process group
func (c *OSController) Kill(h Handle) error {
	err := syscall.Kill(-h.Pid(), syscall.SIGKILL)
	if err == syscall.ESRCH {
		return nil
	}
	return err
}

// RSS returns the child's resident memory in bytes
func (c *OSController) RSS(h Handle) (uint64, error) {
	p, err := process.NewProcess(int32(h.Pid()))
	if err != nil {
		return 0, err
	}

	info, err := p.MemoryInfo()
	if err != nil {
		return 0, err
	}

	return info.RSS, nil
}

// exitStatusFromWait converts an exec.Cmd Wait error into an ExitStatus
func exitStatusFromWait(err error) ExitStatus {
	if err == nil {
		return ExitStatus{Code: 0}
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		st := ExitStatus{Code: exitErr.ExitCode()}
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			st.Signaled = true
			st.Signal = ws.Signal()
		}
		return st
	}

	// Wait failed for a reason other than child exit
	return ExitStatus{Code: 1}
}

// lookupCredential resolves a user/group name pair to a syscall credential
func lookupCredential(username, group string) (*syscall.Credential, error) {
	u, err := user.Lookup(username)
	if err != nil {
		return nil, err
	}

	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid uid %q: %w", u.Uid, err)
	}

	gidStr := u.Gid
	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			return nil, err
		}
		gidStr = g.Gid
	}

	gid, err := strconv.ParseUint(gidStr, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid gid %q: %w", gidStr, err)
	}

	return &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid)}, nil
}
