package limits

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/psantana5/procwatch/pkg/logging"
)

// CgroupManager manages per-worker cgroups enforcing memory ceilings
type CgroupManager struct {
	cgroupRoot    string
	cgroupVersion int // 1 for v1, 2 for v2
	namespace     string
	available     bool
	log           *logging.Logger
}

// NewCgroupManager creates a cgroup manager under the given namespace
func NewCgroupManager(namespace string, log *logging.Logger) *CgroupManager {
	version := detectCgroupVersion()
	available := checkCgroupAvailable()

	if !available {
		log.Warn("cgroups not available, memory ceiling falls back to RSS polling")
	} else {
		log.Debug(fmt.Sprintf("cgroup v%d detected (namespace: %s)", version, namespace))
	}

	return &CgroupManager{
		cgroupRoot:    "/sys/fs/cgroup",
		cgroupVersion: version,
		namespace:     namespace,
		available:     available,
		log:           log,
	}
}

// Available reports whether cgroup enforcement is usable
func (cm *CgroupManager) Available() bool {
	return cm.available
}

func detectCgroupVersion() int {
	if _, err := os.Stat("/sys/fs/cgroup/cgroup.controllers"); err == nil {
		return 2
	}
	return 1
}

func checkCgroupAvailable() bool {
	if _, err := os.Stat("/sys/fs/cgroup"); err != nil {
		return false
	}
	if _, err := os.ReadDir("/sys/fs/cgroup"); err != nil {
		return false
	}
	return true
}

// Create creates the worker's cgroup and applies the memory ceiling.
// Returns the cgroup path, or "" when cgroups are unavailable or the
// worker has no ceiling.
func (cm *CgroupManager) Create(worker string, c *Constraints) (string, error) {
	if !cm.available || c.MemoryLimitMB <= 0 {
		return "", nil
	}

	if err := c.Validate(); err != nil {
		return "", fmt.Errorf("invalid constraints: %w", err)
	}

	name := fmt.Sprintf("%s-%s", cm.namespace, worker)
	if cm.cgroupVersion == 2 {
		return cm.createV2(name, c)
	}
	return cm.createV1(name, c)
}

func (cm *CgroupManager) createV2(name string, c *Constraints) (string, error) {
	path := filepath.Join(cm.cgroupRoot, name)

	if err := os.MkdirAll(path, 0755); err != nil {
		if os.IsPermission(err) {
			cm.log.Warn("Cannot create cgroup (permission denied)")
			return "", nil
		}
		return "", fmt.Errorf("failed to create cgroup: %w", err)
	}

	memoryBytes := c.MemoryLimitMB * 1024 * 1024
	memoryMax := filepath.Join(path, "memory.max")
	if err := os.WriteFile(memoryMax, []byte(strconv.FormatInt(memoryBytes, 10)), 0644); err != nil {
		cm.log.Warn("Failed to set memory limit", map[string]interface{}{"error": err.Error()})
	}

	// Keep the ceiling hard: no swap escape hatch
	swapMax := filepath.Join(path, "memory.swap.max")
	if err := os.WriteFile(swapMax, []byte("0"), 0644); err != nil {
		cm.log.Debug("memory.swap.max not supported or failed", map[string]interface{}{"error": err.Error()})
	}

	return path, nil
}

func (cm *CgroupManager) createV1(name string, c *Constraints) (string, error) {
	path := filepath.Join(cm.cgroupRoot, "memory", name)

	if err := os.MkdirAll(path, 0755); err != nil {
		if os.IsPermission(err) {
			cm.log.Warn("Cannot create cgroup (permission denied)")
			return "", nil
		}
		return "", fmt.Errorf("failed to create memory cgroup: %w", err)
	}

	memoryBytes := c.MemoryLimitMB * 1024 * 1024
	limitFile := filepath.Join(path, "memory.limit_in_bytes")
	if err := os.WriteFile(limitFile, []byte(strconv.FormatInt(memoryBytes, 10)), 0644); err != nil {
		cm.log.Warn("Failed to set memory limit", map[string]interface{}{"error": err.Error()})
	}

	return path, nil
}

// Attach moves pid into the worker's cgroup
func (cm *CgroupManager) Attach(path string, pid int) error {
	if path == "" || !cm.available {
		return nil
	}

	procsFile := filepath.Join(path, "cgroup.procs")
	if err := os.WriteFile(procsFile, []byte(strconv.Itoa(pid)), 0644); err != nil {
		return fmt.Errorf("failed to attach pid %d to cgroup: %w", pid, err)
	}
	return nil
}

// OOMKillCount reads the number of kernel OOM kills recorded for the
// cgroup. Only cgroup v2 exposes memory.events; v1 returns 0.
func (cm *CgroupManager) OOMKillCount(path string) int64 {
	if path == "" || cm.cgroupVersion != 2 {
		return 0
	}

	f, err := os.Open(filepath.Join(path, "memory.events"))
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 2 && fields[0] == "oom_kill" {
			n, err := strconv.ParseInt(fields[1], 10, 64)
			if err == nil {
				return n
			}
		}
	}
	return 0
}

// Remove deletes the worker's cgroup after its process exited
func (cm *CgroupManager) Remove(path string) error {
	if path == "" || !cm.available {
		return nil
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cgroup: %w", err)
	}
	return nil
}

// ApplyNicePriority applies nice priority to a process. Works without
// cgroups; negative values require privilege.
func ApplyNicePriority(pid int, niceness int) error {
	if niceness < -20 {
		niceness = -20
	}
	if niceness > 19 {
		niceness = 19
	}
	if niceness == 0 {
		return nil
	}

	if err := syscall.Setpriority(syscall.PRIO_PROCESS, pid, niceness); err != nil {
		if niceness < 0 && os.Geteuid() != 0 {
			return nil
		}
		return fmt.Errorf("failed to set process priority: %w", err)
	}
	return nil
}

// ApplyOOMScoreAdj applies an OOM killer score adjustment to a process
func ApplyOOMScoreAdj(pid int, score int) error {
	if score == 0 {
		return nil
	}
	if score < -1000 {
		score = -1000
	}
	if score > 1000 {
		score = 1000
	}

	path := fmt.Sprintf("/proc/%d/oom_score_adj", pid)
	if err := os.WriteFile(path, []byte(strconv.Itoa(score)), 0644); err != nil {
		if score < 0 && os.Geteuid() != 0 {
			return nil
		}
		return fmt.Errorf("failed to set OOM score: %w", err)
	}
	return nil
}
