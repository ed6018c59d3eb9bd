package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/psantana5/procwatch/pkg/limits"
	"github.com/psantana5/procwatch/pkg/watchdog"
)

// Config is the complete supervisor configuration
type Config struct {
	// Listen is the status/metrics HTTP address (empty disables the server)
	Listen string `yaml:"listen"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	// Defaults applied to workers that omit the corresponding field
	Defaults WorkerDefaults `yaml:"defaults"`

	Workers []WorkerConfig `yaml:"workers"`
}

// WorkerDefaults holds the fallback values shared by all workers
type WorkerDefaults struct {
	PollInterval string        `yaml:"poll_interval"`
	GracePeriod  string        `yaml:"grace_period"`
	Restart      RestartConfig `yaml:"restart"`
}

// WorkerConfig describes one supervised worker
type WorkerConfig struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	WorkDir string            `yaml:"workdir"`
	Env     map[string]string `yaml:"env"`

	User  string `yaml:"user"`
	Group string `yaml:"group"`

	MemoryLimitMB int64 `yaml:"memory_limit_mb"`
	NicePriority  int   `yaml:"nice"`
	OOMScoreAdj   int   `yaml:"oom_score_adj"`

	PollInterval string `yaml:"poll_interval"` // e.g. "500ms", "1s"
	GracePeriod  string `yaml:"grace_period"`  // e.g. "10s"

	Restart RestartConfig `yaml:"restart"`
}

// RestartConfig holds restart policy parameters as duration strings
type RestartConfig struct {
	InitialBackoff         string  `yaml:"initial_backoff"`
	MaxBackoff             string  `yaml:"max_backoff"`
	Multiplier             float64 `yaml:"multiplier"`
	MaxConsecutiveFailures int     `yaml:"max_consecutive_failures"`
	StableDuration         string  `yaml:"stable_duration"`
	Jitter                 float64 `yaml:"jitter"`
}

// Load reads and validates a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":9120"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Defaults.PollInterval == "" {
		c.Defaults.PollInterval = "500ms"
	}
	if c.Defaults.GracePeriod == "" {
		c.Defaults.GracePeriod = "10s"
	}

	for i := range c.Workers {
		w := &c.Workers[i]
		if w.PollInterval == "" {
			w.PollInterval = c.Defaults.PollInterval
		}
		if w.GracePeriod == "" {
			w.GracePeriod = c.Defaults.GracePeriod
		}
		w.Restart.merge(c.Defaults.Restart)
	}
}

// merge fills unset restart fields from the defaults section
func (r *RestartConfig) merge(def RestartConfig) {
	if r.InitialBackoff == "" {
		r.InitialBackoff = def.InitialBackoff
	}
	if r.MaxBackoff == "" {
		r.MaxBackoff = def.MaxBackoff
	}
	if r.Multiplier == 0 {
		r.Multiplier = def.Multiplier
	}
	if r.MaxConsecutiveFailures == 0 {
		r.MaxConsecutiveFailures = def.MaxConsecutiveFailures
	}
	if r.StableDuration == "" {
		r.StableDuration = def.StableDuration
	}
	if r.Jitter == 0 {
		r.Jitter = def.Jitter
	}
}

// Validate checks the configuration for structural problems
func (c *Config) Validate() error {
	if len(c.Workers) == 0 {
		return fmt.Errorf("no workers configured")
	}

	seen := make(map[string]bool, len(c.Workers))
	for i := range c.Workers {
		w := &c.Workers[i]
		if w.Name == "" {
			return fmt.Errorf("worker %d: name is required", i)
		}
		if seen[w.Name] {
			return fmt.Errorf("duplicate worker name: %s", w.Name)
		}
		seen[w.Name] = true

		if w.Command == "" {
			return fmt.Errorf("worker %s: command is required", w.Name)
		}

		if _, err := w.Spec(); err != nil {
			return err
		}
	}

	return nil
}

// Spec converts the worker entry into a watchdog WorkerSpec
func (w *WorkerConfig) Spec() (watchdog.WorkerSpec, error) {
	spec := watchdog.WorkerSpec{
		Name:          w.Name,
		Command:       w.Command,
		Args:          w.Args,
		WorkDir:       w.WorkDir,
		Env:           w.Env,
		User:          w.User,
		Group:         w.Group,
		MemoryLimitMB: w.MemoryLimitMB,
		Restart:       watchdog.DefaultRestartPolicy(),
	}

	var err error
	if spec.PollInterval, err = parseDuration(w.Name, "poll_interval", w.PollInterval); err != nil {
		return spec, err
	}
	if spec.GracePeriod, err = parseDuration(w.Name, "grace_period", w.GracePeriod); err != nil {
		return spec, err
	}

	r := &spec.Restart
	if d, err := parseDuration(w.Name, "restart.initial_backoff", w.Restart.InitialBackoff); err != nil {
		return spec, err
	} else if d > 0 {
		r.InitialBackoff = d
	}
	if d, err := parseDuration(w.Name, "restart.max_backoff", w.Restart.MaxBackoff); err != nil {
		return spec, err
	} else if d > 0 {
		r.MaxBackoff = d
	}
	if d, err := parseDuration(w.Name, "restart.stable_duration", w.Restart.StableDuration); err != nil {
		return spec, err
	} else if d > 0 {
		r.StableDuration = d
	}
	if w.Restart.Multiplier > 0 {
		r.Multiplier = w.Restart.Multiplier
	}
	if w.Restart.MaxConsecutiveFailures > 0 {
		r.MaxConsecutiveFailures = w.Restart.MaxConsecutiveFailures
	}
	if w.Restart.Jitter > 0 {
		r.Jitter = w.Restart.Jitter
	}

	if err := spec.Validate(); err != nil {
		return spec, err
	}
	return spec, nil
}

// Constraints converts the worker entry into resource constraints
func (w *WorkerConfig) Constraints() *limits.Constraints {
	c := &limits.Constraints{
		MemoryLimitMB: w.MemoryLimitMB,
		NicePriority:  w.NicePriority,
		OOMScoreAdj:   w.OOMScoreAdj,
	}
	c.Validate()
	return c
}

func parseDuration(worker, field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("worker %s: invalid %s: %w", worker, field, err)
	}
	return d, nil
}
