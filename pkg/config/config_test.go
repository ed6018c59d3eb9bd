package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "procwatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
listen: ":9200"
log_level: debug
log_json: true
defaults:
  poll_interval: 250ms
  grace_period: 5s
  restart:
    initial_backoff: 2s
    max_backoff: 1m
    multiplier: 3.0
    max_consecutive_failures: 10
    stable_duration: 2m
workers:
  - name: transcoder
    command: /usr/local/bin/transcoder
    args: ["--preset", "fast"]
    workdir: /var/lib/transcoder
    env:
      RUST_LOG: info
    memory_limit_mb: 512
    nice: 5
    oom_score_adj: 200
  - name: uploader
    command: /usr/local/bin/uploader
    poll_interval: 1s
    restart:
      initial_backoff: 500ms
      max_consecutive_failures: 3
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Listen != ":9200" {
		t.Errorf("listen = %q, want :9200", cfg.Listen)
	}
	if cfg.LogLevel != "debug" || !cfg.LogJSON {
		t.Errorf("logging config = %q/%v, want debug/true", cfg.LogLevel, cfg.LogJSON)
	}
	if len(cfg.Workers) != 2 {
		t.Fatalf("workers = %d, want 2", len(cfg.Workers))
	}

	spec, err := cfg.Workers[0].Spec()
	if err != nil {
		t.Fatalf("Spec returned error: %v", err)
	}
	if spec.Name != "transcoder" || spec.Command != "/usr/local/bin/transcoder" {
		t.Errorf("unexpected spec identity: %+v", spec)
	}
	if spec.PollInterval != 250*time.Millisecond {
		t.Errorf("poll interval = %v, want defaults 250ms", spec.PollInterval)
	}
	if spec.GracePeriod != 5*time.Second {
		t.Errorf("grace period = %v, want defaults 5s", spec.GracePeriod)
	}
	if spec.Restart.InitialBackoff != 2*time.Second {
		t.Errorf("initial backoff = %v, want defaults 2s", spec.Restart.InitialBackoff)
	}
	if spec.Restart.MaxBackoff != time.Minute {
		t.Errorf("max backoff = %v, want defaults 1m", spec.Restart.MaxBackoff)
	}
	if spec.Restart.Multiplier != 3.0 {
		t.Errorf("multiplier = %v, want defaults 3.0", spec.Restart.Multiplier)
	}
	if spec.Restart.MaxConsecutiveFailures != 10 {
		t.Errorf("failure ceiling = %d, want defaults 10", spec.Restart.MaxConsecutiveFailures)
	}
	if spec.MemoryLimitMB != 512 {
		t.Errorf("memory limit = %d, want 512", spec.MemoryLimitMB)
	}

	// The second worker overrides selected fields, inherits the rest
	spec2, err := cfg.Workers[1].Spec()
	if err != nil {
		t.Fatalf("Spec returned error: %v", err)
	}
	if spec2.PollInterval != time.Second {
		t.Errorf("override poll interval = %v, want 1s", spec2.PollInterval)
	}
	if spec2.Restart.InitialBackoff != 500*time.Millisecond {
		t.Errorf("override initial backoff = %v, want 500ms", spec2.Restart.InitialBackoff)
	}
	if spec2.Restart.MaxConsecutiveFailures != 3 {
		t.Errorf("override failure ceiling = %d, want 3", spec2.Restart.MaxConsecutiveFailures)
	}
	if spec2.Restart.MaxBackoff != time.Minute {
		t.Errorf("inherited max backoff = %v, want 1m", spec2.Restart.MaxBackoff)
	}
}

func TestLoadAppliesBuiltinDefaults(t *testing.T) {
	path := writeConfig(t, `
workers:
  - name: agent
    command: /bin/agent
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Listen != ":9120" {
		t.Errorf("listen = %q, want builtin :9120", cfg.Listen)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log level = %q, want info", cfg.LogLevel)
	}

	spec, err := cfg.Workers[0].Spec()
	if err != nil {
		t.Fatalf("Spec returned error: %v", err)
	}
	if spec.PollInterval != 500*time.Millisecond {
		t.Errorf("poll interval = %v, want builtin 500ms", spec.PollInterval)
	}
	if spec.GracePeriod != 10*time.Second {
		t.Errorf("grace period = %v, want builtin 10s", spec.GracePeriod)
	}
	if spec.Restart.InitialBackoff != time.Second || spec.Restart.MaxConsecutiveFailures != 5 {
		t.Errorf("restart policy = %+v, want builtin defaults", spec.Restart)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no workers",
			yaml:    `listen: ":9120"`,
			wantErr: "no workers",
		},
		{
			name: "missing name",
			yaml: `
workers:
  - command: /bin/agent
`,
			wantErr: "name is required",
		},
		{
			name: "missing command",
			yaml: `
workers:
  - name: agent
`,
			wantErr: "command is required",
		},
		{
			name: "duplicate names",
			yaml: `
workers:
  - name: agent
    command: /bin/agent
  - name: agent
    command: /bin/agent
`,
			wantErr: "duplicate worker name",
		},
		{
			name: "bad duration",
			yaml: `
workers:
  - name: agent
    command: /bin/agent
    grace_period: soon
`,
			wantErr: "invalid grace_period",
		},
		{
			name: "bad restart duration",
			yaml: `
workers:
  - name: agent
    command: /bin/agent
    restart:
      initial_backoff: 2 seconds
`,
			wantErr: "invalid restart.initial_backoff",
		},
		{
			name:    "malformed yaml",
			yaml:    "workers: [",
			wantErr: "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("Load succeeded on missing file, want error")
	}
}

func TestWorkerConstraints(t *testing.T) {
	w := WorkerConfig{
		Name:          "agent",
		Command:       "/bin/agent",
		MemoryLimitMB: 256,
		NicePriority:  50, // out of range, clamped
		OOMScoreAdj:   100,
	}

	c := w.Constraints()
	if c.MemoryLimitMB != 256 {
		t.Errorf("memory limit = %d, want 256", c.MemoryLimitMB)
	}
	if c.NicePriority != 19 {
		t.Errorf("nice priority = %d, want clamped 19", c.NicePriority)
	}
	if c.OOMScoreAdj != 100 {
		t.Errorf("oom score adj = %d, want 100", c.OOMScoreAdj)
	}
}
