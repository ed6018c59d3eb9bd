package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/psantana5/procwatch/pkg/api"
	"github.com/psantana5/procwatch/pkg/config"
	"github.com/psantana5/procwatch/pkg/limits"
	"github.com/psantana5/procwatch/pkg/logging"
	"github.com/psantana5/procwatch/pkg/metrics"
	"github.com/psantana5/procwatch/pkg/shutdown"
	"github.com/psantana5/procwatch/pkg/watchdog"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the supervisor",
	Long: `Run starts one watchdog per configured worker and supervises them until
a termination signal arrives. Each watchdog is independent: it owns its
worker's lifecycle, applies the restart policy, and emits lifecycle
events to the log. A worker that exhausts its failure ceiling enters a
terminal failed state without affecting the others.

Example:
  procwatch run --config /etc/procwatch/config.yaml`,
	RunE: runSupervisor,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runSupervisor(cmd *cobra.Command, args []string) error {
	path, err := requireConfig()
	if err != nil {
		return err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logger, err := logging.NewFileLogger("procwatch", logging.ParseLevel(cfg.LogLevel), cfg.LogJSON)
	if err != nil {
		logger = logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogJSON)
		logger.Warn("File logging unavailable, using stdout", map[string]interface{}{"error": err.Error()})
	}
	defer logger.Close()

	recorder := metrics.NewRecorder()
	enforcer := limits.NewEnforcer("procwatch", logger)
	sink := watchdog.NewLogSink(logger)

	var dogs []*watchdog.Watchdog
	for i := range cfg.Workers {
		wc := &cfg.Workers[i]
		spec, err := wc.Spec()
		if err != nil {
			return err
		}

		enforcer.Configure(wc.Name, wc.Constraints())

		dog, err := watchdog.New(spec, watchdog.Options{
			Sink:     sink,
			Recorder: recorder,
			Limits:   enforcer,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		dogs = append(dogs, dog)
	}

	snapshot := func() []watchdog.WorkerState {
		states := make([]watchdog.WorkerState, 0, len(dogs))
		for _, dog := range dogs {
			states = append(states, dog.Snapshot())
		}
		return states
	}

	server := api.NewServer(cfg.Listen, snapshot, recorder.Handler(), logger)
	go func() {
		if err := server.ListenAndServe(); err != nil {
			logger.Error("Status server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	mgr := shutdown.New(60*time.Second, logger)
	mgr.Register(shutdown.StopHTTPServer(server, "status"))
	// Registered last so it runs first: children are stopped before the
	// surfaces that report on them
	mgr.Register(func(ctx context.Context) error {
		stopAll(dogs)
		return nil
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	var fatal []error

	for _, dog := range dogs {
		wg.Add(1)
		go func(d *watchdog.Watchdog) {
			defer wg.Done()
			if err := d.RunForever(ctx); err != nil {
				logger.Error("Watchdog gave up", map[string]interface{}{"error": err.Error()})
				mu.Lock()
				fatal = append(fatal, err)
				mu.Unlock()
			}
		}(dog)
	}

	// When every watchdog has finished on its own (all terminal), shut down
	go func() {
		wg.Wait()
		mgr.Trigger()
	}()

	logger.Info("Supervisor started", map[string]interface{}{"workers": len(dogs)})

	if err := mgr.WaitWithContext(ctx); err != nil {
		return err
	}
	cancel()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(fatal) > 0 {
		return fmt.Errorf("%d worker(s) in terminal failed state", len(fatal))
	}
	return nil
}

// stopAll stops every watchdog concurrently; each Stop is bounded by the
// worker's grace period
func stopAll(dogs []*watchdog.Watchdog) {
	var wg sync.WaitGroup
	for _, dog := range dogs {
		wg.Add(1)
		go func(d *watchdog.Watchdog) {
			defer wg.Done()
			d.Stop()
		}(dog)
	}
	wg.Wait()
}
