package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/psantana5/procwatch/pkg/api"
	"github.com/psantana5/procwatch/pkg/watchdog"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show supervised worker status",
	Long: `Retrieve the current state of every supervised worker from a running
supervisor and display phases, failure counts, and restart totals.

Example:
  procwatch status
  procwatch status --addr http://localhost:9120 --output json`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	base := GetServerAddr()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(base + "/api/status")
	if err != nil {
		return fmt.Errorf("failed to reach supervisor at %s: %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("supervisor returned status %d", resp.StatusCode)
	}

	var status api.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode status response: %w", err)
	}

	if IsJSONOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	restarts := fetchRestartTotals(client, base)

	fmt.Printf("Supervisor up %s\n\n", status.Uptime)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Worker", "Phase", "PID", "Uptime", "Failures", "Restarts", "Last Exit")

	for _, w := range status.Workers {
		table.Append(
			w.Name,
			string(w.Phase),
			pidColumn(w),
			uptimeColumn(w),
			fmt.Sprintf("%d", w.Failures),
			restartColumn(w, restarts),
			lastExitColumn(w),
		)
	}

	table.Render()
	return nil
}

// fetchRestartTotals scrapes the supervisor's own metrics endpoint for
// restart counters. Best-effort: on any error the snapshot counts are
// shown instead.
func fetchRestartTotals(client *http.Client, base string) map[string]float64 {
	resp, err := client.Get(base + "/metrics")
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil
	}

	family, ok := families["procwatch_worker_restarts_total"]
	if !ok {
		return nil
	}

	totals := make(map[string]float64)
	for _, m := range family.GetMetric() {
		for _, label := range m.GetLabel() {
			if label.GetName() == "worker" {
				totals[label.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	return totals
}

func pidColumn(w watchdog.WorkerState) string {
	if w.PID == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", w.PID)
}

func uptimeColumn(w watchdog.WorkerState) string {
	u := w.Uptime()
	if u == 0 {
		return "-"
	}
	return u.Round(time.Second).String()
}

func restartColumn(w watchdog.WorkerState, totals map[string]float64) string {
	if totals != nil {
		if v, ok := totals[w.Name]; ok {
			return fmt.Sprintf("%.0f", v)
		}
	}
	return fmt.Sprintf("%d", w.Restarts)
}

func lastExitColumn(w watchdog.WorkerState) string {
	if w.LastReason == watchdog.ReasonNone {
		return "-"
	}
	if w.LastSignal != "" {
		return fmt.Sprintf("%s (%s)", w.LastReason, w.LastSignal)
	}
	return fmt.Sprintf("%s (code %d)", w.LastReason, w.LastExitCode)
}
