package reporting

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/verif-infra/sim-acceptor/types"
)

// ReportStats contains aggregated statistics for a regression run
type ReportStats struct {
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	Crashed  int     `json:"crashed"`
	Unknown  int     `json:"unknown"`
	PassRate float64 `json:"pass_rate"`
}

// ReportScenarioItem represents a single scenario in the report
type ReportScenarioItem struct {
	Name           string `json:"name"`
	Outcome        string `json:"outcome"`
	ExitCode       int    `json:"exit_code"`
	DurationText   string `json:"duration"`
	LogFile        string `json:"log_file,omitempty"`
	Error          string `json:"error,omitempty"`
	TimedOut       bool   `json:"timed_out,omitempty"`
	ExecutionOrder int    `json:"execution_order"`
}

// ReportData contains all the structured data needed for any report format
type ReportData struct {
	RunID        string    `json:"run_id"`
	Design       string    `json:"design"`
	Timestamp    time.Time `json:"timestamp"`
	DurationText string    `json:"duration"`

	Stats       ReportStats `json:"stats"`
	Passed      bool        `json:"passed"`
	HasFailures bool        `json:"has_failures"`
	HasCrashes  bool        `json:"has_crashes"`

	Scenarios []ReportScenarioItem `json:"scenarios"`

	// Names of every scenario that did not pass, in execution order
	FailedScenarioNames []string `json:"failed_scenario_names,omitempty"`
}

// BuildReportData assembles the report projection from raw scenario results.
// Scenario order is preserved; stats are recomputed from the results so the
// projection stands on its own.
func BuildReportData(runID, design string, timestamp time.Time, duration time.Duration, results []*types.ScenarioResult) *ReportData {
	data := &ReportData{
		RunID:        runID,
		Design:       design,
		Timestamp:    timestamp,
		DurationText: formatDuration(duration),
		Scenarios:    make([]ReportScenarioItem, 0, len(results)),
	}

	var stats types.RunStats
	for i, res := range results {
		stats.Record(res.Outcome)

		item := ReportScenarioItem{
			Name:           res.Scenario.Name,
			Outcome:        string(res.Outcome),
			ExitCode:       res.ExitCode,
			DurationText:   formatDuration(res.Duration),
			TimedOut:       res.TimedOut,
			ExecutionOrder: i + 1,
		}
		if res.LogPath != "" {
			item.LogFile = filepath.Base(res.LogPath)
		}
		if res.Error != nil {
			item.Error = res.Error.Error()
		}
		data.Scenarios = append(data.Scenarios, item)

		switch res.Outcome {
		case types.OutcomePass:
			// Nothing to flag
		case types.OutcomeCrash:
			data.HasCrashes = true
			data.FailedScenarioNames = append(data.FailedScenarioNames, res.Scenario.Name)
		default:
			data.HasFailures = true
			data.FailedScenarioNames = append(data.FailedScenarioNames, res.Scenario.Name)
		}
	}

	data.Stats = ReportStats{
		Total:   stats.Total,
		Passed:  stats.Passed,
		Failed:  stats.Failed,
		Crashed: stats.Crashed,
		Unknown: stats.Unknown,
	}
	if stats.Total > 0 {
		data.Stats.PassRate = float64(stats.Passed) / float64(stats.Total)
	}
	data.Passed = stats.AllPassed()

	return data
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
