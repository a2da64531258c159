package sat

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/verif-infra/sim-acceptor/runner"
	"github.com/verif-infra/sim-acceptor/types"
)

// ResultFormatter is responsible for formatting and displaying regression results.
type ResultFormatter interface {
	FormatResults(result *runner.RunResult) error
}

// ConsoleResultFormatter implements the ResultFormatter interface.
type ConsoleResultFormatter struct {
	logger log.Logger
}

// NewConsoleResultFormatter creates a new ConsoleResultFormatter.
func NewConsoleResultFormatter(logger log.Logger) *ConsoleResultFormatter {
	return &ConsoleResultFormatter{
		logger: logger,
	}
}

// FormatResults formats and displays the regression results.
func (f *ConsoleResultFormatter) FormatResults(result *runner.RunResult) error {
	f.logger.Info("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Regression Results: %s (%s)", result.Design, formatDuration(result.Duration)))

	// Configure columns
	t.AppendHeader(table.Row{
		"Type", "Name", "Duration", "Passed", "Failed", "Crashed", "Unknown", "Outcome", "Log", "Error",
	})

	// Set column configurations for better readability
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "Name", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Crashed", Align: text.AlignRight},
		{Name: "Unknown", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	// The compile row only ever shows a success; a failed compile aborts
	// the run before any results reach the formatter.
	if result.Compile != nil {
		t.AppendRow(table.Row{
			"Compile",
			result.Design,
			formatDuration(result.Compile.Duration),
			"-", "-", "-", "-",
			getResultString(types.OutcomePass),
			"",
			"",
		})
	}

	// Print scenarios in execution order
	for i, res := range result.Results {
		prefix := "├──"
		if i == len(result.Results)-1 {
			prefix = "└──"
		}

		// Extract key error information
		errorMsg := extractKeyErrorMessage(res.Error)

		t.AppendRow(table.Row{
			"Scenario",
			fmt.Sprintf("%s %s", prefix, res.Scenario.Name),
			formatDuration(res.Duration),
			boolToInt(res.Outcome == types.OutcomePass),
			boolToInt(res.Outcome == types.OutcomeFail),
			boolToInt(res.Outcome == types.OutcomeCrash),
			boolToInt(res.Outcome == types.OutcomeUnknown),
			getResultString(res.Outcome),
			filepath.Base(res.LogPath),
			errorMsg,
		})
	}

	// Update the table style setting based on the overall verdict
	if result.Passed {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else if result.Stats.Failed == 0 && result.Stats.Crashed == 0 {
		// Only unknown outcomes, no hard failures
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	// Add summary footer
	verdict := types.OutcomeFail
	if result.Passed {
		verdict = types.OutcomePass
	}
	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(result.Duration),
		result.Stats.Passed,
		result.Stats.Failed,
		result.Stats.Crashed,
		result.Stats.Unknown,
		getResultString(verdict),
		"",
		"",
	})

	t.Render()
	return nil
}

// extractKeyErrorMessage extracts the most pertinent part of the error message for display
func extractKeyErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()

	// Timeouts carry the deadline in their message; surface that line
	if idx := strings.Index(errStr, "timed out"); idx != -1 {
		start := idx
		end := len(errStr)
		if newLine := strings.Index(errStr[start:], "\n"); newLine != -1 {
			end = start + newLine
		}
		return errStr[start:end]
	}

	// Spawn failures explain why the tool could not run
	if idx := strings.Index(errStr, "could not run"); idx != -1 {
		start := idx
		end := len(errStr)
		if newLine := strings.Index(errStr[start:], "\n"); newLine != -1 {
			end = start + newLine
		}
		return errStr[start:end]
	}

	// If we can't find a specific pattern, limit to the first line or 80 chars
	if idx := strings.Index(errStr, "\n"); idx != -1 {
		return errStr[:idx]
	} else if len(errStr) > 80 {
		return errStr[:70] + "..."
	}

	return errStr
}
