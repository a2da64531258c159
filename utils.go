package sat

import (
	"fmt"
	"time"

	"github.com/verif-infra/sim-acceptor/types"
)

// Helper function to convert bool to int
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// getResultString returns a colored string representing the scenario outcome
func getResultString(outcome types.Outcome) string {
	switch outcome {
	case types.OutcomePass:
		return "✓ pass"
	case types.OutcomeCrash:
		return "✗ crash"
	case types.OutcomeUnknown:
		return "? unknown"
	default:
		return "✗ fail"
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// printRegressionBanner prints the final verdict banner.
// CI jobs grep for these exact lines, do not reword them.
func printRegressionBanner(passed bool) {
	fmt.Println("=======================================")
	if passed {
		fmt.Println(">>> ALL TESTS PASSED! Regression successful. <<<")
	} else {
		fmt.Println(">>> REGRESSION FAILED! Check logs for details. <<<")
	}
	fmt.Println("=======================================")
}
