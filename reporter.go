package sat

import (
	"github.com/verif-infra/sim-acceptor/metrics"
	"github.com/verif-infra/sim-acceptor/runner"
	"github.com/verif-infra/sim-acceptor/types"
)

// MetricsReporter is responsible for reporting metrics from regression results.
type MetricsReporter interface {
	ReportResults(runID string, result *runner.RunResult)
}

// DefaultMetricsReporter implements the MetricsReporter interface.
type DefaultMetricsReporter struct{}

// NewDefaultMetricsReporter creates a new DefaultMetricsReporter.
func NewDefaultMetricsReporter() *DefaultMetricsReporter {
	return &DefaultMetricsReporter{}
}

// ReportResults reports the regression results to metrics systems.
func (r *DefaultMetricsReporter) ReportResults(runID string, result *runner.RunResult) {
	verdict := types.OutcomeFail
	if result.Passed {
		verdict = types.OutcomePass
	}
	metrics.RecordRegression(
		result.Design,
		runID,
		string(verdict),
		result.Stats,
		result.Duration,
	)
}
