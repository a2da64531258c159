package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/verif-infra/sim-acceptor/types"
)

const (
	MetricsNamespace = "sat"
)

var (
	Debug                bool = true
	validOutcomes             = []types.Outcome{types.OutcomePass, types.OutcomeFail, types.OutcomeCrash, types.OutcomeUnknown}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	scenariosTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "scenarios_total",
		Help:      "Count of executed scenarios",
	}, []string{
		"design",
		"run_id",
		"scenario",
		"result",
	})

	compileFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "compile_failures_total",
		Help:      "Count of compile gate failures",
	}, []string{
		"design",
	})

	regressionResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "regression_results",
		Help:      "Result of regression runs",
	}, []string{
		"design",
		"run_id",
		"result",
	})

	regressionScenarioTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "regression_scenario_total",
		Help:      "Total number of scenarios in a regression run",
	}, []string{
		"design",
		"run_id",
	})

	regressionScenarioPassed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "regression_scenario_passed",
		Help:      "Number of passed scenarios in a regression run",
	}, []string{
		"design",
		"run_id",
	})

	regressionScenarioFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "regression_scenario_failed",
		Help:      "Number of failed scenarios in a regression run",
	}, []string{
		"design",
		"run_id",
	})

	regressionScenarioCrashed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "regression_scenario_crashed",
		Help:      "Number of crashed scenarios in a regression run",
	}, []string{
		"design",
		"run_id",
	})

	regressionScenarioUnknown = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "regression_scenario_unknown",
		Help:      "Number of scenarios with unclassifiable output in a regression run",
	}, []string{
		"design",
		"run_id",
	})

	regressionDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "regression_duration",
		Help:      "Duration of regression runs",
	}, []string{
		"design",
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordScenario(design string, runID string, scenario string, result types.Outcome) {
	if !isValidOutcome(result) {
		log.Error("RecordScenario - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "scenarios_total",
			"design", design,
			"run_id", runID,
			"scenario", scenario,
			"result", result)
	}
	scenariosTotal.WithLabelValues(design, runID, scenario, string(result)).Inc()
}

func RecordCompileFailure(design string) {
	if Debug {
		log.Debug("metric inc",
			"m", "compile_failures_total",
			"design", design)
	}
	compileFailuresTotal.WithLabelValues(design).Inc()
}

func RecordRegression(
	design string,
	runID string,
	result string,
	stats types.RunStats,
	duration time.Duration,
) {
	regressionResults.WithLabelValues(design, runID, result).Set(1)
	regressionScenarioTotal.WithLabelValues(design, runID).Add(float64(stats.Total))
	regressionScenarioPassed.WithLabelValues(design, runID).Add(float64(stats.Passed))
	regressionScenarioFailed.WithLabelValues(design, runID).Add(float64(stats.Failed))
	regressionScenarioCrashed.WithLabelValues(design, runID).Add(float64(stats.Crashed))
	regressionScenarioUnknown.WithLabelValues(design, runID).Add(float64(stats.Unknown))
	regressionDuration.WithLabelValues(design, runID).Set(duration.Seconds())
}

func isValidOutcome(result types.Outcome) bool {
	return slices.Contains(validOutcomes, result)
}
