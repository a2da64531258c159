package sat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/verif-infra/sim-acceptor/exitcodes"
	"github.com/verif-infra/sim-acceptor/history"
	"github.com/verif-infra/sim-acceptor/logging"
	"github.com/verif-infra/sim-acceptor/registry"
	"github.com/verif-infra/sim-acceptor/reporting"
	"github.com/verif-infra/sim-acceptor/runner"
	"github.com/verif-infra/sim-acceptor/service"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// sat implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &sat{}

// sat is a Silicon Acceptance Tester that runs simulation regressions.
type sat struct {
	ctx       context.Context
	config    *Config
	version   string
	registry  *registry.Registry
	runner    runner.RegressionRunner
	scheduler RegressionScheduler
	formatter ResultFormatter
	reporter  MetricsReporter
	runs      *service.RunStore
	service   *service.Service
	history   *history.Store
	result    *runner.RunResult

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*sat, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating acceptor with config",
		"manifest", config.ManifestPath,
		"workDir", config.WorkDir,
		"logDir", config.LogDir,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce)

	reg, err := registry.NewRegistry(registry.Config{
		Log:            config.Log,
		ManifestFile:   config.ManifestPath,
		DefaultTimeout: config.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	// Create runner with registry
	regressionRunner, err := runner.NewRegressionRunner(runner.Config{
		Registry: reg,
		WorkDir:  config.WorkDir,
		Log:      config.Log,
		Timeout:  config.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create regression runner: %w", err)
	}
	config.Log.Info("sat.New: created registry and regression runner")

	runs, err := service.NewRunStore(service.DefaultRunStoreSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create run store: %w", err)
	}

	var hist *history.Store
	if config.HistoryDSN != "" {
		hist, err = history.NewStore(ctx, config.Log, config.HistoryDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
	}

	healthzAddr := ""
	if config.HTTPEnabled {
		host := config.HTTPAddr
		if host == "" {
			host = service.HealthzHost
		}
		port := strconv.Itoa(config.HTTPPort)
		if config.HTTPPort == 0 {
			port = service.HealthzPort
		}
		healthzAddr = net.JoinHostPort(host, port)
	}
	metricsAddr := ""
	if config.Metrics.Enabled {
		metricsAddr = net.JoinHostPort(config.Metrics.ListenAddr, strconv.Itoa(config.Metrics.ListenPort))
	}

	var svc *service.Service
	if healthzAddr != "" || metricsAddr != "" {
		svc = service.New(service.Config{
			HealthzAddr: healthzAddr,
			MetricsAddr: metricsAddr,
			Runs:        runs,
		})
	}

	s := &sat{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		runner:           regressionRunner,
		scheduler:        NewDefaultRegressionScheduler(config.RunInterval, config.RunOnce, config.Log),
		formatter:        NewConsoleResultFormatter(config.Log),
		reporter:         NewDefaultMetricsReporter(),
		runs:             runs,
		service:          svc,
		history:          hist,
		shutdownCallback: shutdownCallback,
	}
	s.scheduler.RegisterCallback(s.runRegression)
	return s, nil
}

// Start runs the regression periodically at the configured interval.
// Start implements the cliapp.Lifecycle interface.
func (s *sat) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			s.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	s.ctx = ctx

	if s.config.RunOnce {
		s.config.Log.Info("Starting sim-acceptor in run-once mode")
	} else {
		s.config.Log.Info("Starting sim-acceptor in continuous mode", "interval", s.config.RunInterval)
	}

	s.config.Log.Debug("Acceptor config paths",
		"config.ManifestPath", s.config.ManifestPath,
		"config.WorkDir", s.config.WorkDir,
		"config.LogDir", s.config.LogDir)

	if s.service != nil {
		s.service.Start(ctx)
	}

	if s.history != nil {
		if last, err := s.history.LastRun(ctx); err != nil {
			s.config.Log.Warn("Could not read last recorded run", "error", err)
		} else if last != nil {
			s.config.Log.Info("Last recorded regression",
				"run_id", last.ID, "design", last.Design, "passed", last.Passed, "started_at", last.StartedAt)
		}
	}

	// Run the regression immediately on startup; in continuous mode the
	// scheduler keeps re-running it at the configured interval.
	err := s.scheduler.Start(ctx)
	if err != nil {
		// For runtime errors (like a missing toolchain or a failed compile), exit code 2
		s.config.Log.Error("Runtime error running regression", "error", err)
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	// If in run-once mode, trigger shutdown and return
	if s.config.RunOnce {
		s.config.Log.Info("Regression completed, exiting (run-once mode)")

		// Check if any scenario did not pass and return appropriate exit code
		if s.result != nil && !s.result.Passed {
			s.config.Log.Warn("Run-once regression completed with failures, returning exit code 1")
			// Return exit code 1 for scenario failures (simulation ran, checks failed)
			return NewRegressionFailureError(s.result.String())
		}

		// Only need to call this when we're in run-once mode and every scenario passed
		go func() {
			s.shutdownCallback(nil)
		}()
		return nil // Success (exit code 0)
	}

	s.config.Log.Debug("sim-acceptor started successfully")
	return nil
}

// runRegression runs one full regression and processes the results
func (s *sat) runRegression() error {
	s.config.Log.Info("Running regression...")

	// Each run gets its own directory under the log root
	runID := uuid.New().String()
	fileLogger, err := logging.NewFileLogger(s.config.LogDir, runID)
	if err != nil {
		s.config.Log.Error("Error creating file logger", "error", err)
		return NewRuntimeError(err)
	}
	if rwl, ok := s.runner.(runner.RegressionRunnerWithFileLogger); ok {
		rwl.SetFileLogger(fileLogger)
	}

	result, err := s.runner.RunRegression(s.ctx)
	if err != nil {
		// A failed compile is an environment problem, not a scenario verdict.
		// Show the compiler's own words before reporting the runtime error.
		var compileErr *runner.CompileError
		if errors.As(err, &compileErr) && compileErr.Stderr != "" {
			fmt.Fprintln(os.Stderr, compileErr.Stderr)
		}
		s.config.Log.Error("Runtime error running regression", "error", err)
		return NewRuntimeError(err)
	}
	s.result = result

	if err := s.formatter.FormatResults(result); err != nil {
		s.config.Log.Error("Error formatting results", "error", err)
	}
	fmt.Println(result.String())
	printRegressionBanner(result.Passed)

	s.reporter.ReportResults(result.RunID, result)

	if err := fileLogger.LogSummary(result.String(), result.RunID); err != nil {
		s.config.Log.Error("Error writing summary log", "error", err)
	}
	if err := fileLogger.Complete(result.RunID); err != nil {
		s.config.Log.Error("Error completing file logger", "error", err)
	}

	report := reporting.BuildReportData(result.RunID, result.Design, result.StartTime, result.Duration, result.Results)
	s.runs.Add(report)

	if s.history != nil {
		if err := s.history.RecordRun(s.ctx, result); err != nil {
			s.config.Log.Error("Error recording run history", "error", err)
		}
	}

	s.config.Log.Info("Regression run completed", "run_id", result.RunID, "passed", result.Passed)
	return nil
}

// Stop stops the sim-acceptor service.
// Stop implements the cliapp.Lifecycle interface.
func (s *sat) Stop(ctx context.Context) error {
	s.config.Log.Info("Stopping sim-acceptor")

	// Check if we're already stopped
	if s.scheduler.Stopped() {
		s.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	if err := s.scheduler.Stop(); err != nil {
		s.config.Log.Error("Error stopping scheduler", "error", err)
	}

	if s.service != nil {
		s.service.Shutdown()
	}

	if s.history != nil {
		if err := s.history.Close(); err != nil {
			s.config.Log.Error("Error closing history store", "error", err)
		}
	}

	s.config.Log.Info("sim-acceptor stopped successfully")
	return nil
}

// Stopped returns true if the sim-acceptor service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (s *sat) Stopped() bool {
	return s.scheduler.Stopped()
}

// WaitForShutdown blocks until all goroutines have terminated.
// This is useful in tests to ensure complete cleanup before moving to the next test.
func (s *sat) WaitForShutdown(ctx context.Context) error {
	return s.scheduler.WaitForShutdown(ctx)
}
