package sat

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/verif-infra/sim-acceptor/exitcodes"
	"github.com/verif-infra/sim-acceptor/runner"
	"github.com/verif-infra/sim-acceptor/service"
	"github.com/verif-infra/sim-acceptor/types"
)

// trackedMockRunner is a mock runner that counts executions and provides synchronization
type trackedMockRunner struct {
	mock.Mock
	execCount atomic.Int32  // Count of RunRegression executions
	execCh    chan struct{} // Channel for signaling on each execution
}

// newTrackedMockRunner creates a new runner with execution tracking
func newTrackedMockRunner() *trackedMockRunner {
	return &trackedMockRunner{
		execCh: make(chan struct{}, 100), // Buffer to prevent blocking
	}
}

// RunRegression implements the runner.RegressionRunner interface
func (m *trackedMockRunner) RunRegression(ctx context.Context) (*runner.RunResult, error) {
	m.execCount.Add(1)
	args := m.Called()

	// Signal that an execution has happened
	select {
	case m.execCh <- struct{}{}:
	default:
		// Non-blocking send, just in case no one is listening
	}

	return args.Get(0).(*runner.RunResult), args.Error(1)
}

// RunScenario implements the runner.RegressionRunner interface
func (m *trackedMockRunner) RunScenario(ctx context.Context, scenario types.ScenarioConfig) (*types.ScenarioResult, error) {
	args := m.Called(scenario)
	return args.Get(0).(*types.ScenarioResult), args.Error(1)
}

// waitForExecutions waits for a specific number of executions with timeout
func (m *trackedMockRunner) waitForExecutions(ctx context.Context, count int32) bool {
	// Create a timeout context
	timeoutCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	// Use a ticker to periodically check the execution count
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		// Check if we've reached the desired count
		if m.execCount.Load() >= count {
			return true
		}

		// Wait for either a new execution, ticker, or timeout
		select {
		case <-m.execCh:
			// An execution signal received, immediately recheck the count
			continue
		case <-ticker.C:
			// Periodic check, loop back to check the count again
			continue
		case <-timeoutCtx.Done():
			// Timeout expired
			return false
		}
	}
}

// passingRunResult builds the result of a clean regression
func passingRunResult() *runner.RunResult {
	return &runner.RunResult{
		RunID:   "mock-run",
		Design:  "risc_soc",
		Compile: &runner.CompileResult{Duration: time.Second},
		Results: []*types.ScenarioResult{
			{Scenario: types.ScenarioConfig{Name: "DMA_TEST"}, Outcome: types.OutcomePass},
		},
		Stats:    types.RunStats{Total: 1, Passed: 1},
		Passed:   true,
		Duration: 2 * time.Second,
	}
}

// failingRunResult builds the result of a regression with a scenario failure
func failingRunResult() *runner.RunResult {
	return &runner.RunResult{
		RunID:   "mock-run",
		Design:  "risc_soc",
		Compile: &runner.CompileResult{Duration: time.Second},
		Results: []*types.ScenarioResult{
			{Scenario: types.ScenarioConfig{Name: "DMA_TEST"}, Outcome: types.OutcomePass},
			{Scenario: types.ScenarioConfig{Name: "CRC_TEST"}, Outcome: types.OutcomeFail},
		},
		Stats:    types.RunStats{Total: 2, Passed: 1, Failed: 1},
		Passed:   false,
		Duration: 2 * time.Second,
	}
}

// setupTest creates a test service with a tracked mock runner
func setupTest(t *testing.T) (*trackedMockRunner, *sat, context.Context, context.CancelFunc) {
	t.Helper()

	// Create a clean context for each test with a generous timeout to prevent hangs
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

	// Create a tracked mock runner
	mockRunner := newTrackedMockRunner()

	// Create a basic logger
	logger := log.New()

	runs, err := service.NewRunStore(8)
	require.NoError(t, err)

	// Create service with the mock
	cfg := &Config{
		Log:         logger,
		LogDir:      t.TempDir(),
		RunInterval: 25 * time.Millisecond, // Short interval for testing
	}
	svc := &sat{
		ctx:       ctx,
		config:    cfg,
		runner:    mockRunner,
		scheduler: NewDefaultRegressionScheduler(cfg.RunInterval, cfg.RunOnce, logger),
		formatter: NewConsoleResultFormatter(logger),
		reporter:  NewDefaultMetricsReporter(),
		runs:      runs,
		// Add a no-op shutdown callback for tests
		shutdownCallback: func(error) {},
	}
	svc.scheduler.RegisterCallback(svc.runRegression)

	return mockRunner, svc, ctx, cancel
}

// useRunOnceMode rewires a test service into run-once mode
func useRunOnceMode(svc *sat) {
	svc.config.RunOnce = true
	svc.scheduler = NewDefaultRegressionScheduler(svc.config.RunInterval, true, svc.config.Log)
	svc.scheduler.RegisterCallback(svc.runRegression)
}

// teardownTest ensures the service is fully stopped before test completion
func teardownTest(t *testing.T, svc *sat, cancel context.CancelFunc) {
	t.Helper()

	// Cancel context first to stop background activities
	cancel()

	// Then properly stop the service
	if !svc.Stopped() {
		err := svc.Stop(context.Background())
		assert.NoError(t, err, "Service should stop cleanly during teardown")
	}

	// Ensure all goroutines have terminated
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := svc.WaitForShutdown(ctx)
	if err != nil {
		t.Logf("Warning: Service did not shut down cleanly in teardown: %v", err)
	}
}

// TestSAT_Start_RunsRegressionImmediately tests that the service runs a regression immediately when started
func TestSAT_Start_RunsRegressionImmediately(t *testing.T) {
	// Setup
	mockRunner, svc, ctx, cancel := setupTest(t)
	defer teardownTest(t, svc, cancel)

	// Configure mock to return success
	mockRunner.On("RunRegression").Return(passingRunResult(), nil)

	// Start the service
	err := svc.Start(ctx)
	require.NoError(t, err)

	// Wait for first execution to complete
	execCompleted := mockRunner.waitForExecutions(ctx, 1)
	require.True(t, execCompleted, "First execution should have completed")

	// Verify the runner was called once
	mockRunner.AssertNumberOfCalls(t, "RunRegression", 1)
}

// TestSAT_Start_RunsRegressionsPeriodically tests that the service keeps running regressions
func TestSAT_Start_RunsRegressionsPeriodically(t *testing.T) {
	// Setup
	mockRunner, svc, ctx, cancel := setupTest(t)
	defer teardownTest(t, svc, cancel)

	// Configure mock to return success
	mockRunner.On("RunRegression").Return(passingRunResult(), nil)

	// Start the service
	err := svc.Start(ctx)
	require.NoError(t, err)

	// Wait for multiple executions (at least 3)
	execCompleted := mockRunner.waitForExecutions(ctx, 3)
	require.True(t, execCompleted, "Multiple executions should have completed")

	// Verify the runner was called multiple times
	callCount := mockRunner.execCount.Load()
	assert.GreaterOrEqual(t, callCount, int32(3), "Runner should be called at least 3 times")
}

// TestSAT_Context_Cancellation tests that the service properly handles context cancellation
func TestSAT_Context_Cancellation(t *testing.T) {
	// Setup
	mockRunner, svc, ctx, cancel := setupTest(t)
	defer teardownTest(t, svc, cancel)

	// Configure mock to return success
	mockRunner.On("RunRegression").Return(passingRunResult(), nil)

	// Start the service
	err := svc.Start(ctx)
	require.NoError(t, err)

	// Wait for first execution to complete
	execCompleted := mockRunner.waitForExecutions(ctx, 1)
	require.True(t, execCompleted, "First execution should have completed")

	// Record the execution count before cancellation
	execCountBeforeCancel := mockRunner.execCount.Load()

	// Cancel the context
	cancel()

	// Wait a moment for the cancellation to propagate
	time.Sleep(50 * time.Millisecond)

	// Verify service is stopped
	assert.True(t, svc.Stopped(), "Service should be stopped after context cancellation")

	// Wait more time to ensure no more regressions run after stopping
	time.Sleep(3 * svc.config.RunInterval)

	// Verify no additional executions occurred after cancellation
	assert.Equal(t, execCountBeforeCancel, mockRunner.execCount.Load(),
		"No additional regressions should run after context cancellation")
}

// TestSAT_RunOnceMode tests that the service runs once and triggers shutdown in run-once mode
func TestSAT_RunOnceMode(t *testing.T) {
	// Setup
	mockRunner, svc, ctx, cancel := setupTest(t)
	defer cancel()
	useRunOnceMode(svc)

	// Configure mock for 1 call
	mockRunner.On("RunRegression").Return(passingRunResult(), nil).Once()

	// Start the service
	err := svc.Start(ctx)
	require.NoError(t, err)

	// Wait for execution to complete
	execCompleted := mockRunner.waitForExecutions(ctx, 1)
	require.True(t, execCompleted, "Execution should have completed")

	// Verify the runner was called exactly once and doesn't continue running
	time.Sleep(3 * svc.config.RunInterval)
	mockRunner.AssertNumberOfCalls(t, "RunRegression", 1)
}

// TestSAT_RunOnceMode_ScenarioFailures tests that scenario failures surface as a
// regression failure, not a runtime error
func TestSAT_RunOnceMode_ScenarioFailures(t *testing.T) {
	// Setup
	mockRunner, svc, ctx, cancel := setupTest(t)
	defer cancel()
	useRunOnceMode(svc)

	mockRunner.On("RunRegression").Return(failingRunResult(), nil).Once()

	err := svc.Start(ctx)
	require.Error(t, err)
	assert.True(t, IsRegressionFailureError(err), "a failed scenario is a regression failure")
	assert.False(t, IsRuntimeError(err))
}

// TestSAT_RunOnceMode_RuntimeError tests that a run that never produced results
// exits with the runtime error code
func TestSAT_RunOnceMode_RuntimeError(t *testing.T) {
	// Setup
	mockRunner, svc, ctx, cancel := setupTest(t)
	defer cancel()
	useRunOnceMode(svc)

	mockRunner.On("RunRegression").Return((*runner.RunResult)(nil), errors.New("compiler could not run")).Once()

	err := svc.Start(ctx)
	require.Error(t, err)

	var exitErr cli.ExitCoder
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, exitcodes.RuntimeErr, exitErr.ExitCode())
}

// TestSAT_RunStoreCapturesRuns tests that completed runs land in the status store
func TestSAT_RunStoreCapturesRuns(t *testing.T) {
	// Setup
	mockRunner, svc, ctx, cancel := setupTest(t)
	defer cancel()
	useRunOnceMode(svc)

	mockRunner.On("RunRegression").Return(passingRunResult(), nil).Once()

	err := svc.Start(ctx)
	require.NoError(t, err)

	report, ok := svc.runs.Latest()
	require.True(t, ok, "the completed run should be in the store")
	assert.Equal(t, "mock-run", report.RunID)
	assert.Equal(t, "risc_soc", report.Design)
	assert.True(t, report.Passed)
}

// TestExtractKeyErrorMessage tests the error message extraction functionality
func TestExtractKeyErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
		{
			name:     "scenario timeout",
			err:      fmt.Errorf("scenario timed out after 30m0s"),
			expected: "timed out after 30m0s",
		},
		{
			name:     "wrapped timeout",
			err:      fmt.Errorf("running scenario FULL_REGRESSION: scenario timed out after 30m0s"),
			expected: "timed out after 30m0s",
		},
		{
			name:     "compiler spawn failure",
			err:      fmt.Errorf(`compiler could not run: exec: "iverilog": executable file not found in $PATH`),
			expected: `could not run: exec: "iverilog": executable file not found in $PATH`,
		},
		{
			name:     "simple error",
			err:      fmt.Errorf("simple error message"),
			expected: "simple error message",
		},
		{
			name:     "multiline error without specific pattern",
			err:      fmt.Errorf("first line\nsecond line\nthird line"),
			expected: "first line",
		},
		{
			name:     "long error without newlines",
			err:      fmt.Errorf("this is a very long error message that should be truncated because it exceeds the maximum length that we want to display in our formatted output table"),
			expected: "this is a very long error message that should be truncated because it ...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractKeyErrorMessage(tt.err)
			assert.Equal(t, tt.expected, result)
		})
	}
}
