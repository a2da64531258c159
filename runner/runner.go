package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/verif-infra/sim-acceptor/logging"
	"github.com/verif-infra/sim-acceptor/metrics"
	"github.com/verif-infra/sim-acceptor/registry"
	"github.com/verif-infra/sim-acceptor/types"
)

// CompileResult captures the compile gate evaluation
type CompileResult struct {
	Command  string
	ExitCode int
	Duration time.Duration
}

// RunResult captures the complete regression run results
type RunResult struct {
	RunID     string
	Design    string
	Compile   *CompileResult
	Results   []*types.ScenarioResult // Execution order, one entry per configured scenario
	Stats     types.RunStats
	Passed    bool
	Duration  time.Duration
	StartTime time.Time
}

// CompileError is the compile gate tripping: the tool ran and exited
// non-zero (or hit its deadline). It carries the tool's error stream
// verbatim so the operator sees exactly what the compiler said.
type CompileError struct {
	Design   string
	ExitCode int
	Stderr   string
	TimedOut bool
}

func (e *CompileError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("compile of %s timed out", e.Design)
	}
	return fmt.Sprintf("compile of %s failed with exit code %d", e.Design, e.ExitCode)
}

// RegressionRunner defines the interface for running a design regression
type RegressionRunner interface {
	RunRegression(ctx context.Context) (*RunResult, error)
	RunScenario(ctx context.Context, scenario types.ScenarioConfig) (*types.ScenarioResult, error)
}

// RegressionRunnerWithFileLogger extends the RegressionRunner interface with a
// method to attach the per-run file logger before a run starts
type RegressionRunnerWithFileLogger interface {
	RegressionRunner
	SetFileLogger(logger *logging.FileLogger)
}

// regressionRunner struct implements RegressionRunner interface
type regressionRunner struct {
	registry   *registry.Registry
	manifest   *types.Manifest
	scenarios  []types.ScenarioConfig
	workDir    string // Directory the toolchain runs in
	log        log.Logger
	runID      string
	timeout    time.Duration // Deadline applied to the compile step (0 = none)
	fileLogger *logging.FileLogger
	classifier *Classifier
	toolchain  *Toolchain
	tracer     trace.Tracer
}

// Config holds configuration for creating a new runner
type Config struct {
	Registry   *registry.Registry
	WorkDir    string
	Log        log.Logger
	Timeout    time.Duration       // Deadline for the compile invocation
	FileLogger *logging.FileLogger // Logger for storing scenario artifacts and result streams
}

// NewRegressionRunner creates a new regression runner instance
func NewRegressionRunner(cfg Config) (RegressionRunner, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.WorkDir == "" {
		return nil, fmt.Errorf("work directory is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	manifest := cfg.Registry.Manifest()
	scenarios := cfg.Registry.Scenarios()
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("no scenarios found")
	}

	cfg.Log.Debug("NewRegressionRunner()", "design", manifest.Design.Name,
		"workDir", cfg.WorkDir, "scenarios", len(scenarios), "timeout", cfg.Timeout)

	return &regressionRunner{
		registry:   cfg.Registry,
		manifest:   manifest,
		scenarios:  scenarios,
		workDir:    cfg.WorkDir,
		log:        cfg.Log,
		timeout:    cfg.Timeout,
		fileLogger: cfg.FileLogger,
		classifier: NewClassifier(manifest.Classify.Rules),
		tracer:     otel.Tracer("regression runner"),
	}, nil
}

// RunRegression implements the RegressionRunner interface. The compile step
// is evaluated exactly once and gates the scenario loop; no scenario runs
// unless it succeeded. Scenario failures never stop the loop.
func (r *regressionRunner) RunRegression(ctx context.Context) (*RunResult, error) {
	// Use fileLogger's runID if available, otherwise generate new
	if r.fileLogger != nil {
		r.runID = r.fileLogger.GetRunID()
	} else {
		r.runID = uuid.New().String()
	}

	defer func() {
		r.runID = ""
	}()
	start := time.Now()
	r.log.Debug("Running regression", "run_id", r.runID, "design", r.manifest.Design.Name)

	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("regression %s", r.manifest.Design.Name))
	defer span.End()

	result := &RunResult{
		RunID:     r.runID,
		Design:    r.manifest.Design.Name,
		StartTime: start,
	}

	tc, err := Preflight(ctx, r.log, r.manifest)
	if err != nil {
		return nil, err
	}
	r.toolchain = tc

	compile, err := r.compileDesign(ctx)
	if err != nil {
		return nil, err
	}
	result.Compile = compile

	for _, scenario := range r.scenarios {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("regression interrupted: %w", err)
		}

		res, err := r.RunScenario(ctx, scenario)
		if err != nil {
			return nil, fmt.Errorf("running scenario %s: %w", scenario.Name, err)
		}

		result.Results = append(result.Results, res)
		result.Stats.Record(res.Outcome)
		metrics.RecordScenario(result.Design, r.runID, scenario.Name, res.Outcome)

		if r.fileLogger != nil {
			if err := r.fileLogger.LogScenarioResult(res, r.runID); err != nil {
				r.log.Error("Failed to log scenario result", "scenario", scenario.Name, "error", err)
			}
		}
	}

	result.Duration = time.Since(start)
	result.Passed = result.Stats.AllPassed()
	return result, nil
}

// compileDesign evaluates the compile gate. The compiler's stderr is kept
// verbatim and returned inside the CompileError on failure; it is never
// parsed or interpreted here.
func (r *regressionRunner) compileDesign(ctx context.Context) (*CompileResult, error) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("compile %s", r.manifest.Design.Name))
	defer span.End()

	if r.timeout != 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	bin := r.compilerBinary()
	args := CompileArgs(r.manifest.Design)

	r.log.Info("Compiling design", "design", r.manifest.Design.Name,
		"sources", len(r.manifest.Design.Sources), "artifact", r.manifest.Design.Artifact)
	r.log.Debug("Running compile command", "dir", r.workDir, "command", commandString(bin, args))

	proc, err := runCompileProcess(ctx, r.workDir, bin, args)
	if err != nil {
		metrics.RecordCompileFailure(r.manifest.Design.Name)
		return nil, fmt.Errorf("compiler could not run: %w", err)
	}

	result := &CompileResult{
		Command:  commandString(bin, args),
		ExitCode: proc.ExitCode,
		Duration: proc.Duration,
	}

	if proc.TimedOut || proc.ExitCode != 0 {
		metrics.RecordCompileFailure(r.manifest.Design.Name)
		return nil, &CompileError{
			Design:   r.manifest.Design.Name,
			ExitCode: proc.ExitCode,
			Stderr:   string(proc.Stderr),
			TimedOut: proc.TimedOut,
		}
	}

	r.log.Info("Compile succeeded", "artifact", r.manifest.Design.Artifact,
		"duration", proc.Duration)
	return result, nil
}

// RunScenario executes one scenario against the compiled artifact. The raw
// captured output is archived before classification: the artifact is the
// durable evidence and must exist even if everything after the write fails.
// A non-zero exit is a crash regardless of any text captured.
func (r *regressionRunner) RunScenario(ctx context.Context, scenario types.ScenarioConfig) (*types.ScenarioResult, error) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("scenario %s", scenario.Name))
	defer span.End()

	var timeout time.Duration
	if scenario.Timeout != nil && *scenario.Timeout != 0 {
		timeout = *scenario.Timeout
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	bin := r.simulatorBinary()
	args := ScenarioArgs(r.manifest.Simulator, r.manifest.Design.Artifact, scenario.Name)

	r.log.Info("Running scenario", "scenario", scenario.Name)
	r.log.Debug("Running scenario command", "dir", r.workDir,
		"command", commandString(bin, args), "timeout", timeout)

	proc, err := runScenarioProcess(ctx, r.workDir, bin, args)
	if err != nil {
		// The tool never ran. The scenario still yields exactly one outcome.
		r.log.Error("Scenario tool could not run", "scenario", scenario.Name, "error", err)
		return &types.ScenarioResult{
			Scenario: scenario,
			Outcome:  types.OutcomeCrash,
			Error:    err,
		}, nil
	}

	result := &types.ScenarioResult{
		Scenario: scenario,
		Duration: proc.Duration,
		ExitCode: proc.ExitCode,
		TimedOut: proc.TimedOut,
	}

	if r.fileLogger != nil {
		path, err := r.fileLogger.ArchiveScenarioOutput(r.runID, scenario.Name, proc.Output)
		if err != nil {
			// Surfaced, never swallowed: a missing artifact defeats the
			// diagnostic purpose of the run.
			r.log.Error("Failed to archive scenario output", "scenario", scenario.Name, "error", err)
			metrics.RecordErrorDetails("archive_write_failure", err)
			result.Error = fmt.Errorf("archiving scenario output: %w", err)
		} else {
			result.LogPath = path
		}
	}

	switch {
	case proc.TimedOut:
		result.Outcome = types.OutcomeCrash
		if timeout != 0 {
			result.Error = fmt.Errorf("scenario timed out after %v", timeout)
		} else {
			result.Error = fmt.Errorf("scenario timed out after %v", proc.Duration)
		}
	case proc.ExitCode != 0:
		result.Outcome = types.OutcomeCrash
	default:
		result.Outcome = r.classifier.Classify(proc.Output)
	}

	return result, nil
}

// compilerBinary returns the resolved compiler path, falling back to the
// manifest name when preflight has not run (standalone RunScenario callers)
func (r *regressionRunner) compilerBinary() string {
	if r.toolchain != nil {
		return r.toolchain.Compiler
	}
	return r.manifest.Design.Compiler
}

func (r *regressionRunner) simulatorBinary() string {
	if r.toolchain != nil {
		return r.toolchain.Simulator
	}
	return r.manifest.Simulator.Binary
}

// formatDuration formats the duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// String returns a formatted string representation of the regression results
func (r *RunResult) String() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Regression Results (%s):\n", formatDuration(r.Duration)))
	b.WriteString(fmt.Sprintf("Total: %d, Passed: %d, Failed: %d, Crashed: %d, Unknown: %d\n",
		r.Stats.Total, r.Stats.Passed, r.Stats.Failed, r.Stats.Crashed, r.Stats.Unknown))

	b.WriteString(fmt.Sprintf("\nDesign: %s\n", r.Design))
	if r.Compile != nil {
		b.WriteString(fmt.Sprintf("├── Compile: ok (%s)\n", formatDuration(r.Compile.Duration)))
	}
	for _, res := range r.Results {
		b.WriteString(fmt.Sprintf("├── Scenario: %s (%s) [outcome=%s]\n",
			res.Scenario.Name, formatDuration(res.Duration), res.Outcome))
		if res.Error != nil {
			b.WriteString(fmt.Sprintf("│       └── Error: %s\n", res.Error.Error()))
		}
	}

	verdict := "FAIL"
	if r.Passed {
		verdict = "PASS"
	}
	b.WriteString(fmt.Sprintf("└── Verdict: %s\n", verdict))
	return b.String()
}

// SetFileLogger sets the file logger for the runner
func (r *regressionRunner) SetFileLogger(logger *logging.FileLogger) {
	r.fileLogger = logger
}

var _ RegressionRunnerWithFileLogger = &regressionRunner{}
