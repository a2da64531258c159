package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verif-infra/sim-acceptor/logging"
	"github.com/verif-infra/sim-acceptor/registry"
	"github.com/verif-infra/sim-acceptor/types"
)

// Stub toolchain bodies. Preflight probes the compiler with -V, so every
// compiler stub answers it before doing anything else.
const (
	compilerOK = `
if [ "$1" = "-V" ]; then echo "Icarus Verilog version 12.0"; exit 0; fi
exit 0
`

	compilerBroken = `
if [ "$1" = "-V" ]; then echo "Icarus Verilog version 12.0"; exit 0; fi
echo "rtl/timer.v:42: syntax error" >&2
exit 1
`

	compilerHangs = `
if [ "$1" = "-V" ]; then echo "Icarus Verilog version 12.0"; exit 0; fi
exec sleep 5
`

	// The sim stub keys its behavior off the scenario riding on the plusarg
	// and records every invocation so tests can check what actually ran
	simStub = `
echo "$2" >> sim_calls.txt
case "$2" in
*FAIL*)  echo "TEST FAILED"; exit 0 ;;
*CRASH*) echo "All Transactions PASSED"; exit 2 ;;
*QUIET*) echo '$finish reached, no verdict printed'; exit 0 ;;
*HANG*)  exec sleep 5 ;;
*)       echo "All Transactions PASSED"; exit 0 ;;
esac
`
)

type runnerRig struct {
	runner  *regressionRunner
	workDir string
}

func setupRunnerRig(t *testing.T, compilerBody, simBody, scenarioBlock string, timeout time.Duration) *runnerRig {
	t.Helper()
	workDir := t.TempDir()
	compiler := writeScript(t, workDir, "compile.sh", compilerBody)
	sim := writeScript(t, workDir, "sim.sh", simBody)

	manifest := fmt.Sprintf(`
design:
  name: risc_soc
  compiler: %s
  artifact: soc_sim
  sources:
    - rtl/timer.v
    - tb/tb_risc_soc.sv
simulator:
  binary: %s
scenarios:
%s
`, compiler, sim, scenarioBlock)

	manifestPath := filepath.Join(workDir, "regression.yaml")
	require.NoError(t, os.WriteFile(manifestPath, []byte(manifest), 0o644))

	reg, err := registry.NewRegistry(registry.Config{
		Log:          log.NewLogger(log.DiscardHandler()),
		ManifestFile: manifestPath,
	})
	require.NoError(t, err)

	r, err := NewRegressionRunner(Config{
		Registry: reg,
		WorkDir:  workDir,
		Log:      log.NewLogger(log.DiscardHandler()),
		Timeout:  timeout,
	})
	require.NoError(t, err)

	return &runnerRig{runner: r.(*regressionRunner), workDir: workDir}
}

// simCalls returns the plusargs the sim stub was invoked with, in order
func (rig *runnerRig) simCalls(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(rig.workDir, "sim_calls.txt"))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestNewRegressionRunner_Validation(t *testing.T) {
	_, err := NewRegressionRunner(Config{WorkDir: "."})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry is required")

	rig := setupRunnerRig(t, compilerOK, simStub, "  - DMA_TEST", 0)
	_, err = NewRegressionRunner(Config{Registry: rig.runner.registry})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "work directory is required")
}

func TestRunRegression_AllScenariosPass(t *testing.T) {
	rig := setupRunnerRig(t, compilerOK, simStub, "  - DMA_TEST\n  - CRC_TEST", 0)

	result, err := rig.runner.RunRegression(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.Equal(t, types.RunStats{Total: 2, Passed: 2}, result.Stats)
	assert.Equal(t, "risc_soc", result.Design)
	assert.NotEmpty(t, result.RunID)
	assert.Greater(t, result.Duration, time.Duration(0))

	require.NotNil(t, result.Compile)
	assert.Equal(t, 0, result.Compile.ExitCode)
	assert.Contains(t, result.Compile.Command, "-o soc_sim")

	require.Len(t, result.Results, 2)
	assert.Equal(t, "DMA_TEST", result.Results[0].Scenario.Name)
	assert.Equal(t, "CRC_TEST", result.Results[1].Scenario.Name)
	for _, res := range result.Results {
		assert.Equal(t, types.OutcomePass, res.Outcome)
		assert.Equal(t, 0, res.ExitCode)
		assert.NoError(t, res.Error)
	}
}

func TestRunRegression_MixedOutcomesRunToCompletion(t *testing.T) {
	rig := setupRunnerRig(t, compilerOK, simStub,
		"  - DMA_TEST\n  - FAIL_TEST\n  - CRASH_TEST\n  - QUIET_TEST", 0)

	result, err := rig.runner.RunRegression(context.Background())
	require.NoError(t, err, "scenario failures are results, not run errors")

	assert.False(t, result.Passed)
	assert.Equal(t, types.RunStats{Total: 4, Passed: 1, Failed: 1, Crashed: 1, Unknown: 1}, result.Stats)

	require.Len(t, result.Results, 4)
	assert.Equal(t, types.OutcomePass, result.Results[0].Outcome)
	assert.Equal(t, types.OutcomeFail, result.Results[1].Outcome)
	// The crash stub prints the pass marker before dying; the non-zero
	// exit must win over anything the capture says
	assert.Equal(t, types.OutcomeCrash, result.Results[2].Outcome)
	assert.Equal(t, 2, result.Results[2].ExitCode)
	assert.Equal(t, types.OutcomeUnknown, result.Results[3].Outcome)

	// Every configured scenario ran, in manifest order
	assert.Equal(t, []string{
		"+TESTNAME=DMA_TEST",
		"+TESTNAME=FAIL_TEST",
		"+TESTNAME=CRASH_TEST",
		"+TESTNAME=QUIET_TEST",
	}, rig.simCalls(t))
}

func TestRunRegression_CompileGateBlocksScenarios(t *testing.T) {
	rig := setupRunnerRig(t, compilerBroken, simStub, "  - DMA_TEST\n  - CRC_TEST", 0)

	result, err := rig.runner.RunRegression(context.Background())
	require.Error(t, err)
	assert.Nil(t, result)

	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, 1, compileErr.ExitCode)
	assert.Contains(t, compileErr.Stderr, "syntax error")
	assert.False(t, compileErr.TimedOut)
	assert.Contains(t, err.Error(), "failed with exit code 1")

	assert.Empty(t, rig.simCalls(t), "no scenario may run after a failed compile")
}

func TestRunRegression_CompileTimeout(t *testing.T) {
	rig := setupRunnerRig(t, compilerHangs, simStub, "  - DMA_TEST", 100*time.Millisecond)

	result, err := rig.runner.RunRegression(context.Background())
	require.Error(t, err)
	assert.Nil(t, result)

	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.True(t, compileErr.TimedOut)
	assert.Contains(t, err.Error(), "timed out")
	assert.Empty(t, rig.simCalls(t))
}

func TestRunRegression_ArchivesArtifacts(t *testing.T) {
	rig := setupRunnerRig(t, compilerOK, simStub,
		"  - DMA_TEST\n  - FAIL_TEST\n  - CRASH_TEST", 0)

	logDir := t.TempDir()
	fileLogger, err := logging.NewFileLogger(logDir, "art-run")
	require.NoError(t, err)
	rig.runner.SetFileLogger(fileLogger)

	result, err := rig.runner.RunRegression(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "art-run", result.RunID, "the run adopts the file logger's id")

	require.Len(t, result.Results, 3)
	for _, res := range result.Results {
		require.NotEmpty(t, res.LogPath, "scenario %s has no artifact", res.Scenario.Name)
		_, statErr := os.Stat(res.LogPath)
		assert.NoError(t, statErr, "artifact for %s is missing on disk", res.Scenario.Name)
	}

	failPath := result.Results[1].LogPath
	assert.Equal(t, filepath.Join(logDir, "regression-art-run", "log_FAIL_TEST.txt"), failPath)
	data, err := os.ReadFile(failPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "TEST FAILED")

	// The crashed scenario's capture is archived too; crashes are the runs
	// someone actually reads
	crashData, err := os.ReadFile(result.Results[2].LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(crashData), "All Transactions PASSED")
}

func TestRunRegression_DuplicateScenarioOverwritesArtifact(t *testing.T) {
	countingSim := `
echo "$2" >> sim_calls.txt
echo "invocation $(wc -l < sim_calls.txt)"
echo "All Transactions PASSED"
`
	rig := setupRunnerRig(t, compilerOK, countingSim, "  - DMA_TEST\n  - DMA_TEST", 0)

	fileLogger, err := logging.NewFileLogger(t.TempDir(), "dup-run")
	require.NoError(t, err)
	rig.runner.SetFileLogger(fileLogger)

	result, err := rig.runner.RunRegression(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Results, 2, "duplicates still run twice")
	assert.Equal(t, result.Results[0].LogPath, result.Results[1].LogPath)

	data, err := os.ReadFile(result.Results[1].LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "invocation 2")
	assert.NotContains(t, string(data), "invocation 1", "the later run replaces the artifact wholesale")
}

func TestRunRegression_ArchiveFailureIsRecorded(t *testing.T) {
	rig := setupRunnerRig(t, compilerOK, simStub, "  - DMA_TEST", 0)

	fileLogger, err := logging.NewFileLogger(t.TempDir(), "blocked-run")
	require.NoError(t, err)
	// Occupy the artifact path with a directory so the write fails
	artifactPath, err := fileLogger.ArtifactPath("blocked-run", "DMA_TEST")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(artifactPath, 0o755))
	rig.runner.SetFileLogger(fileLogger)

	result, err := rig.runner.RunRegression(context.Background())
	require.NoError(t, err)

	res := result.Results[0]
	assert.Equal(t, types.OutcomePass, res.Outcome, "classification still runs on the captured output")
	require.Error(t, res.Error)
	assert.Contains(t, res.Error.Error(), "archiving scenario output")
	assert.Empty(t, res.LogPath)
}

func TestRunRegression_InterruptedByContext(t *testing.T) {
	rig := setupRunnerRig(t, compilerOK, simStub, "  - HANG_TEST\n  - DMA_TEST", 0)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	result, err := rig.runner.RunRegression(ctx)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "regression interrupted")

	assert.Equal(t, []string{"+TESTNAME=HANG_TEST"}, rig.simCalls(t),
		"the scenario after the interrupt must not start")
}

func TestRunScenario_TimeoutIsACrash(t *testing.T) {
	rig := setupRunnerRig(t, compilerOK, simStub, "  - HANG_TEST", 0)

	timeout := 100 * time.Millisecond
	res, err := rig.runner.RunScenario(context.Background(), types.ScenarioConfig{
		Name:    "HANG_TEST",
		Timeout: &timeout,
	})
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeCrash, res.Outcome)
	assert.True(t, res.TimedOut)
	require.Error(t, res.Error)
	assert.Contains(t, res.Error.Error(), "timed out after 100ms")
}

func TestRunScenario_MissingSimulatorIsACrash(t *testing.T) {
	rig := setupRunnerRig(t, compilerOK, simStub, "  - DMA_TEST", 0)
	rig.runner.manifest.Simulator.Binary = filepath.Join(rig.workDir, "no-such-vvp")

	res, err := rig.runner.RunScenario(context.Background(), types.ScenarioConfig{Name: "DMA_TEST"})
	require.NoError(t, err, "a scenario whose tool cannot start still yields exactly one result")

	assert.Equal(t, types.OutcomeCrash, res.Outcome)
	require.Error(t, res.Error)
	assert.Contains(t, res.Error.Error(), "running")
	assert.Empty(t, res.LogPath)
}

func TestRunResult_String(t *testing.T) {
	timeout := 100 * time.Millisecond
	result := &RunResult{
		RunID:  "run-1",
		Design: "risc_soc",
		Compile: &CompileResult{
			Command:  "iverilog -g2005-sv -o soc_sim rtl/timer.v",
			Duration: 1500 * time.Millisecond,
		},
		Duration: 2 * time.Second,
	}
	result.Results = append(result.Results, &types.ScenarioResult{
		Scenario: types.ScenarioConfig{Name: "DMA_TEST"},
		Outcome:  types.OutcomePass,
		Duration: 300 * time.Millisecond,
	})
	result.Results = append(result.Results, &types.ScenarioResult{
		Scenario: types.ScenarioConfig{Name: "HANG_TEST"},
		Outcome:  types.OutcomeCrash,
		Duration: timeout,
		TimedOut: true,
		Error:    fmt.Errorf("scenario timed out after %v", timeout),
	})
	for _, res := range result.Results {
		result.Stats.Record(res.Outcome)
	}
	result.Passed = result.Stats.AllPassed()

	s := result.String()
	assert.Contains(t, s, "Regression Results (2.0s):")
	assert.Contains(t, s, "Total: 2, Passed: 1, Failed: 0, Crashed: 1, Unknown: 0")
	assert.Contains(t, s, "Design: risc_soc")
	assert.Contains(t, s, "├── Compile: ok (1.5s)")
	assert.Contains(t, s, "├── Scenario: DMA_TEST (0.3s) [outcome=pass]")
	assert.Contains(t, s, "├── Scenario: HANG_TEST (0.1s) [outcome=crash]")
	assert.Contains(t, s, "└── Error: scenario timed out after 100ms")
	assert.Contains(t, s, "└── Verdict: FAIL")

	result.Passed = true
	assert.Contains(t, result.String(), "└── Verdict: PASS")
}
