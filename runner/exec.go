package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// ProcessResult captures one external tool invocation that actually ran. A
// non-zero ExitCode means the tool ran and reported failure; a tool that
// could not run at all comes back as an error instead, never as a result.
type ProcessResult struct {
	Output   []byte // Captured text; interleaved stdout+stderr in scenario mode
	Stderr   []byte // Compile mode only: the error stream, kept verbatim
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// runCompileProcess blocks until the compiler exits. Stdout and stderr are
// captured separately so a failing compile can surface the tool's error
// stream verbatim to the operator.
func runCompileProcess(ctx context.Context, dir string, bin string, args []string) (*ProcessResult, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	res, err := finishProcess(ctx, cmd, bin)
	if err != nil {
		return nil, err
	}
	res.Output = stdout.Bytes()
	res.Stderr = stderr.Bytes()
	return res, nil
}

// runScenarioProcess blocks until the simulator exits. Stdout and stderr
// share one buffer so the capture preserves the interleaving the harness
// printed; the archiver and the classifier both see exactly this text.
func runScenarioProcess(ctx context.Context, dir string, bin string, args []string) (*ProcessResult, error) {
	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	cmd.Stdout = &output
	cmd.Stderr = &output

	res, err := finishProcess(ctx, cmd, bin)
	if err != nil {
		return nil, err
	}
	res.Output = output.Bytes()
	return res, nil
}

// finishProcess runs the prepared command and folds the exit state into a
// ProcessResult. Only a process that never ran (spawn failure, missing
// binary) is an error; a non-zero exit is a valid result the caller
// interprets.
func finishProcess(ctx context.Context, cmd *exec.Cmd, bin string) (*ProcessResult, error) {
	start := time.Now()
	err := cmd.Run()

	res := &ProcessResult{
		Duration: time.Since(start),
		TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
	}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return nil, fmt.Errorf("running %s: %w", bin, err)
	}
	res.ExitCode = exitErr.ExitCode()
	return res, nil
}
