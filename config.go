package sat

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/verif-infra/sim-acceptor/flags"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the application configuration
type Config struct {
	ManifestPath string
	WorkDir      string        // Directory the compile and simulation processes run in
	LogDir       string        // Directory to store simulation logs
	RunInterval  time.Duration // Interval between regression runs
	RunOnce      bool          // Indicates if the service should exit after one regression run
	Timeout      time.Duration // Default timeout for compile and each scenario
	HistoryDSN   string        // Postgres DSN for run history, empty disables recording
	HTTPEnabled  bool          // Whether to serve healthz and run results over HTTP
	HTTPAddr     string
	HTTPPort     int
	Metrics      opmetrics.CLIConfig
	Log          log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger, manifestPath string) (*Config, error) {
	// Parse flags
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}
	if manifestPath == "" {
		return nil, errors.New("manifest file is required")
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	workDir := ctx.String(flags.WorkDir.Name)
	if workDir == "" {
		workDir = "."
	}

	// Get log directory, default to "logs" if not specified
	logDir := ctx.String(flags.LogDir.Name)
	if logDir == "" {
		logDir = "logs"
	}

	// Resolve the absolute paths
	absManifestPath, err := filepath.Abs(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for manifest '%s': %w", manifestPath, err)
	}
	workDir, err = filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for work directory '%s': %w", workDir, err)
	}
	logDir, err = filepath.Abs(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
	}

	return &Config{
		ManifestPath: absManifestPath,
		WorkDir:      workDir,
		LogDir:       logDir,
		RunInterval:  runInterval,
		RunOnce:      runOnce,
		Timeout:      ctx.Duration(flags.Timeout.Name),
		HistoryDSN:   ctx.String(flags.HistoryDSN.Name),
		HTTPEnabled:  ctx.Bool(flags.HTTPEnabled.Name),
		HTTPAddr:     ctx.String(flags.HTTPAddr.Name),
		HTTPPort:     ctx.Int(flags.HTTPPort.Name),
		Metrics:      opmetrics.ReadCLIConfig(ctx),
		Log:          log,
	}, nil
}
