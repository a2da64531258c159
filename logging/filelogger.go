package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/verif-infra/sim-acceptor/types"
)

const (
	RunDirectoryPrefix = "regression-"       // Standardized prefix for run directories
	LatestRunLink      = "regression-latest" // Symlink pointing at the most recent run directory
	ArtifactPrefix     = "log_"
	ArtifactSuffix     = ".txt"
)

// ResultSink is an interface for different ways of consuming scenario results
type ResultSink interface {
	// Consume processes a single scenario result
	Consume(result *types.ScenarioResult, runID string) error
	// Complete is called when all results have been consumed
	Complete(runID string) error
}

// FileLogger handles writing regression output to files. Raw per-scenario
// artifacts are written synchronously the moment output is captured (they
// must exist before classification proceeds); the annotated streams go
// through async writers.
type FileLogger struct {
	baseDir      string                // Base directory for logs
	logDir       string                // Directory for the current run
	summaryFile  string                // Path to the summary file
	allLogsFile  string                // Path to the combined log file
	mu           sync.Mutex            // Protects concurrent file operations
	sinks        []ResultSink          // Collection of result consumers
	asyncWriters map[string]*AsyncFile // Map of async file writers
	runID        string                // Current run ID
}

// AsyncFile provides non-blocking file writing capabilities
type AsyncFile struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewAsyncFile creates a new AsyncFile for non-blocking writes
func NewAsyncFile(filepath string) (*AsyncFile, error) {
	file, err := os.Create(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", filepath, err)
	}

	af := &AsyncFile{
		file:  file,
		queue: make(chan []byte, 100), // Buffer channel to reduce blocking
	}

	// Start the background writer
	af.wg.Add(1)
	go af.processQueue()

	return af, nil
}

// Write queues data to be written asynchronously
func (af *AsyncFile) Write(data []byte) error {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.stopped {
		return fmt.Errorf("async file is closed")
	}

	// Make a copy of the data to avoid race conditions
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	af.queue <- dataCopy
	return nil
}

// processQueue processes the write queue in the background
func (af *AsyncFile) processQueue() {
	defer af.wg.Done()

	for data := range af.queue {
		_, err := af.file.Write(data)
		if err != nil {
			// Log the error but continue processing
			fmt.Fprintf(os.Stderr, "Error writing to file: %v\n", err)
		}
	}
}

// Close stops the async writer and closes the file
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if !af.stopped {
		af.stopped = true
		close(af.queue)
	}
	af.mu.Unlock()

	// Wait for all writes to complete
	af.wg.Wait()
	return af.file.Close()
}

// NewFileLogger creates a new FileLogger rooted at baseDir for one run
func NewFileLogger(baseDir string, runID string) (*FileLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", logDir, err)
	}

	logger := &FileLogger{
		baseDir:      baseDir,
		logDir:       logDir,
		summaryFile:  filepath.Join(logDir, "summary.log"),
		allLogsFile:  filepath.Join(logDir, "all.log"),
		sinks:        make([]ResultSink, 0),
		asyncWriters: make(map[string]*AsyncFile),
		runID:        runID,
	}

	allLogsSink := &AllLogsFileSink{logger: logger}
	logger.sinks = append(logger.sinks, allLogsSink)

	digestSink := &FailureDigestSink{logger: logger}
	logger.sinks = append(logger.sinks, digestSink)

	logger.linkLatest()

	return logger, nil
}

// linkLatest repoints the convenience symlink at the current run directory.
// Best effort: some filesystems refuse symlinks and the run must not care.
func (l *FileLogger) linkLatest() {
	link := filepath.Join(l.baseDir, LatestRunLink)
	_ = os.Remove(link)
	if err := os.Symlink(RunDirectoryPrefix+l.runID, link); err != nil {
		fmt.Fprintf(os.Stderr, "Error updating %s symlink: %v\n", LatestRunLink, err)
	}
}

// getAsyncWriter gets or creates an AsyncFile for the given path
func (l *FileLogger) getAsyncWriter(path string) (*AsyncFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if writer, exists := l.asyncWriters[path]; exists {
		return writer, nil
	}

	writer, err := NewAsyncFile(path)
	if err != nil {
		return nil, err
	}

	l.asyncWriters[path] = writer
	return writer, nil
}

// closeAllWriters closes all async writers
func (l *FileLogger) closeAllWriters() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, writer := range l.asyncWriters {
		_ = writer.Close() // Ignore errors on close
	}
	l.asyncWriters = make(map[string]*AsyncFile)
}

// GetDirectoryForRunID returns the path for a specific runID
// The runID must be provided, otherwise an error is returned
func (l *FileLogger) GetDirectoryForRunID(runID string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("runID cannot be empty")
	}
	if runID == l.runID {
		return l.logDir, nil
	}
	return filepath.Join(l.baseDir, RunDirectoryPrefix+runID), nil
}

// ArtifactPath returns the deterministic artifact location for a scenario
// within a run directory. The name derives from the scenario alone, so a
// repeated scenario overwrites its earlier artifact.
func (l *FileLogger) ArtifactPath(runID string, scenario string) (string, error) {
	dir, err := l.GetDirectoryForRunID(runID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ArtifactPrefix+safeFilename(scenario)+ArtifactSuffix), nil
}

// ArchiveScenarioOutput persists the raw captured output of one scenario and
// returns the artifact path. The write is synchronous and truncating: the
// artifact is the durable evidence a human inspects on failure, so it has to
// be on disk before classification proceeds, and a rerun of the same
// scenario name replaces it wholesale.
func (l *FileLogger) ArchiveScenarioOutput(runID string, scenario string, output []byte) (string, error) {
	path, err := l.ArtifactPath(runID, scenario)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, output, 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact %s: %w", path, err)
	}
	return path, nil
}

// LogScenarioResult processes a scenario result through all registered sinks
func (l *FileLogger) LogScenarioResult(result *types.ScenarioResult, runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	for _, sink := range l.sinks {
		if err := sink.Consume(result, runID); err != nil {
			return fmt.Errorf("error in sink: %w", err)
		}
	}

	return nil
}

// LogSummary writes a summary of the regression run to a file
// The runID must be provided, otherwise an error is returned
func (l *FileLogger) LogSummary(summary string, runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	summaryFile, err := l.GetSummaryFileForRunID(runID)
	if err != nil {
		return err
	}

	writer, err := l.getAsyncWriter(summaryFile)
	if err != nil {
		return err
	}

	return writer.Write([]byte(summary))
}

// Complete finalizes all sinks and closes all file writers
func (l *FileLogger) Complete(runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	for _, sink := range l.sinks {
		if err := sink.Complete(runID); err != nil {
			return fmt.Errorf("error completing sink: %w", err)
		}
	}

	// Close all writers after completion
	l.closeAllWriters()

	return nil
}

// GetBaseDir returns the directory for this regression run
func (l *FileLogger) GetBaseDir() string {
	return l.logDir
}

// GetSummaryFile returns the path to the summary file
func (l *FileLogger) GetSummaryFile() string {
	return l.summaryFile
}

// GetAllLogsFile returns the path to the all logs file
func (l *FileLogger) GetAllLogsFile() string {
	return l.allLogsFile
}

// GetRunID returns the current runID
func (l *FileLogger) GetRunID() string {
	return l.runID
}

// GetSummaryFileForRunID returns the summary file for a specific runID
// The runID must be provided, otherwise an error is returned
func (l *FileLogger) GetSummaryFileForRunID(runID string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("runID cannot be empty")
	}
	baseDir, err := l.GetDirectoryForRunID(runID)
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, "summary.log"), nil
}

// GetAllLogsFileForRunID returns the path to the all.log file for the given runID
func (l *FileLogger) GetAllLogsFileForRunID(runID string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("runID cannot be empty")
	}
	baseDir, err := l.GetDirectoryForRunID(runID)
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, "all.log"), nil
}

// GetFailureDigestFileForRunID returns the path to the failures.log file for the given runID
func (l *FileLogger) GetFailureDigestFileForRunID(runID string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("runID cannot be empty")
	}
	baseDir, err := l.GetDirectoryForRunID(runID)
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, "failures.log"), nil
}

// Helper functions

// safeFilename converts a string to a safe filename by replacing problematic characters
func safeFilename(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, "*", "_")
	s = strings.ReplaceAll(s, "?", "_")
	s = strings.ReplaceAll(s, "\"", "_")
	s = strings.ReplaceAll(s, "<", "_")
	s = strings.ReplaceAll(s, ">", "_")
	s = strings.ReplaceAll(s, "|", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

// AllLogsFileSink appends one framed status entry per scenario to all.log.
// The raw output lives in the per-scenario artifact; this stream carries the
// metadata trail an operator scans first.
type AllLogsFileSink struct {
	logger *FileLogger
}

// Consume writes a scenario result to the all.log file
func (s *AllLogsFileSink) Consume(result *types.ScenarioResult, runID string) error {
	allLogsFile, err := s.logger.GetAllLogsFileForRunID(runID)
	if err != nil {
		return err
	}

	writer, err := s.logger.getAsyncWriter(allLogsFile)
	if err != nil {
		return err
	}

	var content strings.Builder

	fmt.Fprintf(&content, "\n")
	fmt.Fprintf(&content, "┌─────────────────────────────────────────────────────────────────────┐\n")
	fmt.Fprintf(&content, "│ SCENARIO: %-60s │\n", truncateString(result.Scenario.Name, 60))
	fmt.Fprintf(&content, "├─────────────────────────────────────────────────────────────────────┤\n")
	fmt.Fprintf(&content, "│ Outcome:  %-62s │\n", result.Outcome)
	fmt.Fprintf(&content, "│ Exit:     %-62d │\n", result.ExitCode)
	fmt.Fprintf(&content, "│ Duration: %-62s │\n", result.Duration)
	fmt.Fprintf(&content, "│ Artifact: %-62s │\n", truncateString(filepath.Base(result.LogPath), 62))
	fmt.Fprintf(&content, "│ Time:     %-62s │\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&content, "└─────────────────────────────────────────────────────────────────────┘\n")

	if result.Error != nil {
		fmt.Fprintf(&content, "\nERROR:\n")
		fmt.Fprintf(&content, "~~~~~~\n")
		fmt.Fprintf(&content, "%s\n", result.Error.Error())
	}

	fmt.Fprintf(&content, "\n")

	return writer.Write([]byte(content.String()))
}

// Complete is a no-op for AllLogsFileSink
func (s *AllLogsFileSink) Complete(runID string) error {
	return nil
}

// truncateString truncates a string to the specified max length
// and adds an ellipsis if needed
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// FailureDigestSink collects every non-pass scenario and writes failures.log
// when the run completes, pointing the operator at each artifact.
type FailureDigestSink struct {
	logger   *FileLogger
	total    int
	failures []*types.ScenarioResult
}

// Consume records a scenario result for the digest
func (s *FailureDigestSink) Consume(result *types.ScenarioResult, runID string) error {
	s.total++
	if result.Outcome != types.OutcomePass {
		s.failures = append(s.failures, result)
	}
	return nil
}

// Complete writes the digest file. A clean run writes nothing.
func (s *FailureDigestSink) Complete(runID string) error {
	if len(s.failures) == 0 {
		return nil
	}

	digestFile, err := s.logger.GetFailureDigestFileForRunID(runID)
	if err != nil {
		return err
	}

	var content strings.Builder
	fmt.Fprintf(&content, "%d of %d scenarios did not pass:\n\n", len(s.failures), s.total)
	for _, r := range s.failures {
		detail := ""
		switch {
		case r.TimedOut:
			detail = " (timed out)"
		case r.Outcome == types.OutcomeCrash && r.ExitCode != 0:
			detail = fmt.Sprintf(" (exit %d)", r.ExitCode)
		}
		fmt.Fprintf(&content, "  %-24s %-8s %s%s\n",
			r.Scenario.Name, r.Outcome, filepath.Base(r.LogPath), detail)
	}

	return os.WriteFile(digestFile, []byte(content.String()), 0644)
}
