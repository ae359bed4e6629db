package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ruletest-dev/ruletest/runner"
	"github.com/ruletest-dev/ruletest/snapshot"
	"github.com/ruletest-dev/ruletest/types"
)

const (
	RunDirectoryPrefix = "testrun-" // Standardized prefix for run directories
	SummaryFilename    = "summary.json"
	FailedDirName      = "failed"
	DiffFilename       = "diff.txt"
	StderrFilename     = "stderr.txt"
	ErrorFilename      = "error.txt"
	PlainSuffix        = ".plain"
)

// FileLogger writes the artifacts of one run under <baseDir>/testrun-<run id>/.
// It implements runner.ResultSink.
type FileLogger struct {
	baseDir   string
	logDir    string
	failedDir string
	runID     string
	mu        sync.Mutex
}

var _ runner.ResultSink = (*FileLogger)(nil)

// NewFileLogger creates the run directory layout
func NewFileLogger(baseDir string, runID string) (*FileLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	failedDir := filepath.Join(logDir, FailedDirName)
	for _, dir := range []string{baseDir, logDir, failedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return &FileLogger{
		baseDir:   baseDir,
		logDir:    logDir,
		failedDir: failedDir,
		runID:     runID,
	}, nil
}

// GetRunID returns the run id this logger writes for
func (l *FileLogger) GetRunID() string {
	return l.runID
}

// GetDirectory returns the run directory
func (l *FileLogger) GetDirectory() string {
	return l.logDir
}

// GetFailedDir returns the directory holding per-case failure artifacts
func (l *FileLogger) GetFailedDir() string {
	return l.failedDir
}

// GetSummaryFile returns the path of summary.json
func (l *FileLogger) GetSummaryFile() string {
	return filepath.Join(l.logDir, SummaryFilename)
}

// CaseDir returns the failure artifact directory of a case
func (l *FileLogger) CaseDir(tc types.TestCase) string {
	return filepath.Join(l.failedDir, filepath.FromSlash(tc.Key()))
}

// Consume writes the failure artifacts of a case. Passing and skipped cases
// leave nothing behind.
func (l *FileLogger) Consume(result *runner.CaseResult, runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	if runID != l.runID {
		return fmt.Errorf("result for run %s consumed by logger of run %s", runID, l.runID)
	}
	if !result.Failed() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	dir := l.CaseDir(result.Case)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	files := map[string][]byte{}
	if result.Error != nil {
		files[ErrorFilename] = []byte(fmt.Sprintf("stage: %s\n%s\n", result.Stage, result.Error))
	}
	if result.Result != nil {
		files[StderrFilename] = result.Result.Stderr
	}

	var diffs strings.Builder
	for _, o := range result.Outcomes {
		if o.Status == snapshot.StatusMatch {
			continue
		}
		addWithPlainCopy(files, "actual."+o.Key.Name, o.Actual)
		if o.Status == snapshot.StatusMismatch {
			addWithPlainCopy(files, "expected."+o.Key.Name, o.Expected)
			diffs.WriteString(o.Diff)
		}
	}
	if diffs.Len() > 0 {
		files[DiffFilename] = []byte(diffs.String())
	}

	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, content, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}

// addWithPlainCopy stores content and, when it is colored, an ANSI-free copy
// next to it for reading outside a terminal
func addWithPlainCopy(files map[string][]byte, name string, content []byte) {
	files[name] = content
	if types.HasANSI(content) {
		files[name+PlainSuffix] = types.StripANSI(content)
	}
}

// GetHTMLReportFile returns the path of results.html
func (l *FileLogger) GetHTMLReportFile() string {
	return filepath.Join(l.logDir, HTMLReportFilename)
}

// Complete writes summary.json and results.html
func (l *FileLogger) Complete(result *runner.RunResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.MarshalIndent(NewSummary(result), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := os.WriteFile(l.GetSummaryFile(), append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	html, err := renderHTMLReport(result, l.CaseDir)
	if err != nil {
		return err
	}
	if err := os.WriteFile(l.GetHTMLReportFile(), html, 0644); err != nil {
		return fmt.Errorf("failed to write HTML report: %w", err)
	}
	return nil
}
