package runner

import (
	"fmt"
	"time"

	"github.com/ruletest-dev/ruletest/snapshot"
	"github.com/ruletest-dev/ruletest/types"
)

// CaseResult is the verdict for one case
type CaseResult struct {
	Case     types.TestCase
	Status   types.TestStatus
	Stage    types.Stage
	Error    error
	Outcomes []snapshot.Outcome
	Result   *types.InvocationResult
	Duration time.Duration
	// SkipReason is set for cases the selector did not run
	SkipReason string
}

// Failed reports whether the case counts against the run
func (r *CaseResult) Failed() bool {
	return r.Status == types.TestStatusFail || r.Status == types.TestStatusError
}

// SuiteResult captures aggregated results for a suite
type SuiteResult struct {
	ID          string
	Description string
	Cases       map[string]*CaseResult
	Status      types.TestStatus
	Duration    time.Duration
	Stats       ResultStats
}

// RunResult captures the complete run
type RunResult struct {
	RunID    string
	Suites   map[string]*SuiteResult
	Status   types.TestStatus
	Duration time.Duration
	Stats    ResultStats
	// Order lists every case result in declaration order
	Order []*CaseResult
}

// ResultStats tracks case statistics at each level
type ResultStats struct {
	Total     int
	Passed    int
	Failed    int
	Skipped   int
	Errored   int
	StartTime time.Time
	EndTime   time.Time
}

func (s *ResultStats) add(status types.TestStatus) {
	s.Total++
	switch status {
	case types.TestStatusPass:
		s.Passed++
	case types.TestStatusFail:
		s.Failed++
	case types.TestStatusSkip:
		s.Skipped++
	case types.TestStatusError:
		s.Errored++
	}
}

// status derives an aggregate status: error beats fail beats pass, and a
// level with nothing but skips is skipped.
func (s ResultStats) status() types.TestStatus {
	switch {
	case s.Errored > 0:
		return types.TestStatusError
	case s.Failed > 0:
		return types.TestStatusFail
	case s.Passed > 0:
		return types.TestStatusPass
	default:
		return types.TestStatusSkip
	}
}

// Failures returns the failed and errored cases in declaration order
func (r *RunResult) Failures() []*CaseResult {
	var failed []*CaseResult
	for _, cr := range r.Order {
		if cr.Failed() {
			failed = append(failed, cr)
		}
	}
	return failed
}

func (r *RunResult) String() string {
	return fmt.Sprintf("run %s: %s (total %d, passed %d, failed %d, errored %d, skipped %d) in %s",
		r.RunID, r.Status, r.Stats.Total, r.Stats.Passed, r.Stats.Failed, r.Stats.Errored, r.Stats.Skipped,
		r.Duration.Round(time.Millisecond))
}

// statusForStage maps a failing stage to a case status. Only problems in the
// harness itself are errors; everything the CLI did is a failure.
func statusForStage(stage types.Stage) types.TestStatus {
	switch stage {
	case types.StageNone:
		return types.TestStatusPass
	case types.StageInvocation:
		return types.TestStatusError
	default:
		return types.TestStatusFail
	}
}
