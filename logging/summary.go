package logging

import (
	"time"

	"github.com/ruletest-dev/ruletest/runner"
)

// Summary is the JSON form of a finished run, written to summary.json and
// served on the status endpoint
type Summary struct {
	RunID     string        `json:"run_id"`
	Status    string        `json:"status"`
	Duration  string        `json:"duration"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Stats     SummaryStats  `json:"stats"`
	Cases     []CaseSummary `json:"cases"`
}

type SummaryStats struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Errored int `json:"errored"`
}

type CaseSummary struct {
	Suite      string            `json:"suite"`
	ID         string            `json:"id"`
	Status     string            `json:"status"`
	Stage      string            `json:"stage,omitempty"`
	Error      string            `json:"error,omitempty"`
	SkipReason string            `json:"skip_reason,omitempty"`
	Duration   string            `json:"duration"`
	ExitCode   *int              `json:"exit_code,omitempty"`
	Artifacts  []ArtifactSummary `json:"artifacts,omitempty"`
}

type ArtifactSummary struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// NewSummary converts a run result into its JSON form
func NewSummary(result *runner.RunResult) *Summary {
	s := &Summary{
		RunID:     result.RunID,
		Status:    string(result.Status),
		Duration:  result.Duration.String(),
		StartTime: result.Stats.StartTime,
		EndTime:   result.Stats.EndTime,
		Stats: SummaryStats{
			Total:   result.Stats.Total,
			Passed:  result.Stats.Passed,
			Failed:  result.Stats.Failed,
			Skipped: result.Stats.Skipped,
			Errored: result.Stats.Errored,
		},
		Cases: make([]CaseSummary, 0, len(result.Order)),
	}
	for _, cr := range result.Order {
		cs := CaseSummary{
			Suite:      cr.Case.Suite,
			ID:         cr.Case.ID,
			Status:     string(cr.Status),
			Stage:      string(cr.Stage),
			SkipReason: cr.SkipReason,
			Duration:   cr.Duration.String(),
		}
		if cr.Error != nil {
			cs.Error = cr.Error.Error()
		}
		if cr.Result != nil {
			code := cr.Result.ExitCode
			cs.ExitCode = &code
		}
		for _, o := range cr.Outcomes {
			cs.Artifacts = append(cs.Artifacts, ArtifactSummary{Name: o.Key.Name, Status: string(o.Status)})
		}
		s.Cases = append(s.Cases, cs)
	}
	return s
}
