// Package runner executes declared cases against the CLI under test and
// verifies their output against stored snapshots.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ruletest-dev/ruletest/invoker"
	"github.com/ruletest-dev/ruletest/metrics"
	"github.com/ruletest-dev/ruletest/registry"
	"github.com/ruletest-dev/ruletest/snapshot"
	"github.com/ruletest-dev/ruletest/types"
)

// ResultSink consumes case results as they finish, e.g. to write artifacts
type ResultSink interface {
	// GetRunID returns the id of the run the sink writes for
	GetRunID() string
	Consume(result *CaseResult, runID string) error
	Complete(result *RunResult) error
}

// SuiteRunner defines the interface for running the declared cases
type SuiteRunner interface {
	RunAll(ctx context.Context) (*RunResult, error)
	RunCase(ctx context.Context, tc types.TestCase) *CaseResult
}

// SuiteRunnerWithSink extends SuiteRunner with a method to set the result
// sink after creation
type SuiteRunnerWithSink interface {
	SuiteRunner
	SetResultSink(sink ResultSink)
}

// Config holds configuration for creating a new suite runner
type Config struct {
	Registry      *registry.Registry
	Selector      registry.Selector
	CaseRunner    *CaseRunner
	Verifier      *snapshot.Verifier
	Concurrency   int
	MinCLIVersion string
	Sink          ResultSink
	Log           log.Logger
}

type runner struct {
	registry      *registry.Registry
	selector      registry.Selector
	cases         *CaseRunner
	verifier      *snapshot.Verifier
	concurrency   int
	minCLIVersion string
	log           log.Logger
	tracer        trace.Tracer

	mu   sync.Mutex
	sink ResultSink
}

var _ SuiteRunnerWithSink = (*runner)(nil)

// NewSuiteRunner creates a new suite runner instance
func NewSuiteRunner(cfg Config) (SuiteRunnerWithSink, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.CaseRunner == nil {
		return nil, fmt.Errorf("case runner is required")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("snapshot verifier is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	cfg.Log.Debug("NewSuiteRunner()", "cases", len(cfg.Registry.GetCases()), "concurrency", cfg.Concurrency,
		"minCLIVersion", cfg.MinCLIVersion, "mode", cfg.Verifier.Mode())

	return &runner{
		registry:      cfg.Registry,
		selector:      cfg.Selector,
		cases:         cfg.CaseRunner,
		verifier:      cfg.Verifier,
		concurrency:   cfg.Concurrency,
		minCLIVersion: cfg.MinCLIVersion,
		log:           cfg.Log,
		tracer:        otel.Tracer("suite runner"),
		sink:          cfg.Sink,
	}, nil
}

func (r *runner) SetResultSink(sink ResultSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

func (r *runner) resultSink() ResultSink {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sink
}

// RunAll runs every selected case and aggregates the verdicts. The returned
// error is reserved for problems that prevent the run itself; case failures
// are reported in the result.
func (r *runner) RunAll(ctx context.Context) (*RunResult, error) {
	sink := r.resultSink()
	runID := uuid.New().String()
	if sink != nil {
		runID = sink.GetRunID()
	}

	ctx, span := r.tracer.Start(ctx, "run", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	start := time.Now()
	r.log.Debug("Running all cases", "run_id", runID)

	if r.minCLIVersion != "" {
		version, err := r.cases.Version(ctx)
		if err != nil {
			return nil, fmt.Errorf("probing CLI version: %w", err)
		}
		if err := CheckVersion(version, r.minCLIVersion); err != nil {
			return nil, err
		}
		r.log.Info("CLI version accepted", "version", version, "min", r.minCLIVersion)
	}

	all := r.registry.GetCases()
	selected, skipped := r.selector.Partition(all)
	r.log.Info("Selected cases", "run_id", runID, "selected", len(selected), "skipped", len(skipped))

	byKey := make(map[string]*CaseResult, len(all))
	for _, tc := range skipped {
		reason := r.selector.Reason(tc)
		r.log.Debug("Skipping case", "case", tc.Key(), "reason", reason)
		byKey[tc.Key()] = &CaseResult{Case: tc, Status: types.TestStatusSkip, SkipReason: reason}
	}

	ran := make([]*CaseResult, len(selected))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, tc := range selected {
		g.Go(func() error {
			ran[i] = r.RunCase(ctx, tc)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run interrupted: %w", err)
	}

	for _, cr := range ran {
		byKey[cr.Case.Key()] = cr
	}
	// Declaration order, whatever order the cases finished in
	results := make([]*CaseResult, 0, len(all))
	for _, tc := range all {
		results = append(results, byKey[tc.Key()])
	}

	result := r.aggregate(runID, results)
	result.Stats.StartTime = start
	result.Stats.EndTime = time.Now()
	result.Duration = time.Since(start)

	for _, cr := range results {
		metrics.RecordCase(cr.Case.Suite, cr.Case.ID, cr.Status, cr.Stage, cr.Duration)
		if sink == nil {
			continue
		}
		if err := sink.Consume(cr, runID); err != nil {
			r.log.Error("Failed to record case result", "case", cr.Case.Key(), "err", err)
			metrics.RecordErrorDetails("sink_consume", err)
		}
	}
	if sink != nil {
		if err := sink.Complete(result); err != nil {
			r.log.Error("Failed to complete result sink", "err", err)
			metrics.RecordErrorDetails("sink_complete", err)
		}
	}
	metrics.RecordRun(result.Status, result.Stats.Total, result.Stats.Passed, result.Stats.Failed,
		result.Stats.Skipped, result.Stats.Errored, result.Duration)

	span.SetAttributes(attribute.String("status", string(result.Status)))
	return result, nil
}

func (r *runner) aggregate(runID string, results []*CaseResult) *RunResult {
	run := &RunResult{
		RunID:  runID,
		Suites: make(map[string]*SuiteResult),
		Order:  results,
	}
	for _, info := range r.registry.GetSuites() {
		run.Suites[info.ID] = &SuiteResult{
			ID:          info.ID,
			Description: info.Description,
			Cases:       make(map[string]*CaseResult),
		}
	}

	for _, cr := range results {
		suite, ok := run.Suites[cr.Case.Suite]
		if !ok {
			suite = &SuiteResult{ID: cr.Case.Suite, Cases: make(map[string]*CaseResult)}
			run.Suites[cr.Case.Suite] = suite
		}
		suite.Cases[cr.Case.ID] = cr
		suite.Stats.add(cr.Status)
		suite.Duration += cr.Duration
		run.Stats.add(cr.Status)
	}
	for _, suite := range run.Suites {
		suite.Status = suite.Stats.status()
	}
	run.Status = run.Stats.status()
	return run
}

// RunCase executes one case: invoke, collect artifacts, verify
func (r *runner) RunCase(ctx context.Context, tc types.TestCase) *CaseResult {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("case %s", tc.Key()))
	defer span.End()

	start := time.Now()
	cr := &CaseResult{Case: tc}
	defer func() {
		cr.Duration = time.Since(start)
		span.SetAttributes(
			attribute.String("status", string(cr.Status)),
			attribute.String("stage", string(cr.Stage)),
		)
		if cr.Error != nil {
			span.SetStatus(codes.Error, cr.Error.Error())
		}
		r.log.Info("Case finished", "case", tc.Key(), "status", cr.Status, "stage", cr.Stage, "duration", cr.Duration)
	}()

	result, err := r.cases.Run(ctx, tc)
	cr.Result = result
	if err != nil {
		cr.Stage = invoker.StageOf(err)
		cr.Status = statusForStage(cr.Stage)
		cr.Error = err
		return cr
	}

	outcomes, err := r.verifier.VerifyAll(ctx, tc.Key(), collectArtifacts(tc, result))
	cr.Outcomes = outcomes
	for _, o := range outcomes {
		metrics.RecordSnapshotOutcome(string(o.Status))
	}
	if err != nil {
		cr.Stage = types.StageSnapshot
		cr.Status = types.TestStatusError
		cr.Error = err
		return cr
	}
	if err := snapshot.FirstFailure(outcomes); err != nil {
		cr.Stage = types.StageSnapshot
		cr.Status = types.TestStatusFail
		cr.Error = err
		return cr
	}

	cr.Status = types.TestStatusPass
	return cr
}

// collectArtifacts maps the case's artifact roles onto the captured streams.
// Normalizers only apply to stdout artifacts.
func collectArtifacts(tc types.TestCase, result *types.InvocationResult) []snapshot.Artifact {
	artifacts := make([]snapshot.Artifact, 0, len(tc.Artifacts))
	for _, role := range tc.Artifacts {
		a := snapshot.Artifact{
			Role:    role,
			Name:    role.SnapshotName(tc.Format),
			Content: result.Stream(role),
		}
		if !role.FromStderr() {
			a.Normalizers = tc.Normalizers
		}
		artifacts = append(artifacts, a)
	}
	return artifacts
}
