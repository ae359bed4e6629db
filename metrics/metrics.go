package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ruletest-dev/ruletest/types"
)

const (
	MetricsNamespace = "ruletest"
)

var (
	Debug                bool = true
	validResults              = []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusSkip, types.TestStatusError}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	// Registry holds every harness metric and is what the metrics server exposes
	Registry = opmetrics.NewRegistry()
	factory  = promauto.With(Registry)

	errorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	casesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "cases_total",
		Help:      "Count of executed cases by suite, result and failing stage",
	}, []string{
		"suite",
		"case",
		"result",
		"stage",
	})

	caseDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "case_duration_seconds",
		Help:      "Wall-clock duration of CLI invocations",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 15, 30, 60},
	}, []string{
		"suite",
	})

	snapshotOutcomes = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "snapshot_outcomes_total",
		Help:      "Count of snapshot comparisons by status",
	}, []string{
		"status",
	})

	runResult = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_result",
		Help:      "Result of the last run, 1 for the reported status",
	}, []string{
		"result",
	})

	runCases = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_cases",
		Help:      "Number of cases in the last run by result",
	}, []string{
		"result",
	})

	runDuration = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of the last run",
	})

	lastRunTimestamp = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time at which the last run finished",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordCase counts one executed case and observes its invocation time
func RecordCase(suite, caseID string, result types.TestStatus, stage types.Stage, duration time.Duration) {
	if !isValidResult(result) {
		log.Error("RecordCase - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "cases_total",
			"suite", suite,
			"case", caseID,
			"result", result,
			"stage", stage)
	}
	casesTotal.WithLabelValues(suite, caseID, string(result), string(stage)).Inc()
	if result != types.TestStatusSkip {
		caseDuration.WithLabelValues(suite).Observe(duration.Seconds())
	}
}

// RecordSnapshotOutcome counts one snapshot comparison
func RecordSnapshotOutcome(status string) {
	snapshotOutcomes.WithLabelValues(status).Inc()
}

// RecordRun publishes the aggregate of a finished run
func RecordRun(result types.TestStatus, total, passed, failed, skipped, errored int, duration time.Duration) {
	for _, s := range validResults {
		v := 0.0
		if s == result {
			v = 1
		}
		runResult.WithLabelValues(string(s)).Set(v)
	}
	runCases.WithLabelValues("total").Set(float64(total))
	runCases.WithLabelValues(string(types.TestStatusPass)).Set(float64(passed))
	runCases.WithLabelValues(string(types.TestStatusFail)).Set(float64(failed))
	runCases.WithLabelValues(string(types.TestStatusSkip)).Set(float64(skipped))
	runCases.WithLabelValues(string(types.TestStatusError)).Set(float64(errored))
	runDuration.Set(duration.Seconds())
	lastRunTimestamp.SetToCurrentTime()
}

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}
