package types

import (
	"time"

	"github.com/acarl005/stripansi"
)

// TestStatus represents the possible states of a case execution
type TestStatus string

const (
	TestStatusPass  TestStatus = "pass"
	TestStatusFail  TestStatus = "fail"
	TestStatusSkip  TestStatus = "skip"
	TestStatusError TestStatus = "error"
)

// Stage attributes a failure to the step of the protocol that produced it
type Stage string

const (
	StageNone       Stage = ""
	StageInvocation Stage = "invocation"
	StageTimeout    Stage = "timeout"
	StageExitCode   Stage = "exit-code"
	StageEncoding   Stage = "encoding"
	StageSnapshot   Stage = "snapshot"
)

// InvocationResult is the captured outcome of one CLI process.
// It is owned by the caller that requested it and never modified after creation.
type InvocationResult struct {
	Argv     []string
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// StdoutText returns stdout as a string
func (r *InvocationResult) StdoutText() string {
	return string(r.Stdout)
}

// StderrText returns stderr as a string
func (r *InvocationResult) StderrText() string {
	return string(r.Stderr)
}

// Stream returns the bytes an artifact role is taken from.
func (r *InvocationResult) Stream(role ArtifactRole) []byte {
	if role.FromStderr() {
		return r.Stderr
	}
	return r.Stdout
}

// HasANSI reports whether b contains ANSI escape sequences, e.g. color codes.
func HasANSI(b []byte) bool {
	s := string(b)
	return stripansi.Strip(s) != s
}

// StripANSI removes ANSI escape sequences from b
func StripANSI(b []byte) []byte {
	return []byte(stripansi.Strip(string(b)))
}
