package invoker

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ruletest-dev/ruletest/types"
)

// InvocationError means the process could not be started or was abandoned
// because the caller's context ended.
type InvocationError struct {
	Argv []string
	Err  error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoking %s: %v", commandLine(e.Argv), e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// UnexpectedExitError is returned when the process exits non-zero although the
// caller required success. The captured streams are attached for diagnosis.
type UnexpectedExitError struct {
	Argv     []string
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

func (e *UnexpectedExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d\nstderr: %s", commandLine(e.Argv), e.ExitCode, strings.TrimSpace(string(e.Stderr)))
}

// TimeoutError is returned once the process group has been killed after the
// wall-clock timeout elapsed. Output captured before the kill is discarded.
type TimeoutError struct {
	Argv    []string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", commandLine(e.Argv), e.Timeout)
}

// EncodingError is returned when a captured stream is not valid in the
// requested encoding.
type EncodingError struct {
	Stream   string
	Encoding string
	Err      error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("decoding %s as %s: %v", e.Stream, e.Encoding, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// StageOf maps an invoker error to the protocol stage it belongs to.
func StageOf(err error) types.Stage {
	var (
		timeoutErr  *TimeoutError
		exitErr     *UnexpectedExitError
		encodingErr *EncodingError
	)
	switch {
	case err == nil:
		return types.StageNone
	case errors.As(err, &timeoutErr):
		return types.StageTimeout
	case errors.As(err, &exitErr):
		return types.StageExitCode
	case errors.As(err, &encodingErr):
		return types.StageEncoding
	default:
		return types.StageInvocation
	}
}

func commandLine(argv []string) string {
	if len(argv) == 0 {
		return "<empty command>"
	}
	return fmt.Sprintf("%q", strings.Join(argv, " "))
}
