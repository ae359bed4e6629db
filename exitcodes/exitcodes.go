// Package exitcodes defines the exit codes of the ruletest binary.
package exitcodes

// A run-once invocation exits with:
//
// * Success (0): every selected case passed or was skipped
// * TestFailure (1): at least one case failed at some stage
// * RuntimeErr (2): the harness itself could not run (bad flags, unreadable case table, panics)
const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
)
