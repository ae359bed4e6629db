package snapshot

import (
	"github.com/pmezard/go-difflib/difflib"
)

const diffContext = 3

// UnifiedDiff renders a line diff from expected to actual
func UnifiedDiff(expected, actual []byte) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(expected)),
		B:        difflib.SplitLines(string(actual)),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  diffContext,
	})
	if err != nil {
		return ""
	}
	return diff
}
