package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruletest-dev/ruletest/runner"
	"github.com/ruletest-dev/ruletest/types"
)

func TestRenderHTMLReport(t *testing.T) {
	failing := failingResult()
	passing := &runner.CaseResult{Case: types.TestCase{ID: "ok", Suite: "test_test"}, Status: types.TestStatusPass}
	hostile := &runner.CaseResult{
		Case:   types.TestCase{ID: "test_invocation", Suite: "test_test"},
		Status: types.TestStatusError,
		Stage:  types.StageInvocation,
		Error:  errors.New("<script>alert(1)</script>"),
	}
	run := &runner.RunResult{
		RunID:  "abc",
		Status: types.TestStatusError,
		Stats:  runner.ResultStats{Total: 3, Passed: 1, Failed: 1, Errored: 1},
		Order:  []*runner.CaseResult{failing, passing, hostile},
	}

	html, err := renderHTMLReport(run, func(tc types.TestCase) string { return "failed/" + tc.Key() })
	require.NoError(t, err)
	out := string(html)

	assert.Contains(t, out, "Run abc")
	assert.Contains(t, out, `class="error">ERROR</span>`)
	assert.Contains(t, out, `id="test_test-test_cli_test_multiline_annotations"`)
	assert.Contains(t, out, "failed/test_test/test_cli_test_multiline_annotations")
	assert.Contains(t, out, `<span class="">--- expected</span>`)
	assert.NotContains(t, out, "<script>alert(1)</script>", "error text must be escaped")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.NotContains(t, out, "\x1b[")
}

func TestTemplateFuncs(t *testing.T) {
	funcs := templateFuncs()
	statusClass := funcs["statusClass"].(func(string) string)
	assert.Equal(t, "fail", statusClass("fail"))
	assert.Equal(t, "unknown", statusClass("bogus"))

	diffLines := funcs["diffLines"].(func(string) []diffLine)
	assert.Equal(t, []diffLine{
		{Class: "", Text: "--- expected"},
		{Class: "", Text: "+++ actual"},
		{Class: "", Text: "@@ -1 +1 @@"},
		{Class: "del", Text: "-a"},
		{Class: "add", Text: "+b"},
	}, diffLines("--- expected\n+++ actual\n@@ -1 +1 @@\n-a\n+b\n"))
}
