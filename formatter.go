package ruletest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"

	"github.com/ruletest-dev/ruletest/flags"
	"github.com/ruletest-dev/ruletest/invoker"
	"github.com/ruletest-dev/ruletest/runner"
	"github.com/ruletest-dev/ruletest/snapshot"
	"github.com/ruletest-dev/ruletest/types"
)

// stderrTailLines bounds how much CLI stderr is echoed per failure
const stderrTailLines = 20

// ResultFormatter is responsible for formatting and displaying run results.
type ResultFormatter interface {
	FormatResults(result *runner.RunResult) error
}

// ConsoleResultFormatter prints a summary table followed by the details of
// every failing case.
type ConsoleResultFormatter struct {
	out    io.Writer
	color  bool
	logger log.Logger
}

var _ ResultFormatter = (*ConsoleResultFormatter)(nil)

func NewConsoleResultFormatter(out io.Writer, color bool, logger log.Logger) *ConsoleResultFormatter {
	return &ConsoleResultFormatter{out: out, color: color, logger: logger}
}

// ColorEnabled resolves a --color mode against the output file
func ColorEnabled(mode string, f *os.File) bool {
	switch mode {
	case flags.ColorAlways:
		return true
	case flags.ColorNever:
		return false
	}
	return f != nil && term.IsTerminal(int(f.Fd()))
}

func (f *ConsoleResultFormatter) FormatResults(result *runner.RunResult) error {
	f.logger.Debug("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(f.out)
	t.SetTitle(fmt.Sprintf("Rule Test Results (%s)", formatDuration(result.Duration)))

	t.AppendHeader(table.Row{
		"Type", "ID", "Duration", "Cases", "Passed", "Failed", "Skipped", "Status", "Error",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Cases", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	bySuite := make(map[string][]*runner.CaseResult)
	var suiteOrder []string
	for _, cr := range result.Order {
		if _, ok := bySuite[cr.Case.Suite]; !ok {
			suiteOrder = append(suiteOrder, cr.Case.Suite)
		}
		bySuite[cr.Case.Suite] = append(bySuite[cr.Case.Suite], cr)
	}

	for _, suiteID := range suiteOrder {
		suite := result.Suites[suiteID]
		if suite != nil {
			t.AppendRow(table.Row{
				"Suite",
				suite.ID,
				formatDuration(suite.Duration),
				"-",
				suite.Stats.Passed,
				suite.Stats.Failed + suite.Stats.Errored,
				suite.Stats.Skipped,
				getResultString(suite.Status),
				"",
			})
		}

		cases := bySuite[suiteID]
		for i, cr := range cases {
			prefix := "├──"
			if i == len(cases)-1 {
				prefix = "└──"
			}
			t.AppendRow(table.Row{
				"Case",
				fmt.Sprintf("%s %s", prefix, cr.Case.ID),
				formatDuration(cr.Duration),
				"1",
				boolToInt(cr.Status == types.TestStatusPass),
				boolToInt(cr.Failed()),
				boolToInt(cr.Status == types.TestStatusSkip),
				getResultString(cr.Status),
				caseMessage(cr),
			})
		}
		t.AppendSeparator()
	}

	switch {
	case !f.color:
		t.SetStyle(table.StyleLight)
	case result.Status == types.TestStatusPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case result.Status == types.TestStatusSkip:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(result.Duration),
		result.Stats.Total,
		result.Stats.Passed,
		result.Stats.Failed + result.Stats.Errored,
		result.Stats.Skipped,
		getResultString(result.Status),
		"",
	})
	t.Render()

	for _, cr := range result.Failures() {
		f.printFailure(cr)
	}
	_, err := fmt.Fprintln(f.out, result.String())
	return err
}

// printFailure shows the stage, the error, and whatever the CLI produced
func (f *ConsoleResultFormatter) printFailure(cr *runner.CaseResult) {
	header := fmt.Sprintf("FAIL %s [%s]", cr.Case.Key(), cr.Stage)
	fmt.Fprintln(f.out)
	fmt.Fprintln(f.out, f.paint(header, text.Bold, text.FgRed))
	if cr.Error != nil {
		fmt.Fprintln(f.out, indent(cr.Error.Error()))
	}

	for _, o := range cr.Outcomes {
		switch o.Status {
		case snapshot.StatusMismatch:
			fmt.Fprintln(f.out, f.paint(fmt.Sprintf("snapshot %s differs:", o.Key), text.Bold))
			f.printDiff(o.Diff)
		case snapshot.StatusMissing:
			fmt.Fprintln(f.out, f.paint(fmt.Sprintf("snapshot %s is missing, produced:", o.Key), text.Bold))
			fmt.Fprint(f.out, indent(string(types.StripANSI(o.Actual))))
			fmt.Fprintln(f.out)
		}
	}

	var stderr []byte
	if cr.Result != nil {
		stderr = cr.Result.Stderr
	}
	if exitErr, ok := asUnexpectedExit(cr.Error); ok {
		stderr = exitErr.Stderr
	}
	if len(stderr) > 0 && cr.Stage != types.StageSnapshot {
		fmt.Fprintln(f.out, f.paint("stderr (tail):", text.Bold))
		fmt.Fprintln(f.out, indent(tail(string(types.StripANSI(stderr)), stderrTailLines)))
	}
}

func (f *ConsoleResultFormatter) printDiff(diff string) {
	for _, line := range strings.SplitAfter(diff, "\n") {
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			line = f.paint(line, text.Bold)
		case strings.HasPrefix(line, "+"):
			line = f.paint(line, text.FgGreen)
		case strings.HasPrefix(line, "-"):
			line = f.paint(line, text.FgRed)
		case strings.HasPrefix(line, "@@"):
			line = f.paint(line, text.FgCyan)
		}
		fmt.Fprint(f.out, "    "+line)
	}
}

func (f *ConsoleResultFormatter) paint(s string, colors ...text.Color) string {
	if !f.color {
		return s
	}
	return text.Colors(colors).Sprint(s)
}

func asUnexpectedExit(err error) (*invoker.UnexpectedExitError, bool) {
	var exitErr *invoker.UnexpectedExitError
	ok := errors.As(err, &exitErr)
	return exitErr, ok
}

// caseMessage is the one-line table cell for a case
func caseMessage(cr *runner.CaseResult) string {
	if cr.Status == types.TestStatusSkip {
		return cr.SkipReason
	}
	if cr.Error == nil {
		return ""
	}
	msg, _, _ := strings.Cut(cr.Error.Error(), "\n")
	return msg
}

func indent(s string) string {
	s = strings.TrimRight(s, "\n")
	return "    " + strings.ReplaceAll(s, "\n", "\n    ")
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func getResultString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓ pass"
	case types.TestStatusSkip:
		return "- skip"
	case types.TestStatusError:
		return "! error"
	default:
		return "✗ fail"
	}
}
