package logging

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"

	"github.com/ruletest-dev/ruletest/runner"
	"github.com/ruletest-dev/ruletest/snapshot"
	"github.com/ruletest-dev/ruletest/types"
)

const (
	HTMLReportFilename = "results.html"
	htmlTemplateName   = "results.html.tmpl"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

type htmlFailure struct {
	Key    string
	Anchor string
	Stage  types.Stage
	Error  string
	Diffs  []string
	Dir    string
}

type htmlReport struct {
	Summary  *Summary
	Failures []htmlFailure
}

type diffLine struct {
	Class string
	Text  string
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"statusClass": func(status string) string {
			switch types.TestStatus(status) {
			case types.TestStatusPass, types.TestStatusFail, types.TestStatusSkip, types.TestStatusError:
				return status
			}
			return "unknown"
		},
		"statusText": func(status string) string {
			return strings.ToUpper(status)
		},
		"firstLine": func(s string) string {
			line, _, _ := strings.Cut(s, "\n")
			return line
		},
		"diffLines": func(diff string) []diffLine {
			var lines []diffLine
			for _, l := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
				class := ""
				switch {
				case strings.HasPrefix(l, "+++"), strings.HasPrefix(l, "---"):
				case strings.HasPrefix(l, "+"):
					class = "add"
				case strings.HasPrefix(l, "-"):
					class = "del"
				}
				lines = append(lines, diffLine{Class: class, Text: l})
			}
			return lines
		},
	}
}

func loadHTMLTemplate() (*template.Template, error) {
	return template.New(htmlTemplateName).Funcs(templateFuncs()).ParseFS(templateFS, "templates/"+htmlTemplateName)
}

// renderHTMLReport renders the run overview with a section per failing case.
// caseDir locates the failure artifacts written by Consume.
func renderHTMLReport(result *runner.RunResult, caseDir func(types.TestCase) string) ([]byte, error) {
	tmpl, err := loadHTMLTemplate()
	if err != nil {
		return nil, fmt.Errorf("failed to load HTML template: %w", err)
	}

	report := htmlReport{Summary: NewSummary(result)}
	for _, cr := range result.Failures() {
		f := htmlFailure{
			Key:    cr.Case.Key(),
			Anchor: strings.ReplaceAll(cr.Case.Key(), "/", "-"),
			Stage:  cr.Stage,
		}
		if cr.Error != nil {
			f.Error = string(types.StripANSI([]byte(cr.Error.Error())))
		}
		for _, o := range cr.Outcomes {
			if o.Status == snapshot.StatusMismatch {
				f.Diffs = append(f.Diffs, string(types.StripANSI([]byte(o.Diff))))
			}
		}
		if caseDir != nil {
			f.Dir = filepath.ToSlash(caseDir(cr.Case))
		}
		report.Failures = append(report.Failures, f)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, report); err != nil {
		return nil, fmt.Errorf("failed to render HTML report: %w", err)
	}
	return buf.Bytes(), nil
}
