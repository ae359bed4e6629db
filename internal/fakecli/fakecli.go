// Package fakecli is a small stand-in for the static-analysis CLI under test.
// Test binaries re-execute themselves with EnvVar set to turn into it, which
// lets the harness tests drive real subprocesses without the real tool.
//
// Behaviour that tests depend on:
//   - "--version" prints Version.
//   - "--test" reports one check per rule id found in the --config files.
//     Rules whose id contains "timeout" fail with a timeout finding.
//   - targets whose name contains "invalid" produce a parse warning on stderr,
//     which is fatal under --strict.
//   - missing configs exit 7, missing targets exit 2.
//   - color is emitted for --force-color or a non-empty FORCE_COLOR.
//   - the hooks --sleep=D, --spawn-child, --exit=N, --print-env=NAME,
//     --invalid-utf8 and --crlf exist for invoker tests.
package fakecli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// EnvVar switches a re-executed test binary into the fake CLI
	EnvVar = "RULETEST_FAKE_CLI"
	// Version is what --version reports
	Version = "1.52.0"

	exitInvalidConfig = 7
	exitFatal         = 2
)

// Env returns the variables a child environment needs to run the fake CLI
func Env() map[string]string {
	return map[string]string{EnvVar: "1"}
}

// MaybeRun turns the current process into the fake CLI and exits when EnvVar is
// set. Call it first thing in TestMain.
func MaybeRun() {
	if os.Getenv(EnvVar) == "" {
		return
	}
	os.Exit(Main(os.Args[1:], os.Stdout, os.Stderr, os.Getenv))
}

type options struct {
	command     string
	format      string
	test        bool
	strict      bool
	forceColor  bool
	verbose     bool
	configs     []string
	targets     []string
	sleep       time.Duration
	spawnChild  bool
	exitCode    int
	printEnv    []string
	invalidUTF8 bool
	crlf        bool
}

func parseArgs(args []string) (*options, error) {
	opts := &options{command: "scan", format: "text", exitCode: -1}
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		opts.command = args[0]
		args = args[1:]
	}
	if opts.command != "scan" {
		return nil, fmt.Errorf("unknown command %q", opts.command)
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--json" || arg == "--text" || arg == "--sarif" ||
			arg == "--junit-xml" || arg == "--emacs" || arg == "--vim":
			opts.format = strings.TrimPrefix(arg, "--")
		case arg == "--test":
			opts.test = true
		case arg == "--strict":
			opts.strict = true
		case arg == "--force-color":
			opts.forceColor = true
		case arg == "--verbose":
			opts.verbose = true
		case arg == "--spawn-child":
			opts.spawnChild = true
		case arg == "--invalid-utf8":
			opts.invalidUTF8 = true
		case arg == "--crlf":
			opts.crlf = true
		case arg == "--config":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--config requires a value")
			}
			i++
			opts.configs = append(opts.configs, args[i])
		case strings.HasPrefix(arg, "--sleep="):
			d, err := time.ParseDuration(strings.TrimPrefix(arg, "--sleep="))
			if err != nil {
				return nil, err
			}
			opts.sleep = d
		case strings.HasPrefix(arg, "--exit="):
			code, err := strconv.Atoi(strings.TrimPrefix(arg, "--exit="))
			if err != nil {
				return nil, err
			}
			opts.exitCode = code
		case strings.HasPrefix(arg, "--print-env="):
			opts.printEnv = append(opts.printEnv, strings.TrimPrefix(arg, "--print-env="))
		case strings.HasPrefix(arg, "-"):
			return nil, fmt.Errorf("unknown option %s", arg)
		default:
			opts.targets = append(opts.targets, arg)
		}
	}
	return opts, nil
}

// Main runs the fake CLI and returns its exit code
func Main(args []string, stdout, stderr io.Writer, getenv func(string) string) int {
	if len(args) == 1 && args[0] == "--version" {
		fmt.Fprintln(stdout, Version)
		return 0
	}

	opts, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "[ERROR] %v\n", err)
		return exitFatal
	}
	finish := func(code int) int {
		if opts.exitCode >= 0 {
			return opts.exitCode
		}
		return code
	}

	if len(opts.printEnv) > 0 {
		for _, name := range opts.printEnv {
			fmt.Fprintf(stdout, "%s=%s\n", name, getenv(name))
		}
		return finish(0)
	}
	if opts.invalidUTF8 {
		_, _ = stdout.Write([]byte{0xff, 0xfe, '\n'})
		return finish(0)
	}
	if opts.spawnChild {
		child := exec.Command(os.Args[0], "scan", "--sleep=1m")
		child.Env = os.Environ()
		child.Stdout = stdout
		child.Stderr = stderr
		if err := child.Start(); err != nil {
			fmt.Fprintf(stderr, "[ERROR] spawning child: %v\n", err)
			return exitFatal
		}
	}
	if opts.sleep > 0 {
		time.Sleep(opts.sleep)
	}

	p := painter(opts.forceColor || getenv("FORCE_COLOR") != "")

	if len(opts.configs) == 0 {
		if len(opts.targets) == 0 && opts.sleep > 0 {
			return finish(0)
		}
		fmt.Fprintln(stderr, "[ERROR] no configuration provided")
		return finish(exitFatal)
	}

	var rules []ruleFile
	for _, config := range opts.configs {
		files, err := collect(config, ".yaml", ".yml")
		if err != nil {
			fmt.Fprintf(stderr, "[ERROR] invalid configuration file found: %s\n", config)
			return finish(exitInvalidConfig)
		}
		for _, f := range files {
			ids, err := ruleIDs(f)
			if err != nil {
				fmt.Fprintf(stderr, "[ERROR] invalid configuration file found: %s\n", f)
				return finish(exitInvalidConfig)
			}
			rules = append(rules, ruleFile{path: f, ids: ids})
		}
	}

	var targets []string
	for _, target := range opts.targets {
		files, err := collect(target)
		if err != nil {
			fmt.Fprintf(stderr, "[ERROR] target does not exist: %s\n", target)
			return finish(exitFatal)
		}
		targets = append(targets, files...)
	}

	if opts.verbose {
		fmt.Fprintf(stderr, "[DEBUG] loaded %d rule files, scanning %d targets\n", len(rules), len(targets))
	}
	parseErrors := 0
	for _, target := range targets {
		if strings.Contains(filepath.Base(target), "invalid") {
			parseErrors++
			fmt.Fprintf(stderr, "%s Syntax error at line %s:1:\n `%s` was unexpected\n", p.yellow("[WARN]"), target, firstLine(target))
		}
	}

	var out bytes.Buffer
	if opts.test {
		writeTestResults(&out, opts.format, rules, targets, p)
	} else {
		writeFindings(&out, opts.format, rules, targets, p)
	}
	b := out.Bytes()
	if opts.crlf {
		b = bytes.ReplaceAll(b, []byte("\n"), []byte("\r\n"))
	}
	_, _ = stdout.Write(b)

	if opts.strict && parseErrors > 0 {
		return finish(exitFatal)
	}
	return finish(0)
}

type ruleFile struct {
	path string
	ids  []string
}

type check struct {
	Passed bool     `json:"passed"`
	Errors []string `json:"errors"`
}

type ruleFileResult struct {
	Checks map[string]check `json:"checks"`
}

type testReport struct {
	ConfigMissingTests []string                  `json:"config_missing_tests"`
	ConfigWithErrors   []string                  `json:"config_with_errors"`
	Results            map[string]ruleFileResult `json:"results"`
}

type finding struct {
	CheckID string `json:"check_id"`
	Path    string `json:"path"`
}

type scanReport struct {
	Results []finding `json:"results"`
	Errors  []string  `json:"errors"`
}

func writeTestResults(w io.Writer, format string, rules []ruleFile, targets []string, p painter) {
	report := testReport{
		ConfigMissingTests: []string{},
		ConfigWithErrors:   []string{},
		Results:            map[string]ruleFileResult{},
	}
	for _, rf := range rules {
		checks := map[string]check{}
		for _, id := range rf.ids {
			c := check{Passed: true, Errors: []string{}}
			if strings.Contains(id, "timeout") {
				c.Passed = false
				target := "<no target>"
				if len(targets) > 0 {
					target = targets[0]
				}
				c.Errors = append(c.Errors, fmt.Sprintf("Timeout when running %s on %s", id, target))
			}
			checks[id] = c
		}
		report.Results[rf.path] = ruleFileResult{Checks: checks}
	}

	if format == "json" || format == "sarif" {
		writeJSON(w, report)
		return
	}

	paths := make([]string, 0, len(report.Results))
	for path := range report.Results {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	total, passed := 0, 0
	for _, path := range paths {
		checks := report.Results[path].Checks
		ids := make([]string, 0, len(checks))
		for id := range checks {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			total++
			c := checks[id]
			if c.Passed {
				passed++
				fmt.Fprintf(w, "%s %s\n", p.green("✔"), id)
				continue
			}
			fmt.Fprintf(w, "%s %s\n", p.red("✖"), id)
			for _, e := range c.Errors {
				fmt.Fprintf(w, "    %s\n", e)
			}
		}
	}
	if passed == total {
		fmt.Fprintf(w, "%d/%d: %s All tests passed\n", passed, total, p.green("✓"))
	} else {
		fmt.Fprintf(w, "%d/%d: %d unit tests did not pass\n", passed, total, total-passed)
	}
}

func writeFindings(w io.Writer, format string, rules []ruleFile, targets []string, p painter) {
	report := scanReport{Results: []finding{}, Errors: []string{}}
	for _, target := range targets {
		for _, rf := range rules {
			for _, id := range rf.ids {
				report.Results = append(report.Results, finding{CheckID: id, Path: target})
			}
		}
	}
	if format == "json" || format == "sarif" {
		writeJSON(w, report)
		return
	}
	for _, f := range report.Results {
		fmt.Fprintf(w, "%s\n    %s %s\n", p.bold(f.Path), p.red("❯❯"), f.CheckID)
	}
	fmt.Fprintf(w, "Ran %d rules on %d files: %d findings.\n", countIDs(rules), len(targets), len(report.Results))
}

func writeJSON(w io.Writer, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		panic(err)
	}
	_, _ = w.Write(append(b, '\n'))
}

func countIDs(rules []ruleFile) int {
	n := 0
	for _, rf := range rules {
		n += len(rf.ids)
	}
	return n
}

// collect returns the files at path, descending into directories. When exts is
// non-empty only files with those extensions are kept from directories.
func collect(path string, exts ...string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if len(exts) > 0 && !hasExt(p, exts) {
			return nil
		}
		files = append(files, filepath.ToSlash(p))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func hasExt(path string, exts []string) bool {
	for _, ext := range exts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// ruleIDs extracts "id:" entries from a rule file. A file without any falls
// back to its base name.
func ruleIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimPrefix(line, "- ")
		if id, ok := strings.CutPrefix(line, "id:"); ok {
			ids = append(ids, strings.Trim(strings.TrimSpace(id), `"'`))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		base := filepath.Base(path)
		ids = append(ids, strings.TrimSuffix(base, filepath.Ext(base)))
	}
	return ids, nil
}

func firstLine(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(string(b), "\n")
	return strings.TrimSpace(line)
}

type painter bool

func (p painter) wrap(code, s string) string {
	if !p {
		return s
	}
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}

func (p painter) red(s string) string    { return p.wrap("31", s) }
func (p painter) green(s string) string  { return p.wrap("32", s) }
func (p painter) yellow(s string) string { return p.wrap("33", s) }
func (p painter) bold(s string) string   { return p.wrap("1", s) }
