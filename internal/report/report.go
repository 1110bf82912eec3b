// Package report renders forge results for humans: the raw runner output,
// the extracted test report, and pull-request comments.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/randomizedcoder/go-forge-runner/internal/forge"
	"github.com/randomizedcoder/go-forge-runner/internal/logging"
)

const (
	reportBegin = "====json-report-begin==="
	reportEnd   = "====json-report-end==="

	// TrailingLines is how much runner output outside the report is kept
	// for the debugging appendix.
	TrailingLines = 10
)

// Func renders a result.
type Func func(fctx *forge.Context, result *forge.Result) (string, error)

// Formatter writes one rendering of a result to Filename.
type Formatter struct {
	Filename string
	Format   Func
}

func (f Formatter) String() string {
	return f.Filename
}

// Static renders the same text whatever the result.
func Static(text string) Func {
	return func(*forge.Context, *forge.Result) (string, error) { return text, nil }
}

// RawOutput renders the runner output unchanged.
func RawOutput(_ *forge.Context, result *forge.Result) (string, error) {
	return result.Output(), nil
}

// Report renders result with every formatter, echoes each rendering to w
// between start and end markers, and writes it to the formatter's file.
func Report(fctx *forge.Context, result *forge.Result, formatters []Formatter, w io.Writer) error {
	var errs []error
	for _, f := range formatters {
		out, err := f.Format(fctx, result)
		if err != nil {
			errs = append(errs, fmt.Errorf("format %s: %w", f, err))
			continue
		}
		fmt.Fprintf(w, "=== Start %s ===\n%s\n=== End %s ===\n", f, out, f)
		if err := fctx.Filesystem.Write(f.Filename, []byte(out)); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", f, err))
			continue
		}
		fctx.Log().Debug("report_written", "file", f.Filename, "bytes", len(out))
	}
	return errors.Join(errs...)
}

type jsonReport struct {
	Text string `json:"text"`
}

// FormatReport extracts the JSON test report the runner prints between
// markers. Failures, and runs that never printed a usable report, get an
// appendix with the trailing runner output and the debugging output.
func FormatReport(_ *forge.Context, result *forge.Result) (string, error) {
	var (
		reportLines []string
		recording   bool
	)
	trailing := logging.NewLineRing(TrailingLines)
	for line := range strings.Lines(result.Output()) {
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == reportBegin || line == reportEnd:
			recording = !recording
		case recording:
			reportLines = append(reportLines, line)
		default:
			trailing.Add(line)
		}
	}

	appendix := fmt.Sprintf("Trailing Log Lines:\n%s\nDebugging output:\n%s",
		strings.Join(trailing.Lines(), "\n"), result.DebuggingOutput())

	if len(reportLines) == 0 {
		return "Forge test runner terminated:\n" + appendix, nil
	}
	raw := strings.Join(reportLines, "\n")
	var rep jsonReport
	if err := json.Unmarshal([]byte(raw), &rep); err != nil {
		return fmt.Sprintf("Forge report malformed: %v\n%q\n%s", err, raw, appendix), nil
	}
	if rep.Text == "" {
		return "Forge report text empty. See test runner output.\n" + appendix, nil
	}
	if result.State() == forge.StateFail {
		return rep.Text + "\n" + appendix, nil
	}
	return rep.Text, nil
}

// GithubInfo links the CI job and says whether it blocks landing.
func GithubInfo(fctx *forge.Context) string {
	not := "not "
	if fctx.Blocking {
		not = ""
	}
	return fmt.Sprintf("* [Test runner output](%s)\n* Test run is %sland-blocking", fctx.GithubJobURL, not)
}

// FormatPreComment announces a run that is about to start.
func FormatPreComment(fctx *forge.Context, _ *forge.Result) (string, error) {
	chain := fctx.ChainName()
	var b strings.Builder
	fmt.Fprintf(&b, "### Forge is running with `%s`\n", fctx.ImageTag)
	fmt.Fprintf(&b, "* [Grafana dashboard (auto-refresh)](%s)\n", DashboardLink(fctx.ClusterName, fctx.Namespace, chain, Live()))
	fmt.Fprintf(&b, "* [Humio Logs](%s)\n", HumioLink(fctx.Namespace))
	fmt.Fprintf(&b, "* [(Deprecated) OpenSearch Logs](%s)\n", ValidatorLogsLink(fctx.Namespace, chain, Live()))
	b.WriteString(GithubInfo(fctx))
	return b.String(), nil
}

// ErrNotTerminal means a comment was requested for an unfinished result.
var ErrNotTerminal = errors.New("result is not terminal")

func commentHeader(state forge.State, imageTag string) (string, error) {
	switch state {
	case forge.StatePass:
		return fmt.Sprintf("### :white_check_mark: Forge test success on `%s`", imageTag), nil
	case forge.StateFail:
		return fmt.Sprintf("### :x: Forge test perf regression on `%s`", imageTag), nil
	case forge.StateSkip:
		return fmt.Sprintf("### :thought_balloon: Forge test preempted on `%s`", imageTag), nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotTerminal, state)
}

// FormatComment summarizes a finished run for a pull request.
func FormatComment(fctx *forge.Context, result *forge.Result) (string, error) {
	header, err := commentHeader(result.State(), fctx.ImageTag)
	if err != nil {
		return "", err
	}
	if !result.HasTimes() {
		return "", fmt.Errorf("%w: missing start or end time", ErrNotTerminal)
	}
	body, err := FormatReport(fctx, result)
	if err != nil {
		return "", err
	}

	chain := fctx.ChainName()
	window := Range(result.StartTime(), result.EndTime())
	var b strings.Builder
	b.WriteString(header + "\n```\n")
	b.WriteString(body)
	b.WriteString("\n```\n")
	fmt.Fprintf(&b, "* [Grafana dashboard](%s)\n", DashboardLink(fctx.ClusterName, fctx.Namespace, chain, window))
	fmt.Fprintf(&b, "* [Humio Logs](%s)\n", HumioLink(fctx.Namespace))
	fmt.Fprintf(&b, "* [(Deprecated) OpenSearch Logs](%s)\n", ValidatorLogsLink(fctx.Namespace, chain, window))
	b.WriteString(GithubInfo(fctx))
	return b.String(), nil
}
