// Package preflight checks the host before a forge run starts.
package preflight

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/randomizedcoder/go-forge-runner/internal/fsys"
	"github.com/randomizedcoder/go-forge-runner/internal/runner"
)

// LocalFDTarget is the descriptor limit the local workload asks for.
const LocalFDTarget = 1 << 20

// Check represents the result of a single preflight check.
type Check struct {
	Name     string
	Required int
	Actual   int
	Passed   bool
	Warning  bool // non-fatal
	Message  string
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// Host is what the checks inspect. The zero value uses the real host.
type Host struct {
	LookPath  func(file string) (string, error)
	Stat      func(name string) (os.FileInfo, error)
	GetRlimit func(resource int) (soft, hard uint64, err error)
}

func (h Host) lookPath(file string) (string, error) {
	if h.LookPath != nil {
		return h.LookPath(file)
	}
	return exec.LookPath(file)
}

func (h Host) stat(name string) (os.FileInfo, error) {
	if h.Stat != nil {
		return h.Stat(name)
	}
	return os.Stat(name)
}

func (h Host) getRlimit(resource int) (uint64, uint64, error) {
	if h.GetRlimit != nil {
		return h.GetRlimit(resource)
	}
	return fsys.GetRlimit(resource)
}

// Options select the checks for a run.
type Options struct {
	Mode         string
	TemplatePath string
}

// RunAll executes the checks that apply to opts.
func (h Host) RunAll(opts Options) *Result {
	result := &Result{Passed: true}
	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	for _, bin := range []string{"git", "aws", "kubectl"} {
		add(h.checkBinary(bin))
	}

	switch opts.Mode {
	case runner.ModeLocal:
		add(h.checkBinary("cargo"))
		add(h.checkFileDescriptors())
	case runner.ModeK8s:
		add(h.checkTemplate(opts.TemplatePath))
	}
	return result
}

func (h Host) checkBinary(name string) Check {
	path, err := h.lookPath(name)
	if err != nil {
		return Check{Name: name, Message: fmt.Sprintf("not found in PATH: %v", err)}
	}
	return Check{Name: name, Passed: true, Message: "found at " + path}
}

func (h Host) checkTemplate(path string) Check {
	fi, err := h.stat(path)
	if err != nil {
		return Check{Name: "runner_template", Message: fmt.Sprintf("%s: %v (run from the repository root)", path, err)}
	}
	if fi.IsDir() {
		return Check{Name: "runner_template", Message: path + " is a directory"}
	}
	return Check{Name: "runner_template", Passed: true, Message: path}
}

// checkFileDescriptors warns when the hard limit stops the local runner
// from lifting the soft limit. The run still proceeds.
func (h Host) checkFileDescriptors() Check {
	soft, hard, err := h.getRlimit(fsys.RlimitNoFile)
	if err != nil {
		return Check{Name: "file_descriptors", Passed: true, Warning: true, Message: fmt.Sprintf("unable to check: %v", err)}
	}
	c := Check{
		Name:     "file_descriptors",
		Required: LocalFDTarget,
		Actual:   clampInt(hard),
		Passed:   true,
		Message:  fmt.Sprintf("ulimit -n %d (hard %d)", soft, hard),
	}
	if hard != fsys.RlimInfinity && hard < LocalFDTarget {
		c.Warning = true
	}
	return c
}

func clampInt(v uint64) int {
	const maxInt = int(^uint(0) >> 1)
	if v > uint64(maxInt) {
		return maxInt
	}
	return int(v)
}

// PrintResults writes the check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed || check.Warning {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// Failed returns the checks that did not pass.
func (r *Result) Failed() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "raise the hard limit (ulimit -Hn, or /etc/security/limits.conf)"
	case "git", "kubectl":
		return "install " + name + " and make sure it is on PATH"
	case "aws":
		return "install the aws cli v2"
	case "cargo":
		return "install rust via rustup"
	case "runner_template":
		return "run forge from the repository root or pass --forge-template"
	default:
		return "see documentation"
	}
}
