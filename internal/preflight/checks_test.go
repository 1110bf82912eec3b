package preflight

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/randomizedcoder/go-forge-runner/internal/fsys"
	"github.com/randomizedcoder/go-forge-runner/internal/runner"
)

func TestCheck_String(t *testing.T) {
	t.Run("passed_with_required", func(t *testing.T) {
		s := Check{Name: "file_descriptors", Required: 100, Actual: 200, Passed: true}.String()
		if !strings.Contains(s, "✓") || !strings.Contains(s, "200") || !strings.Contains(s, "100") {
			t.Errorf("String() = %q", s)
		}
	})

	t.Run("failed_check", func(t *testing.T) {
		s := Check{Name: "kubectl", Message: "not found"}.String()
		if !strings.Contains(s, "✗") || !strings.Contains(s, "not found") {
			t.Errorf("String() = %q", s)
		}
	})

	t.Run("warning", func(t *testing.T) {
		if s := (Check{Name: "x", Passed: true, Warning: true}).String(); !strings.Contains(s, "⚠") {
			t.Errorf("String() = %q", s)
		}
	})
}

type fileInfo struct{ dir bool }

func (f fileInfo) Name() string       { return "template.yaml" }
func (f fileInfo) Size() int64        { return 1 }
func (f fileInfo) Mode() fs.FileMode  { return 0o644 }
func (f fileInfo) ModTime() time.Time { return time.Time{} }
func (f fileInfo) IsDir() bool        { return f.dir }
func (f fileInfo) Sys() any           { return nil }

func fakeHost(missing ...string) Host {
	return Host{
		LookPath: func(file string) (string, error) {
			for _, m := range missing {
				if m == file {
					return "", errors.New("executable file not found in $PATH")
				}
			}
			return "/usr/bin/" + file, nil
		},
		Stat: func(name string) (os.FileInfo, error) {
			if name == runner.DefaultTemplatePath {
				return fileInfo{}, nil
			}
			return nil, fs.ErrNotExist
		},
		GetRlimit: func(int) (uint64, uint64, error) { return 1024, fsys.RlimInfinity, nil },
	}
}

func names(r *Result) []string {
	var out []string
	for _, c := range r.Checks {
		out = append(out, c.Name)
	}
	return out
}

func TestRunAll(t *testing.T) {
	t.Run("k8s_all_present", func(t *testing.T) {
		r := fakeHost().RunAll(Options{Mode: runner.ModeK8s, TemplatePath: runner.DefaultTemplatePath})
		if !r.Passed {
			t.Errorf("failed: %v", r.Failed())
		}
		if got := strings.Join(names(r), ","); got != "git,aws,kubectl,runner_template" {
			t.Errorf("checks = %s", got)
		}
	})

	t.Run("missing_kubectl_fails", func(t *testing.T) {
		r := fakeHost("kubectl").RunAll(Options{Mode: runner.ModeK8s, TemplatePath: runner.DefaultTemplatePath})
		if r.Passed || len(r.Failed()) != 1 || r.Failed()[0].Name != "kubectl" {
			t.Errorf("Failed() = %v", r.Failed())
		}
	})

	t.Run("missing_template_fails", func(t *testing.T) {
		r := fakeHost().RunAll(Options{Mode: runner.ModeK8s, TemplatePath: "elsewhere.yaml"})
		if r.Passed || r.Failed()[0].Name != "runner_template" {
			t.Errorf("Failed() = %v", r.Failed())
		}
	})

	t.Run("local_checks_cargo_and_fds", func(t *testing.T) {
		r := fakeHost("cargo").RunAll(Options{Mode: runner.ModeLocal})
		if got := strings.Join(names(r), ","); got != "git,aws,kubectl,cargo,file_descriptors" {
			t.Errorf("checks = %s", got)
		}
		if r.Passed || r.Failed()[0].Name != "cargo" {
			t.Errorf("Failed() = %v", r.Failed())
		}
	})

	t.Run("pre_forge_binaries_only", func(t *testing.T) {
		r := fakeHost().RunAll(Options{Mode: "pre-forge"})
		if len(r.Checks) != 3 {
			t.Errorf("checks = %v", names(r))
		}
	})
}

func TestCheckFileDescriptors(t *testing.T) {
	tests := []struct {
		name    string
		hard    uint64
		err     error
		warning bool
	}{
		{"unlimited", fsys.RlimInfinity, nil, false},
		{"high", LocalFDTarget, nil, false},
		{"low_hard_limit", 4096, nil, true},
		{"unreadable", 0, errors.New("not supported"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Host{GetRlimit: func(int) (uint64, uint64, error) { return 1024, tt.hard, tt.err }}
			c := h.checkFileDescriptors()
			if !c.Passed || c.Warning != tt.warning {
				t.Errorf("check = %+v", c)
			}
		})
	}
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	PrintResults(&buf, fakeHost("aws").RunAll(Options{Mode: runner.ModeK8s, TemplatePath: runner.DefaultTemplatePath}))
	out := buf.String()
	if !strings.HasPrefix(out, "Preflight checks:\n") || !strings.Contains(out, "Fix: install the aws cli v2") {
		t.Errorf("output = %q", out)
	}
	if strings.Count(out, "Fix:") != 1 {
		t.Errorf("fixes for passing checks: %q", out)
	}
}

func TestSuggestFix(t *testing.T) {
	for _, name := range []string{"file_descriptors", "git", "kubectl", "aws", "cargo", "runner_template"} {
		if suggestFix(name) == "see documentation" {
			t.Errorf("no fix for %s", name)
		}
	}
}
