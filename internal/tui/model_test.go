package tui

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-forge-runner/internal/forge"
	"github.com/randomizedcoder/go-forge-runner/internal/stats"
)

// =============================================================================
// Mock sources
// =============================================================================

type mockSource struct {
	jobs  []forge.Job
	err   error
	calls int
}

func (m *mockSource) ListAllJobs(ctx context.Context) ([]forge.Job, error) {
	m.calls++
	return m.jobs, m.err
}

type mockLatency map[string]stats.Snapshot

func (m mockLatency) ClusterLatency() map[string]stats.Snapshot { return m }

func job(cluster, name, phase string) forge.Job {
	return forge.Job{Name: name, Phase: phase, Cluster: forge.Cluster{Name: cluster}}
}

var sampleJobs = []forge.Job{
	job("aptos-forge-0", "forge-a", "Running"),
	job("aptos-forge-0", "forge-b", "Succeeded"),
	job("aptos-forge-1", "forge-c", "Failed"),
	job("aptos-forge-1", "forge-d", "Running"),
}

// =============================================================================
// Tests: New / Init
// =============================================================================

func TestNew(t *testing.T) {
	model := New(Config{MetricsAddr: "localhost:9090"})

	if model.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", model.interval, DefaultInterval)
	}
	if model.ctx == nil {
		t.Error("ctx is nil")
	}
	if model.width != 80 || model.height != 24 {
		t.Errorf("size = %dx%d, want 80x24", model.width, model.height)
	}

	model = New(Config{Interval: time.Second})
	if model.interval != time.Second {
		t.Errorf("interval = %v, want 1s", model.interval)
	}
}

func TestModel_Init(t *testing.T) {
	src := &mockSource{jobs: sampleJobs}
	model := New(Config{Source: src})

	cmd := model.Init()
	if cmd == nil {
		t.Fatal("Init() returned nil cmd")
	}
	msg, ok := cmd().(JobsMsg)
	if !ok {
		t.Fatalf("Init() cmd produced %T, want JobsMsg", msg)
	}
	if len(msg.Jobs) != 4 || src.calls != 1 {
		t.Errorf("jobs = %d, calls = %d", len(msg.Jobs), src.calls)
	}
}

func TestModel_Init_NilSource(t *testing.T) {
	msg := New(Config{}).Init()().(JobsMsg)
	if msg.Err != nil || len(msg.Jobs) != 0 {
		t.Errorf("msg = %+v, want empty", msg)
	}
}

// =============================================================================
// Tests: Update
// =============================================================================

func TestModel_Update_QuitKeys(t *testing.T) {
	tests := []struct {
		key      string
		wantQuit bool
	}{
		{"q", true},
		{"ctrl+c", true},
		{"esc", true},
		{"f", false},
		{"r", false},
		{"x", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			model := New(Config{Source: &mockSource{}})
			var msg tea.KeyMsg
			switch tt.key {
			case "ctrl+c":
				msg = tea.KeyMsg{Type: tea.KeyCtrlC}
			case "esc":
				msg = tea.KeyMsg{Type: tea.KeyEsc}
			default:
				msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(tt.key)}
			}

			updated, _ := model.Update(msg)
			if got := updated.(Model).quitting; got != tt.wantQuit {
				t.Errorf("quitting = %v, want %v", got, tt.wantQuit)
			}
		})
	}
}

func TestModel_Update_ToggleAllPhases(t *testing.T) {
	model := New(Config{})
	model.jobs = sampleJobs

	if got := len(model.Visible()); got != 2 {
		t.Fatalf("Visible() = %d jobs, want 2 running", got)
	}

	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("f")})
	model = updated.(Model)
	if !model.showAll {
		t.Fatal("showAll not toggled on")
	}
	if got := len(model.Visible()); got != 4 {
		t.Errorf("Visible() = %d jobs, want 4", got)
	}

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("f")})
	if updated.(Model).showAll {
		t.Error("showAll not toggled off")
	}
}

func TestModel_Update_Refresh(t *testing.T) {
	model := New(Config{Source: &mockSource{}})

	updated, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	model = updated.(Model)
	if cmd == nil || !model.loading {
		t.Fatal("refresh did not start a fetch")
	}

	// A second refresh while one is in flight is ignored.
	_, cmd = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if cmd != nil {
		t.Error("refresh while loading returned a cmd")
	}
}

func TestModel_Update_Tick(t *testing.T) {
	src := &mockSource{jobs: sampleJobs}
	model := New(Config{Source: src})

	updated, cmd := model.Update(TickMsg(time.Now()))
	model = updated.(Model)
	if cmd == nil || !model.loading {
		t.Fatal("tick did not start a fetch")
	}
	if _, ok := cmd().(JobsMsg); !ok {
		t.Error("tick cmd did not produce JobsMsg")
	}

	_, cmd = model.Update(TickMsg(time.Now()))
	if cmd != nil {
		t.Error("tick while loading returned a cmd")
	}
}

func TestModel_Update_JobsMsg(t *testing.T) {
	at := time.Date(2022, 7, 29, 0, 0, 0, 0, time.UTC)
	model := New(Config{})
	model.loading = true

	updated, cmd := model.Update(JobsMsg{Jobs: sampleJobs, At: at})
	model = updated.(Model)
	if cmd == nil {
		t.Error("JobsMsg did not schedule the next tick")
	}
	if model.loading || model.refreshes != 1 || len(model.jobs) != 4 || !model.lastUpdate.Equal(at) {
		t.Errorf("model = loading %v refreshes %d jobs %d", model.loading, model.refreshes, len(model.jobs))
	}

	// A failed refresh keeps the previous jobs.
	updated, _ = model.Update(JobsMsg{Err: errors.New("cluster down"), At: at})
	model = updated.(Model)
	if model.err == nil || len(model.jobs) != 4 {
		t.Errorf("err = %v, jobs = %d", model.err, len(model.jobs))
	}
}

func TestModel_Update_WindowSize(t *testing.T) {
	updated, _ := New(Config{}).Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	model := updated.(Model)
	if model.width != 120 || model.height != 40 {
		t.Errorf("size = %dx%d, want 120x40", model.width, model.height)
	}
}

func TestModel_Update_QuitMsg(t *testing.T) {
	updated, cmd := New(Config{}).Update(QuitMsg{})
	if !updated.(Model).quitting {
		t.Error("quitting = false after QuitMsg")
	}
	if cmd == nil {
		t.Error("QuitMsg returned nil cmd")
	}
}

// =============================================================================
// Tests: Accessors / View
// =============================================================================

func TestModel_Visible_Pattern(t *testing.T) {
	model := New(Config{Pattern: regexp.MustCompile("forge-[cd]")})
	model.jobs = sampleJobs
	model.showAll = true

	got := model.Visible()
	if len(got) != 2 || got[0].Name != "forge-c" || got[1].Name != "forge-d" {
		t.Errorf("Visible() = %+v", got)
	}
}

func TestModel_Counts(t *testing.T) {
	model := New(Config{Phases: []string{"Running", "Failed"}})
	model.jobs = sampleJobs

	counts := model.Counts()
	if counts["Running"] != 2 || counts["Failed"] != 1 || counts["Succeeded"] != 0 {
		t.Errorf("Counts() = %v", counts)
	}
}

func TestModel_View_Quitting(t *testing.T) {
	model := New(Config{})
	model.quitting = true
	if v := model.View(); v != "" {
		t.Errorf("View() = %q, want empty", v)
	}
}

func TestModel_View_Dashboard(t *testing.T) {
	model := New(Config{
		MetricsAddr: "127.0.0.1:17092",
		Latency: mockLatency{
			"aptos-forge-1": {Count: 3, P50: 20 * time.Millisecond, P99: 40 * time.Millisecond},
		},
	})
	model.width = 100
	model.refreshes = 1
	model.jobs = sampleJobs

	view := model.View()
	for _, want := range []string{
		"forge jobs",
		"aptos-forge-0",
		"aptos-forge-1",
		"forge-a",
		"forge-d",
		"Running 2",
		"query p50 20ms p99 40ms",
		"q: quit",
		"http://127.0.0.1:17092/metrics",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
	if strings.Contains(view, "forge-b") {
		t.Error("View() shows a succeeded job under the running filter")
	}
}

func TestModel_View_States(t *testing.T) {
	model := New(Config{})
	if view := model.View(); !strings.Contains(view, "Querying clusters") {
		t.Error("initial View() missing querying notice")
	}

	model.refreshes = 1
	if view := model.View(); !strings.Contains(view, "no matching jobs") {
		t.Error("empty View() missing no-jobs notice")
	}

	model.err = errors.New("could not list clusters")
	if view := model.View(); !strings.Contains(view, "could not list clusters") {
		t.Error("View() missing error")
	}
}

func TestModel_View_LongNames(t *testing.T) {
	model := New(Config{})
	model.width = 30
	model.refreshes = 1
	model.jobs = []forge.Job{job("c", "forge-"+strings.Repeat("x", 100), "Running")}

	view := model.View()
	if !strings.Contains(view, "...") {
		t.Error("long job name not truncated")
	}
}
