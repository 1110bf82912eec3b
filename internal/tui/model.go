package tui

import (
	"context"
	"regexp"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	corev1 "k8s.io/api/core/v1"

	"github.com/randomizedcoder/go-forge-runner/internal/cluster"
	"github.com/randomizedcoder/go-forge-runner/internal/forge"
	"github.com/randomizedcoder/go-forge-runner/internal/stats"
)

// DefaultInterval is the refresh period when Config.Interval is unset.
const DefaultInterval = 10 * time.Second

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to trigger a refresh.
type TickMsg time.Time

// JobsMsg carries the result of one enumeration across all clusters.
type JobsMsg struct {
	Jobs []forge.Job
	Err  error
	At   time.Time
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// JobSource enumerates forge jobs on every cluster.
type JobSource interface {
	ListAllJobs(ctx context.Context) ([]forge.Job, error)
}

// LatencySource provides per-cluster query latency.
type LatencySource interface {
	ClusterLatency() map[string]stats.Snapshot
}

// Config holds TUI configuration.
type Config struct {
	Context     context.Context
	Source      JobSource
	Latency     LatencySource
	Interval    time.Duration
	Phases      []string
	Pattern     *regexp.Regexp
	MetricsAddr string
}

// Model represents the TUI state.
type Model struct {
	ctx         context.Context
	source      JobSource
	latency     LatencySource
	interval    time.Duration
	phases      []string
	pattern     *regexp.Regexp
	metricsAddr string

	jobs       []forge.Job
	err        error
	refreshes  int
	loading    bool
	showAll    bool
	startTime  time.Time
	lastUpdate time.Time

	width  int
	height int

	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return Model{
		ctx:         ctx,
		source:      cfg.Source,
		latency:     cfg.Latency,
		interval:    interval,
		phases:      cfg.Phases,
		pattern:     cfg.Pattern,
		metricsAddr: cfg.MetricsAddr,
		startTime:   time.Now(),
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init starts the first enumeration.
func (m Model) Init() tea.Cmd {
	return m.fetchCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "f":
			m.showAll = !m.showAll
			return m, nil
		case "r":
			if m.loading {
				return m, nil
			}
			m.loading = true
			return m, m.fetchCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.loading {
			return m, nil
		}
		m.loading = true
		return m, m.fetchCmd()

	case JobsMsg:
		m.loading = false
		m.refreshes++
		m.err = msg.Err
		if msg.Err == nil {
			m.jobs = msg.Jobs
		}
		m.lastUpdate = msg.At
		return m, m.tickCmd()

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

// =============================================================================
// Commands
// =============================================================================

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m Model) fetchCmd() tea.Cmd {
	source, ctx := m.source, m.ctx
	return func() tea.Msg {
		if source == nil {
			return JobsMsg{At: time.Now()}
		}
		jobs, err := source.ListAllJobs(ctx)
		return JobsMsg{Jobs: jobs, Err: err, At: time.Now()}
	}
}

// =============================================================================
// Accessors
// =============================================================================

// allPhases is the filter used when the all-phases toggle is on.
var allPhases = []string{
	string(corev1.PodPending),
	string(corev1.PodRunning),
	string(corev1.PodSucceeded),
	string(corev1.PodFailed),
	string(corev1.PodUnknown),
}

// Visible returns the jobs shown under the current filter. With the
// all-phases toggle on only the name pattern applies.
func (m Model) Visible() []forge.Job {
	phases := m.phases
	if m.showAll {
		phases = allPhases
	}
	return cluster.FilterJobs(m.jobs, phases, m.pattern)
}

// Counts returns the number of visible jobs per phase.
func (m Model) Counts() map[string]int {
	counts := make(map[string]int)
	for _, j := range m.Visible() {
		counts[j.Phase]++
	}
	return counts
}

// Elapsed returns the time since the dashboard started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}
