package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-forge-runner/internal/forge"
	"github.com/randomizedcoder/go-forge-runner/internal/stats"
)

// =============================================================================
// Dashboard
// =============================================================================

func (m Model) renderDashboard() string {
	sections := []string{
		m.renderHeader(),
		m.renderSummary(),
	}
	sections = append(sections, m.renderClusters()...)
	sections = append(sections, m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	title := "forge jobs"
	if m.showAll {
		title += " (all phases)"
	}
	right := "Elapsed: " + stats.FormatDuration(m.Elapsed())
	if m.loading {
		right = "refreshing... " + right
	}

	padding := m.width - lipgloss.Width(title) - lipgloss.Width(right) - 4
	if padding < 1 {
		padding = 1
	}
	return headerStyle.Render(title + strings.Repeat(" ", padding) + right)
}

func (m Model) renderSummary() string {
	lines := []string{}
	if m.err != nil {
		lines = append(lines, statusError.Render("● "+m.err.Error()))
	} else if m.refreshes == 0 {
		lines = append(lines, statusInfo.Render("● Querying clusters..."))
	}

	counts := m.Counts()
	phases := make([]string, 0, len(counts))
	for p := range counts {
		phases = append(phases, p)
	}
	slices.Sort(phases)
	parts := make([]string, 0, len(phases))
	for _, p := range phases {
		parts = append(parts, PhaseStyle(p).Render(fmt.Sprintf("%s %d", p, counts[p])))
	}
	if len(parts) == 0 {
		parts = append(parts, mutedStyle.Render("no matching jobs"))
	}
	lines = append(lines, RenderKeyValue("Jobs", strings.Join(parts, "  ")))
	if !m.lastUpdate.IsZero() {
		lines = append(lines, RenderKeyValue("Updated", m.lastUpdate.Format("15:04:05")))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// renderClusters renders one section per cluster in first-seen order.
func (m Model) renderClusters() []string {
	var order []string
	byCluster := make(map[string][]forge.Job)
	for _, j := range m.Visible() {
		name := j.Cluster.Name
		if _, ok := byCluster[name]; !ok {
			order = append(order, name)
		}
		byCluster[name] = append(byCluster[name], j)
	}

	var latency map[string]stats.Snapshot
	if m.latency != nil {
		latency = m.latency.ClusterLatency()
	}

	sections := make([]string, 0, len(order))
	for _, name := range order {
		header := name
		if s, ok := latency[name]; ok && s.Count > 0 {
			header += dimStyle.Render(fmt.Sprintf("  query p50 %s p99 %s", stats.FormatMs(s.P50), stats.FormatMs(s.P99)))
		}
		rows := []string{sectionHeaderStyle.Render(header)}
		for _, j := range byCluster[name] {
			rows = append(rows, m.renderJobRow(j))
		}
		sections = append(sections, lipgloss.JoinVertical(lipgloss.Left, rows...))
	}
	return sections
}

func (m Model) renderJobRow(j forge.Job) string {
	nameWidth := m.width - 16
	if nameWidth < 20 {
		nameWidth = 20
	}
	name := j.Name
	if len(name) > nameWidth {
		name = name[:nameWidth-3] + "..."
	}
	return boldStyle.Render(fmt.Sprintf("  %-*s", nameWidth, name)) + " " + PhaseStyle(j.Phase).Render(j.Phase)
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{
		"q: quit",
		"r: refresh",
		"f: toggle phases",
	}
	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	if m.metricsAddr == "" {
		return footerStyle.Render(left)
	}
	right := dimStyle.Render("Metrics: http://" + m.metricsAddr + "/metrics")

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}
	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			right,
		),
	)
}
