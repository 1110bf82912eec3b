package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// RunSummary describes a finished forge command.
type RunSummary struct {
	Command   string
	Namespace string
	Cluster   string
	Mode      string
	Verdict   string
	Duration  time.Duration

	// PollLatency covers one log-fetch plus phase-query iteration.
	PollLatency Snapshot

	// ClusterLatency is keyed by cluster name.
	ClusterLatency map[string]Snapshot

	// Jobs counts discovered jobs by phase.
	Jobs map[string]int

	MetricsTextfile string
}

// FormatRunSummary formats a run summary for display at exit.
func FormatRunSummary(s RunSummary) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	fmt.Fprintf(&b, "                        forge %s summary\n", s.Command)
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n\n")

	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(s.Duration))
	if s.Cluster != "" {
		fmt.Fprintf(&b, "Cluster:                %s\n", s.Cluster)
	}
	if s.Namespace != "" {
		fmt.Fprintf(&b, "Namespace:              %s\n", s.Namespace)
	}
	if s.Mode != "" {
		fmt.Fprintf(&b, "Runner Mode:            %s\n", s.Mode)
	}
	if s.Verdict != "" {
		fmt.Fprintf(&b, "Verdict:                %s\n", s.Verdict)
	}

	if s.PollLatency.Count > 0 {
		b.WriteString("\nPoll Iterations\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		writeLatencyBlock(&b, s.PollLatency)
	}

	if len(s.ClusterLatency) > 0 {
		b.WriteString("\nCluster Queries                    Count      P50        P95        Max\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		for _, name := range sortedKeys(s.ClusterLatency) {
			snap := s.ClusterLatency[name]
			fmt.Fprintf(&b, "  %-32s %5d  %9s  %9s  %9s\n",
				name, snap.Count, FormatMs(snap.P50), FormatMs(snap.P95), FormatMs(snap.Max))
		}
	}

	if len(s.Jobs) > 0 {
		b.WriteString("\nJobs by Phase\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		for _, phase := range sortedKeys(s.Jobs) {
			fmt.Fprintf(&b, "  %-20s %s\n", phase, FormatNumber(int64(s.Jobs[phase])))
		}
	}

	if s.MetricsTextfile != "" {
		fmt.Fprintf(&b, "\nMetrics written to %s\n", s.MetricsTextfile)
	}
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	return b.String()
}

func writeLatencyBlock(b *strings.Builder, s Snapshot) {
	fmt.Fprintf(b, "Count:                  %d\n", s.Count)
	fmt.Fprintf(b, "P50:                    %s\n", FormatMs(s.P50))
	fmt.Fprintf(b, "P95:                    %s\n", FormatMs(s.P95))
	fmt.Fprintf(b, "P99:                    %s\n", FormatMs(s.P99))
	fmt.Fprintf(b, "Max:                    %s\n", FormatMs(s.Max))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatMs formats a duration in milliseconds.
func FormatMs(d time.Duration) string {
	ms := float64(d) / float64(time.Millisecond)
	if ms < 1 {
		return fmt.Sprintf("%.2fms", ms)
	}
	if ms < 1000 {
		return fmt.Sprintf("%.0fms", ms)
	}
	return fmt.Sprintf("%.1fs", ms/1000)
}
