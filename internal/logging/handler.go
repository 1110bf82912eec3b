package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the longest line kept before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is how many recent lines an OutputHandler keeps.
	MaxBufferedLines = 100
)

// LineRing keeps the last N lines added to it.
type LineRing struct {
	mu   sync.Mutex
	buf  []string
	next int
	full bool
}

// NewLineRing creates a ring holding up to n lines.
func NewLineRing(n int) *LineRing {
	if n < 1 {
		n = 1
	}
	return &LineRing{buf: make([]string, n)}
}

func (r *LineRing) Add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = line
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// Lines returns the kept lines, oldest first.
func (r *LineRing) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]string(nil), r.buf[:r.next]...)
	}
	out := make([]string, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}

func (r *LineRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// OutputHandler receives streamed workload output. It keeps recent lines
// for the exit summary and logs the ones that look like trouble.
type OutputHandler struct {
	logger  *slog.Logger
	verbose bool
	ring    *LineRing

	mu      sync.Mutex
	partial strings.Builder
}

// NewOutputHandler creates an OutputHandler logging through logger.
func NewOutputHandler(logger *slog.Logger, verbose bool) *OutputHandler {
	return &OutputHandler{
		logger:  logger,
		verbose: verbose,
		ring:    NewLineRing(MaxBufferedLines),
	}
}

// Write splits p into lines. A trailing partial line waits for the next
// Write or for Flush.
func (h *OutputHandler) Write(p []byte) (int, error) {
	h.mu.Lock()
	h.partial.Write(p)
	text := h.partial.String()
	i := strings.LastIndexByte(text, '\n')
	if i < 0 {
		h.mu.Unlock()
		return len(p), nil
	}
	complete, rest := text[:i], text[i+1:]
	h.partial.Reset()
	h.partial.WriteString(rest)
	h.mu.Unlock()

	for _, line := range strings.Split(complete, "\n") {
		h.HandleLine(strings.TrimSuffix(line, "\r"))
	}
	return len(p), nil
}

// Flush handles any buffered partial line.
func (h *OutputHandler) Flush() {
	h.mu.Lock()
	rest := h.partial.String()
	h.partial.Reset()
	h.mu.Unlock()
	if rest != "" {
		h.HandleLine(rest)
	}
}

// HandleLine records one line of output.
func (h *OutputHandler) HandleLine(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}
	h.ring.Add(line)

	level := classifyLine(line)
	if !h.verbose && level == slog.LevelDebug {
		return
	}
	h.logger.Log(context.Background(), level, "workload_output", "line", line)
}

// classifyLine picks a log level from the line's content.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "panicked"),
		strings.Contains(lower, "error") && strings.Contains(lower, "failed"),
		strings.Contains(lower, "test failed"):
		return slog.LevelError
	case strings.Contains(lower, "warn"),
		strings.Contains(lower, "timed out"),
		strings.Contains(lower, "connection refused"):
		return slog.LevelWarn
	}
	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (h *OutputHandler) RecentLines(n int) []string {
	lines := h.ring.Lines()
	if n < len(lines) {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// ErrorPatterns are counted for the exit summary.
var ErrorPatterns = []string{
	"panicked",
	"Test Failed",
	"Connection refused",
	"timed out",
	"NotFound",
	"Error from server",
}

// CountErrors counts pattern occurrences among the buffered lines.
func (h *OutputHandler) CountErrors() map[string]int {
	counts := make(map[string]int)
	for _, line := range h.ring.Lines() {
		for _, pattern := range ErrorPatterns {
			if strings.Contains(line, pattern) {
				counts[pattern]++
			}
		}
	}
	return counts
}
