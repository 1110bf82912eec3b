package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"trace", slog.LevelInfo},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			if got := ParseLevel(tc.input); got != tc.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tc.input, got, tc.expected)
			}
		})
	}
}

func TestValidLevel(t *testing.T) {
	for _, l := range []string{"debug", "INFO", "warn", "warning", "error"} {
		if !ValidLevel(l) {
			t.Errorf("ValidLevel(%q) = false", l)
		}
	}
	for _, l := range []string{"", "trace", "fatal"} {
		if ValidLevel(l) {
			t.Errorf("ValidLevel(%q) = true", l)
		}
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogger(Options{Format: "json", Level: "info", Writer: &buf}).Info("forge_started", "mode", "k8s")

		var rec map[string]any
		if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
			t.Fatalf("not JSON: %q", buf.String())
		}
		if rec["msg"] != "forge_started" || rec["mode"] != "k8s" {
			t.Errorf("record = %v", rec)
		}
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogger(Options{Format: "TEXT", Writer: &buf}).Info("forge_started", "mode", "local")
		if !strings.Contains(buf.String(), "mode=local") {
			t.Errorf("output = %q", buf.String())
		}
	})

	t.Run("unknown_format_is_json", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogger(Options{Format: "yaml", Writer: &buf}).Info("x")
		if !strings.HasPrefix(buf.String(), "{") {
			t.Errorf("output = %q", buf.String())
		}
	})

	t.Run("level_filtering", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(Options{Format: "text", Level: "warn", Writer: &buf})
		logger.Info("hidden")
		logger.Warn("shown")
		if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
			t.Errorf("output = %q", buf.String())
		}
	})

	t.Run("verbose_overrides_level", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogger(Options{Format: "text", Level: "error", Verbose: true, Writer: &buf}).Debug("detail")
		out := buf.String()
		if !strings.Contains(out, "detail") || !strings.Contains(out, "source=") {
			t.Errorf("output = %q", out)
		}
	})
}

func TestForInvocation(t *testing.T) {
	var buf bytes.Buffer
	logger := ForInvocation(NewLogger(Options{Format: "text", Writer: &buf}), "abc-123", "test")
	logger.Info("forge_started")
	out := buf.String()
	if !strings.Contains(out, "invocation_id=abc-123") || !strings.Contains(out, "command=test") {
		t.Errorf("output = %q", out)
	}
}

func TestLineRing(t *testing.T) {
	r := NewLineRing(3)
	if len(r.Lines()) != 0 || r.Len() != 0 {
		t.Fatal("new ring not empty")
	}
	r.Add("a")
	r.Add("b")
	if got := r.Lines(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Lines() = %v", got)
	}
	for _, l := range []string{"c", "d", "e"} {
		r.Add(l)
	}
	if got := r.Lines(); !slices.Equal(got, []string{"c", "d", "e"}) {
		t.Errorf("Lines() after wrap = %v", got)
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d", r.Len())
	}
	if got := NewLineRing(0); got.Len() != 0 {
		t.Error("zero-size ring")
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOutputHandler_Write(t *testing.T) {
	h := NewOutputHandler(discard(), false)
	fmt.Fprint(h, "one\ntw")
	fmt.Fprint(h, "o\r\nthr")
	if got := h.RecentLines(10); !slices.Equal(got, []string{"one", "two"}) {
		t.Errorf("RecentLines() = %v", got)
	}
	h.Flush()
	if got := h.RecentLines(2); !slices.Equal(got, []string{"two", "thr"}) {
		t.Errorf("RecentLines() after Flush = %v", got)
	}
	h.Flush()
	if n := len(h.RecentLines(10)); n != 3 {
		t.Errorf("empty Flush added a line: %d", n)
	}
}

func TestOutputHandler_Truncation(t *testing.T) {
	h := NewOutputHandler(discard(), false)
	h.HandleLine(strings.Repeat("x", MaxLineLength+10))
	got := h.RecentLines(1)[0]
	if !strings.HasSuffix(got, "...(truncated)") || len(got) != MaxLineLength+len("...(truncated)") {
		t.Errorf("truncated length = %d", len(got))
	}
}

func TestOutputHandler_BufferBound(t *testing.T) {
	h := NewOutputHandler(discard(), false)
	for i := range MaxBufferedLines + 5 {
		h.HandleLine(fmt.Sprintf("line %d", i))
	}
	lines := h.RecentLines(MaxBufferedLines * 2)
	if len(lines) != MaxBufferedLines || lines[0] != "line 5" {
		t.Errorf("kept %d lines starting %q", len(lines), lines[0])
	}
}

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		line string
		want slog.Level
	}{
		{"thread 'main' panicked at 'assertion failed'", slog.LevelError},
		{"Error: request failed", slog.LevelError},
		{"Test Failed: land_blocking", slog.LevelError},
		{"WARN emitting too slowly", slog.LevelWarn},
		{"request timed out", slog.LevelWarn},
		{"tps: 5000", slog.LevelDebug},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if got := classifyLine(tt.line); got != tt.want {
				t.Errorf("classifyLine() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOutputHandler_Logging(t *testing.T) {
	t.Run("quiet_logs_only_trouble", func(t *testing.T) {
		var buf bytes.Buffer
		h := NewOutputHandler(NewLogger(Options{Format: "text", Level: "debug", Writer: &buf}), false)
		h.HandleLine("tps: 5000")
		h.HandleLine("thread 'main' panicked")
		out := buf.String()
		if strings.Contains(out, "tps") || !strings.Contains(out, "workload_output") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("verbose_logs_everything", func(t *testing.T) {
		var buf bytes.Buffer
		h := NewOutputHandler(NewLogger(Options{Format: "text", Level: "debug", Writer: &buf}), true)
		h.HandleLine("tps: 5000")
		if !strings.Contains(buf.String(), "tps: 5000") {
			t.Errorf("output = %q", buf.String())
		}
	})
}

func TestOutputHandler_CountErrors(t *testing.T) {
	h := NewOutputHandler(discard(), false)
	h.HandleLine("Error from server (NotFound): pods not found")
	h.HandleLine("request timed out")
	h.HandleLine("request timed out again")
	got := h.CountErrors()
	if got["timed out"] != 2 || got["NotFound"] != 1 || got["Error from server"] != 1 || got["panicked"] != 0 {
		t.Errorf("CountErrors() = %v", got)
	}
}

func TestOutputHandler_Concurrent(t *testing.T) {
	h := NewOutputHandler(discard(), false)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				fmt.Fprintf(h, "worker %d line %d\n", i, j)
			}
		}()
	}
	wg.Wait()
	if n := len(h.RecentLines(MaxBufferedLines)); n != MaxBufferedLines {
		t.Errorf("kept %d lines", n)
	}
}
