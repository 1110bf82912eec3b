package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// =============================================================================
// Tests: Collector
// =============================================================================

func TestCollector_RecordRun(t *testing.T) {
	c := NewCollector()
	c.RecordRun("k8s", "PASS", 2*time.Minute, time.Unix(1659052800, 0))
	c.RecordRun("k8s", "PASS", time.Minute, time.Unix(1659052900, 0))
	c.RecordRun("local", "FAIL", time.Minute, time.Unix(1659053000, 0))

	if got := testutil.ToFloat64(c.runsTotal.WithLabelValues("k8s", "PASS")); got != 2 {
		t.Errorf("forge_runs_total{k8s,PASS} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.lastRunTimestamp); got != 1659053000 {
		t.Errorf("forge_last_run_timestamp_seconds = %v", got)
	}
}

func TestCollector_RecordPoll(t *testing.T) {
	c := NewCollector()
	c.RecordPoll("running", 100*time.Millisecond)
	c.RecordPoll("running", 300*time.Millisecond)
	c.RecordPoll("", time.Millisecond)

	if got := testutil.ToFloat64(c.pollIterationsTotal.WithLabelValues("running")); got != 2 {
		t.Errorf("forge_poll_iterations_total{running} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.pollIterationsTotal.WithLabelValues("unknown")); got != 1 {
		t.Errorf("forge_poll_iterations_total{unknown} = %v, want 1", got)
	}
	if snap := c.PollLatency(); snap.Count != 3 || snap.Max != 300*time.Millisecond {
		t.Errorf("PollLatency() = %+v", snap)
	}
}

func TestCollector_RecordClusterQuery(t *testing.T) {
	c := NewCollector()
	c.RecordClusterQuery("aptos-forge-0", time.Second, map[string]int{"Running": 2, "Failed": 1}, nil)
	c.RecordClusterQuery("aptos-forge-0", time.Second, map[string]int{"Running": 1}, nil)
	c.RecordClusterQuery("aptos-forge-1", time.Second, nil, errors.New("unauthorized"))

	if got := testutil.ToFloat64(c.clusterJobs.WithLabelValues("aptos-forge-0", "Running")); got != 1 {
		t.Errorf("forge_cluster_jobs{Running} = %v, want 1", got)
	}
	// Stale phases are dropped on refresh.
	if n := testutil.CollectAndCount(c.clusterJobs); n != 1 {
		t.Errorf("forge_cluster_jobs series = %d, want 1", n)
	}
	if got := testutil.ToFloat64(c.clusterErrorsTotal.WithLabelValues("aptos-forge-1")); got != 1 {
		t.Errorf("forge_cluster_errors_total = %v, want 1", got)
	}
	if lat := c.ClusterLatency(); len(lat) != 2 || lat["aptos-forge-0"].Count != 2 {
		t.Errorf("ClusterLatency() = %+v", lat)
	}
}

func TestCollector_Nil(t *testing.T) {
	var c *Collector
	c.SetInfo("v", "id")
	c.RecordRun("k8s", "PASS", time.Second, time.Now())
	c.RecordPoll("running", time.Second)
	c.RecordClusterQuery("c", time.Second, nil, nil)
	c.AddCredentialFiles(1)
	c.RecordInvariantViolation()
	if err := c.WriteTextfile("/nonexistent/dir/file.prom"); err != nil {
		t.Errorf("nil WriteTextfile() error = %v", err)
	}
}

func TestCollector_WriteTextfile(t *testing.T) {
	c := NewCollector()
	c.SetInfo("1.0.0", "abc")
	c.RecordRun("k8s", "SKIP", time.Minute, time.Now())

	path := filepath.Join(t.TempDir(), "forge.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`forge_runs_total{mode="k8s",state="SKIP"} 1`, "forge_runner_info"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("textfile missing %q", want)
		}
	}
}

// =============================================================================
// Tests: Server
// =============================================================================

func TestServer(t *testing.T) {
	c := NewCollector()
	c.SetInfo("1.0.0", "abc")
	s := NewServer("127.0.0.1:0", c.Registry(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Shutdown(context.Background())

	get := func(path string) (int, string) {
		resp, err := http.Get("http://" + s.Addr() + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	if code, _ := get("/healthz"); code != http.StatusOK {
		t.Errorf("/healthz = %d", code)
	}
	if code, _ := get("/readyz"); code != http.StatusServiceUnavailable {
		t.Errorf("/readyz before ready = %d", code)
	}
	s.SetReady(true)
	if code, _ := get("/readyz"); code != http.StatusOK {
		t.Errorf("/readyz after ready = %d", code)
	}
	if _, body := get("/metrics"); !strings.Contains(body, "forge_runner_info") {
		t.Error("/metrics missing forge_runner_info")
	}
}
