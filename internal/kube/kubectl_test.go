package kube

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/randomizedcoder/go-forge-runner/internal/shell"
)

const podListJSON = `{
  "apiVersion": "v1",
  "kind": "List",
  "items": [
    {"metadata": {"name": "forge-abc"}, "status": {"phase": "Running"}},
    {"metadata": {"name": "other"}, "status": {"phase": "Pending"}}
  ]
}`

func TestKubectl_Commands(t *testing.T) {
	ctx := context.Background()
	fake := shell.NewFakeShell()
	k := New(fake)

	k.DeleteByLabel(ctx, DefaultNamespace, LabelSelector("forge-ns"))
	k.WaitForDeletion(ctx, DefaultNamespace, LabelSelector("forge-ns"))
	k.Apply(ctx, DefaultNamespace, "/tmp/spec")
	k.WaitReady(ctx, DefaultNamespace, "pod-1", 5*time.Minute)
	k.Logs(ctx, DefaultNamespace, "pod-1")
	k.WithKubeconfig("/tmp/kc").Logs(ctx, DefaultNamespace, "pod-2")

	want := []string{
		"kubectl delete pod -n default -l forge-namespace=forge-ns --force",
		"kubectl wait -n default --for=delete pod -l forge-namespace=forge-ns",
		"kubectl apply -n default -f /tmp/spec",
		"kubectl wait -n default --timeout=5m --for=condition=Ready pod/pod-1",
		"kubectl logs -n default -f pod-1",
		"kubectl --kubeconfig /tmp/kc logs -n default -f pod-2",
	}
	calls := fake.Calls()
	if len(calls) != len(want) {
		t.Fatalf("len(calls) = %d, want %d", len(calls), len(want))
	}
	for i, c := range calls {
		if got := strings.Join(c.Command, " "); got != want[i] {
			t.Errorf("call %d = %q, want %q", i, got, want[i])
		}
	}
}

func TestKubectl_Async(t *testing.T) {
	fake := shell.NewFakeShell()
	New(fake).Async().Logs(context.Background(), DefaultNamespace, "p")
	if !fake.Calls()[0].Async {
		t.Error("Async() copy issued a blocking call")
	}
}

func TestKubectl_PhaseKeepsNotFoundOutput(t *testing.T) {
	fake := shell.NewFakeShell().Respond(shell.Contains("jsonpath='{.status.phase}'"), shell.RunResult{
		ExitCode: 1,
		Output:   []byte(`Error from server (NotFound): pods "p" not found`),
	})
	phase, err := New(fake).Phase(context.Background(), DefaultNamespace, "p")
	if err != nil {
		t.Fatalf("Phase() error = %v", err)
	}
	if !strings.Contains(phase, "NotFound") {
		t.Errorf("Phase() = %q", phase)
	}
}

func TestKubectl_GetPods(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes", func(t *testing.T) {
		fake := shell.NewFakeShell().Respond(shell.Prefix("kubectl", "get", "pods"), shell.RunResult{Output: []byte(podListJSON)})
		list, err := New(fake).GetPods(ctx, DefaultNamespace)
		if err != nil {
			t.Fatalf("GetPods() error = %v", err)
		}
		var names []string
		for _, p := range list.Items {
			names = append(names, p.Name)
		}
		if !slices.Equal(names, []string{"forge-abc", "other"}) {
			t.Errorf("names = %v", names)
		}
		if list.Items[0].Status.Phase != corev1.PodRunning {
			t.Errorf("phase = %q", list.Items[0].Status.Phase)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		fake := shell.NewFakeShell().Respond(shell.Prefix("kubectl"), shell.RunResult{Output: []byte("{not json")})
		_, err := New(fake).GetPods(ctx, DefaultNamespace)
		var malformed *MalformedResponseError
		if !errors.As(err, &malformed) {
			t.Errorf("GetPods() error = %v, want *MalformedResponseError", err)
		}
	})

	t.Run("command_failure", func(t *testing.T) {
		fake := shell.NewFakeShell().Respond(shell.Prefix("kubectl"), shell.RunResult{ExitCode: 1, Output: []byte("Unauthorized")})
		_, err := New(fake).GetPods(ctx, DefaultNamespace)
		var cmdErr *shell.CommandError
		if !errors.As(err, &cmdErr) {
			t.Errorf("GetPods() error = %v, want *shell.CommandError", err)
		}
	})
}

func TestUpdateKubeconfig(t *testing.T) {
	ctx := context.Background()
	fake := shell.NewFakeShell()

	if err := UpdateKubeconfig(ctx, fake, "aptos-forge-0", ""); err != nil {
		t.Fatalf("UpdateKubeconfig() error = %v", err)
	}
	if err := UpdateKubeconfigAsync(ctx, fake, "aptos-forge-1", "/tmp/kc"); err != nil {
		t.Fatalf("UpdateKubeconfigAsync() error = %v", err)
	}
	calls := fake.Calls()
	if got := strings.Join(calls[0].Command, " "); got != "aws eks update-kubeconfig --name aptos-forge-0" {
		t.Errorf("call 0 = %q", got)
	}
	if got := strings.Join(calls[1].Command, " "); got != "aws eks update-kubeconfig --name aptos-forge-1 --kubeconfig /tmp/kc" {
		t.Errorf("call 1 = %q", got)
	}
}

func TestFormatTimeout(t *testing.T) {
	tests := map[time.Duration]string{
		5 * time.Minute:  "5m",
		90 * time.Second: "90s",
		0:                "5m",
	}
	for d, want := range tests {
		if got := formatTimeout(d); got != want {
			t.Errorf("formatTimeout(%v) = %q, want %q", d, got, want)
		}
	}
}
