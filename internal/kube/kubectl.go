// Package kube issues control-plane calls through kubectl and the aws CLI.
package kube

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/randomizedcoder/go-forge-runner/internal/shell"
)

const (
	// DefaultNamespace is where runner pods are submitted.
	DefaultNamespace = "default"

	// NamespaceLabel ties a runner pod to the forge namespace it tests.
	NamespaceLabel = "forge-namespace"

	DefaultReadyTimeout = 5 * time.Minute
)

// Kubectl wraps kubectl invocations against one kubeconfig.
type Kubectl struct {
	sh         shell.Shell
	kubeconfig string
	async      bool
}

// New returns a Kubectl using the ambient kubeconfig.
func New(sh shell.Shell) *Kubectl {
	return &Kubectl{sh: sh}
}

// WithKubeconfig returns a copy targeting the given kubeconfig file.
func (k *Kubectl) WithKubeconfig(path string) *Kubectl {
	c := *k
	c.kubeconfig = path
	return &c
}

// Async returns a copy that issues every call through Shell.RunAsync.
func (k *Kubectl) Async() *Kubectl {
	c := *k
	c.async = true
	return &c
}

func (k *Kubectl) command(args ...string) []string {
	cmd := []string{"kubectl"}
	if k.kubeconfig != "" {
		cmd = append(cmd, "--kubeconfig", k.kubeconfig)
	}
	return append(cmd, args...)
}

func (k *Kubectl) run(ctx context.Context, command []string, opts ...shell.Option) (shell.RunResult, error) {
	if k.async {
		return shell.Await(ctx, k.sh.RunAsync(ctx, command, opts...))
	}
	return k.sh.Run(ctx, command, opts...)
}

func (k *Kubectl) unwrap(ctx context.Context, command []string) ([]byte, error) {
	res, err := k.run(ctx, command)
	if err != nil {
		return nil, err
	}
	out, err := res.Unwrap()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", strings.Join(command[:min(len(command), 3)], " "), err)
	}
	return out, nil
}

// LabelSelector returns the selector for pods of a forge namespace.
func LabelSelector(namespace string) string {
	return NamespaceLabel + "=" + namespace
}

// DeleteByLabel force-deletes pods matching selector. A non-zero exit is
// returned in the result, not as an error.
func (k *Kubectl) DeleteByLabel(ctx context.Context, namespace, selector string) (shell.RunResult, error) {
	return k.run(ctx, k.command("delete", "pod", "-n", namespace, "-l", selector, "--force"))
}

// WaitForDeletion blocks until no pod matches selector.
func (k *Kubectl) WaitForDeletion(ctx context.Context, namespace, selector string) (shell.RunResult, error) {
	return k.run(ctx, k.command("wait", "-n", namespace, "--for=delete", "pod", "-l", selector))
}

// Apply submits the spec stored at file.
func (k *Kubectl) Apply(ctx context.Context, namespace, file string) error {
	_, err := k.unwrap(ctx, k.command("apply", "-n", namespace, "-f", file))
	return err
}

// WaitReady blocks until pod reports the Ready condition or timeout passes.
func (k *Kubectl) WaitReady(ctx context.Context, namespace, pod string, timeout time.Duration) error {
	_, err := k.unwrap(ctx, k.command(
		"wait", "-n", namespace,
		"--timeout="+formatTimeout(timeout),
		"--for=condition=Ready",
		"pod/"+pod,
	))
	return err
}

// Logs fetches the pod log, following it until the container exits.
func (k *Kubectl) Logs(ctx context.Context, namespace, pod string, opts ...shell.Option) (shell.RunResult, error) {
	return k.run(ctx, k.command("logs", "-n", namespace, "-f", pod), opts...)
}

// Phase returns the raw output of a phase query. When the pod is gone the
// output is kubectl's NotFound message, so it is returned whatever the exit
// code.
func (k *Kubectl) Phase(ctx context.Context, namespace, pod string) (string, error) {
	res, err := k.run(ctx, k.command("get", "pod", "-n", namespace, pod, "-o", "jsonpath='{.status.phase}'"))
	if err != nil {
		return "", err
	}
	return string(res.Output), nil
}

// PodsByLabel returns the JSON pod list matching selector.
func (k *Kubectl) PodsByLabel(ctx context.Context, namespace, selector string) ([]byte, error) {
	return k.unwrap(ctx, k.command("get", "pods", "-n", namespace, "-l", selector, "-o", "json"))
}

// DescribePods returns the human table of pods in namespace.
func (k *Kubectl) DescribePods(ctx context.Context, namespace string) (string, error) {
	out, err := k.unwrap(ctx, k.command("get", "pods", "-n", namespace))
	return string(out), err
}

// GetPods returns every pod in namespace.
func (k *Kubectl) GetPods(ctx context.Context, namespace string) (*corev1.PodList, error) {
	out, err := k.unwrap(ctx, k.command("get", "pods", "-n", namespace, "-o", "json"))
	if err != nil {
		return nil, err
	}
	return DecodePodList(out)
}

// CurrentContext returns the active kubeconfig context name.
func (k *Kubectl) CurrentContext(ctx context.Context) (string, error) {
	out, err := k.unwrap(ctx, k.command("config", "current-context"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// MalformedResponseError means kubectl or aws printed something we could not decode.
type MalformedResponseError struct {
	What string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed %s: %v", e.What, e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// DecodePodList parses `kubectl get pods -o json` output.
func DecodePodList(data []byte) (*corev1.PodList, error) {
	var list corev1.PodList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, &MalformedResponseError{What: "pod list", Err: err}
	}
	return &list, nil
}

func formatTimeout(d time.Duration) string {
	if d <= 0 {
		d = DefaultReadyTimeout
	}
	if d%time.Minute == 0 {
		return fmt.Sprintf("%dm", int(d/time.Minute))
	}
	return fmt.Sprintf("%ds", int(d.Round(time.Second)/time.Second))
}
