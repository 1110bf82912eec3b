package runner

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/randomizedcoder/go-forge-runner/internal/forge"
	"github.com/randomizedcoder/go-forge-runner/internal/fsys"
	"github.com/randomizedcoder/go-forge-runner/internal/metrics"
	"github.com/randomizedcoder/go-forge-runner/internal/procs"
	"github.com/randomizedcoder/go-forge-runner/internal/shell"
	"github.com/randomizedcoder/go-forge-runner/internal/tracing"
)

// portForwardCommand exposes the cluster's prometheus to the local workload.
var portForwardCommand = []string{"kubectl", "port-forward", "prometheus", "9090"}

// LocalRunner runs the forge workload on this machine with cargo.
type LocalRunner struct {
	Metrics *metrics.Collector
}

// Command returns the workload command line for fctx.
func (r *LocalRunner) Command(fctx *forge.Context) []string {
	cmd := []string{
		"cargo", "run", "-p", "forge-cli", "--",
		"--suite", fctx.TestSuite,
	}
	cmd = append(cmd, fctx.NumValidatorsArgs...)
	cmd = append(cmd, fctx.NumValidatorFullnodesArgs...)
	cmd = append(cmd,
		"--duration-secs", fctx.RunnerDurationSecs,
		"test", "k8s-swarm",
		"--image-tag", fctx.ImageTag,
		"--upgrade-image-tag", fctx.UpgradeImageTag,
		"--namespace", fctx.Namespace,
		"--port-forward",
	)
	cmd = append(cmd, fctx.ReuseArgs...)
	cmd = append(cmd, fctx.KeepArgs...)
	cmd = append(cmd, fctx.HAProxyArgs...)
	return cmd
}

// Run implements Runner.
func (r *LocalRunner) Run(ctx context.Context, fctx *forge.Context) (*forge.Result, error) {
	logger := fctx.Log()
	ctx, span := tracing.Start(ctx, "forge.local.run",
		attribute.String("forge.namespace", fctx.Namespace),
		attribute.String("forge.image_tag", fctx.ImageTag),
	)

	// The workload opens a socket per validator connection.
	if err := fctx.Filesystem.Rlimit(fsys.RlimitNoFile, fsys.RlimInfinity, fsys.RlimInfinity); err != nil {
		logger.Warn("rlimit_raise_failed", "resource", "nofile", "error", err)
	}

	helper, err := fctx.Processes.Spawn(ctx, portForwardCommand)
	if err != nil {
		logger.Warn("port_forward_spawn_failed", "error", err)
	}

	result, err := forge.WithAttempt(ctx, fctx, func(res *forge.Result) error {
		out, err := fctx.Shell.Run(ctx, r.Command(fctx), shell.WithStream(true))
		if err != nil {
			return err
		}
		res.SetOutput(string(out.Output))
		if out.Succeeded() {
			return res.SetState(forge.StatePass)
		}
		return res.SetState(forge.StateFail)
	})

	if len(fctx.KeepArgs) == 0 {
		r.reap(ctx, fctx, helper)
	} else {
		logger.Info("port_forward_kept", "namespace", fctx.Namespace)
	}

	record(r.Metrics, ModeLocal, result, err)
	tracing.End(span, err)
	return result, err
}

// reap kills our kubectl children and then the port-forward helper.
func (r *LocalRunner) reap(ctx context.Context, fctx *forge.Context, helper procs.Process) {
	logger := fctx.Log()
	self := fctx.Processes.Pid()

	list, err := fctx.Processes.Processes(ctx)
	if err != nil {
		logger.Warn("process_list_failed", "error", err)
	}
	for _, p := range list {
		if strings.Contains(p.Name(), "kubectl") && p.Ppid() == self {
			logger.Info("killing_process", "name", p.Name(), "pid", p.Pid())
			if err := p.Kill(); err != nil {
				logger.Warn("process_kill_failed", "pid", p.Pid(), "error", err)
			}
		}
	}

	if helper != nil {
		if err := helper.Kill(); err != nil {
			logger.Warn("port_forward_kill_failed", "pid", helper.Pid(), "error", err)
		}
	}
}
