package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/randomizedcoder/go-forge-runner/internal/forge"
	"github.com/randomizedcoder/go-forge-runner/internal/kube"
	"github.com/randomizedcoder/go-forge-runner/internal/metrics"
	"github.com/randomizedcoder/go-forge-runner/internal/shell"
	"github.com/randomizedcoder/go-forge-runner/internal/tracing"
)

// DefaultPollAttempts bounds the runner pod poll loop.
const DefaultPollAttempts = 100

// ErrPollBudgetExhausted means the runner pod never reached a final phase
// within the poll budget.
var ErrPollBudgetExhausted = errors.New("exhausted attempts to get forge pod status")

// K8sOptions tune the remote runner.
type K8sOptions struct {
	TemplatePath string
	PollAttempts int
	// PollInterval is slept between iterations. Zero is fine: the log
	// follow call blocks while the pod runs.
	PollInterval time.Duration
	ReadyTimeout time.Duration
}

// K8sRunner submits a runner pod and follows it to a verdict.
type K8sRunner struct {
	opts    K8sOptions
	Metrics *metrics.Collector
}

// NewK8sRunner fills unset options with defaults.
func NewK8sRunner(opts K8sOptions, m *metrics.Collector) *K8sRunner {
	if opts.TemplatePath == "" {
		opts.TemplatePath = DefaultTemplatePath
	}
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = DefaultPollAttempts
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = kube.DefaultReadyTimeout
	}
	return &K8sRunner{opts: opts, Metrics: m}
}

// PodName is the runner pod name for fctx.
func PodName(fctx *forge.Context) string {
	return forge.Sanitize(fmt.Sprintf("%s-%s-%s", fctx.Namespace, forge.Epoch(fctx.Clock), fctx.ImageTag))
}

// Run implements Runner.
func (r *K8sRunner) Run(ctx context.Context, fctx *forge.Context) (*forge.Result, error) {
	pod := PodName(fctx)
	ctx, span := tracing.Start(ctx, "forge.k8s.run",
		attribute.String("forge.namespace", fctx.Namespace),
		attribute.String("forge.pod", pod),
		attribute.String("forge.image_tag", fctx.ImageTag),
	)

	result, err := forge.WithAttempt(ctx, fctx, func(res *forge.Result) error {
		return r.attempt(ctx, fctx, pod, res)
	})

	record(r.Metrics, ModeK8s, result, err)
	tracing.End(span, err)
	return result, err
}

func (r *K8sRunner) attempt(ctx context.Context, fctx *forge.Context, pod string, res *forge.Result) error {
	logger := fctx.Log()
	kc := kube.New(fctx.Shell)
	selector := kube.LabelSelector(fctx.Namespace)

	// Only one runner may own a namespace; preempt the previous one.
	out, err := kc.DeleteByLabel(ctx, kube.DefaultNamespace, selector)
	if err != nil {
		return fmt.Errorf("delete previous runner: %w", err)
	}
	logger.Debug("previous_runner_deleted", "selector", selector, "exit_code", out.ExitCode)
	if _, err := kc.WaitForDeletion(ctx, kube.DefaultNamespace, selector); err != nil {
		return fmt.Errorf("wait for previous runner deletion: %w", err)
	}

	tmpl, err := fctx.Filesystem.Read(r.opts.TemplatePath)
	if err != nil {
		return fmt.Errorf("read runner template %s: %w", r.opts.TemplatePath, err)
	}
	spec, err := RenderTemplate(string(tmpl), TemplateParams(fctx, pod))
	if err != nil {
		return err
	}
	if err := ValidateSpec(spec, pod); err != nil {
		return err
	}

	specfile, err := fctx.Filesystem.TempFile()
	if err != nil {
		return fmt.Errorf("create spec file: %w", err)
	}
	defer func() {
		if err := fctx.Filesystem.Unlink(specfile); err != nil {
			logger.Debug("spec_file_unlink_failed", "path", specfile, "error", err)
		}
	}()
	if err := fctx.Filesystem.Write(specfile, []byte(spec)); err != nil {
		return fmt.Errorf("write spec file: %w", err)
	}

	if err := kc.Apply(ctx, kube.DefaultNamespace, specfile); err != nil {
		return fmt.Errorf("submit runner pod %s: %w", pod, err)
	}
	logger.Info("runner_pod_submitted", "pod", pod, "namespace", fctx.Namespace)
	tracing.AddEvent(ctx, "runner_pod_submitted")

	if err := kc.WaitReady(ctx, kube.DefaultNamespace, pod, r.opts.ReadyTimeout); err != nil {
		return fmt.Errorf("runner pod %s not ready: %w", pod, err)
	}
	logger.Info("runner_pod_ready", "pod", pod)
	tracing.AddEvent(ctx, "runner_pod_ready")

	return r.poll(ctx, fctx, kc, pod, res)
}

// poll follows the runner pod until its phase is final. Every iteration
// spends one unit of the budget, including those that find it still running.
func (r *K8sRunner) poll(ctx context.Context, fctx *forge.Context, kc *kube.Kubectl, pod string, res *forge.Result) error {
	logger := fctx.Log()
	attempts := r.opts.PollAttempts
	// Stream the first follow only; later ones would repeat the whole log.
	stream := true

	for {
		start := time.Now()

		logs, err := kc.Logs(ctx, kube.DefaultNamespace, pod, shell.WithStream(stream))
		stream = false
		switch {
		case err != nil:
			logger.Warn("runner_logs_failed", "pod", pod, "error", err)
		case logs.Succeeded():
			res.SetOutput(string(logs.Output))
		default:
			logger.Debug("runner_logs_nonzero", "pod", pod, "exit_code", logs.ExitCode)
		}

		phase, phaseErr := kc.Phase(ctx, kube.DefaultNamespace, pod)
		if phaseErr != nil {
			logger.Warn("runner_phase_failed", "pod", pod, "error", phaseErr)
		}
		attempts--
		r.Metrics.RecordPoll(phaseLabel(phase), time.Since(start))

		if phaseErr == nil {
			if state, done := MapPhase(phase); done {
				logger.Info("runner_pod_finished", "pod", pod, "phase", phase, "state", state.String())
				if state == forge.StateSkip {
					r.attributeKiller(ctx, fctx, res)
				}
				return res.SetState(state)
			}
		}

		if attempts <= 0 {
			return fmt.Errorf("%w: %d polls of %s", ErrPollBudgetExhausted, r.opts.PollAttempts, pod)
		}
		if err := sleepCtx(ctx, r.opts.PollInterval); err != nil {
			return fmt.Errorf("polling %s: %w", pod, err)
		}
	}
}

// attributeKiller records which run most likely replaced ours. Best effort.
func (r *K8sRunner) attributeKiller(ctx context.Context, fctx *forge.Context, res *forge.Result) {
	killer, err := forge.FindTheKiller(ctx, fctx.Shell, fctx.Namespace)
	if err != nil {
		fctx.Log().Warn("killer_attribution_failed", "namespace", fctx.Namespace, "error", err)
		return
	}
	res.SetDebuggingOutput(killer)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
