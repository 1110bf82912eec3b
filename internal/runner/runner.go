// Package runner drives a forge attempt to a verdict, either by running the
// workload locally or by submitting a runner pod to the control plane.
package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/randomizedcoder/go-forge-runner/internal/forge"
	"github.com/randomizedcoder/go-forge-runner/internal/metrics"
)

const (
	ModeLocal = "local"
	ModeK8s   = "k8s"
)

// ErrUnknownMode is returned by ForMode for an unsupported runner mode.
var ErrUnknownMode = errors.New("unknown runner mode")

// Runner executes one forge attempt. The error return is reserved for
// *forge.InvariantError; every workload or control-plane failure is a FAIL
// verdict in the result.
type Runner interface {
	Run(ctx context.Context, fctx *forge.Context) (*forge.Result, error)
}

// Options are shared by every runner.
type Options struct {
	K8s     K8sOptions
	Metrics *metrics.Collector
}

// Modes lists the supported runner modes.
func Modes() []string {
	return []string{ModeLocal, ModeK8s}
}

// ForMode returns the runner for mode.
func ForMode(mode string, opts Options) (Runner, error) {
	switch mode {
	case ModeLocal:
		return &LocalRunner{Metrics: opts.Metrics}, nil
	case ModeK8s:
		return NewK8sRunner(opts.K8s, opts.Metrics), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

func record(m *metrics.Collector, mode string, result *forge.Result, err error) {
	var inv *forge.InvariantError
	if errors.As(err, &inv) {
		m.RecordInvariantViolation()
	}
	if result != nil && result.HasTimes() {
		m.RecordRun(mode, result.State().String(), result.Duration(), result.EndTime())
	}
}
