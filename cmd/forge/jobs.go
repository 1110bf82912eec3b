package main

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/randomizedcoder/go-forge-runner/internal/cluster"
	"github.com/randomizedcoder/go-forge-runner/internal/forge"
	"github.com/randomizedcoder/go-forge-runner/internal/logging"
	"github.com/randomizedcoder/go-forge-runner/internal/metrics"
	"github.com/randomizedcoder/go-forge-runner/internal/tui"
)

func (a *app) enumerator(ctx context.Context) (*cluster.Enumerator, error) {
	sys := a.system()
	registry, err := a.registry(ctx, sys.Shell)
	if err != nil {
		return nil, err
	}
	return cluster.NewEnumerator(sys, registry, a.metrics), nil
}

func compilePattern(regex string) (*regexp.Regexp, error) {
	if regex == "" {
		return nil, nil
	}
	pattern, err := regexp.Compile(regex)
	if err != nil {
		return nil, fmt.Errorf("invalid --regex: %w", err)
	}
	return pattern, nil
}

func newListJobsCmd(a *app) *cobra.Command {
	var (
		phases []string
		regex  string
	)
	cmd := &cobra.Command{
		Use:   "list-jobs",
		Short: "List forge jobs on every forge cluster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern, err := compilePattern(regex)
			if err != nil {
				return err
			}
			e, err := a.enumerator(cmd.Context())
			if err != nil {
				return err
			}
			jobs, err := e.ListAllJobs(cmd.Context())
			if err != nil {
				return err
			}
			shown := cluster.FilterJobs(jobs, phases, pattern)
			a.summary.Jobs = make(map[string]int)
			for _, j := range shown {
				a.summary.Jobs[j.Phase]++
				fmt.Fprintln(a.stdout, tui.RenderJobLine(j))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&phases, "phase", nil, "pod phases to show, repeatable (default Running)")
	cmd.Flags().StringVar(&regex, "regex", "", "only show jobs whose name matches from the start")
	return cmd
}

func newTailCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tail JOB_NAME",
		Short: "Tail the logs of a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.enumerator(cmd.Context())
			if err != nil {
				return err
			}
			return e.Tail(cmd.Context(), args[0], a.stdout)
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		phases   []string
		regex    string
		interval time.Duration
		serve    bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard of forge jobs across clusters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pattern, err := compilePattern(regex)
			if err != nil {
				return err
			}
			// Log lines would tear the alternate screen.
			a.logger = logging.NewLogger(logging.Options{Format: "json", Level: "info", Writer: io.Discard})
			e, err := a.enumerator(ctx)
			if err != nil {
				return err
			}
			e.Recycle = true
			var source tui.JobSource = e

			metricsAddr := ""
			if serve {
				srv := metrics.NewServer(a.cfg.MetricsAddr, a.metrics.Registry(), a.logger)
				if err := srv.Start(); err != nil {
					return err
				}
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				source = readySource{JobSource: e, ready: srv}
				metricsAddr = srv.Addr()
			}

			model := tui.New(tui.Config{
				Context:     ctx,
				Source:      source,
				Latency:     a.metrics,
				Interval:    interval,
				Phases:      phases,
				Pattern:     pattern,
				MetricsAddr: metricsAddr,
			})
			_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			return err
		},
	}
	cmd.Flags().StringArrayVar(&phases, "phase", nil, "pod phases to show, repeatable (default Running)")
	cmd.Flags().StringVar(&regex, "regex", "", "only show jobs whose name matches from the start")
	cmd.Flags().DurationVar(&interval, "interval", tui.DefaultInterval, "refresh interval")
	cmd.Flags().BoolVar(&serve, "serve-metrics", true, "serve Prometheus metrics while watching")
	cmd.Flags().StringVar(&a.cfg.MetricsAddr, "metrics-addr", a.cfg.MetricsAddr, "metrics listen address")
	return cmd
}

type readinessSetter interface {
	SetReady(ready bool)
}

// readySource marks the metrics server ready after the first successful
// listing.
type readySource struct {
	tui.JobSource
	ready readinessSetter
}

func (r readySource) ListAllJobs(ctx context.Context) ([]forge.Job, error) {
	jobs, err := r.JobSource.ListAllJobs(ctx)
	if err == nil {
		r.ready.SetReady(true)
	}
	return jobs, err
}
