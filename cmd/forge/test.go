package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/randomizedcoder/go-forge-runner/internal/awsauth"
	"github.com/randomizedcoder/go-forge-runner/internal/cluster"
	"github.com/randomizedcoder/go-forge-runner/internal/config"
	"github.com/randomizedcoder/go-forge-runner/internal/forge"
	"github.com/randomizedcoder/go-forge-runner/internal/fsys"
	"github.com/randomizedcoder/go-forge-runner/internal/images"
	"github.com/randomizedcoder/go-forge-runner/internal/kube"
	"github.com/randomizedcoder/go-forge-runner/internal/preflight"
	"github.com/randomizedcoder/go-forge-runner/internal/procs"
	"github.com/randomizedcoder/go-forge-runner/internal/report"
	"github.com/randomizedcoder/go-forge-runner/internal/runner"
	"github.com/randomizedcoder/go-forge-runner/internal/shell"
	"github.com/randomizedcoder/go-forge-runner/internal/tracing"
)

// dryRunAccount is the AWS account used with --dry-run.
const dryRunAccount = "1234"

func newTestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run a forge test",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Validate(a.cfg); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			if !a.cfg.DryRun && a.cfg.RunnerMode != config.ModePreForge {
				res := preflight.Host{}.RunAll(preflight.Options{
					Mode:         a.cfg.RunnerMode,
					TemplatePath: a.cfg.TemplatePath,
				})
				if a.cfg.Verbose || !res.Passed {
					preflight.PrintResults(a.stderr, res)
				}
				if !res.Passed {
					return fmt.Errorf("preflight checks failed: %d of %d", len(res.Failed()), len(res.Checks))
				}
			}
			return runTest(cmd.Context(), a, newTestDeps(a))
		},
	}
	config.BindTestFlags(cmd.Flags(), a.cfg)
	return cmd
}

// testDeps are the collaborators of one test invocation.
type testDeps struct {
	Shell      shell.Shell
	Filesystem fsys.Filesystem
	Processes  procs.Processes
	Clock      forge.Clock

	// AccountID resolves the AWS account; unused in dry runs.
	AccountID func(ctx context.Context) (string, error)
	Registry  cluster.Registry
	// Confirm is nil when not interactive.
	Confirm cluster.Confirm
	// Username names the default namespace.
	Username func() (string, error)
}

func newTestDeps(a *app) testDeps {
	if a.cfg.DryRun {
		return dryRunDeps(a.cleanup)
	}
	sys := a.system()
	deps := testDeps{
		Shell:      sys.Shell,
		Filesystem: sys.Filesystem,
		Processes:  sys.Processes,
		Clock:      forge.SystemClock{},
		AccountID: func(ctx context.Context) (string, error) {
			return a.accountID(ctx, sys.Shell)
		},
		Username: currentUsername,
	}
	deps.Registry = lazyRegistry(func(ctx context.Context) (cluster.Registry, error) {
		return a.registry(ctx, sys.Shell)
	})
	if a.cfg.Interactive {
		if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
			a.logger.Warn("interactive_without_terminal")
		}
		deps.Confirm = stdinConfirm(os.Stdin, a.stdout)
	}
	return deps
}

// dryRunDeps fakes every side effect except reading the runner template.
func dryRunDeps(cleanup *procs.CleanupStack) testDeps {
	sh := shell.NewFakeShell().
		Respond(shell.Prefix("aws", "eks", "list-clusters"), shell.RunResult{Output: []byte(`{"clusters": ["aptos-forge-0"]}`)})
	processes := procs.NewFakeProcesses()
	processes.Cleanup = cleanup
	return testDeps{
		Shell:      sh,
		Filesystem: fsys.NewLocalFilesystem(),
		Processes:  processes,
		Clock:      forge.NewFakeClock(),
		AccountID: func(context.Context) (string, error) {
			return dryRunAccount, nil
		},
		Registry: &cluster.CLIRegistry{Shell: sh},
		Username: func() (string, error) { return "dry-run", nil },
	}
}

// runTest is the test command: authenticate, pick a cluster and images,
// run the attempt and report it.
func runTest(ctx context.Context, a *app, deps testDeps) (err error) {
	cfg := a.cfg
	ctx, span := tracing.Start(ctx, "forge.test",
		attribute.String("forge.mode", cfg.RunnerMode),
		attribute.String("forge.suite", cfg.TestSuite),
		attribute.Bool("forge.dry_run", cfg.DryRun),
	)
	defer func() { tracing.End(span, err) }()

	account, err := authenticate(ctx, a, deps)
	if err != nil {
		return err
	}

	selector := &cluster.Selector{
		Shell:    deps.Shell,
		Registry: deps.Registry,
		Confirm:  deps.Confirm,
		Balance:  cfg.BalanceClusters,
	}
	clusterName, err := selector.Select(ctx, cfg.ClusterName)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Using forge cluster: %s\n", clusterName)
	if !cluster.LooksLikeForge(clusterName) && !cfg.IgnoreClusterWarning {
		fmt.Fprintln(a.stdout, "Forge cluster usually contains forge, to ignore this warning set --ignore-cluster-warning")
		if deps.Confirm == nil {
			return nil
		}
		if !deps.Confirm("Continue?") {
			return cluster.ErrClusterDeclined
		}
	}
	if err := kube.UpdateKubeconfig(ctx, deps.Shell, clusterName, ""); err != nil {
		return fmt.Errorf("set current cluster %s: %w", clusterName, err)
	}

	namespace := cfg.Namespace
	if namespace == "" {
		username, err := deps.Username()
		if err != nil {
			return fmt.Errorf("current user: %w", err)
		}
		namespace = fmt.Sprintf("forge-%s-%s", username, forge.Epoch(deps.Clock))
	}
	namespace = forge.Sanitize(namespace)

	tags, err := images.NewFinder(deps.Shell).Resolve(ctx, cfg.TestSuite,
		images.Profile{Failpoints: cfg.EnableFailpoints, Performance: cfg.EnablePerformance},
		images.Tags{Forge: cfg.ForgeImageTag, Image: cfg.ImageTag, Upgrade: cfg.UpgradeImageTag},
	)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "Using the following image tags:")
	fmt.Fprintln(a.stdout, "\tforge: ", tags.Forge)
	fmt.Fprintln(a.stdout, "\tswarm: ", tags.Image)
	fmt.Fprintln(a.stdout, "\tswarm upgrade (if applicable): ", tags.Upgrade)

	fctx := newForgeContext(a, deps, account, clusterName, namespace, tags)
	span.SetAttributes(
		attribute.String("forge.cluster", clusterName),
		attribute.String("forge.namespace", namespace),
	)
	a.summary.Cluster = clusterName
	a.summary.Namespace = namespace
	a.summary.Mode = cfg.RunnerMode

	if cfg.PreCommentFile != "" {
		pre := []report.Formatter{{Filename: cfg.PreCommentFile, Format: report.FormatPreComment}}
		if err := report.Report(fctx, forge.EmptyResult(), pre, a.stdout); err != nil {
			return err
		}
	}
	if cfg.RunnerMode == config.ModePreForge {
		return nil
	}

	if err := runAndReport(ctx, a, fctx); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			return err
		}
		return &stateError{State: forge.DumpState(ctx, deps.Shell, namespace), Err: err}
	}
	return nil
}

func authenticate(ctx context.Context, a *app, deps testDeps) (string, error) {
	cfg := a.cfg
	if cfg.DryRun {
		return deps.AccountID(ctx)
	}

	account, err := deps.AccountID(ctx)
	if err != nil {
		a.logger.Info("aws_auth_refresh", "reason", err)
		verify := func(ctx context.Context) error {
			_, err := deps.AccountID(ctx)
			return err
		}
		if err := awsauth.Refresh(ctx, deps.Shell, cfg.AWSAuthScript, verify); err != nil {
			return "", err
		}
		if account, err = deps.AccountID(ctx); err != nil {
			return "", err
		}
	}

	if cfg.AWSAuthScript != "" && cfg.AWSTokenExpiration != "" {
		expiration := cfg.AWSTokenExpiration
		// A sourced auth script may have issued a newer token.
		if v := os.Getenv("AWS_TOKEN_EXPIRATION"); v != "" {
			expiration = v
		}
		if err := awsauth.AssertTokenExpiration(expiration, deps.Clock.Now()); err != nil {
			return "", err
		}
	}
	if account == "" {
		return "", errors.New("AWS account number is required")
	}
	return account, nil
}

func newForgeContext(a *app, deps testDeps, account, clusterName, namespace string, tags images.Tags) *forge.Context {
	cfg := a.cfg
	fctx := &forge.Context{
		Shell:        deps.Shell,
		Filesystem:   deps.Filesystem,
		Processes:    deps.Processes,
		Clock:        deps.Clock,
		Logger:       a.logger,
		InvocationID: a.invocationID,

		TestSuite:          cfg.TestSuite,
		RunnerDurationSecs: strconv.Itoa(cfg.RunnerDurationSecs),
		Namespace:          namespace,

		AWSAccountNum: account,
		AWSRegion:     cfg.AWSRegion,

		ForgeImageTag:   tags.Forge,
		ImageTag:        tags.Image,
		UpgradeImageTag: tags.Upgrade,

		ClusterName:   clusterName,
		Blocking:      cfg.Blocking,
		GithubActions: cfg.GithubActions,
		GithubJobURL:  forge.GithubJobLink(cfg.GithubServerURL, cfg.GithubRepository, cfg.GithubRunID),
	}
	if cfg.NamespaceReuse {
		fctx.ReuseArgs = []string{"--reuse"}
	}
	if cfg.NamespaceKeep {
		fctx.KeepArgs = []string{"--keep"}
	}
	if cfg.EnableHAProxy {
		fctx.HAProxyArgs = []string{"--enable-haproxy"}
	}
	if cfg.NumValidators > 0 {
		fctx.NumValidatorsArgs = []string{"--num-validators", strconv.Itoa(cfg.NumValidators)}
	}
	if cfg.NumValidatorFullnodes > 0 {
		fctx.NumValidatorFullnodesArgs = []string{"--num-validator-fullnodes", strconv.Itoa(cfg.NumValidatorFullnodes)}
	}
	return fctx
}

func runAndReport(ctx context.Context, a *app, fctx *forge.Context) error {
	cfg := a.cfg
	r, err := runner.ForMode(cfg.RunnerMode, runner.Options{K8s: cfg.K8sOptions(), Metrics: a.metrics})
	if err != nil {
		return err
	}
	result, err := r.Run(ctx, fctx)
	if err != nil {
		return err
	}
	a.summary.Verdict = result.State().String()

	fmt.Fprintln(a.stdout, result.Format())
	if !result.Succeeded() {
		fmt.Fprintln(a.stdout, result.DebuggingOutput())
	}

	var outputs []report.Formatter
	if cfg.OutputFile != "" {
		outputs = append(outputs, report.Formatter{Filename: cfg.OutputFile, Format: report.RawOutput})
	}
	if cfg.ReportFile != "" {
		outputs = append(outputs, report.Formatter{Filename: cfg.ReportFile, Format: report.FormatReport})
	}
	if cfg.CommentFile != "" {
		outputs = append(outputs, report.Formatter{Filename: cfg.CommentFile, Format: report.FormatComment})
	}
	if cfg.StepSummaryFile != "" {
		outputs = append(outputs, report.Formatter{Filename: cfg.StepSummaryFile, Format: report.FormatComment})
	}
	if err := report.Report(fctx, result, outputs, a.stdout); err != nil {
		return err
	}

	if !result.Succeeded() && cfg.Blocking {
		return &exitError{code: 1}
	}
	return nil
}

// stateError carries the namespace state captured when a run failed.
type stateError struct {
	State string
	Err   error
}

func (e *stateError) Error() string {
	return fmt.Sprintf("%v\nForge state:\n%s", e.Err, e.State)
}

func (e *stateError) Unwrap() error {
	return e.Err
}

// lazyRegistry defers building the registry until clusters are needed, so
// runs with an explicit cluster never touch the SDK.
type lazyRegistry func(ctx context.Context) (cluster.Registry, error)

func (l lazyRegistry) Clusters(ctx context.Context) ([]string, error) {
	r, err := l(ctx)
	if err != nil {
		return nil, err
	}
	return r.Clusters(ctx)
}

func currentUsername() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

// stdinConfirm asks yes/no questions on r, defaulting to no.
func stdinConfirm(r io.Reader, w io.Writer) cluster.Confirm {
	reader := bufio.NewReader(r)
	return func(prompt string) bool {
		for {
			fmt.Fprintf(w, "%s [y/N]: ", prompt)
			line, err := reader.ReadString('\n')
			s := strings.TrimSpace(strings.ToLower(line))
			switch {
			case s == "y" || s == "yes":
				return true
			case s == "" || s == "n" || s == "no" || err != nil:
				return false
			}
			fmt.Fprintln(w, "Please answer y or n.")
		}
	}
}
