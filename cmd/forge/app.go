package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/randomizedcoder/go-forge-runner/internal/awsauth"
	"github.com/randomizedcoder/go-forge-runner/internal/cluster"
	"github.com/randomizedcoder/go-forge-runner/internal/config"
	"github.com/randomizedcoder/go-forge-runner/internal/forge"
	"github.com/randomizedcoder/go-forge-runner/internal/fsys"
	"github.com/randomizedcoder/go-forge-runner/internal/logging"
	"github.com/randomizedcoder/go-forge-runner/internal/metrics"
	"github.com/randomizedcoder/go-forge-runner/internal/procs"
	"github.com/randomizedcoder/go-forge-runner/internal/shell"
	"github.com/randomizedcoder/go-forge-runner/internal/stats"
	"github.com/randomizedcoder/go-forge-runner/internal/tracing"
)

// app holds what every command shares for one invocation.
type app struct {
	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer
	start  time.Time

	cleanup *procs.CleanupStack
	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  *tracing.Provider

	invocationID string
	command      string
	sentry       bool

	// output sees every streamed line of workload output.
	output  *logging.OutputHandler
	summary stats.RunSummary
}

func newApp(cfg *config.Config, stdout, stderr io.Writer) *app {
	return &app{
		cfg:     cfg,
		stdout:  stdout,
		stderr:  stderr,
		start:   time.Now(),
		cleanup: &procs.CleanupStack{},
		logger:  slog.Default(),
		metrics: metrics.NewCollector(),
	}
}

// setup validates the global options and starts logging, tracing and error
// reporting for command.
func (a *app) setup(ctx context.Context, command string) error {
	if err := config.ValidateGlobal(a.cfg); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	a.command = command
	a.summary.Command = command
	a.invocationID = uuid.NewString()

	logger := logging.NewLogger(logging.Options{
		Format:  a.cfg.LogFormat,
		Level:   a.cfg.LogLevel,
		Verbose: a.cfg.Verbose,
		Writer:  a.stderr,
	})
	a.logger = logging.ForInvocation(logger, a.invocationID, command)
	slog.SetDefault(a.logger)
	a.metrics.SetInfo(version, a.invocationID)

	tp, err := tracing.Init(ctx, tracing.Config{
		ServiceName:    "forge",
		ServiceVersion: version,
		InvocationID:   a.invocationID,
		Endpoint:       a.cfg.OTLPEndpoint,
		Insecure:       a.cfg.OTLPInsecure,
		SamplingRate:   a.cfg.TraceSampleRate,
	})
	if err != nil {
		return err
	}
	a.tracer = tp

	if a.cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:     a.cfg.SentryDSN,
			Release: version,
		})
		if err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		a.sentry = true
		sentry.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetTag("command", command)
			scope.SetTag("invocation_id", a.invocationID)
		})
	}

	a.logger.Debug("starting", "version", version, "trace_enabled", tp.Enabled())
	return nil
}

// capture reports a fatal error to Sentry when it is configured.
func (a *app) capture(err error) {
	if a.sentry {
		sentry.CaptureException(err)
	}
}

// close runs the exit-time work: pending cleanup first, then telemetry.
func (a *app) close() {
	a.cleanup.Flush()

	if a.output != nil {
		a.output.Flush()
		if counts := a.output.CountErrors(); len(counts) > 0 {
			a.logger.Warn("workload_error_patterns", "counts", counts)
		}
	}

	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("trace_shutdown_failed", "error", err)
		}
		cancel()
	}

	if a.cfg.MetricsTextfile != "" && a.command != "" {
		if err := a.metrics.WriteTextfile(a.cfg.MetricsTextfile); err != nil {
			a.logger.Warn("metrics_textfile_failed", "path", a.cfg.MetricsTextfile, "error", err)
		} else {
			a.summary.MetricsTextfile = a.cfg.MetricsTextfile
		}
	}

	if a.cfg.Verbose && a.command != "" {
		a.summary.Duration = time.Since(a.start)
		a.summary.PollLatency = a.metrics.PollLatency()
		a.summary.ClusterLatency = a.metrics.ClusterLatency()
		fmt.Fprint(a.stderr, stats.FormatRunSummary(a.summary))
	}

	if a.sentry {
		sentry.Flush(2 * time.Second)
	}
}

// system returns the real collaborators. Streamed command output goes to
// stdout and through the output handler.
func (a *app) system() *forge.SystemContext {
	a.output = logging.NewOutputHandler(a.logger, a.cfg.Verbose)
	sh := shell.NewLocalShell(a.cfg.Verbose, a.logger)
	sh.Stream = io.MultiWriter(a.stdout, a.output)
	return &forge.SystemContext{
		Shell:      sh,
		Filesystem: fsys.NewLocalFilesystem(),
		Processes:  procs.NewSystemProcesses(a.cleanup, a.logger),
		Logger:     a.logger,
	}
}

// registry lists forge clusters through the SDK or the aws cli.
func (a *app) registry(ctx context.Context, sh shell.Shell) (cluster.Registry, error) {
	if !a.cfg.UseAWSAPI {
		return &cluster.CLIRegistry{Shell: sh}, nil
	}
	awsCfg, err := awsauth.LoadConfig(ctx, a.cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	return &cluster.EKSRegistry{Client: eks.NewFromConfig(awsCfg)}, nil
}

// accountID resolves the caller's AWS account. The SDK config is loaded on
// every call so credentials sourced mid-run are picked up.
func (a *app) accountID(ctx context.Context, sh shell.Shell) (string, error) {
	var id awsauth.Identity = &awsauth.CLIIdentity{Shell: sh}
	if a.cfg.UseAWSAPI {
		awsCfg, err := awsauth.LoadConfig(ctx, a.cfg.AWSRegion)
		if err != nil {
			return "", err
		}
		id = &awsauth.STSIdentity{Client: sts.NewFromConfig(awsCfg)}
	}
	return id.AccountID(ctx)
}
