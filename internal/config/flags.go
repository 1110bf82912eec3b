package config

import (
	"strings"

	"github.com/spf13/pflag"
)

// BindTestFlags registers the flags of the test command. Call after
// LoadEnv so that environment values become the flag defaults.
func BindTestFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.OutputFile, "forge-output", cfg.OutputFile, "write the raw runner output to this file")
	fs.StringVar(&cfg.ReportFile, "forge-report", cfg.ReportFile, "write the test report to this file")
	fs.StringVar(&cfg.PreCommentFile, "forge-pre-comment", cfg.PreCommentFile, "write the pre-run comment to this file")
	fs.StringVar(&cfg.CommentFile, "forge-comment", cfg.CommentFile, "write the result comment to this file")
	fs.StringVar(&cfg.StepSummaryFile, "github-step-summary", cfg.StepSummaryFile, "write the result comment to the actions step summary")

	fs.StringVar(&cfg.AWSRegion, "aws-region", cfg.AWSRegion, "AWS region of the forge cluster")
	fs.StringVar(&cfg.AWSTokenExpiration, "aws-token-expiration", cfg.AWSTokenExpiration, "expiry of the current AWS session token")
	fs.StringVar(&cfg.AWSAuthScript, "aws-auth-script", cfg.AWSAuthScript, "script that exports AWS credentials")
	fs.BoolVar(&cfg.UseAWSAPI, "use-aws-api", cfg.UseAWSAPI, "call STS and EKS through the SDK instead of the aws cli")

	fs.StringVar(&cfg.RunnerMode, "forge-runner-mode", cfg.RunnerMode, "runner mode: "+strings.Join(Modes(), ", "))
	fs.StringVar(&cfg.ClusterName, "forge-cluster-name", cfg.ClusterName, "cluster to run on")
	fs.IntVar(&cfg.NumValidators, "forge-num-validators", cfg.NumValidators, "number of validators (0 keeps the suite default)")
	fs.IntVar(&cfg.NumValidatorFullnodes, "forge-num-validator-fullnodes", cfg.NumValidatorFullnodes, "number of validator fullnodes (0 keeps the suite default)")
	fs.BoolVar(&cfg.NamespaceKeep, "forge-namespace-keep", cfg.NamespaceKeep, "keep the namespace after the run")
	fs.BoolVar(&cfg.NamespaceReuse, "forge-namespace-reuse", cfg.NamespaceReuse, "reuse an existing namespace")
	fs.BoolVar(&cfg.EnableFailpoints, "forge-enable-failpoints", cfg.EnableFailpoints, "use failpoints images")
	fs.BoolVar(&cfg.EnablePerformance, "forge-enable-performance", cfg.EnablePerformance, "use performance profile images")
	fs.BoolVar(&cfg.EnableHAProxy, "forge-enable-haproxy", cfg.EnableHAProxy, "put haproxy in front of validators")
	fs.StringVar(&cfg.TestSuite, "forge-test-suite", cfg.TestSuite, "test suite to run")
	fs.IntVar(&cfg.RunnerDurationSecs, "forge-runner-duration-secs", cfg.RunnerDurationSecs, "test duration in seconds")
	fs.StringVar(&cfg.ForgeImageTag, "forge-image-tag", cfg.ForgeImageTag, "forge runner image tag")
	fs.StringVar(&cfg.ImageTag, "image-tag", cfg.ImageTag, "validator image tag")
	fs.StringVar(&cfg.UpgradeImageTag, "upgrade-image-tag", cfg.UpgradeImageTag, "validator image tag to upgrade to")
	fs.StringVar(&cfg.Namespace, "forge-namespace", cfg.Namespace, "namespace to run in")
	fs.BoolVar(&cfg.Blocking, "forge-blocking", cfg.Blocking, "exit non-zero when the run does not pass")

	fs.StringVar(&cfg.TemplatePath, "forge-template", cfg.TemplatePath, "runner pod template")
	fs.IntVar(&cfg.PollAttempts, "poll-attempts", cfg.PollAttempts, "runner pod status polls before giving up")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "pause between runner pod status polls")
	fs.DurationVar(&cfg.ReadyTimeout, "ready-timeout", cfg.ReadyTimeout, "how long the runner pod may take to become ready")

	fs.BoolVar(&cfg.GithubActions, "github-actions", cfg.GithubActions, "running under GitHub Actions")
	fs.StringVar(&cfg.GithubServerURL, "github-server-url", cfg.GithubServerURL, "GitHub server URL")
	fs.StringVar(&cfg.GithubRepository, "github-repository", cfg.GithubRepository, "GitHub repository")
	fs.StringVar(&cfg.GithubRunID, "github-run-id", cfg.GithubRunID, "GitHub actions run id")

	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "use fake shell, processes and clock")
	fs.BoolVar(&cfg.IgnoreClusterWarning, "ignore-cluster-warning", cfg.IgnoreClusterWarning, "run on clusters not named like forge clusters")
	fs.BoolVar(&cfg.Interactive, "interactive", cfg.Interactive, "ask before using the current cluster")
	fs.BoolVar(&cfg.BalanceClusters, "balance-clusters", cfg.BalanceClusters, "pick a random forge cluster")
}

// BindGlobalFlags registers the flags shared by every command.
func BindGlobalFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "debug logging and echo every command")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: json or text")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&cfg.MetricsTextfile, "metrics-textfile", cfg.MetricsTextfile, "write Prometheus metrics to this file on exit")
	fs.StringVar(&cfg.OTLPEndpoint, "otlp-endpoint", cfg.OTLPEndpoint, "OTLP/HTTP trace endpoint (tracing off when empty)")
	fs.BoolVar(&cfg.OTLPInsecure, "otlp-insecure", cfg.OTLPInsecure, "send traces over plain HTTP")
	fs.Float64Var(&cfg.TraceSampleRate, "trace-sample-rate", cfg.TraceSampleRate, "fraction of traces kept")
}
