// Package config holds the forge CLI options. Every option can come from
// the environment, and command-line flags override it.
package config

import (
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/randomizedcoder/go-forge-runner/internal/kube"
	"github.com/randomizedcoder/go-forge-runner/internal/runner"
)

// ModePreForge only renders the pre-comment and exits.
const ModePreForge = "pre-forge"

// Config holds all configuration options for a forge invocation.
type Config struct {
	// Outputs
	OutputFile      string `env:"FORGE_OUTPUT"`
	ReportFile      string `env:"FORGE_REPORT"`
	PreCommentFile  string `env:"FORGE_PRE_COMMENT"`
	CommentFile     string `env:"FORGE_COMMENT"`
	StepSummaryFile string `env:"GITHUB_STEP_SUMMARY"`

	// AWS
	AWSRegion          string `env:"AWS_REGION"`
	AWSTokenExpiration string `env:"AWS_TOKEN_EXPIRATION"`
	AWSAuthScript      string `env:"AWS_AUTH_SCRIPT"`
	// UseAWSAPI talks to STS and EKS through the SDK instead of the aws cli.
	UseAWSAPI bool `env:"FORGE_USE_AWS_API"`

	// Run
	RunnerMode            string `env:"FORGE_RUNNER_MODE"`
	ClusterName           string `env:"FORGE_CLUSTER_NAME"`
	NumValidators         int    `env:"FORGE_NUM_VALIDATORS"`
	NumValidatorFullnodes int    `env:"FORGE_NUM_VALIDATOR_FULLNODES"`
	NamespaceKeep         bool   `env:"FORGE_NAMESPACE_KEEP"`
	NamespaceReuse        bool   `env:"FORGE_NAMESPACE_REUSE"`
	EnableFailpoints      bool   `env:"FORGE_ENABLE_FAILPOINTS"`
	EnablePerformance     bool   `env:"FORGE_ENABLE_PERFORMANCE"`
	EnableHAProxy         bool   `env:"FORGE_ENABLE_HAPROXY"`
	TestSuite             string `env:"FORGE_TEST_SUITE"`
	RunnerDurationSecs    int    `env:"FORGE_RUNNER_DURATION_SECS"`
	ForgeImageTag         string `env:"FORGE_IMAGE_TAG"`
	ImageTag              string `env:"IMAGE_TAG"`
	UpgradeImageTag       string `env:"UPGRADE_IMAGE_TAG"`
	Namespace             string `env:"FORGE_NAMESPACE"`
	Blocking              bool   `env:"FORGE_BLOCKING"`

	// Remote runner tuning
	TemplatePath string        `env:"FORGE_TEMPLATE_PATH"`
	PollAttempts int           `env:"FORGE_POLL_ATTEMPTS"`
	PollInterval time.Duration `env:"FORGE_POLL_INTERVAL"`
	ReadyTimeout time.Duration `env:"FORGE_READY_TIMEOUT"`

	// CI
	GithubActions    bool   `env:"GITHUB_ACTIONS"`
	GithubServerURL  string `env:"GITHUB_SERVER_URL"`
	GithubRepository string `env:"GITHUB_REPOSITORY"`
	GithubRunID      string `env:"GITHUB_RUN_ID"`

	// Flag-only switches
	DryRun               bool
	IgnoreClusterWarning bool
	Interactive          bool
	BalanceClusters      bool

	// Observability
	Verbose         bool    `env:"VERBOSE"`
	LogFormat       string  `env:"FORGE_LOG_FORMAT"`
	LogLevel        string  `env:"FORGE_LOG_LEVEL"`
	MetricsTextfile string  `env:"FORGE_METRICS_TEXTFILE"`
	MetricsAddr     string  `env:"FORGE_METRICS_ADDR"`
	OTLPEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE"`
	TraceSampleRate float64 `env:"FORGE_TRACE_SAMPLE_RATE"`
	SentryDSN       string  `env:"SENTRY_DSN"`
}

// DefaultConfig returns a Config with the defaults used in CI.
func DefaultConfig() *Config {
	return &Config{
		AWSRegion: "us-west-2",

		RunnerMode:         runner.ModeK8s,
		TestSuite:          "land_blocking",
		RunnerDurationSecs: 300,
		Blocking:           true,

		TemplatePath: runner.DefaultTemplatePath,
		PollAttempts: runner.DefaultPollAttempts,
		ReadyTimeout: kube.DefaultReadyTimeout,

		GithubServerURL: "https://github.com",

		LogFormat:       "text",
		LogLevel:        "info",
		MetricsAddr:     "127.0.0.1:17092",
		TraceSampleRate: 1.0,

		Interactive: stdinIsTerminal(),
	}
}

// stdinIsTerminal decides whether --interactive defaults on.
var stdinIsTerminal = func() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Modes lists every accepted runner mode.
func Modes() []string {
	return append(runner.Modes(), ModePreForge)
}

// K8sOptions returns the remote runner tuning.
func (c *Config) K8sOptions() runner.K8sOptions {
	return runner.K8sOptions{
		TemplatePath: c.TemplatePath,
		PollAttempts: c.PollAttempts,
		PollInterval: c.PollInterval,
		ReadyTimeout: c.ReadyTimeout,
	}
}
