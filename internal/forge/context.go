// Package forge holds the forge run domain: verdicts, the attempt lifecycle,
// jobs and clusters, and the run context shared by every runner.
package forge

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/randomizedcoder/go-forge-runner/internal/fsys"
	"github.com/randomizedcoder/go-forge-runner/internal/procs"
	"github.com/randomizedcoder/go-forge-runner/internal/shell"
)

// SystemContext carries the collaborators used outside a forge run.
type SystemContext struct {
	Shell      shell.Shell
	Filesystem fsys.Filesystem
	Processes  procs.Processes
	Logger     *slog.Logger
}

// Context is everything a runner needs for one forge run.
type Context struct {
	Shell      shell.Shell
	Filesystem fsys.Filesystem
	Processes  procs.Processes
	Clock      Clock
	Logger     *slog.Logger

	// InvocationID identifies this run in logs and traces.
	InvocationID string

	TestSuite          string
	RunnerDurationSecs string

	Namespace                 string
	ReuseArgs                 []string
	KeepArgs                  []string
	HAProxyArgs               []string
	NumValidatorsArgs         []string
	NumValidatorFullnodesArgs []string

	AWSAccountNum string
	AWSRegion     string

	ForgeImageTag   string
	ImageTag        string
	UpgradeImageTag string

	ClusterName string
	Blocking    bool

	GithubActions bool
	GithubJobURL  string
}

// ChainName is the chain label used by dashboards: the cluster name without
// its "aptos-" prefix, with "net" appended unless it already names a forge.
func (c *Context) ChainName() string {
	name := strings.TrimPrefix(c.ClusterName, "aptos-")
	if !strings.Contains(name, "forge") {
		name += "net"
	}
	return name
}

// TriggeredBy reports who started the run.
func (c *Context) TriggeredBy() string {
	if c.GithubActions {
		return "github-actions"
	}
	return "other"
}

// GithubJobLink builds the actions run URL.
func GithubJobLink(serverURL, repository, runID string) string {
	return fmt.Sprintf("%s/%s/actions/runs/%s", serverURL, repository, runID)
}

// Log returns the run logger, falling back to slog.Default.
func (c *Context) Log() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
