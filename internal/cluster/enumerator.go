package cluster

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/randomizedcoder/go-forge-runner/internal/forge"
	"github.com/randomizedcoder/go-forge-runner/internal/fsys"
	"github.com/randomizedcoder/go-forge-runner/internal/kube"
	"github.com/randomizedcoder/go-forge-runner/internal/metrics"
	"github.com/randomizedcoder/go-forge-runner/internal/procs"
	"github.com/randomizedcoder/go-forge-runner/internal/shell"
	"github.com/randomizedcoder/go-forge-runner/internal/tracing"
)

// DefaultJobPrefix marks runner pods among everything in the namespace.
const DefaultJobPrefix = "forge-"

// ClusterError means one cluster could not be enumerated. It aborts the
// whole listing.
type ClusterError struct {
	Cluster string
	Err     error
}

func (e *ClusterError) Error() string {
	return fmt.Sprintf("cluster %s: %v", e.Cluster, e.Err)
}

func (e *ClusterError) Unwrap() error {
	return e.Err
}

// Enumerator lists forge jobs across every cluster in a Registry.
type Enumerator struct {
	Shell      shell.Shell
	Filesystem fsys.Filesystem
	// Processes owns the exit-time removal of credential files.
	Processes procs.Processes
	Registry  Registry
	Metrics   *metrics.Collector
	Logger    *slog.Logger

	Namespace string
	JobPrefix string

	// Recycle releases each listing's credential files once the next
	// listing succeeds. Jobs from a superseded listing must not be used.
	Recycle bool

	mu       sync.Mutex
	previous *procs.CleanupStack
	hooked   bool
}

// NewEnumerator builds an Enumerator over the system collaborators.
func NewEnumerator(sys *forge.SystemContext, registry Registry, m *metrics.Collector) *Enumerator {
	return &Enumerator{
		Shell:      sys.Shell,
		Filesystem: sys.Filesystem,
		Processes:  sys.Processes,
		Registry:   registry,
		Metrics:    m,
		Logger:     sys.Logger,
	}
}

func (e *Enumerator) namespace() string {
	if e.Namespace == "" {
		return kube.DefaultNamespace
	}
	return e.Namespace
}

func (e *Enumerator) jobPrefix() string {
	if e.JobPrefix == "" {
		return DefaultJobPrefix
	}
	return e.JobPrefix
}

func (e *Enumerator) log() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// ListAllJobs queries every cluster concurrently. Jobs keep the registry's
// cluster order and each cluster's listing order. Credential files stay on
// disk until process exit so callers can keep using Job.Cluster, unless
// Recycle is set.
func (e *Enumerator) ListAllJobs(ctx context.Context) ([]forge.Job, error) {
	if !e.Recycle {
		return e.listAllJobs(ctx, e.Processes.AtExit)
	}

	batch := &procs.CleanupStack{}
	jobs, err := e.listAllJobs(ctx, batch.Defer)
	if err != nil {
		batch.Flush()
		return nil, err
	}

	e.mu.Lock()
	stale := e.previous
	e.previous = batch
	if !e.hooked {
		e.hooked = true
		e.Processes.AtExit(e.releaseCurrent)
	}
	e.mu.Unlock()
	if stale != nil {
		stale.Flush()
	}
	return jobs, nil
}

func (e *Enumerator) releaseCurrent() {
	e.mu.Lock()
	current := e.previous
	e.previous = nil
	e.mu.Unlock()
	if current != nil {
		current.Flush()
	}
}

func (e *Enumerator) listAllJobs(ctx context.Context, release func(func())) ([]forge.Job, error) {
	ctx, span := tracing.Start(ctx, "forge.cluster.list_all_jobs")

	clusters, err := e.Registry.Clusters(ctx)
	if err != nil {
		tracing.End(span, err)
		return nil, err
	}
	e.log().Debug("clusters_discovered", "count", len(clusters))

	perCluster := make([][]forge.Job, len(clusters))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range clusters {
		g.Go(func() error {
			jobs, err := e.clusterJobs(gctx, name, release)
			if err != nil {
				return &ClusterError{Cluster: name, Err: err}
			}
			perCluster[i] = jobs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		tracing.End(span, err)
		return nil, err
	}

	var all []forge.Job
	for _, jobs := range perCluster {
		all = append(all, jobs...)
	}
	span.SetAttributes(attribute.Int("forge.clusters", len(clusters)), attribute.Int("forge.jobs", len(all)))
	tracing.End(span, nil)
	return all, nil
}

func (e *Enumerator) clusterJobs(ctx context.Context, name string, release func(func())) (jobs []forge.Job, err error) {
	ctx, span := tracing.Start(ctx, "forge.cluster.jobs", attribute.String("forge.cluster", name))
	start := time.Now()
	defer func() {
		phases := make(map[string]int)
		for _, j := range jobs {
			phases[j.Phase]++
		}
		e.Metrics.RecordClusterQuery(name, time.Since(start), phases, err)
		tracing.End(span, err)
	}()

	kubeconfig, err := e.Filesystem.TempFile()
	if err != nil {
		return nil, fmt.Errorf("create credentials file: %w", err)
	}
	e.Metrics.AddCredentialFiles(1)
	release(func() {
		if err := e.Filesystem.Unlink(kubeconfig); err != nil {
			e.log().Debug("credentials_unlink_failed", "path", kubeconfig, "error", err)
		}
		e.Metrics.AddCredentialFiles(-1)
	})

	if err := kube.UpdateKubeconfigAsync(ctx, e.Shell, name, kubeconfig); err != nil {
		return nil, fmt.Errorf("fetch credentials: %w", err)
	}

	pods, err := kube.New(e.Shell).WithKubeconfig(kubeconfig).Async().GetPods(ctx, e.namespace())
	if err != nil {
		return nil, err
	}

	c := forge.Cluster{Name: name, CredentialsPath: kubeconfig}
	for i := range pods.Items {
		pod := &pods.Items[i]
		if strings.HasPrefix(pod.Name, e.jobPrefix()) {
			jobs = append(jobs, forge.JobFromPod(c, pod))
		}
	}
	e.log().Debug("cluster_jobs_listed", "cluster", name, "jobs", len(jobs), "pods", len(pods.Items))
	return jobs, nil
}

// AmbiguousJobError means a job name matched on more than one cluster.
type AmbiguousJobError struct {
	Name    string
	Matches []forge.Job
}

func (e *AmbiguousJobError) Error() string {
	clusters := make([]string, len(e.Matches))
	for i, j := range e.Matches {
		clusters[i] = j.Cluster.Name
	}
	return fmt.Sprintf("found multiple jobs for name %s on clusters %s", e.Name, strings.Join(clusters, ", "))
}

// NotFoundError means no job carries the requested name. Running lists the
// jobs that do exist.
type NotFoundError struct {
	Name    string
	Running []string
}

func (e *NotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "could not find job %s, running jobs:", e.Name)
	for _, r := range e.Running {
		b.WriteString("\n\t- ")
		b.WriteString(r)
	}
	return b.String()
}

// FindJob resolves name, after sanitizing it, to exactly one job.
func (e *Enumerator) FindJob(ctx context.Context, name string) (forge.Job, error) {
	name = forge.Sanitize(name)
	jobs, err := e.ListAllJobs(ctx)
	if err != nil {
		return forge.Job{}, err
	}

	var matches []forge.Job
	for _, j := range jobs {
		if j.Name == name {
			matches = append(matches, j)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		nf := &NotFoundError{Name: name}
		for _, j := range FilterJobs(jobs, nil, nil) {
			nf.Running = append(nf.Running, j.Name)
		}
		return forge.Job{}, nf
	default:
		return forge.Job{}, &AmbiguousJobError{Name: name, Matches: matches}
	}
}

// Tail follows the log of the named job into w.
func (e *Enumerator) Tail(ctx context.Context, name string, w io.Writer) error {
	job, err := e.FindJob(ctx, name)
	if err != nil {
		return err
	}
	e.log().Info("tailing_job", "job", job.Name, "cluster", job.Cluster.Name)

	kc := kube.New(e.Shell).WithKubeconfig(job.Cluster.CredentialsPath)
	res, err := kc.Logs(ctx, e.namespace(), job.Name, shell.WithStream(true), shell.WithStreamWriter(w))
	if err != nil {
		return err
	}
	_, err = res.Unwrap()
	return err
}
