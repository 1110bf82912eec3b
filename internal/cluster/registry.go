// Package cluster discovers forge clusters and the runner jobs on them.
package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/eks"

	"github.com/randomizedcoder/go-forge-runner/internal/shell"
)

// ForgeClusterPrefix selects the clusters forge runs on.
const ForgeClusterPrefix = "aptos-forge-"

// Registry lists the clusters that may hold forge jobs.
type Registry interface {
	Clusters(ctx context.Context) ([]string, error)
}

// RegistryError means the cluster list could not be obtained or decoded.
type RegistryError struct {
	Err error
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("list clusters: %v", e.Err)
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

// CLIRegistry lists clusters with the aws cli.
type CLIRegistry struct {
	Shell shell.Shell
}

type listClustersResponse struct {
	Clusters []string `json:"clusters"`
}

func (r *CLIRegistry) Clusters(ctx context.Context) ([]string, error) {
	res, err := r.Shell.Run(ctx, []string{"aws", "eks", "list-clusters"})
	if err != nil {
		return nil, &RegistryError{Err: err}
	}
	out, err := res.Unwrap()
	if err != nil {
		return nil, &RegistryError{Err: err}
	}
	var resp listClustersResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, &RegistryError{Err: fmt.Errorf("decode list-clusters output: %w", err)}
	}
	return forgeClusters(resp.Clusters), nil
}

// EKSRegistry lists clusters through the EKS API.
type EKSRegistry struct {
	Client eks.ListClustersAPIClient
}

func (r *EKSRegistry) Clusters(ctx context.Context) ([]string, error) {
	var all []string
	p := eks.NewListClustersPaginator(r.Client, &eks.ListClustersInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, &RegistryError{Err: err}
		}
		all = append(all, page.Clusters...)
	}
	return forgeClusters(all), nil
}

func forgeClusters(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if strings.HasPrefix(n, ForgeClusterPrefix) {
			out = append(out, n)
		}
	}
	return out
}
