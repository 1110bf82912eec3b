package cluster

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"

	"github.com/randomizedcoder/go-forge-runner/internal/kube"
	"github.com/randomizedcoder/go-forge-runner/internal/shell"
)

var currentClusterPattern = regexp.MustCompile(`aptos.*`)

// ErrClusterDeclined means the operator refused to run on a cluster.
var ErrClusterDeclined = errors.New("cluster selection declined")

// ErrNoClusters means the registry had nothing to pick from.
var ErrNoClusters = errors.New("no forge clusters available")

// CurrentClusterName extracts the cluster name from the active kube context.
func CurrentClusterName(ctx context.Context, sh shell.Shell) (string, error) {
	current, err := kube.New(sh).CurrentContext(ctx)
	if err != nil {
		return "", err
	}
	matches := currentClusterPattern.FindAllString(current, -1)
	if len(matches) != 1 {
		return "", fmt.Errorf("could not determine current cluster name: %s", current)
	}
	return matches[0], nil
}

// Confirm asks the operator a yes/no question.
type Confirm func(prompt string) bool

// Selector picks the cluster a run targets.
type Selector struct {
	Shell    shell.Shell
	Registry Registry
	// Confirm is nil when not interactive.
	Confirm Confirm
	// Balance picks a random registry cluster even when one was named.
	Balance bool
	// Pick chooses among candidates; random when nil.
	Pick func(candidates []string) string
}

// Select returns the cluster to run on. An explicit name wins unless
// balancing; otherwise an interactive operator may accept the current kube
// context; otherwise a registry cluster is picked at random.
func (s *Selector) Select(ctx context.Context, explicit string) (string, error) {
	name := explicit
	if name == "" && s.Confirm != nil {
		current, err := CurrentClusterName(ctx, s.Shell)
		if err != nil {
			return "", err
		}
		if s.Confirm(fmt.Sprintf("Automatically using current cluster %s", current)) {
			name = current
		}
	}

	if name == "" || s.Balance {
		candidates, err := s.Registry.Clusters(ctx)
		if err != nil {
			return "", err
		}
		if len(candidates) == 0 {
			return "", ErrNoClusters
		}
		pick := s.Pick
		if pick == nil {
			pick = func(c []string) string { return c[rand.IntN(len(c))] }
		}
		name = pick(candidates)
	}
	return name, nil
}

// LooksLikeForge reports whether name is conventionally a forge cluster.
func LooksLikeForge(name string) bool {
	return strings.Contains(name, "forge")
}
