// Package images finds the validator images built from recent commits.
package images

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/randomizedcoder/go-forge-runner/internal/shell"
)

const (
	// DefaultRepository holds the validator images.
	DefaultRepository = "aptos/validator"
	// DefaultCommitThreshold is how far back in history to look.
	DefaultCommitThreshold = 100

	PerformancePrefix = "performance_"
	FailpointsPrefix  = "failpoints_"
)

// ErrConflictingProfiles means both the failpoints feature and the
// performance profile were requested.
var ErrConflictingProfiles = errors.New("cannot yet set both failpoints and performance")

// NotFoundError means fewer than Want images exist in the searched history.
type NotFoundError struct {
	Want  int
	Found int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("could not find %d recent images (found %d)", e.Want, e.Found)
}

// Profile selects the image flavor.
type Profile struct {
	Failpoints  bool
	Performance bool
}

// TagPrefix returns the image tag prefix for p.
func (p Profile) TagPrefix() (string, error) {
	switch {
	case p.Failpoints && p.Performance:
		return "", ErrConflictingProfiles
	case p.Failpoints:
		return FailpointsPrefix, nil
	case p.Performance:
		return PerformancePrefix, nil
	}
	return "", nil
}

// Finder searches git history for commits with a published image.
type Finder struct {
	Shell           shell.Shell
	Repository      string
	CommitThreshold int
}

// NewFinder returns a Finder with default settings.
func NewFinder(sh shell.Shell) *Finder {
	return &Finder{Shell: sh, Repository: DefaultRepository, CommitThreshold: DefaultCommitThreshold}
}

// Revision returns the commit hash n commits before HEAD.
func (f *Finder) Revision(ctx context.Context, n int) (string, error) {
	res, err := f.Shell.Run(ctx, []string{"git", "rev-parse", fmt.Sprintf("HEAD~%d", n)})
	if err != nil {
		return "", err
	}
	out, err := res.Unwrap()
	if err != nil {
		return "", fmt.Errorf("git rev-parse HEAD~%d: %w", n, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Exists reports whether tag is published in the repository.
func (f *Finder) Exists(ctx context.Context, tag string) (bool, error) {
	res, err := f.Shell.Run(ctx, []string{
		"aws", "ecr", "describe-images",
		"--repository-name", f.Repository,
		"--image-ids", "imageTag=" + tag,
	})
	if err != nil {
		return false, err
	}
	return res.Succeeded(), nil
}

// FindRecent returns the newest want image tags, newest first.
func (f *Finder) FindRecent(ctx context.Context, want int, prefix string) ([]string, error) {
	threshold := f.CommitThreshold
	if threshold <= 0 {
		threshold = DefaultCommitThreshold
	}

	var tags []string
	for i := 0; i < threshold && len(tags) < want; i++ {
		rev, err := f.Revision(ctx, i)
		if err != nil {
			return nil, err
		}
		tag := prefix + rev
		ok, err := f.Exists(ctx, tag)
		if err != nil {
			return nil, err
		}
		if ok {
			tags = append(tags, tag)
		}
	}
	if len(tags) < want {
		return nil, &NotFoundError{Want: want, Found: len(tags)}
	}
	return tags, nil
}

// FindRecentByProfile is FindRecent for the image flavor p.
func (f *Finder) FindRecentByProfile(ctx context.Context, want int, p Profile) ([]string, error) {
	prefix, err := p.TagPrefix()
	if err != nil {
		return nil, err
	}
	return f.FindRecent(ctx, want, prefix)
}

// Tags are the three images a run uses.
type Tags struct {
	Forge   string
	Image   string
	Upgrade string
}

// CompatSuite upgrades from the previous image to the latest.
const CompatSuite = "compat"

// Resolve fills the unset fields of given from recent history. The compat
// suite starts from the second newest image and upgrades to the newest.
func (f *Finder) Resolve(ctx context.Context, suite string, p Profile, given Tags) (Tags, error) {
	if given.Forge != "" && given.Image != "" && given.Upgrade != "" {
		return given, nil
	}
	want := 1
	if suite == CompatSuite {
		want = 2
	}
	recent, err := f.FindRecentByProfile(ctx, want, p)
	if err != nil {
		return Tags{}, err
	}

	latest, base := recent[0], recent[0]
	if want == 2 {
		base = recent[1]
	}
	out := given
	if out.Image == "" {
		out.Image = base
	}
	if out.Forge == "" {
		out.Forge = latest
	}
	if out.Upgrade == "" {
		out.Upgrade = latest
	}
	return out, nil
}
