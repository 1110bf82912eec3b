package images

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/randomizedcoder/go-forge-runner/internal/shell"
)

// history answers rev-parse HEAD~i with "rev<i>" and publishes the given tags.
func history(published ...string) *shell.FakeShell {
	sh := shell.NewFakeShell()
	sh.RespondFunc(shell.Prefix("git", "rev-parse"), func(cmd []string) (shell.RunResult, error) {
		return shell.RunResult{Output: []byte("rev" + strings.TrimPrefix(cmd[2], "HEAD~") + "\n")}, nil
	})
	sh.RespondFunc(shell.Prefix("aws", "ecr", "describe-images"), func(cmd []string) (shell.RunResult, error) {
		tag := strings.TrimPrefix(cmd[len(cmd)-1], "imageTag=")
		if slices.Contains(published, tag) {
			return shell.RunResult{}, nil
		}
		return shell.RunResult{ExitCode: 254, Output: []byte("ImageNotFoundException")}, nil
	})
	return sh
}

func TestFindRecent(t *testing.T) {
	ctx := context.Background()

	t.Run("skips_unpublished", func(t *testing.T) {
		f := NewFinder(history("rev2", "rev5", "rev6"))
		got, err := f.FindRecent(ctx, 2, "")
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(got, []string{"rev2", "rev5"}) {
			t.Errorf("FindRecent() = %v", got)
		}
	})

	t.Run("threshold", func(t *testing.T) {
		sh := history("rev150")
		f := NewFinder(sh)
		_, err := f.FindRecent(ctx, 1, "")
		var nf *NotFoundError
		if !errors.As(err, &nf) || nf.Want != 1 || nf.Found != 0 {
			t.Fatalf("FindRecent() error = %v", err)
		}
		if n := len(sh.CallsMatching(shell.Prefix("git"))); n != DefaultCommitThreshold {
			t.Errorf("revisions inspected = %d, want %d", n, DefaultCommitThreshold)
		}
	})

	t.Run("repository_and_prefix", func(t *testing.T) {
		sh := history("performance_rev0")
		got, err := NewFinder(sh).FindRecentByProfile(ctx, 1, Profile{Performance: true})
		if err != nil || got[0] != "performance_rev0" {
			t.Fatalf("FindRecentByProfile() = %v, %v", got, err)
		}
		cmd := sh.CallsMatching(shell.Prefix("aws"))[0].Command
		if !slices.Contains(cmd, DefaultRepository) {
			t.Errorf("describe-images command = %v", cmd)
		}
	})
}

func TestProfileTagPrefix(t *testing.T) {
	tests := []struct {
		p    Profile
		want string
		err  error
	}{
		{Profile{}, "", nil},
		{Profile{Performance: true}, PerformancePrefix, nil},
		{Profile{Failpoints: true}, FailpointsPrefix, nil},
		{Profile{Failpoints: true, Performance: true}, "", ErrConflictingProfiles},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%+v", tt.p), func(t *testing.T) {
			got, err := tt.p.TagPrefix()
			if got != tt.want || !errors.Is(err, tt.err) {
				t.Errorf("TagPrefix() = %q, %v", got, err)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	f := NewFinder(history("rev1", "rev3"))

	t.Run("single_image", func(t *testing.T) {
		got, err := f.Resolve(ctx, "land_blocking", Profile{}, Tags{Upgrade: "mine"})
		if err != nil {
			t.Fatal(err)
		}
		if got != (Tags{Forge: "rev1", Image: "rev1", Upgrade: "mine"}) {
			t.Errorf("Resolve() = %+v", got)
		}
	})

	t.Run("compat_uses_two", func(t *testing.T) {
		got, err := f.Resolve(ctx, CompatSuite, Profile{}, Tags{})
		if err != nil {
			t.Fatal(err)
		}
		if got != (Tags{Forge: "rev1", Image: "rev3", Upgrade: "rev1"}) {
			t.Errorf("Resolve() = %+v", got)
		}
	})

	t.Run("all_given_skips_search", func(t *testing.T) {
		sh := history()
		given := Tags{Forge: "a", Image: "b", Upgrade: "c"}
		got, err := NewFinder(sh).Resolve(ctx, CompatSuite, Profile{}, given)
		if err != nil || got != given || len(sh.Calls()) != 0 {
			t.Errorf("Resolve() = %+v, %v, calls %d", got, err, len(sh.Calls()))
		}
	})
}
