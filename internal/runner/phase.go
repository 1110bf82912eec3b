package runner

import (
	"regexp"
	"strings"

	"github.com/randomizedcoder/go-forge-runner/internal/forge"
)

var notFoundPattern = regexp.MustCompile(`(?i)not\s*found`)

// MapPhase maps the output of a pod phase query to a verdict. done is false
// while the pod is still running. The checks apply in order: running,
// succeeded, not found (the pod was preempted), anything else fails.
func MapPhase(phase string) (state forge.State, done bool) {
	p := strings.ToLower(phase)
	switch {
	case strings.Contains(p, "running"):
		return forge.StateRunning, false
	case strings.Contains(p, "succeeded"):
		return forge.StatePass, true
	case notFoundPattern.MatchString(p):
		return forge.StateSkip, true
	default:
		return forge.StateFail, true
	}
}

// phaseLabel reduces raw phase output to a bounded metric label.
func phaseLabel(phase string) string {
	p := strings.ToLower(phase)
	for _, known := range []string{"running", "succeeded", "failed", "pending"} {
		if strings.Contains(p, known) {
			return known
		}
	}
	if notFoundPattern.MatchString(p) {
		return "notfound"
	}
	return "other"
}
