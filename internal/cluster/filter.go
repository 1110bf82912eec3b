package cluster

import (
	"regexp"
	"slices"

	corev1 "k8s.io/api/core/v1"

	"github.com/randomizedcoder/go-forge-runner/internal/forge"
)

// DefaultPhases is the list-jobs phase filter when none is given.
var DefaultPhases = []string{string(corev1.PodRunning)}

// FilterJobs keeps jobs whose phase is in phases (DefaultPhases when empty)
// and, when pattern is set, whose name matches it from the start.
func FilterJobs(jobs []forge.Job, phases []string, pattern *regexp.Regexp) []forge.Job {
	if len(phases) == 0 {
		phases = DefaultPhases
	}
	var out []forge.Job
	for _, j := range jobs {
		if !slices.Contains(phases, j.Phase) {
			continue
		}
		if pattern != nil {
			loc := pattern.FindStringIndex(j.Name)
			if loc == nil || loc[0] != 0 {
				continue
			}
		}
		out = append(out, j)
	}
	return out
}
