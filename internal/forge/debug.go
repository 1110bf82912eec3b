package forge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"

	"github.com/randomizedcoder/go-forge-runner/internal/kube"
	"github.com/randomizedcoder/go-forge-runner/internal/shell"
)

const killerPath = "$.items[0].metadata.name"

// DumpState returns the pod table of namespace for diagnostics. It never
// fails; errors are folded into the returned text.
func DumpState(ctx context.Context, sh shell.Shell, namespace string) string {
	out, err := kube.New(sh).DescribePods(ctx, namespace)
	if err != nil {
		return fmt.Sprintf("Failed to get debugging output: %v", err)
	}
	return out
}

// FindTheKiller names the runner pod now labelled with namespace, which is
// most likely the run that preempted ours.
func FindTheKiller(ctx context.Context, sh shell.Shell, namespace string) (string, error) {
	raw, err := kube.New(sh).PodsByLabel(ctx, kube.DefaultNamespace, kube.LabelSelector(namespace))
	if err != nil {
		return "", fmt.Errorf("list pods for %s: %w", namespace, err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", &kube.MalformedResponseError{What: "pod list", Err: err}
	}
	name, err := jsonpath.Get(killerPath, doc)
	if err != nil {
		return "", fmt.Errorf("no pod labelled %s: %w", kube.LabelSelector(namespace), err)
	}

	killer := strings.TrimSpace(fmt.Sprint(name))
	return "Likely killed by " + killer, nil
}
