package kube

import (
	"context"

	"github.com/randomizedcoder/go-forge-runner/internal/shell"
)

// UpdateKubeconfig writes credentials for cluster. An empty kubeconfig
// updates the ambient one and makes cluster the current context.
func UpdateKubeconfig(ctx context.Context, sh shell.Shell, cluster, kubeconfig string) error {
	cmd := []string{"aws", "eks", "update-kubeconfig", "--name", cluster}
	if kubeconfig != "" {
		cmd = append(cmd, "--kubeconfig", kubeconfig)
	}
	res, err := sh.Run(ctx, cmd)
	if err != nil {
		return err
	}
	_, err = res.Unwrap()
	return err
}

// UpdateKubeconfigAsync is UpdateKubeconfig issued through RunAsync.
func UpdateKubeconfigAsync(ctx context.Context, sh shell.Shell, cluster, kubeconfig string) error {
	cmd := []string{"aws", "eks", "update-kubeconfig", "--name", cluster, "--kubeconfig", kubeconfig}
	res, err := shell.Await(ctx, sh.RunAsync(ctx, cmd))
	if err != nil {
		return err
	}
	_, err = res.Unwrap()
	return err
}
