package forge

import (
	corev1 "k8s.io/api/core/v1"
)

// Cluster is a control-plane cluster and the kubeconfig holding its
// credentials.
type Cluster struct {
	Name            string
	CredentialsPath string
}

// Job is a forge runner pod discovered on a cluster.
type Job struct {
	Name    string
	Phase   string
	Cluster Cluster
}

// JobFromPod builds a Job from a listed pod.
func JobFromPod(cluster Cluster, pod *corev1.Pod) Job {
	return Job{
		Name:    pod.Name,
		Phase:   string(pod.Status.Phase),
		Cluster: cluster,
	}
}

func (j Job) Running() bool   { return j.Phase == string(corev1.PodRunning) }
func (j Job) Succeeded() bool { return j.Phase == string(corev1.PodSucceeded) }
func (j Job) Failed() bool    { return j.Phase == string(corev1.PodFailed) }
