package kubernetes

import (
	"context"

	"github.com/pkg/errors"
	apiapps "k8s.io/api/apps/v1"
	apiv1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"

	"github.com/fluxcd/circles/pkg/cluster"
)

// Status sums the rollout status of the Deployments in the namespace
// matching the selector.
func (c *Cluster) Status(ctx context.Context, namespace string, selector map[string]string) (cluster.RolloutStatus, error) {
	var status cluster.RolloutStatus
	if !c.IsAllowedNamespace(namespace) {
		return status, NamespaceNotAllowedError(namespace)
	}
	if err := c.wait(ctx); err != nil {
		return status, err
	}
	list, err := c.core.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labels.SelectorFromSet(selector).String(),
	})
	if err != nil {
		return status, errors.Wrap(err, "listing deployments")
	}
	for i := range list.Items {
		status = status.Add(rolloutStatus(&list.Items[i]))
	}
	return status, nil
}

func rolloutStatus(d *apiapps.Deployment) cluster.RolloutStatus {
	desired := int32(1)
	if d.Spec.Replicas != nil {
		desired = *d.Spec.Replicas
	}
	rollout := cluster.RolloutStatus{
		Workloads: 1,
		Desired:   desired,
		Updated:   d.Status.UpdatedReplicas,
		Ready:     d.Status.ReadyReplicas,
		Available: d.Status.AvailableReplicas,
		Outdated:  d.Status.Replicas - d.Status.UpdatedReplicas,
		Messages:  deploymentErrors(d),
	}
	if d.Status.ObservedGeneration < d.Generation {
		// the controller has not seen the latest spec yet, so none
		// of the replicas counted are known to be on it
		rollout.Updated = 0
	}
	return rollout
}

// deploymentErrors returns the conditions saying the Deployment has
// stopped progressing, e.g., because it passed its
// progressDeadlineSeconds or could not create pods.
func deploymentErrors(d *apiapps.Deployment) []string {
	var errs []string
	for _, cond := range d.Status.Conditions {
		if (cond.Type == apiapps.DeploymentProgressing && cond.Status == apiv1.ConditionFalse) ||
			(cond.Type == apiapps.DeploymentReplicaFailure && cond.Status == apiv1.ConditionTrue) {
			errs = append(errs, d.Name+": "+cond.Message)
		}
	}
	return errs
}
