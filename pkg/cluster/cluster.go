package cluster

import (
	"context"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Gateway is what the deployment pipeline needs from the running
// cluster. Implementations must make Apply and Sync idempotent:
// applying the same objects twice leaves the cluster as applying them
// once.
type Gateway interface {
	// Sync makes the cluster hold exactly the resources in the set,
	// deleting resources previously synced under the same set name
	// that are no longer in it.
	Sync(ctx context.Context, set SyncSet) error
	// Apply creates or replaces each object, leaving anything else
	// alone.
	Apply(ctx context.Context, objs []*unstructured.Unstructured) error
	// Delete removes the objects; objects already gone are not an
	// error.
	Delete(ctx context.Context, objs []*unstructured.Unstructured) error
	// Status sums up the rollout of the workloads in the namespace
	// that match the selector.
	Status(ctx context.Context, namespace string, selector map[string]string) (RolloutStatus, error)
	IsAllowedNamespace(namespace string) bool
	Ping() error
}

// RolloutStatus counts the pods of one or more workloads by how far
// their rollout has got. A rollout is complete once every pod wanted
// is updated, ready and available, and none are left on an old spec.
// It is stuck if there are Messages: it will not progress without
// someone changing something.
type RolloutStatus struct {
	Workloads int
	// Desired is the sum of the replicas asked for.
	Desired   int32
	Updated   int32
	Ready     int32
	Available int32
	// Outdated pods are still running a previous spec.
	Outdated  int32
	Messages  []string
}

// Complete is true when there is at least one workload and every pod
// wanted is updated, ready and available.
func (s RolloutStatus) Complete() bool {
	return s.Workloads > 0 &&
		s.Updated >= s.Desired &&
		s.Ready >= s.Desired &&
		s.Available >= s.Desired &&
		s.Outdated == 0
}

// Stuck is true when the rollout will not finish without
// intervention.
func (s RolloutStatus) Stuck() bool {
	return len(s.Messages) > 0
}

// Add accumulates the status of another workload.
func (s RolloutStatus) Add(o RolloutStatus) RolloutStatus {
	s.Workloads += o.Workloads
	s.Desired += o.Desired
	s.Updated += o.Updated
	s.Ready += o.Ready
	s.Available += o.Available
	s.Outdated += o.Outdated
	s.Messages = append(s.Messages, o.Messages...)
	return s
}
