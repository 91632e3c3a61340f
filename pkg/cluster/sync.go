package cluster

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	fluxerr "github.com/fluxcd/circles/pkg/errors"
)

// SyncSet groups the set of resources to be synced. It must represent
// the complete set of resources, as garbage collection will assume
// missing resources should be deleted. The name is used to
// distinguish the resources from a set from other resources -- e.g.,
// cluster resources not marked as belonging to a set will not be
// deleted by garbage collection.
type SyncSet struct {
	Name      string
	Namespace string
	Resources []*unstructured.Unstructured
}

// ResourceID identifies an object in error messages and logs, as
// <namespace>:<kind>/<name>.
func ResourceID(obj *unstructured.Unstructured) string {
	return fmt.Sprintf("%s:%s/%s", obj.GetNamespace(), strings.ToLower(obj.GetKind()), obj.GetName())
}

type ResourceError struct {
	ResourceID string
	Error      error
}

// SyncError collects the errors for each resource that could not be
// applied or deleted.
type SyncError []ResourceError

func (err SyncError) Error() string {
	var errs []string
	for _, e := range err {
		errs = append(errs, e.ResourceID+": "+e.Error.Error())
	}
	return strings.Join(errs, "; ")
}

// ApplyError is returned when the cluster rejects manifests, or
// cannot be reached to apply them.
func ApplyError(err error) *fluxerr.Error {
	return &fluxerr.Error{
		Type: fluxerr.Server,
		Err:  err,
		Help: `Applying manifests to the cluster failed: ` + err.Error() + `

Check that the cluster is reachable and that the service account has
permission to manage Deployments, Services, VirtualServices and
DestinationRules in the namespace.
`,
	}
}
