package kubernetes

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"sort"

	"github.com/go-kit/kit/log"
	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"

	"github.com/fluxcd/circles/pkg/cluster"
	fluxmetrics "github.com/fluxcd/circles/pkg/metrics"
)

const (
	// We use mark-and-sweep garbage collection to delete cluster objects.
	// Marking is done by adding labels when creating and updating the objects.
	// Sweeping is done by comparing marked cluster objects with the sync set.
	syncSetLabel = annotationPrefix + "sync-set"
	gcMarkLabel  = annotationPrefix + "sync-gc-mark"
)

// Sync applies every resource in the set, then deletes the resources
// previously applied under the set's name that are no longer in it.
// Nothing is deleted if any resource failed to apply.
func (c *Cluster) Sync(ctx context.Context, set cluster.SyncSet) error {
	logger := log.With(c.logger, "sync-set", set.Name)

	keep := map[string]bool{}
	var errs cluster.SyncError
	for _, res := range set.Resources {
		id := cluster.ResourceID(res)
		keep[id] = true
		marked := withSyncMetadata(res, set.Name)
		if err := c.apply(ctx, marked); err != nil {
			logger.Log("resource", id, "err", err)
			errs = append(errs, cluster.ResourceError{ResourceID: id, Error: err})
		}
	}
	if len(errs) > 0 {
		return errs
	}

	orphans, err := c.marked(ctx, set)
	if err != nil {
		return errors.Wrap(err, "listing resources for garbage collection")
	}
	for _, obj := range orphans {
		id := cluster.ResourceID(obj)
		if keep[id] || !allowedForGC(obj, set.Name) {
			continue
		}
		if err := c.delete(ctx, obj); err != nil {
			logger.Log("gc", id, "err", err)
			errs = append(errs, cluster.ResourceError{ResourceID: id, Error: err})
			continue
		}
		garbageCollected.With(fluxmetrics.LabelKind, obj.GetKind()).Add(1)
		logger.Log("gc", id, "info", "deleted, no longer in sync set")
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// marked lists every object of a known kind in the set's namespace
// that carries the set's label, ordered by resource ID.
func (c *Cluster) marked(ctx context.Context, set cluster.SyncSet) ([]*unstructured.Unstructured, error) {
	if !c.IsAllowedNamespace(set.Namespace) {
		return nil, NamespaceNotAllowedError(set.Namespace)
	}
	selector := labels.SelectorFromSet(labels.Set{syncSetLabel: set.Name}).String()
	var kinds []string
	for kind := range resourceKinds {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	var objs []*unstructured.Unstructured
	for _, kind := range kinds {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		list, err := c.dynamic.Resource(resourceKinds[kind]).Namespace(set.Namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
		if err != nil {
			return nil, errors.Wrapf(err, "listing %s", kind)
		}
		for i := range list.Items {
			objs = append(objs, &list.Items[i])
		}
	}
	sort.Slice(objs, func(i, j int) bool { return cluster.ResourceID(objs[i]) < cluster.ResourceID(objs[j]) })
	return objs, nil
}

// withSyncMetadata returns a copy of the object labelled as belonging
// to the set.
func withSyncMetadata(obj *unstructured.Unstructured, setName string) *unstructured.Unstructured {
	marked := obj.DeepCopy()
	if setName == "" {
		return marked
	}
	mixin := map[string]string{
		syncSetLabel: setName,
		gcMarkLabel:  makeGCMark(setName, cluster.ResourceID(obj)),
	}
	existing := marked.GetLabels()
	if existing == nil {
		existing = map[string]string{}
	}
	mergo.Merge(&existing, mixin, mergo.WithOverride)
	marked.SetLabels(existing)
	return marked
}

func allowedForGC(obj *unstructured.Unstructured, setName string) bool {
	return obj.GetLabels()[gcMarkLabel] == makeGCMark(setName, cluster.ResourceID(obj))
}

func makeGCMark(syncSetName, resourceID string) string {
	hasher := sha256.New()
	hasher.Write([]byte(syncSetName))
	// To prevent deleting objects with copied labels
	// an object-specific mark is created (by including its identifier).
	hasher.Write([]byte(resourceID))
	// The prefix is to make sure it's a valid (Kubernetes) label value.
	return "sha256." + base64.RawURLEncoding.EncodeToString(hasher.Sum(nil))
}
