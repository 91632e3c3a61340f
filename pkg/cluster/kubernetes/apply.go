package kubernetes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/pkg/errors"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"

	"github.com/fluxcd/circles/pkg/cluster"
	fluxmetrics "github.com/fluxcd/circles/pkg/metrics"
)

const (
	annotationPrefix = "circles.fluxcd.io/"
	// We annotate objects with the checksum of what we applied, so an
	// unchanged object is not sent to the API server again.
	checksumAnnotation = annotationPrefix + "sync-checksum"
	// The last applied configuration is used as the original in a
	// three-way merge, so fields dropped from the manifest are removed
	// from the object, and fields set by others are left alone.
	lastAppliedAnnotation = annotationPrefix + "last-applied"
)

// Apply creates or updates each object in turn. Every object is
// attempted; the errors for those that failed are returned together.
func (c *Cluster) Apply(ctx context.Context, objs []*unstructured.Unstructured) error {
	var errs cluster.SyncError
	for _, obj := range objs {
		if err := c.apply(ctx, obj); err != nil {
			errs = append(errs, cluster.ResourceError{ResourceID: cluster.ResourceID(obj), Error: err})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Delete deletes each object in turn, ignoring those already gone.
func (c *Cluster) Delete(ctx context.Context, objs []*unstructured.Unstructured) error {
	var errs cluster.SyncError
	for _, obj := range objs {
		if err := c.delete(ctx, obj); err != nil {
			errs = append(errs, cluster.ResourceError{ResourceID: cluster.ResourceID(obj), Error: err})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Cluster) apply(ctx context.Context, obj *unstructured.Unstructured) (err error) {
	defer func(begin time.Time) {
		applyDuration.With(
			fluxmetrics.LabelKind, obj.GetKind(),
			fluxmetrics.LabelAction, "apply",
			fluxmetrics.LabelSuccess, fmt.Sprint(err == nil),
		).Observe(time.Since(begin).Seconds())
	}(time.Now())

	client, err := c.resourceClient(obj)
	if err != nil {
		return err
	}

	intent, err := obj.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "marshalling object")
	}
	checksum := checksumOf(intent)
	desired := obj.DeepCopy()
	annotations := desired.GetAnnotations()
	if annotations == nil {
		annotations = map[string]string{}
	}
	annotations[checksumAnnotation] = checksum
	annotations[lastAppliedAnnotation] = string(intent)
	desired.SetAnnotations(annotations)

	if err := c.wait(ctx); err != nil {
		return err
	}
	live, err := client.Get(ctx, obj.GetName(), metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		if err := c.wait(ctx); err != nil {
			return err
		}
		_, err = client.Create(ctx, desired, metav1.CreateOptions{})
		return errors.Wrap(err, "creating object")
	case err != nil:
		return errors.Wrap(err, "getting object")
	}

	if live.GetAnnotations()[checksumAnnotation] == checksum {
		return nil
	}

	patch, err := mergePatch(live, desired)
	if err != nil {
		return err
	}
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err = client.Patch(ctx, obj.GetName(), types.MergePatchType, patch, metav1.PatchOptions{})
	return errors.Wrap(err, "patching object")
}

// mergePatch computes a JSON merge patch taking the live object from
// its last applied state to the desired state. Without a last applied
// state, the desired object is itself the patch.
func mergePatch(live, desired *unstructured.Unstructured) ([]byte, error) {
	modified, err := desired.MarshalJSON()
	if err != nil {
		return nil, errors.Wrap(err, "marshalling desired object")
	}
	original, ok := live.GetAnnotations()[lastAppliedAnnotation]
	if !ok {
		return modified, nil
	}
	// The original carries no annotations of ours, so the patch
	// always sets them.
	patch, err := jsonpatch.CreateMergePatch([]byte(original), modified)
	return patch, errors.Wrap(err, "creating merge patch")
}

func (c *Cluster) delete(ctx context.Context, obj *unstructured.Unstructured) (err error) {
	defer func(begin time.Time) {
		applyDuration.With(
			fluxmetrics.LabelKind, obj.GetKind(),
			fluxmetrics.LabelAction, "delete",
			fluxmetrics.LabelSuccess, fmt.Sprint(err == nil),
		).Observe(time.Since(begin).Seconds())
	}(time.Now())

	client, err := c.resourceClient(obj)
	if err != nil {
		return err
	}
	if err := c.wait(ctx); err != nil {
		return err
	}
	background := metav1.DeletePropagationBackground
	err = client.Delete(ctx, obj.GetName(), metav1.DeleteOptions{PropagationPolicy: &background})
	if apierrors.IsNotFound(err) {
		return nil
	}
	return errors.Wrap(err, "deleting object")
}

func checksumOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
