package kubernetes

import (
	"context"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apiapps "k8s.io/api/apps/v1"
	apiv1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/fluxcd/circles/pkg/cluster"
	fluxerr "github.com/fluxcd/circles/pkg/errors"
)

func setup(t *testing.T, objs ...runtime.Object) (*Cluster, *dynamicfake.FakeDynamicClient, *fake.Clientset) {
	listKinds := map[schema.GroupVersionResource]string{
		resourceKinds["deployment"]:      "DeploymentList",
		resourceKinds["service"]:         "ServiceList",
		resourceKinds["destinationrule"]: "DestinationRuleList",
		resourceKinds["virtualservice"]:  "VirtualServiceList",
	}
	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(), listKinds)
	core := fake.NewSimpleClientset(objs...)
	c := NewCluster(dyn, core, cluster.NamespaceFilter{Deny: []string{"kube-*"}}, nil, log.NewNopLogger())
	return c, dyn, core
}

func virtualService(namespace, name, subset string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "networking.istio.io/v1beta1",
		"kind":       "VirtualService",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": namespace,
			"labels":    map[string]interface{}{"component": name},
		},
		"spec": map[string]interface{}{
			"hosts": []interface{}{name},
			"http": []interface{}{
				map[string]interface{}{
					"route": []interface{}{
						map[string]interface{}{
							"destination": map[string]interface{}{"host": name, "subset": subset},
						},
					},
				},
			},
		},
	}}
}

func verbs(dyn *dynamicfake.FakeDynamicClient) []string {
	var vs []string
	for _, a := range dyn.Actions() {
		vs = append(vs, a.GetVerb())
	}
	return vs
}

func get(t *testing.T, dyn *dynamicfake.FakeDynamicClient, namespace, name string) *unstructured.Unstructured {
	obj, err := dyn.Resource(resourceKinds["virtualservice"]).Namespace(namespace).Get(context.Background(), name, metav1.GetOptions{})
	require.NoError(t, err)
	return obj
}

func TestApplyCreatesThenSkipsUnchanged(t *testing.T) {
	c, dyn, _ := setup(t)
	ctx := context.Background()
	vs := virtualService("shop", "svc", "svc-v1")

	require.NoError(t, c.Apply(ctx, []*unstructured.Unstructured{vs}))
	assert.Equal(t, []string{"get", "create"}, verbs(dyn))

	live := get(t, dyn, "shop", "svc")
	assert.NotEmpty(t, live.GetAnnotations()[checksumAnnotation])
	assert.NotEmpty(t, live.GetAnnotations()[lastAppliedAnnotation])

	dyn.ClearActions()
	require.NoError(t, c.Apply(ctx, []*unstructured.Unstructured{vs}))
	assert.Equal(t, []string{"get"}, verbs(dyn))
}

func TestApplyPatchesChanged(t *testing.T) {
	c, dyn, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, c.Apply(ctx, []*unstructured.Unstructured{virtualService("shop", "svc", "svc-v1")}))

	dyn.ClearActions()
	changed := virtualService("shop", "svc", "svc-v2")
	changed.SetLabels(nil)
	require.NoError(t, c.Apply(ctx, []*unstructured.Unstructured{changed}))
	assert.Equal(t, []string{"get", "patch"}, verbs(dyn))

	live := get(t, dyn, "shop", "svc")
	routes, _, _ := unstructured.NestedSlice(live.Object, "spec", "http")
	require.Len(t, routes, 1)
	dest, _, _ := unstructured.NestedSlice(routes[0].(map[string]interface{}), "route")
	assert.Equal(t, "svc-v2", dest[0].(map[string]interface{})["destination"].(map[string]interface{})["subset"])
	assert.Empty(t, live.GetLabels()["component"], "label dropped from the manifest is removed")
}

func TestApplyRejectsDeniedNamespaceAndUnknownKinds(t *testing.T) {
	c, dyn, _ := setup(t)
	ctx := context.Background()

	err := c.Apply(ctx, []*unstructured.Unstructured{virtualService("kube-system", "svc", "svc-v1")})
	require.Error(t, err)
	syncErr, ok := err.(cluster.SyncError)
	require.True(t, ok)
	require.Len(t, syncErr, 1)
	assert.Equal(t, "kube-system:virtualservice/svc", syncErr[0].ResourceID)
	assert.True(t, fluxerr.IsUser(syncErr[0].Error))

	cm := &unstructured.Unstructured{}
	cm.SetAPIVersion("v1")
	cm.SetKind("ConfigMap")
	cm.SetNamespace("shop")
	cm.SetName("config")
	err = c.Apply(ctx, []*unstructured.Unstructured{cm})
	require.Error(t, err)
	assert.Empty(t, dyn.Actions())
}

func TestSyncGarbageCollects(t *testing.T) {
	c, dyn, _ := setup(t)
	ctx := context.Background()

	a := virtualService("shop", "a", "a-v1")
	b := virtualService("shop", "b", "b-v1")
	require.NoError(t, c.Sync(ctx, cluster.SyncSet{Name: "shop", Namespace: "shop", Resources: []*unstructured.Unstructured{a, b}}))

	live := get(t, dyn, "shop", "b")
	assert.Equal(t, "shop", live.GetLabels()[syncSetLabel])
	assert.True(t, allowedForGC(live, "shop"))

	// an object with a copied set label, but no matching mark, is left alone
	copied := virtualService("shop", "copied", "c-v1")
	copied.SetLabels(map[string]string{syncSetLabel: "shop", gcMarkLabel: "sha256.bogus"})
	require.NoError(t, c.Apply(ctx, []*unstructured.Unstructured{copied}))

	require.NoError(t, c.Sync(ctx, cluster.SyncSet{Name: "shop", Namespace: "shop", Resources: []*unstructured.Unstructured{a}}))

	vsClient := dyn.Resource(resourceKinds["virtualservice"]).Namespace("shop")
	list, err := vsClient.List(ctx, metav1.ListOptions{})
	require.NoError(t, err)
	var names []string
	for _, item := range list.Items {
		names = append(names, item.GetName())
	}
	assert.ElementsMatch(t, []string{"a", "copied"}, names)

	// an empty set removes everything it owns
	require.NoError(t, c.Sync(ctx, cluster.SyncSet{Name: "shop", Namespace: "shop"}))
	list, err = vsClient.List(ctx, metav1.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "copied", list.Items[0].GetName())
}

func TestStatus(t *testing.T) {
	two := int32(2)
	labels := map[string]string{"deploymentId": "d1"}
	ready := &apiapps.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "api-c1", Namespace: "shop", Labels: labels, Generation: 1},
		Spec:       apiapps.DeploymentSpec{Replicas: &two},
		Status: apiapps.DeploymentStatus{
			ObservedGeneration: 1,
			Replicas:           2, UpdatedReplicas: 2, ReadyReplicas: 2, AvailableReplicas: 2,
		},
	}
	stuck := &apiapps.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "web-c1", Namespace: "shop", Labels: labels, Generation: 1},
		Spec:       apiapps.DeploymentSpec{Replicas: &two},
		Status: apiapps.DeploymentStatus{
			ObservedGeneration: 1,
			Replicas:           2, UpdatedReplicas: 2,
			Conditions: []apiapps.DeploymentCondition{{
				Type:    apiapps.DeploymentProgressing,
				Status:  apiv1.ConditionFalse,
				Message: "progress deadline exceeded",
			}},
		},
	}
	other := &apiapps.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "api-c2", Namespace: "shop", Labels: map[string]string{"deploymentId": "d2"}},
	}
	c, _, _ := setup(t, ready, stuck, other)

	status, err := c.Status(context.Background(), "shop", labels)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Workloads)
	assert.Equal(t, int32(4), status.Desired)
	assert.Equal(t, int32(2), status.Ready)
	assert.False(t, status.Complete())
	assert.Equal(t, []string{"web-c1: progress deadline exceeded"}, status.Messages)

	status, err = c.Status(context.Background(), "shop", map[string]string{"deploymentId": "nope"})
	require.NoError(t, err)
	assert.False(t, status.Complete())
	assert.Zero(t, status.Workloads)

	_, err = c.Status(context.Background(), "kube-system", labels)
	assert.True(t, fluxerr.IsUser(err))
}
