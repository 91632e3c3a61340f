package cluster

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	fluxerr "github.com/fluxcd/circles/pkg/errors"
)

func TestNamespaceFilter(t *testing.T) {
	test := func(f NamespaceFilter, ns string, expected bool) {
		if expected {
			t.Run("allows "+ns, func(t *testing.T) {
				assert.True(t, f.Allows(ns))
			})
		} else {
			t.Run("denies "+ns, func(t *testing.T) {
				assert.False(t, f.Allows(ns))
			})
		}
	}

	denyOnly := NamespaceFilter{Deny: []string{"kube-*"}}
	for _, ns := range []string{"", "default", "shop", "my-kube-thing"} {
		test(denyOnly, ns, true)
	}
	test(denyOnly, "kube-system", false)

	both := NamespaceFilter{
		Allow: []string{"team-*", "shop"},
		Deny:  []string{"team-legacy*"},
	}
	for _, ns := range []string{"team-a", "shop"} {
		test(both, ns, true)
	}
	for _, ns := range []string{"team-legacy-1", "shopping", "default"} {
		test(both, ns, false)
	}
}

func TestRolloutStatus(t *testing.T) {
	assert.False(t, RolloutStatus{}.Complete(), "no workloads")

	ready := RolloutStatus{Workloads: 1, Desired: 2, Updated: 2, Ready: 2, Available: 2}
	assert.True(t, ready.Complete())

	progressing := RolloutStatus{Workloads: 1, Desired: 2, Updated: 2, Ready: 1, Available: 1}
	sum := ready.Add(progressing)
	assert.False(t, sum.Complete())
	assert.Equal(t, 2, sum.Workloads)
	assert.Equal(t, int32(4), sum.Desired)

	outdated := ready
	outdated.Outdated = 1
	assert.False(t, outdated.Complete())

	stuck := ready.Add(RolloutStatus{Messages: []string{"deadline exceeded"}})
	assert.True(t, stuck.Stuck())
}

func TestSyncError(t *testing.T) {
	obj := &unstructured.Unstructured{}
	obj.SetKind("VirtualService")
	obj.SetNamespace("shop")
	obj.SetName("svc")
	assert.Equal(t, "shop:virtualservice/svc", ResourceID(obj))

	err := SyncError{
		{ResourceID: "shop:virtualservice/svc", Error: errors.New("denied")},
		{ResourceID: "shop:destinationrule/svc", Error: errors.New("timeout")},
	}
	assert.Equal(t, "shop:virtualservice/svc: denied; shop:destinationrule/svc: timeout", err.Error())

	wrapped := ApplyError(err)
	assert.Equal(t, fluxerr.Server, wrapped.Type)
	assert.Equal(t, err, errors.Cause(wrapped))
}
