package mock

import (
	"context"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/fluxcd/circles/pkg/cluster"
)

// Mock is a cluster.Gateway whose behaviour is given by its Func
// fields. A nil Func succeeds and does nothing.
type Mock struct {
	SyncFunc               func(ctx context.Context, set cluster.SyncSet) error
	ApplyFunc              func(ctx context.Context, objs []*unstructured.Unstructured) error
	DeleteFunc             func(ctx context.Context, objs []*unstructured.Unstructured) error
	StatusFunc             func(ctx context.Context, namespace string, selector map[string]string) (cluster.RolloutStatus, error)
	IsAllowedNamespaceFunc func(namespace string) bool
	PingFunc               func() error
}

var _ cluster.Gateway = &Mock{}

func (m *Mock) Sync(ctx context.Context, set cluster.SyncSet) error {
	if m.SyncFunc == nil {
		return nil
	}
	return m.SyncFunc(ctx, set)
}

func (m *Mock) Apply(ctx context.Context, objs []*unstructured.Unstructured) error {
	if m.ApplyFunc == nil {
		return nil
	}
	return m.ApplyFunc(ctx, objs)
}

func (m *Mock) Delete(ctx context.Context, objs []*unstructured.Unstructured) error {
	if m.DeleteFunc == nil {
		return nil
	}
	return m.DeleteFunc(ctx, objs)
}

func (m *Mock) Status(ctx context.Context, namespace string, selector map[string]string) (cluster.RolloutStatus, error) {
	if m.StatusFunc == nil {
		return cluster.RolloutStatus{}, nil
	}
	return m.StatusFunc(ctx, namespace, selector)
}

func (m *Mock) IsAllowedNamespace(namespace string) bool {
	if m.IsAllowedNamespaceFunc == nil {
		return true
	}
	return m.IsAllowedNamespaceFunc(namespace)
}

func (m *Mock) Ping() error {
	if m.PingFunc == nil {
		return nil
	}
	return m.PingFunc()
}
