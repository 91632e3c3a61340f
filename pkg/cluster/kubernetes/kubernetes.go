package kubernetes

import (
	"context"
	"strings"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	k8sclient "k8s.io/client-go/kubernetes"

	"github.com/fluxcd/circles/pkg/cluster"
)

// resourceKinds are the kinds the gateway knows how to manage, keyed
// by lower-cased kind.
var resourceKinds = map[string]schema.GroupVersionResource{
	"deployment":      {Group: "apps", Version: "v1", Resource: "deployments"},
	"service":         {Group: "", Version: "v1", Resource: "services"},
	"destinationrule": {Group: "networking.istio.io", Version: "v1beta1", Resource: "destinationrules"},
	"virtualservice":  {Group: "networking.istio.io", Version: "v1beta1", Resource: "virtualservices"},
}

// Cluster is a handle to a Kubernetes API server.
// (Typically, this code is deployed into the same cluster.)
type Cluster struct {
	dynamic dynamic.Interface
	core    k8sclient.Interface
	logger  log.Logger
	limiter *rate.Limiter

	namespaces     cluster.NamespaceFilter
	loggedDeniedNS map[string]bool // to keep track of whether we've logged a denied namespace
	muLoggedDenied sync.Mutex
}

var _ cluster.Gateway = &Cluster{}

// NewCluster returns a usable cluster. A nil limiter means calls to
// the API server are not rate limited.
func NewCluster(dyn dynamic.Interface, core k8sclient.Interface, namespaces cluster.NamespaceFilter, limiter *rate.Limiter, logger log.Logger) *Cluster {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Cluster{
		dynamic:        dyn,
		core:           core,
		logger:         logger,
		limiter:        limiter,
		namespaces:     namespaces,
		loggedDeniedNS: map[string]bool{},
	}
}

func (c *Cluster) Ping() error {
	_, err := c.core.Discovery().ServerVersion()
	return err
}

func (c *Cluster) IsAllowedNamespace(namespace string) bool {
	if c.namespaces.Allows(namespace) {
		return true
	}
	c.muLoggedDenied.Lock()
	defer c.muLoggedDenied.Unlock()
	if !c.loggedDeniedNS[namespace] {
		c.logger.Log("warning", "namespace is not allowed", "namespace", namespace)
		c.loggedDeniedNS[namespace] = true
	}
	return false
}

// resourceClient returns the dynamic client for the object's kind, in
// its namespace.
func (c *Cluster) resourceClient(obj *unstructured.Unstructured) (dynamic.ResourceInterface, error) {
	gvk := obj.GroupVersionKind()
	gvr, ok := resourceKinds[strings.ToLower(gvk.Kind)]
	if !ok || gvr.Group != gvk.Group {
		return nil, UnsupportedKindError(gvk.String())
	}
	ns := obj.GetNamespace()
	if !c.IsAllowedNamespace(ns) {
		return nil, NamespaceNotAllowedError(ns)
	}
	return c.dynamic.Resource(gvr).Namespace(ns), nil
}

func (c *Cluster) wait(ctx context.Context) error {
	return errors.Wrap(c.limiter.Wait(ctx), "waiting for API rate limiter")
}
