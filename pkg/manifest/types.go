package manifest

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// The subset of the Istio networking API needed to split traffic
// between circles.

const (
	IstioAPIVersion     = "networking.istio.io/v1beta1"
	VirtualServiceKind  = "VirtualService"
	DestinationRuleKind = "DestinationRule"
)

type VirtualService struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata"`
	Spec              VirtualServiceSpec `json:"spec"`
}

type VirtualServiceSpec struct {
	Gateways []string    `json:"gateways,omitempty"`
	Hosts    []string    `json:"hosts"`
	HTTP     []HTTPRoute `json:"http"`
}

// HTTPRoute is a route with optional match conditions. Conditions in
// Match are alternatives: any one matching selects the route.
type HTTPRoute struct {
	Match []HTTPMatchRequest `json:"match,omitempty"`
	Route []RouteDestination `json:"route"`
}

type HTTPMatchRequest struct {
	Headers map[string]StringMatch `json:"headers"`
}

type StringMatch struct {
	Exact string `json:"exact,omitempty"`
	Regex string `json:"regex,omitempty"`
}

type RouteDestination struct {
	Destination Destination `json:"destination"`
	Headers     *Headers    `json:"headers,omitempty"`
}

type Destination struct {
	Host   string `json:"host"`
	Subset string `json:"subset"`
}

type Headers struct {
	Request  *HeaderOperations `json:"request,omitempty"`
	Response *HeaderOperations `json:"response,omitempty"`
}

type HeaderOperations struct {
	Set map[string]string `json:"set,omitempty"`
}

type DestinationRule struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata"`
	Spec              DestinationRuleSpec `json:"spec"`
}

type DestinationRuleSpec struct {
	Host    string   `json:"host"`
	Subsets []Subset `json:"subsets"`
}

type Subset struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels"`
}

// Fallback returns the route without match conditions, if there is
// one.
func (vs VirtualService) Fallback() (HTTPRoute, bool) {
	for _, r := range vs.Spec.HTTP {
		if len(r.Match) == 0 {
			return r, true
		}
	}
	return HTTPRoute{}, false
}

// Matched returns the routes that have match conditions, in order.
func (vs VirtualService) Matched() []HTTPRoute {
	var routes []HTTPRoute
	for _, r := range vs.Spec.HTTP {
		if len(r.Match) > 0 {
			routes = append(routes, r)
		}
	}
	return routes
}
