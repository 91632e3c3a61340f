// Package manifest turns circles and their components into the
// Kubernetes objects that run and route them. Everything here is a
// pure function of its input: the same input always gives the same
// objects, in the same order.
package manifest

import (
	"fmt"
	"sort"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/fluxcd/circles/pkg/circle"
)

const (
	CircleHeader = "x-circle-id"
	SourceHeader = "x-circle-source"

	LabelComponent    = "component"
	LabelTag          = "tag"
	LabelCircleID     = "circleId"
	LabelDeploymentID = "deploymentId"

	LabelManagedBy = "app.kubernetes.io/managed-by"
	ManagedBy      = "circled"
)

// ComponentRef names one version of a component running in a circle.
type ComponentRef struct {
	Name    string
	Tag     string
	Host    string // additional host the component is reachable on
	Gateway string
}

// CircleSpec is one circle's entry in a routing build.
type CircleSpec struct {
	ID           circle.CircleID
	DeploymentID circle.DeploymentID
	Default      bool
	Components   []ComponentRef
}

// Input is everything needed to build the routing for one circle
// group.
type Input struct {
	Namespace string
	// Gateways are added to every virtual service, along with any
	// gateway named by a component.
	Gateways []string
	// Labels are added to every object, without overriding those
	// the builder sets itself.
	Labels  map[string]string
	Circles []CircleSpec
}

// Build computes the virtual services and destination rules that
// route traffic between the circles given. There is one of each per
// component name. Each non-default circle gets a route matching its
// id in a cookie or header; unmatched traffic goes to the default
// circle. An error is returned, and no manifests, if the input has
// no default circle or a circle without components.
func Build(in Input) (*Set, error) {
	circles, err := validate(in.Circles)
	if err != nil {
		return nil, err
	}

	byComponent := map[string][]placement{}
	for _, c := range circles {
		for _, ref := range c.Components {
			byComponent[ref.Name] = append(byComponent[ref.Name], placement{circle: c, ref: ref})
		}
	}
	var names []string
	for name := range byComponent {
		names = append(names, name)
	}
	sort.Strings(names)

	set := &Set{}
	for _, name := range names {
		placements := byComponent[name]
		assignSubsets(placements)
		meta, err := objectMeta(name, in.Namespace, in.Labels)
		if err != nil {
			return nil, err
		}
		set.DestinationRules = append(set.DestinationRules, destinationRule(name, meta, placements))
		set.VirtualServices = append(set.VirtualServices, virtualService(name, meta, in.Gateways, placements))
	}
	return set, nil
}

// placement is a component as it appears in one circle.
type placement struct {
	circle CircleSpec
	ref    ComponentRef
	subset string
}

// validate checks the circles and returns them ordered by id, with
// components ordered by name.
func validate(in []CircleSpec) ([]CircleSpec, error) {
	var defaults int
	seen := map[circle.CircleID]bool{}
	circles := make([]CircleSpec, len(in))
	for i, c := range in {
		if seen[c.ID] {
			return nil, InvalidInputError(string(c.ID), ErrDuplicateCircle)
		}
		seen[c.ID] = true
		if len(c.Components) == 0 {
			return nil, InvalidInputError(string(c.ID), ErrNoComponents)
		}
		if c.Default {
			defaults++
		}
		refs := append([]ComponentRef(nil), c.Components...)
		sort.SliceStable(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
		c.Components = refs
		circles[i] = c
	}
	switch {
	case defaults == 0:
		return nil, InvalidInputError("", ErrNoDefaultCircle)
	case defaults > 1:
		return nil, InvalidInputError("", ErrMultipleDefaultCircle)
	}
	sort.Slice(circles, func(i, j int) bool { return circles[i].ID < circles[j].ID })
	return circles, nil
}

// assignSubsets names the subset for each placement, `<component>-<tag>`.
// The default circle claims its name first; a non-default circle
// whose name is taken gets its circle id appended.
func assignSubsets(placements []placement) {
	taken := map[string]bool{}
	claim := func(p *placement) {
		name := fmt.Sprintf("%s-%s", p.ref.Name, p.ref.Tag)
		if taken[name] {
			name = fmt.Sprintf("%s-%s", name, p.circle.ID)
		}
		taken[name] = true
		p.subset = name
	}
	for i := range placements {
		if placements[i].circle.Default {
			claim(&placements[i])
		}
	}
	for i := range placements {
		if !placements[i].circle.Default {
			claim(&placements[i])
		}
	}
}

func objectMeta(name, namespace string, extra map[string]string) (metav1.ObjectMeta, error) {
	labels, err := mergeLabels(map[string]string{
		LabelManagedBy: ManagedBy,
		LabelComponent: name,
	}, extra)
	if err != nil {
		return metav1.ObjectMeta{}, err
	}
	return metav1.ObjectMeta{
		Name:      name,
		Namespace: namespace,
		Labels:    labels,
	}, nil
}

// mergeLabels adds each of extra to labels in turn, never replacing a
// label already there.
func mergeLabels(labels map[string]string, extra ...map[string]string) (map[string]string, error) {
	for _, e := range extra {
		if err := mergo.Merge(&labels, e); err != nil {
			return nil, errors.Wrap(err, "merging labels")
		}
	}
	return labels, nil
}

func destinationRule(name string, meta metav1.ObjectMeta, placements []placement) DestinationRule {
	dr := DestinationRule{
		TypeMeta:   metav1.TypeMeta{APIVersion: IstioAPIVersion, Kind: DestinationRuleKind},
		ObjectMeta: meta,
		Spec:       DestinationRuleSpec{Host: name},
	}
	for _, p := range ordered(placements) {
		dr.Spec.Subsets = append(dr.Spec.Subsets, Subset{
			Name: p.subset,
			Labels: map[string]string{
				LabelComponent:    p.ref.Name,
				LabelTag:          p.ref.Tag,
				LabelCircleID:     string(p.circle.ID),
				LabelDeploymentID: string(p.circle.DeploymentID),
			},
		})
	}
	return dr
}

func virtualService(name string, meta metav1.ObjectMeta, gateways []string, placements []placement) VirtualService {
	vs := VirtualService{
		TypeMeta:   metav1.TypeMeta{APIVersion: IstioAPIVersion, Kind: VirtualServiceKind},
		ObjectMeta: *meta.DeepCopy(),
		Spec: VirtualServiceSpec{
			Gateways: uniqueSorted(gateways, func(add func(string)) {
				for _, p := range placements {
					add(p.ref.Gateway)
				}
			}),
			Hosts: uniqueSorted([]string{name}, func(add func(string)) {
				for _, p := range placements {
					add(p.ref.Host)
				}
			}),
		},
	}

	var fallback *HTTPRoute
	for _, p := range ordered(placements) {
		dest := routeTo(name, p)
		if p.circle.Default {
			fallback = &HTTPRoute{Route: []RouteDestination{dest}}
			continue
		}
		id := string(p.circle.ID)
		vs.Spec.HTTP = append(vs.Spec.HTTP, HTTPRoute{
			Match: []HTTPMatchRequest{
				{Headers: map[string]StringMatch{"cookie": {Regex: fmt.Sprintf(".*%s=%s.*", CircleHeader, id)}}},
				{Headers: map[string]StringMatch{CircleHeader: {Exact: id}}},
			},
			Route: []RouteDestination{dest},
		})
	}
	// A component the default circle does not run has no fallback;
	// unmatched requests for it are not routed.
	if fallback != nil {
		vs.Spec.HTTP = append(vs.Spec.HTTP, *fallback)
	}
	return vs
}

func routeTo(host string, p placement) RouteDestination {
	source := map[string]string{SourceHeader: string(p.circle.ID)}
	return RouteDestination{
		Destination: Destination{Host: host, Subset: p.subset},
		Headers: &Headers{
			Request:  &HeaderOperations{Set: source},
			Response: &HeaderOperations{Set: map[string]string{SourceHeader: string(p.circle.ID)}},
		},
	}
}

// ordered returns the placements with the default circle first, then
// the rest by circle id.
func ordered(placements []placement) []placement {
	out := append([]placement(nil), placements...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].circle.Default != out[j].circle.Default {
			return out[i].circle.Default
		}
		return out[i].circle.ID < out[j].circle.ID
	})
	return out
}

func uniqueSorted(initial []string, more func(add func(string))) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	for _, s := range initial {
		add(s)
	}
	more(add)
	sort.Strings(out)
	return out
}
