package manifest

import (
	"bytes"
	"encoding/json"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Set is a collection of built objects. Objects are listed so that
// anything referred to comes before what refers to it: services and
// workloads, then destination rules, then virtual services.
type Set struct {
	Services         []corev1.Service
	Deployments      []appsv1.Deployment
	DestinationRules []DestinationRule
	VirtualServices  []VirtualService
}

func (s *Set) Len() int {
	return len(s.Services) + len(s.Deployments) + len(s.DestinationRules) + len(s.VirtualServices)
}

func (s *Set) each(fn func(interface{}) error) error {
	for i := range s.Services {
		if err := fn(&s.Services[i]); err != nil {
			return err
		}
	}
	for i := range s.Deployments {
		if err := fn(&s.Deployments[i]); err != nil {
			return err
		}
	}
	for i := range s.DestinationRules {
		if err := fn(&s.DestinationRules[i]); err != nil {
			return err
		}
	}
	for i := range s.VirtualServices {
		if err := fn(&s.VirtualServices[i]); err != nil {
			return err
		}
	}
	return nil
}

// Objects converts the set into unstructured objects, ready to be
// applied with a dynamic client.
func (s *Set) Objects() ([]*unstructured.Unstructured, error) {
	var objs []*unstructured.Unstructured
	err := s.each(func(o interface{}) error {
		u, err := toUnstructured(o)
		if err != nil {
			return err
		}
		objs = append(objs, u)
		return nil
	})
	return objs, err
}

// Bytes renders the set as a multi-document YAML stream.
func (s *Set) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	err := s.each(func(o interface{}) error {
		b, err := yaml.Marshal(o)
		if err != nil {
			return errors.Wrap(err, "marshalling manifest to YAML")
		}
		buf.WriteString("---\n")
		buf.Write(b)
		return nil
	})
	return buf.Bytes(), err
}

func toUnstructured(o interface{}) (*unstructured.Unstructured, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling manifest to JSON")
	}
	u := &unstructured.Unstructured{}
	if err := u.UnmarshalJSON(b); err != nil {
		return nil, errors.Wrap(err, "converting manifest to unstructured")
	}
	// Fields the server populates.
	unstructured.RemoveNestedField(u.Object, "metadata", "creationTimestamp")
	unstructured.RemoveNestedField(u.Object, "spec", "template", "metadata", "creationTimestamp")
	unstructured.RemoveNestedField(u.Object, "status")
	return u, nil
}
