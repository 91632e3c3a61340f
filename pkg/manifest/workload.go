package manifest

import (
	"fmt"
	"sort"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/fluxcd/circles/pkg/circle"
)

const (
	LabelApp     = "app"
	LabelVersion = "version"

	DefaultContainerPort = 8080
	DefaultServicePort   = 80
)

// WorkloadInput describes the workloads for one deployment.
type WorkloadInput struct {
	Deployment circle.Deployment
	// Replicas per component; one if zero.
	Replicas      int32
	ContainerPort int32
	Labels        map[string]string
}

// Workloads returns a Deployment for each of the deployment's
// components, and a Service for each component name. The Services are
// shared by every circle running the component; routing picks the
// pods by their subset labels.
func Workloads(in WorkloadInput) (*Set, error) {
	d := in.Deployment
	if len(d.Components) == 0 {
		return nil, InvalidInputError(string(d.CircleID), ErrNoComponents)
	}
	replicas := in.Replicas
	if replicas <= 0 {
		replicas = 1
	}
	port := in.ContainerPort
	if port <= 0 {
		port = DefaultContainerPort
	}

	components := append([]circle.Component(nil), d.Components...)
	sort.SliceStable(components, func(i, j int) bool { return components[i].Name < components[j].Name })

	set := &Set{}
	services := map[string]bool{}
	for _, c := range components {
		w, err := workload(d, c, replicas, port, in.Labels)
		if err != nil {
			return nil, err
		}
		set.Deployments = append(set.Deployments, w)
		if !services[c.Name] {
			services[c.Name] = true
			svc, err := service(d.Namespace, c.Name, port, in.Labels)
			if err != nil {
				return nil, err
			}
			set.Services = append(set.Services, svc)
		}
	}
	return set, nil
}

// WorkloadName is the name of the Deployment running a component for
// a circle.
func WorkloadName(component string, circleID circle.CircleID) string {
	return strings.ToLower(fmt.Sprintf("%s-%s", component, circleID))
}

// WorkloadSelector selects the pods belonging to a deployment.
func WorkloadSelector(id circle.DeploymentID) map[string]string {
	return map[string]string{LabelDeploymentID: string(id)}
}

// PodLabels are the labels on a component's pods. They include
// everything a destination rule subset selects on.
func PodLabels(d circle.Deployment, c circle.Component) map[string]string {
	return map[string]string{
		LabelApp:          c.Name,
		LabelVersion:      c.ImageTag,
		LabelComponent:    c.Name,
		LabelTag:          c.ImageTag,
		LabelCircleID:     string(d.CircleID),
		LabelDeploymentID: string(d.ID),
	}
}

func workload(d circle.Deployment, c circle.Component, replicas, port int32, extra map[string]string) (appsv1.Deployment, error) {
	podLabels := PodLabels(d, c)
	labels, err := mergeLabels(map[string]string{LabelManagedBy: ManagedBy}, podLabels, extra)
	if err != nil {
		return appsv1.Deployment{}, err
	}

	return appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      WorkloadName(c.Name, d.CircleID),
			Namespace: d.Namespace,
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{
				LabelApp:          c.Name,
				LabelCircleID:     string(d.CircleID),
				LabelDeploymentID: string(d.ID),
			}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: podLabels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:  c.Name,
						Image: c.Image(),
						Ports: []corev1.ContainerPort{{Name: "http", ContainerPort: port}},
					}},
				},
			},
		},
	}, nil
}

func service(namespace, name string, port int32, extra map[string]string) (corev1.Service, error) {
	labels, err := mergeLabels(map[string]string{LabelManagedBy: ManagedBy, LabelApp: name}, extra)
	if err != nil {
		return corev1.Service{}, err
	}
	return corev1.Service{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    labels,
		},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{LabelApp: name},
			Ports: []corev1.ServicePort{{
				Name:       "http",
				Port:       DefaultServicePort,
				TargetPort: intstr.FromInt32(port),
			}},
		},
	}, nil
}
