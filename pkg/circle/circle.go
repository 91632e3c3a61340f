// Package circle holds the domain types shared by the deployment
// pipeline: deployments bound to circles, their components, the
// module catalog and the executions that track each attempt.
package circle

import (
	"time"

	"github.com/google/uuid"
)

type (
	DeploymentID string
	ExecutionID  string
	CircleID     string
	ModuleID     string
	ComponentID  string
)

// NewDeploymentID returns a fresh random deployment ID.
func NewDeploymentID() DeploymentID {
	return DeploymentID(uuid.New().String())
}

func NewExecutionID() ExecutionID {
	return ExecutionID(uuid.New().String())
}

// Circle is a named traffic segment. Whether it is active is derived
// from its deployments, so it is not stored.
type Circle struct {
	ID          CircleID  `json:"id"`
	Name        string    `json:"name"`
	WorkspaceID string    `json:"workspaceId,omitempty"`
	Default     bool      `json:"default"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Deployment is a requested rollout of components to a circle. The
// namespace doubles as the circle group: routing is reconciled per
// namespace.
type Deployment struct {
	ID                DeploymentID `json:"id"`
	AuthorID          string       `json:"authorId"`
	CircleID          CircleID     `json:"circleId"`
	Namespace         string       `json:"namespace"`
	CallbackURL       string       `json:"callbackUrl"`
	CdConfigurationID string       `json:"cdConfigurationId,omitempty"`
	DefaultCircle     bool         `json:"defaultCircle"`
	TimeoutInSeconds  int          `json:"timeoutInSeconds"`
	Metadata          *Metadata    `json:"metadata,omitempty"`
	Components        []Component  `json:"components"`
	CreatedAt         time.Time    `json:"createdAt"`

	// Current is set once the deployment has become healthy, and
	// stays set until a newer deployment of the circle does, or it
	// is undeployed. Either of those also sets Superseded.
	Current    bool `json:"current"`
	Superseded bool `json:"superseded"`
	Healthy    bool `json:"healthy"`
	Routable   bool `json:"routable"`
	Routed     bool `json:"routed"`
}

// Timeout is how long the deployment may take to become healthy and
// routed before the sweep gives up on it.
func (d Deployment) Timeout() time.Duration {
	return time.Duration(d.TimeoutInSeconds) * time.Second
}

// Deadline is the instant after which an execution of this
// deployment created at `created` is eligible for timing out.
func (d Deployment) Deadline(created time.Time) time.Time {
	return created.Add(d.Timeout())
}

// Active is true if the deployment should receive traffic for its
// circle.
func (d Deployment) Active() bool {
	return d.Current && d.Healthy && d.Routable
}

// ModuleIDs returns the distinct modules referenced by the
// deployment's components, in order of first appearance.
func (d Deployment) ModuleIDs() []ModuleID {
	seen := map[ModuleID]bool{}
	var ids []ModuleID
	for _, c := range d.Components {
		if c.ModuleID == "" || seen[c.ModuleID] {
			continue
		}
		seen[c.ModuleID] = true
		ids = append(ids, c.ModuleID)
	}
	return ids
}

// Modules groups the deployment's components into module snapshots,
// suitable for merging into the catalog.
func (d Deployment) Modules() []Module {
	byID := map[ModuleID]*Module{}
	var out []*Module
	for _, c := range d.Components {
		if c.ModuleID == "" {
			continue
		}
		m, ok := byID[c.ModuleID]
		if !ok {
			m = &Module{ID: c.ModuleID, Name: string(c.ModuleID)}
			byID[c.ModuleID] = m
			out = append(out, m)
		}
		m.Components = append(m.Components, ModuleComponent{
			ID:               c.ID,
			Name:             c.Name,
			LatencyThreshold: c.LatencyThreshold,
			ErrorThreshold:   c.ErrorThreshold,
		})
	}
	modules := make([]Module, len(out))
	for i := range out {
		modules[i] = *out[i]
	}
	return modules
}

// Metadata is free-form data attached to a deployment by its author.
type Metadata struct {
	Scope   string            `json:"scope"`
	Content map[string]string `json:"content"`
}

// Component is one container image bound to a deployment.
type Component struct {
	ID               ComponentID `json:"componentId"`
	ModuleID         ModuleID    `json:"moduleId"`
	Name             string      `json:"name"`
	ImageURL         string      `json:"imageUrl"`
	ImageTag         string      `json:"imageTag"`
	Running          bool        `json:"running"`
	HostValue        string      `json:"hostValue,omitempty"`
	GatewayName      string      `json:"gatewayName,omitempty"`
	Merged           bool        `json:"merged"`
	LatencyThreshold int         `json:"latencyThreshold,omitempty"`
	ErrorThreshold   int         `json:"errorThreshold,omitempty"`
}

// Image is the full image reference, url plus tag.
func (c Component) Image() string {
	if c.ImageTag == "" {
		return c.ImageURL
	}
	return c.ImageURL + ":" + c.ImageTag
}

// Module is an entry in the component catalog, independent of any
// one deployment.
type Module struct {
	ID         ModuleID          `json:"id"`
	Name       string            `json:"name"`
	Components []ModuleComponent `json:"components"`
	CreatedAt  time.Time         `json:"createdAt"`
}

type ModuleComponent struct {
	ID               ComponentID `json:"id"`
	Name             string      `json:"name"`
	LatencyThreshold int         `json:"latencyThreshold,omitempty"`
	ErrorThreshold   int         `json:"errorThreshold,omitempty"`
}

// NewComponents returns those of `candidates` that the module does
// not already have, by ID. A candidate repeated in the input is
// returned once.
func (m Module) NewComponents(candidates []ModuleComponent) []ModuleComponent {
	have := map[ComponentID]bool{}
	for _, c := range m.Components {
		have[c.ID] = true
	}
	var fresh []ModuleComponent
	for _, c := range candidates {
		if have[c.ID] {
			continue
		}
		have[c.ID] = true
		fresh = append(fresh, c)
	}
	return fresh
}
