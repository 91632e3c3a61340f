package v1

import (
	"github.com/fluxcd/circles/pkg/circle"
)

type CreateDeploymentRequest struct {
	DeploymentID      circle.DeploymentID `json:"deploymentId,omitempty"`
	AuthorID          string              `json:"authorId"`
	CircleID          circle.CircleID     `json:"circleId"`
	CircleName        string              `json:"circleName,omitempty"`
	WorkspaceID       string              `json:"workspaceId,omitempty"`
	Namespace         string              `json:"namespace"`
	CallbackURL       string              `json:"callbackUrl"`
	CdConfigurationID string              `json:"cdConfigurationId,omitempty"`
	DefaultCircle     bool                `json:"defaultCircle"`
	TimeoutInSeconds  int                 `json:"timeoutInSeconds,omitempty"`
	Metadata          *circle.Metadata    `json:"metadata,omitempty"`
	Components        []ComponentRequest  `json:"components"`
}

type ComponentRequest struct {
	ComponentID      circle.ComponentID `json:"componentId"`
	ModuleID         circle.ModuleID    `json:"moduleId"`
	Name             string             `json:"name"`
	ImageURL         string             `json:"imageUrl"`
	ImageTag         string             `json:"imageTag"`
	HostValue        string             `json:"hostValue,omitempty"`
	GatewayName      string             `json:"gatewayName,omitempty"`
	Merged           bool               `json:"merged,omitempty"`
	LatencyThreshold int                `json:"latencyThreshold,omitempty"`
	ErrorThreshold   int                `json:"errorThreshold,omitempty"`
}

// Deployment is the deployment the request asks for. Its ID is empty
// unless the request gave one.
func (r CreateDeploymentRequest) Deployment() circle.Deployment {
	d := circle.Deployment{
		ID:                r.DeploymentID,
		AuthorID:          r.AuthorID,
		CircleID:          r.CircleID,
		Namespace:         r.Namespace,
		CallbackURL:       r.CallbackURL,
		CdConfigurationID: r.CdConfigurationID,
		DefaultCircle:     r.DefaultCircle,
		TimeoutInSeconds:  r.TimeoutInSeconds,
		Metadata:          r.Metadata,
	}
	for _, c := range r.Components {
		d.Components = append(d.Components, circle.Component{
			ID:               c.ComponentID,
			ModuleID:         c.ModuleID,
			Name:             c.Name,
			ImageURL:         c.ImageURL,
			ImageTag:         c.ImageTag,
			HostValue:        c.HostValue,
			GatewayName:      c.GatewayName,
			Merged:           c.Merged,
			LatencyThreshold: c.LatencyThreshold,
			ErrorThreshold:   c.ErrorThreshold,
		})
	}
	return d
}
