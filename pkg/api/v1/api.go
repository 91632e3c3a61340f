// This package defines the types for version 1 of the circles API.
package v1

import (
	"context"

	"github.com/fluxcd/circles/pkg/circle"
)

// CreateDeploymentResponse is what was recorded for a new
// deployment. The execution tracks it through the pipeline.
type CreateDeploymentResponse struct {
	Deployment circle.Deployment `json:"deployment"`
	Execution  circle.Execution  `json:"execution"`
}

type ListExecutionsOptions struct {
	circle.PageRequest
	// Current, if set, restricts the listing to executions of
	// deployments that are (or are not) current.
	Current *bool
}

type ListCirclesOptions struct {
	circle.PageRequest
	Name        string
	Active      *bool
	WorkspaceID string
}

type SweepResult struct {
	TimedOut []circle.ExecutionID `json:"timedOut"`
}

type Server interface {
	Ping(context.Context) error
	Version(context.Context) (string, error)

	CreateDeployment(context.Context, CreateDeploymentRequest) (CreateDeploymentResponse, error)
	GetDeployment(context.Context, circle.DeploymentID) (circle.Deployment, error)
	UndeployDeployment(context.Context, circle.DeploymentID) (circle.Execution, error)

	ListExecutions(context.Context, ListExecutionsOptions) (circle.ExecutionPage, error)
	GetExecution(context.Context, circle.ExecutionID) (circle.Execution, error)
	ListCircles(context.Context, ListCirclesOptions) (circle.CirclePage, error)

	// ReconcileGroup routes the group's traffic to its active
	// deployments, as it would be after any deployment.
	ReconcileGroup(ctx context.Context, namespace string) error
	Sweep(context.Context) (SweepResult, error)
}
