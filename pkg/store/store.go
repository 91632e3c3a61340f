// Package store defines the persistence the deployment pipeline
// needs. Implementations live in subpackages.
package store

import (
	"context"
	"time"

	"github.com/fluxcd/circles/pkg/circle"
)

// ExecutionQuery selects a page of executions, newest first. If
// Current is set, only executions of deployments whose current flag
// equals it are returned.
type ExecutionQuery struct {
	circle.PageRequest
	Current *bool
}

// CircleQuery selects a page of circles. Name matches as a
// case-insensitive substring; Active, if set, matches whether the
// circle has a current deployment.
type CircleQuery struct {
	circle.PageRequest
	Name        string
	Active      *bool
	WorkspaceID string
}

type Deployments interface {
	// CreateDeployment records the deployment and its components. It
	// is not current until MakeCurrent.
	CreateDeployment(ctx context.Context, d circle.Deployment) error
	GetDeployment(ctx context.Context, id circle.DeploymentID) (circle.Deployment, error)
	// CurrentDeployment returns the current deployment for the
	// circle, or an error satisfying IsNotFound.
	CurrentDeployment(ctx context.Context, id circle.CircleID) (circle.Deployment, error)
	// LiveDefaultDeployments returns the deployments made to the
	// circle as a default circle that are current, or still being
	// deployed, newest first.
	LiveDefaultDeployments(ctx context.Context, id circle.CircleID) ([]circle.Deployment, error)
	// ActiveDeployments returns the deployments in the namespace that
	// are current, healthy and routable, oldest first.
	ActiveDeployments(ctx context.Context, namespace string) ([]circle.Deployment, error)
	// MakeCurrent makes the deployment the current one for its
	// circle. In the same write, the circle's previous current
	// deployment, and any created before this one, are no longer
	// current and are superseded. If the deployment has itself been
	// superseded it is left alone, and MakeCurrent returns false.
	MakeCurrent(ctx context.Context, id circle.DeploymentID) (bool, error)
	// MarkHealthy sets the deployment healthy and routable.
	MarkHealthy(ctx context.Context, id circle.DeploymentID) error
	SetRoutable(ctx context.Context, id circle.DeploymentID, routable bool) error
	// MarkRouted sets routed for exactly the deployments given, and
	// clears it for every other deployment in the namespace.
	MarkRouted(ctx context.Context, namespace string, routed []circle.DeploymentID) error
	// Retire clears the current, healthy and routable flags, and sets
	// superseded.
	Retire(ctx context.Context, id circle.DeploymentID) error
	SetComponentsRunning(ctx context.Context, id circle.DeploymentID, running bool) error
}

type Executions interface {
	CreateExecution(ctx context.Context, e circle.Execution) error
	GetExecution(ctx context.Context, id circle.ExecutionID) (circle.Execution, error)
	// ListExecutions returns executions with their deployments.
	ListExecutions(ctx context.Context, q ExecutionQuery) (circle.ExecutionPage, error)
	// TransitionExecution moves the execution to status `to`, but
	// only if it is in one of the statuses `from`; otherwise nothing
	// is written and an error satisfying IsStale is returned. Terminal
	// statuses record `at` as the finish time.
	TransitionExecution(ctx context.Context, id circle.ExecutionID, from []circle.Status, to circle.Status, detail string, at time.Time) error
	SetNotificationStatus(ctx context.Context, id circle.ExecutionID, status circle.NotificationStatus) error
	// ClaimNotification moves the execution's notification status
	// from NOT_SENT to SENDING. It returns false if the status was
	// anything else, i.e., someone else has the callback to send.
	ClaimNotification(ctx context.Context, id circle.ExecutionID) (bool, error)
	// TimeoutCandidates returns, with their deployments, the
	// executions that have not notified, are not timed out, and whose
	// deployment is not superseded and not both healthy and routed.
	// Whether each is past its deadline is for the caller to decide.
	TimeoutCandidates(ctx context.Context) ([]circle.Execution, error)
	// TimeOutExecution marks the execution TIMED_OUT if it is still a
	// candidate for timing out.
	TimeOutExecution(ctx context.Context, id circle.ExecutionID, detail string, at time.Time) error
	// PendingNotifications returns the deployment executions of the
	// given deployments that reached DEPLOYED without notifying.
	PendingNotifications(ctx context.Context, ids []circle.DeploymentID) ([]circle.Execution, error)
}

type Modules interface {
	GetModule(ctx context.Context, id circle.ModuleID) (circle.Module, error)
	CreateModule(ctx context.Context, m circle.Module) error
	AddModuleComponents(ctx context.Context, id circle.ModuleID, components []circle.ModuleComponent) error
}

type Circles interface {
	// UpsertCircle creates the circle, or updates its name, workspace
	// and default flag.
	UpsertCircle(ctx context.Context, c circle.Circle) error
	GetCircle(ctx context.Context, id circle.CircleID) (circle.Circle, error)
	ListCircles(ctx context.Context, q CircleQuery) (circle.CirclePage, error)
}

// Store is the whole of persistence.
type Store interface {
	Deployments
	Executions
	Modules
	Circles

	// Transaction runs f with a Store whose operations all commit, or
	// all roll back if f returns an error. Transactions nest: inside
	// f, Transaction runs its argument in the same transaction.
	Transaction(ctx context.Context, f func(Store) error) error
	Ping(ctx context.Context) error
}
