package daemon

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/fluxcd/circles/pkg/api"
	"github.com/fluxcd/circles/pkg/api/v1"
	"github.com/fluxcd/circles/pkg/circle"
	"github.com/fluxcd/circles/pkg/cluster"
	"github.com/fluxcd/circles/pkg/job"
	"github.com/fluxcd/circles/pkg/orchestrator"
	"github.com/fluxcd/circles/pkg/store"
)

// Daemon serves the API, and runs the deployment pipelines the API
// starts. The orchestrator's scheduler is expected to be Jobs.
type Daemon struct {
	V            string
	Orchestrator *orchestrator.Orchestrator
	Store        store.Store
	Cluster      cluster.Gateway
	Jobs         *job.Queue
	Logger       log.Logger
	// bookkeeping
	*LoopVars
}

// Invariant.
var _ api.Server = &Daemon{}

func (d *Daemon) Version(ctx context.Context) (string, error) {
	return d.V, nil
}

func (d *Daemon) Ping(ctx context.Context) error {
	if err := d.Store.Ping(ctx); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	return d.Cluster.Ping()
}

func (d *Daemon) CreateDeployment(ctx context.Context, req v1.CreateDeploymentRequest) (v1.CreateDeploymentResponse, error) {
	if err := req.Validate(); err != nil {
		return v1.CreateDeploymentResponse{}, err
	}
	deployment, execution, err := d.Orchestrator.Deploy(ctx, orchestrator.DeployRequest{
		Deployment:  req.Deployment(),
		CircleName:  req.CircleName,
		WorkspaceID: req.WorkspaceID,
	})
	if err != nil {
		return v1.CreateDeploymentResponse{}, err
	}
	return v1.CreateDeploymentResponse{Deployment: deployment, Execution: execution}, nil
}

func (d *Daemon) GetDeployment(ctx context.Context, id circle.DeploymentID) (circle.Deployment, error) {
	return d.Store.GetDeployment(ctx, id)
}

func (d *Daemon) UndeployDeployment(ctx context.Context, id circle.DeploymentID) (circle.Execution, error) {
	return d.Orchestrator.Undeploy(ctx, id)
}

func (d *Daemon) ListExecutions(ctx context.Context, opts v1.ListExecutionsOptions) (circle.ExecutionPage, error) {
	return d.Store.ListExecutions(ctx, store.ExecutionQuery{
		PageRequest: opts.PageRequest,
		Current:     opts.Current,
	})
}

func (d *Daemon) GetExecution(ctx context.Context, id circle.ExecutionID) (circle.Execution, error) {
	return d.Store.GetExecution(ctx, id)
}

func (d *Daemon) ListCircles(ctx context.Context, opts v1.ListCirclesOptions) (circle.CirclePage, error) {
	return d.Store.ListCircles(ctx, store.CircleQuery{
		PageRequest: opts.PageRequest,
		Name:        opts.Name,
		Active:      opts.Active,
		WorkspaceID: opts.WorkspaceID,
	})
}

func (d *Daemon) ReconcileGroup(ctx context.Context, namespace string) error {
	return d.Orchestrator.Reconcile(ctx, namespace)
}

func (d *Daemon) Sweep(ctx context.Context) (v1.SweepResult, error) {
	ids, err := d.Orchestrator.Sweep(ctx)
	if err != nil {
		return v1.SweepResult{}, err
	}
	if ids == nil {
		ids = []circle.ExecutionID{}
	}
	return v1.SweepResult{TimedOut: ids}, nil
}
