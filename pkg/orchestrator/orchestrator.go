// Package orchestrator drives deployments and undeployments from
// request to callback: it records them, applies their workloads,
// waits for them to become healthy, routes traffic to them and tells
// their authors how it went.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics/prometheus"
	"github.com/pkg/errors"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/fluxcd/circles/pkg/circle"
	"github.com/fluxcd/circles/pkg/cluster"
	fluxerr "github.com/fluxcd/circles/pkg/errors"
	"github.com/fluxcd/circles/pkg/job"
	fluxmetrics "github.com/fluxcd/circles/pkg/metrics"
	"github.com/fluxcd/circles/pkg/notify"
	"github.com/fluxcd/circles/pkg/routing"
	"github.com/fluxcd/circles/pkg/store"
)

const (
	DefaultTimeout      = 10 * time.Minute
	DefaultPollInterval = 5 * time.Second
)

var pipelineDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
	Namespace: "circles",
	Subsystem: "orchestrator",
	Name:      "pipeline_duration_seconds",
	Help:      "Duration of deployment and undeployment pipelines, in seconds.",
	Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
}, []string{fluxmetrics.LabelType, fluxmetrics.LabelSuccess})

type Tracker interface {
	Transition(ctx context.Context, id circle.ExecutionID, to circle.Status, detail string) error
	MarkDeployed(ctx context.Context, e circle.Execution) (bool, error)
	MarkUndeployed(ctx context.Context, e circle.Execution) error
	ClaimNotification(ctx context.Context, id circle.ExecutionID) (bool, error)
	UpdateNotificationStatus(ctx context.Context, id circle.ExecutionID, httpStatus int) error
	Sweep(ctx context.Context, now time.Time) ([]circle.Execution, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, group string) (routing.Result, error)
}

type Guard interface {
	Admit(ctx context.Context, namespace string, circleID circle.CircleID, defaultCircle bool) error
}

type Merger interface {
	Merge(ctx context.Context, modules []circle.Module) error
}

type Notifier interface {
	Notify(ctx context.Context, url string, p notify.Payload) (int, error)
}

// Scheduler runs jobs in the background. A *job.Queue, serviced by
// the daemon loop, is one.
type Scheduler interface {
	Enqueue(j *job.Job) bool
}

type Config struct {
	// DefaultTimeout applies to deployments that do not give one.
	DefaultTimeout time.Duration
	PollInterval   time.Duration
	Replicas       int32
	ContainerPort  int32
	// Labels are added to every workload.
	Labels map[string]string
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Store      store.Store
	Tracker    Tracker
	Reconciler Reconciler
	Gateway    cluster.Gateway
	Guard      Guard
	Merger     Merger
	Notifier   Notifier
	Scheduler  Scheduler
}

type Orchestrator struct {
	Deps
	config Config
	logger log.Logger
	now    func() time.Time
}

func New(deps Deps, config Config, logger log.Logger) *Orchestrator {
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = DefaultTimeout
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	return &Orchestrator{
		Deps:   deps,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// DeployRequest is a deployment to be made, along with the details
// of the circle it is made to.
type DeployRequest struct {
	Deployment circle.Deployment
	// CircleName defaults to the circle's existing name, or its id.
	CircleName  string
	WorkspaceID string
}

// Deploy records the deployment and an execution tracking it. The
// rest happens in the background; the deployment and execution are
// returned as recorded. The circle's current deployment keeps its
// traffic until this one is healthy.
func (o *Orchestrator) Deploy(ctx context.Context, req DeployRequest) (circle.Deployment, circle.Execution, error) {
	d := req.Deployment
	if !o.Gateway.IsAllowedNamespace(d.Namespace) {
		return circle.Deployment{}, circle.Execution{}, namespaceNotAllowed(d.Namespace)
	}
	if err := o.Guard.Admit(ctx, d.Namespace, d.CircleID, d.DefaultCircle); err != nil {
		return circle.Deployment{}, circle.Execution{}, err
	}

	now := o.now()
	if d.ID == "" {
		d.ID = circle.NewDeploymentID()
	}
	if d.TimeoutInSeconds <= 0 {
		d.TimeoutInSeconds = int(o.config.DefaultTimeout / time.Second)
	}
	d.CreatedAt = now
	e := circle.NewExecution(d, circle.TypeDeployment, now)

	err := o.Store.Transaction(ctx, func(tx store.Store) error {
		c := circle.Circle{
			ID:          d.CircleID,
			Name:        req.CircleName,
			WorkspaceID: req.WorkspaceID,
			Default:     d.DefaultCircle,
			CreatedAt:   now,
		}
		if existing, err := tx.GetCircle(ctx, d.CircleID); err == nil {
			if c.Name == "" {
				c.Name = existing.Name
			}
			if c.WorkspaceID == "" {
				c.WorkspaceID = existing.WorkspaceID
			}
		} else if !store.IsNotFound(err) {
			return err
		}
		if c.Name == "" {
			c.Name = string(c.ID)
		}
		if err := tx.UpsertCircle(ctx, c); err != nil {
			return err
		}
		if err := tx.CreateDeployment(ctx, d); err != nil {
			return err
		}
		return tx.CreateExecution(ctx, e)
	})
	if err != nil {
		return circle.Deployment{}, circle.Execution{}, err
	}

	recorded, err := o.Store.GetDeployment(ctx, d.ID)
	if err != nil {
		return circle.Deployment{}, circle.Execution{}, err
	}
	o.schedule(job.KindDeploy, e, func(ctx context.Context, logger log.Logger) error {
		return o.deploy(ctx, recorded, e, logger)
	})
	return recorded, e, nil
}

// Undeploy takes the deployment, which must be current, out of
// routing and removes its workloads, in the background. The execution
// tracking that is returned.
func (o *Orchestrator) Undeploy(ctx context.Context, id circle.DeploymentID) (circle.Execution, error) {
	d, err := o.Store.GetDeployment(ctx, id)
	if err != nil {
		return circle.Execution{}, err
	}
	if !d.Current {
		return circle.Execution{}, notCurrent(id)
	}
	e := circle.NewExecution(d, circle.TypeUndeployment, o.now())
	if err := o.Store.CreateExecution(ctx, e); err != nil {
		return circle.Execution{}, err
	}
	o.schedule(job.KindUndeploy, e, func(ctx context.Context, logger log.Logger) error {
		return o.undeploy(ctx, d, e, logger)
	})
	return e, nil
}

// Reconcile routes the group's traffic to its active deployments, and
// sends any callbacks that were waiting on that.
func (o *Orchestrator) Reconcile(ctx context.Context, group string) error {
	result, err := o.Reconciler.Reconcile(ctx, group)
	if err != nil {
		return err
	}
	o.notifyPending(ctx, result.Routed)
	return nil
}

// Sweep times out executions that have overrun their deadline, sends
// their callbacks, and reconciles the groups they were in.
func (o *Orchestrator) Sweep(ctx context.Context) ([]circle.ExecutionID, error) {
	timedOut, err := o.Tracker.Sweep(ctx, o.now())
	if err != nil {
		return nil, err
	}
	var ids []circle.ExecutionID
	var groups []string
	seen := map[string]bool{}
	for _, e := range timedOut {
		ids = append(ids, e.ID)
		if e.Deployment == nil {
			continue
		}
		o.notify(ctx, e, e.Deployment.CallbackURL, o.logger)
		if ns := e.Deployment.Namespace; !seen[ns] {
			seen[ns] = true
			groups = append(groups, ns)
		}
	}
	for _, group := range groups {
		if err := o.Reconcile(ctx, group); err != nil {
			o.logger.Log("group", group, "err", errors.Wrap(err, "reconciling after sweep"))
		}
	}
	return ids, nil
}

func (o *Orchestrator) schedule(kind job.Kind, e circle.Execution, do job.JobFunc) {
	j := &job.Job{ID: job.ID(e.ID), Kind: kind, Do: do}
	if !o.Scheduler.Enqueue(j) {
		// the execution stays CREATED, and is left to the sweep
		o.logger.Log("execution", e.ID, "err", "shutting down, not scheduled")
	}
}

// notify sends the execution's callback and records the outcome,
// unless it has already been sent or is being sent by someone else.
func (o *Orchestrator) notify(ctx context.Context, e circle.Execution, url string, logger log.Logger) {
	claimed, err := o.Tracker.ClaimNotification(ctx, e.ID)
	if err != nil {
		logger.Log("execution", e.ID, "err", errors.Wrap(err, "claiming notification"))
		return
	}
	if !claimed {
		return
	}
	status, err := o.Notifier.Notify(ctx, url, notify.PayloadFor(e))
	if err != nil {
		logger.Log("execution", e.ID, "callback", url, "err", err)
	}
	if err := o.Tracker.UpdateNotificationStatus(ctx, e.ID, status); err != nil {
		logger.Log("execution", e.ID, "err", errors.Wrap(err, "recording notification status"))
	}
}

// notifyPending sends the callbacks of executions that deployed the
// given deployments but were waiting for them to be routed.
func (o *Orchestrator) notifyPending(ctx context.Context, routed []circle.DeploymentID) {
	pending, err := o.Store.PendingNotifications(ctx, routed)
	if err != nil {
		o.logger.Log("err", errors.Wrap(err, "listing pending notifications"))
		return
	}
	for _, e := range pending {
		if e.Deployment == nil {
			continue
		}
		o.notify(ctx, e, e.Deployment.CallbackURL, o.logger)
	}
}

func observePipeline(typ circle.ExecutionType, begin time.Time, err error) {
	pipelineDuration.With(
		fluxmetrics.LabelType, string(typ),
		fluxmetrics.LabelSuccess, fmt.Sprint(err == nil),
	).Observe(time.Since(begin).Seconds())
}

func namespaceNotAllowed(namespace string) *fluxerr.Error {
	return &fluxerr.Error{
		Type: fluxerr.User,
		Err:  errors.Errorf("namespace %q is not allowed", namespace),
		Help: fmt.Sprintf(`Namespace %q is not one the daemon is allowed to deploy to.

Check the daemon's --allow-namespace and --deny-namespace settings.
`, namespace),
	}
}

func notCurrent(id circle.DeploymentID) *fluxerr.Error {
	return &fluxerr.Error{
		Type: fluxerr.User,
		Err:  errors.Errorf("deployment %s is not current", id),
		Help: fmt.Sprintf(`Deployment %s has been superseded or undeployed already, so there is
nothing to undeploy.
`, id),
	}
}
