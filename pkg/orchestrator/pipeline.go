package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/fluxcd/circles/pkg/circle"
	"github.com/fluxcd/circles/pkg/cluster"
	"github.com/fluxcd/circles/pkg/manifest"
	"github.com/fluxcd/circles/pkg/store"
)

var (
	errRolloutStuck = errors.New("rollout is stuck")
	// errDeadline means the execution was left for the sweep.
	errDeadline = errors.New("deadline passed before the deployment became healthy")
)

// deploy runs a deployment's execution from CREATED to the end. Any
// failure is recorded against the execution and reported to the
// callback; the error returned is for logging.
func (o *Orchestrator) deploy(ctx context.Context, d circle.Deployment, e circle.Execution, logger log.Logger) (err error) {
	defer func(begin time.Time) { observePipeline(e.Type, begin, err) }(time.Now())
	logger = log.With(logger, "deployment", d.ID, "execution", e.ID, "circle", d.CircleID)

	if err := o.Merger.Merge(ctx, d.Modules()); err != nil {
		return o.fail(ctx, d, e, circle.StatusDeployFailed, errors.Wrap(err, "merging modules"), logger)
	}

	if err := o.Tracker.Transition(ctx, e.ID, circle.StatusDeploying, ""); err != nil {
		return stopped(err, logger)
	}

	set, err := manifest.Workloads(manifest.WorkloadInput{
		Deployment:    d,
		Replicas:      o.config.Replicas,
		ContainerPort: o.config.ContainerPort,
		Labels:        o.config.Labels,
	})
	if err != nil {
		return o.fail(ctx, d, e, circle.StatusDeployFailed, err, logger)
	}
	objs, err := set.Objects()
	if err != nil {
		return o.fail(ctx, d, e, circle.StatusDeployFailed, err, logger)
	}
	if err := o.Gateway.Apply(ctx, objs); err != nil {
		return o.fail(ctx, d, e, circle.StatusDeployFailed, cluster.ApplyError(err), logger)
	}
	logger.Log("info", "workloads applied", "objects", len(objs))

	switch err := o.awaitHealthy(ctx, d, e, logger); {
	case err == errDeadline:
		logger.Log("info", "not healthy by deadline; leaving it to the sweep")
		return err
	case err != nil:
		return o.fail(ctx, d, e, circle.StatusDeployFailed, err, logger)
	}

	current, err := o.Tracker.MarkDeployed(ctx, e)
	if err != nil {
		return stopped(err, logger)
	}
	if !current {
		logger.Log("info", "deployed, but a newer deployment of the circle is already current")
		o.reportOutcome(ctx, d, e.ID, logger)
		return nil
	}
	logger.Log("info", "deployed")

	result, err := o.Reconciler.Reconcile(ctx, d.Namespace)
	if err != nil {
		// the callback waits for a reconciliation that succeeds, or the sweep
		logger.Log("err", errors.Wrap(err, "routing"))
		return err
	}
	o.notifyPending(ctx, result.Routed)
	return nil
}

// awaitHealthy polls the deployment's workloads until they have all
// rolled out, the rollout is stuck, or the deadline passes.
func (o *Orchestrator) awaitHealthy(ctx context.Context, d circle.Deployment, e circle.Execution, logger log.Logger) error {
	remaining := d.Deadline(e.CreatedAt).Sub(o.now())
	if remaining <= 0 {
		return errDeadline
	}
	selector := manifest.WorkloadSelector(d.ID)
	var stuck []string
	err := wait.PollUntilContextTimeout(ctx, o.config.PollInterval, remaining, true, func(ctx context.Context) (bool, error) {
		status, err := o.Gateway.Status(ctx, d.Namespace, selector)
		if err != nil {
			logger.Log("warning", "checking rollout status", "err", err)
			return false, nil
		}
		if status.Stuck() {
			stuck = status.Messages
			return false, errRolloutStuck
		}
		return status.Complete(), nil
	})
	switch {
	case err == nil:
		return nil
	case err == errRolloutStuck:
		return errors.Wrap(err, strings.Join(stuck, "; "))
	case wait.Interrupted(err):
		return errDeadline
	}
	return err
}

func (o *Orchestrator) undeploy(ctx context.Context, d circle.Deployment, e circle.Execution, logger log.Logger) (err error) {
	defer func(begin time.Time) { observePipeline(e.Type, begin, err) }(time.Now())
	logger = log.With(logger, "deployment", d.ID, "execution", e.ID, "circle", d.CircleID)

	if err := o.Tracker.Transition(ctx, e.ID, circle.StatusUndeploying, ""); err != nil {
		return stopped(err, logger)
	}
	if err := o.Store.SetRoutable(ctx, d.ID, false); err != nil {
		return o.fail(ctx, d, e, circle.StatusUndeployFailed, err, logger)
	}
	result, err := o.Reconciler.Reconcile(ctx, d.Namespace)
	if err != nil {
		// the routing still sends traffic to it, so it stays routable
		if rerr := o.Store.SetRoutable(ctx, d.ID, true); rerr != nil {
			logger.Log("err", errors.Wrap(rerr, "restoring routable"))
		}
		return o.fail(ctx, d, e, circle.StatusUndeployFailed, errors.Wrap(err, "removing routes"), logger)
	}
	o.notifyPending(ctx, result.Routed)

	set, err := manifest.Workloads(manifest.WorkloadInput{Deployment: d})
	if err != nil {
		return o.fail(ctx, d, e, circle.StatusUndeployFailed, err, logger)
	}
	// Services are shared with the other circles running the same
	// components, so only the workloads go.
	objs, err := (&manifest.Set{Deployments: set.Deployments}).Objects()
	if err != nil {
		return o.fail(ctx, d, e, circle.StatusUndeployFailed, err, logger)
	}
	if err := o.Gateway.Delete(ctx, objs); err != nil {
		return o.fail(ctx, d, e, circle.StatusUndeployFailed, cluster.ApplyError(err), logger)
	}

	if err := o.Tracker.MarkUndeployed(ctx, e); err != nil {
		return stopped(err, logger)
	}
	logger.Log("info", "undeployed")
	o.reportOutcome(ctx, d, e.ID, logger)
	return nil
}

// fail records the failure against the execution and reports it.
func (o *Orchestrator) fail(ctx context.Context, d circle.Deployment, e circle.Execution, to circle.Status, cause error, logger log.Logger) error {
	logger.Log("status", to, "err", cause)
	if err := o.Tracker.Transition(ctx, e.ID, to, cause.Error()); err != nil {
		return stopped(err, logger)
	}
	o.reportOutcome(ctx, d, e.ID, logger)
	return cause
}

// reportOutcome notifies the callback of the execution as recorded.
func (o *Orchestrator) reportOutcome(ctx context.Context, d circle.Deployment, id circle.ExecutionID, logger log.Logger) {
	e, err := o.Store.GetExecution(ctx, id)
	if err != nil {
		logger.Log("err", errors.Wrap(err, "reading execution to report"))
		return
	}
	o.notify(ctx, e, d.CallbackURL, logger)
}

// stopped handles a pipeline finding its execution moved on without
// it, e.g., timed out by the sweep.
func stopped(err error, logger log.Logger) error {
	if store.IsStale(err) {
		logger.Log("info", "execution has moved on; stopping")
	} else {
		logger.Log("err", err)
	}
	return err
}
