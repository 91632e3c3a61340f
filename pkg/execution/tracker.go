// Package execution keeps the status of deployment and undeployment
// executions, moving them only along the permitted transitions, and
// times out those that never became healthy and routed.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics/prometheus"
	"github.com/pkg/errors"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/fluxcd/circles/pkg/circle"
	fluxmetrics "github.com/fluxcd/circles/pkg/metrics"
	"github.com/fluxcd/circles/pkg/store"
)

// ErrHealthTimeout is the cause recorded against an execution the
// sweep has timed out.
var ErrHealthTimeout = errors.New("deployment did not become healthy and routed before its deadline")

var (
	transitions = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "circles",
		Subsystem: "execution",
		Name:      "transitions_total",
		Help:      "Count of execution status transitions attempted.",
	}, []string{fluxmetrics.LabelStatus, fluxmetrics.LabelSuccess})
	sweepTimedOut = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "circles",
		Subsystem: "execution",
		Name:      "sweep_timed_out_total",
		Help:      "Count of executions timed out by the sweep.",
	}, []string{})
	sweepDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "circles",
		Subsystem: "execution",
		Name:      "sweep_duration_seconds",
		Help:      "Duration of timeout sweeps, in seconds.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{fluxmetrics.LabelSuccess})
)

type Tracker struct {
	store  store.Store
	logger log.Logger
	now    func() time.Time
}

func NewTracker(s store.Store, logger log.Logger) *Tracker {
	return &Tracker{
		store:  s,
		logger: logger,
		now:    time.Now,
	}
}

// Transition moves the execution to `to` if its current status
// permits it. Otherwise it returns an error satisfying store.IsStale,
// and the execution is unchanged.
func (t *Tracker) Transition(ctx context.Context, id circle.ExecutionID, to circle.Status, detail string) (err error) {
	defer func() {
		transitions.With(
			fluxmetrics.LabelStatus, string(to),
			fluxmetrics.LabelSuccess, fmt.Sprint(err == nil),
		).Add(1)
	}()
	from := circle.From(to)
	if from == nil {
		return errors.Errorf("no transition leads to %s", to)
	}
	return t.store.TransitionExecution(ctx, id, from, to, detail, t.now())
}

// MarkDeployed records, in one transaction, that the execution's
// deployment became healthy: the execution is DEPLOYED, the
// deployment healthy, routable and current for its circle, and its
// components running. It returns false if the deployment could not be
// made current because a newer deployment of the circle got there
// first; the rest is recorded regardless.
func (t *Tracker) MarkDeployed(ctx context.Context, e circle.Execution) (current bool, err error) {
	err = t.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.TransitionExecution(ctx, e.ID, circle.From(circle.StatusDeployed), circle.StatusDeployed, "", t.now()); err != nil {
			return err
		}
		var err error
		if current, err = tx.MakeCurrent(ctx, e.DeploymentID); err != nil {
			return err
		}
		if err := tx.MarkHealthy(ctx, e.DeploymentID); err != nil {
			return err
		}
		return tx.SetComponentsRunning(ctx, e.DeploymentID, true)
	})
	return current && err == nil, err
}

// MarkUndeployed records, in one transaction, that the execution's
// deployment is gone: the execution is UNDEPLOYED, the deployment no
// longer current, and its components not running.
func (t *Tracker) MarkUndeployed(ctx context.Context, e circle.Execution) error {
	return t.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.TransitionExecution(ctx, e.ID, circle.From(circle.StatusUndeployed), circle.StatusUndeployed, "", t.now()); err != nil {
			return err
		}
		if err := tx.Retire(ctx, e.DeploymentID); err != nil {
			return err
		}
		return tx.SetComponentsRunning(ctx, e.DeploymentID, false)
	})
}

// ClaimNotification reserves the execution's callback for the
// caller, if it has not already been sent or claimed.
func (t *Tracker) ClaimNotification(ctx context.Context, id circle.ExecutionID) (bool, error) {
	return t.store.ClaimNotification(ctx, id)
}

// UpdateNotificationStatus records the outcome of notifying the
// execution's callback, given the HTTP status of the response or zero
// if there was none.
func (t *Tracker) UpdateNotificationStatus(ctx context.Context, id circle.ExecutionID, httpStatus int) error {
	return t.store.SetNotificationStatus(ctx, id, circle.NotificationFor(httpStatus))
}

// Sweep times out every execution whose deployment has gone past its
// deadline without becoming both healthy and routed, and which has
// not yet notified. Executions of superseded deployments are left
// alone. Their deployments' components are
// marked not running. It all happens in one transaction; the
// executions timed out are returned once it has committed.
func (t *Tracker) Sweep(ctx context.Context, now time.Time) (timedOut []circle.Execution, err error) {
	defer func(begin time.Time) {
		sweepDuration.With(fluxmetrics.LabelSuccess, fmt.Sprint(err == nil)).Observe(time.Since(begin).Seconds())
	}(time.Now())

	err = t.store.Transaction(ctx, func(tx store.Store) error {
		timedOut = nil
		candidates, err := tx.TimeoutCandidates(ctx)
		if err != nil {
			return err
		}
		for _, e := range candidates {
			if e.Deployment == nil || !e.Deployment.Deadline(e.CreatedAt).Before(now) {
				continue
			}
			detail := TimeoutDetail(*e.Deployment)
			err := tx.TimeOutExecution(ctx, e.ID, detail, now)
			switch {
			case store.IsStale(err):
				// another sweep got there first
				continue
			case err != nil:
				return err
			}
			if err := tx.SetComponentsRunning(ctx, e.DeploymentID, false); err != nil {
				return err
			}
			finished := now
			e.Status, e.Error, e.FinishedAt = circle.StatusTimedOut, detail, &finished
			timedOut = append(timedOut, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, e := range timedOut {
		t.logger.Log("execution", e.ID, "deployment", e.DeploymentID, "status", e.Status, "err", e.Error)
	}
	sweepTimedOut.Add(float64(len(timedOut)))
	return timedOut, nil
}

// TimeoutDetail is the error recorded against a timed out execution
// of the deployment.
func TimeoutDetail(d circle.Deployment) string {
	return errors.Wrapf(ErrHealthTimeout, "timeout of %s exceeded", d.Timeout()).Error()
}
