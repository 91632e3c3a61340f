// Package routing keeps the traffic routing of each circle group in
// line with the group's active deployments.
package routing

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
	"github.com/fluxcd/circles/pkg/keyed"
	"github.com/fluxcd/circles/pkg/manifest"
	fluxmetrics "github.com/fluxcd/circles/pkg/metrics"
	"github.com/fluxcd/circles/pkg/store"
)

// SyncSetName names the routing objects of a group, so those no
// longer wanted can be found and deleted.
const SyncSetName = "routing"

var reconcileDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
	Namespace: "circles",
	Subsystem: "routing",
	Name:      "reconcile_duration_seconds",
	Help:      "Duration of routing reconciliations, in seconds.",
	Buckets:   stdprometheus.DefBuckets,
}, []string{fluxmetrics.LabelSuccess})

// Options are applied to every group's routing.
type Options struct {
	Gateways []string
	Labels   map[string]string
}

// Result describes a successful reconciliation.
type Result struct {
	Group string
	// Routed are the deployments now receiving traffic, by circle id.
	Routed  []circle.DeploymentID
	Objects int
}

type Reconciler struct {
	store   store.Store
	gateway cluster.Gateway
	options Options
	logger  log.Logger
	groups  keyed.Mutex
}

func NewReconciler(s store.Store, gateway cluster.Gateway, options Options, logger log.Logger) *Reconciler {
	return &Reconciler{
		store:   s,
		gateway: gateway,
		options: options,
		logger:  logger,
	}
}

// Reconcile routes the group's traffic to its active deployments,
// replacing whatever routing the group had. On success, exactly the
// deployments routed to are marked routed. Reconciliations of the
// same group are serialised.
func (r *Reconciler) Reconcile(ctx context.Context, group string) (result Result, err error) {
	defer func(begin time.Time) {
		reconcileDuration.With(fluxmetrics.LabelSuccess, fmt.Sprint(err == nil)).Observe(time.Since(begin).Seconds())
	}(time.Now())

	unlock := r.groups.Lock(group)
	defer unlock()

	logger := log.With(r.logger, "group", group)
	result.Group = group

	active, err := r.store.ActiveDeployments(ctx, group)
	if err != nil {
		return result, err
	}
	latest := latestPerCircle(active)

	set := cluster.SyncSet{Name: SyncSetName, Namespace: group}
	if len(latest) > 0 {
		in := manifest.Input{
			Namespace: group,
			Gateways:  r.options.Gateways,
			Labels:    r.options.Labels,
		}
		for _, d := range latest {
			in.Circles = append(in.Circles, circleSpec(d))
		}
		built, err := manifest.Build(in)
		if err != nil {
			return result, err
		}
		if set.Resources, err = built.Objects(); err != nil {
			return result, err
		}
	}

	if err := r.gateway.Sync(ctx, set); err != nil {
		logger.Log("err", err)
		return result, cluster.ApplyError(errors.Wrapf(err, "syncing routing for %s", group))
	}

	for _, d := range latest {
		result.Routed = append(result.Routed, d.ID)
	}
	if err := r.store.MarkRouted(ctx, group, result.Routed); err != nil {
		return result, err
	}
	result.Objects = len(set.Resources)
	logger.Log("circles", len(latest), "objects", result.Objects)
	return result, nil
}

// latestPerCircle keeps, for each circle, the most recently created
// of the deployments, which must be ordered oldest first.
func latestPerCircle(ds []circle.Deployment) []circle.Deployment {
	index := map[circle.CircleID]int{}
	var out []circle.Deployment
	for _, d := range ds {
		if i, ok := index[d.CircleID]; ok {
			out[i] = d
			continue
		}
		index[d.CircleID] = len(out)
		out = append(out, d)
	}
	return out
}

func circleSpec(d circle.Deployment) manifest.CircleSpec {
	spec := manifest.CircleSpec{
		ID:           d.CircleID,
		DeploymentID: d.ID,
		Default:      d.DefaultCircle,
	}
	for _, c := range d.Components {
		spec.Components = append(spec.Components, manifest.ComponentRef{
			Name:    c.Name,
			Tag:     c.ImageTag,
			Host:    c.HostValue,
			Gateway: c.GatewayName,
		})
	}
	return spec
}
