// Package guard stops a circle's default deployments from moving
// between namespaces.
package guard

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/fluxcd/circles/pkg/circle"
	fluxerr "github.com/fluxcd/circles/pkg/errors"
	"github.com/fluxcd/circles/pkg/store"
)

var ErrNamespaceMismatch = errors.New("namespace mismatch")

// ConflictError is returned when a default deployment targets a
// namespace other than the one the circle's current, or in progress,
// default deployment is in.
func ConflictError(circleID circle.CircleID, current, requested string) *fluxerr.Error {
	return &fluxerr.Error{
		Type: fluxerr.Conflict,
		Err:  errors.Wrapf(ErrNamespaceMismatch, "circle %s is deployed to %q, not %q", circleID, current, requested),
		Help: fmt.Sprintf(`The default circle %q already has a deployment, current or in
progress, in namespace %q. A default circle can only be deployed to one
namespace; deploy to %q, or undeploy the circle first.
`, circleID, current, current),
	}
}

func IsConflict(err error) bool {
	return errors.Cause(err) == ErrNamespaceMismatch
}

type Guard struct {
	deployments store.Deployments
}

func New(deployments store.Deployments) *Guard {
	return &Guard{deployments: deployments}
}

// Admit returns nil if a deployment to the circle in the namespace
// may go ahead. Only default deployments are checked.
func (g *Guard) Admit(ctx context.Context, namespace string, circleID circle.CircleID, defaultCircle bool) error {
	if !defaultCircle {
		return nil
	}
	live, err := g.deployments.LiveDefaultDeployments(ctx, circleID)
	if err != nil {
		return err
	}
	for _, d := range live {
		if d.Namespace != namespace {
			return ConflictError(circleID, d.Namespace, namespace)
		}
	}
	return nil
}
