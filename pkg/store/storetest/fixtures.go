package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fluxcd/circles/pkg/circle"
	"github.com/fluxcd/circles/pkg/store"
)

// Epoch is the creation time of the first fixture; later fixtures
// are created a second apart.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Deployment returns a deployment of one component to the circle,
// created `n` seconds after Epoch.
func Deployment(id circle.DeploymentID, circleID circle.CircleID, namespace string, n int) circle.Deployment {
	return circle.Deployment{
		ID:               id,
		AuthorID:         "author",
		CircleID:         circleID,
		Namespace:        namespace,
		CallbackURL:      "http://callback.example.com/" + string(id),
		TimeoutInSeconds: 60,
		Components: []circle.Component{{
			ID:       circle.ComponentID(fmt.Sprintf("%s-svc", id)),
			ModuleID: "mod",
			Name:     "svc",
			ImageURL: "quay.io/acme/svc",
			ImageTag: string(id),
		}},
		CreatedAt: Epoch.Add(time.Duration(n) * time.Second),
	}
}

// Seed records the deployment, creating its circle if need be, and
// returns it as stored.
func Seed(t *testing.T, s store.Store, d circle.Deployment) circle.Deployment {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertCircle(ctx, circle.Circle{
		ID:        d.CircleID,
		Name:      string(d.CircleID),
		Default:   d.DefaultCircle,
		CreatedAt: d.CreatedAt,
	}))
	require.NoError(t, s.CreateDeployment(ctx, d))
	got, err := s.GetDeployment(ctx, d.ID)
	require.NoError(t, err)
	return got
}

// SeedCurrent is Seed, then makes the deployment current for its
// circle.
func SeedCurrent(t *testing.T, s store.Store, d circle.Deployment) circle.Deployment {
	t.Helper()
	Seed(t, s, d)
	current, err := s.MakeCurrent(context.Background(), d.ID)
	require.NoError(t, err)
	require.True(t, current, "deployment %s was superseded", d.ID)
	got, err := s.GetDeployment(context.Background(), d.ID)
	require.NoError(t, err)
	return got
}

// SeedExecution records an execution of the deployment in CREATED,
// created at the deployment's creation time.
func SeedExecution(t *testing.T, s store.Store, d circle.Deployment, typ circle.ExecutionType) circle.Execution {
	t.Helper()
	e := circle.NewExecution(d, typ, d.CreatedAt)
	require.NoError(t, s.CreateExecution(context.Background(), e))
	return e
}
