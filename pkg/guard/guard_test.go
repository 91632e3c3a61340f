package guard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/circles/pkg/circle"
	fluxerr "github.com/fluxcd/circles/pkg/errors"
	"github.com/fluxcd/circles/pkg/store/sqlstore"
	"github.com/fluxcd/circles/pkg/store/storetest"
)

func TestAdmit(t *testing.T) {
	ctx := context.Background()
	s := sqlstore.OpenTestDB(t)
	g := New(s)

	// nothing deployed yet
	require.NoError(t, g.Admit(ctx, "a", "main", true))

	d := storetest.Deployment("d1", "main", "a", 0)
	d.DefaultCircle = true
	storetest.SeedCurrent(t, s, d)

	assert.NoError(t, g.Admit(ctx, "a", "main", true))

	err := g.Admit(ctx, "b", "main", true)
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.True(t, fluxerr.IsConflict(err))

	// non-default deployments, and other circles, are not checked
	assert.NoError(t, g.Admit(ctx, "b", "main", false))
	assert.NoError(t, g.Admit(ctx, "b", "other", true))

	// a non-default deployment does not pin the namespace
	storetest.SeedCurrent(t, s, storetest.Deployment("d2", "beta", "a", 1))
	assert.NoError(t, g.Admit(ctx, "b", "beta", true))

	// nor does one that failed
	failed := storetest.Deployment("d3", "beta", "c", 2)
	failed.DefaultCircle = true
	e := storetest.SeedExecution(t, s, storetest.Seed(t, s, failed), circle.TypeDeployment)
	require.NoError(t, s.TransitionExecution(ctx, e.ID, circle.From(circle.StatusDeployFailed), circle.StatusDeployFailed, "boom", storetest.Epoch))
	assert.NoError(t, g.Admit(ctx, "b", "beta", true))
}

func TestAdmitDefaultInProgress(t *testing.T) {
	ctx := context.Background()
	s := sqlstore.OpenTestDB(t)
	g := New(s)

	d := storetest.Deployment("d1", "main", "a", 0)
	d.DefaultCircle = true
	storetest.SeedExecution(t, s, storetest.Seed(t, s, d), circle.TypeDeployment)

	// not current yet, but on its way
	assert.NoError(t, g.Admit(ctx, "a", "main", true))
	err := g.Admit(ctx, "b", "main", true)
	require.Error(t, err)
	assert.True(t, IsConflict(err))
}
