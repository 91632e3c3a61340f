// Package storetest provides contract tests for store.Store
// implementations, and fixtures for tests that need a populated
// store.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/circles/pkg/circle"
	"github.com/fluxcd/circles/pkg/store"
)

// Factory creates a fresh, empty store for each test.
type Factory func(t *testing.T) store.Store

// Run exercises the store.Store contract.
func Run(t *testing.T, factory Factory) {
	ctx := context.Background()

	t.Run("CreateAndGetDeployment", func(t *testing.T) {
		s := factory(t)
		d := Deployment("d1", "c1", "shop", 0)
		d.DefaultCircle = true
		d.Metadata = &circle.Metadata{Scope: "team", Content: map[string]string{"k": "v"}}
		d.Components = append(d.Components, circle.Component{
			ID: "d1-api", ModuleID: "mod", Name: "api", ImageURL: "quay.io/acme/api", ImageTag: "1",
			HostValue: "api.example.com", GatewayName: "public", LatencyThreshold: 30, ErrorThreshold: 5,
		})

		got := Seed(t, s, d)
		assert.False(t, got.Current)
		assert.False(t, got.Superseded)
		assert.False(t, got.Healthy)
		assert.False(t, got.Routable)
		assert.False(t, got.Routed)
		assert.True(t, d.CreatedAt.Equal(got.CreatedAt))
		assert.Equal(t, d.Metadata, got.Metadata)
		assert.Equal(t, d.Components, got.Components)

		got.CreatedAt = d.CreatedAt
		assert.Equal(t, d, got)
	})

	t.Run("NotFound", func(t *testing.T) {
		s := factory(t)
		_, err := s.GetDeployment(ctx, "nope")
		assert.True(t, store.IsNotFound(err), "deployment: %v", err)
		_, err = s.CurrentDeployment(ctx, "nope")
		assert.True(t, store.IsNotFound(err), "current deployment: %v", err)
		_, err = s.GetExecution(ctx, "nope")
		assert.True(t, store.IsNotFound(err), "execution: %v", err)
		_, err = s.GetModule(ctx, "nope")
		assert.True(t, store.IsNotFound(err), "module: %v", err)
		_, err = s.GetCircle(ctx, "nope")
		assert.True(t, store.IsNotFound(err), "circle: %v", err)
		err = s.MarkHealthy(ctx, "nope")
		assert.True(t, store.IsNotFound(err), "mark healthy: %v", err)
		err = s.SetNotificationStatus(ctx, "nope", circle.NotificationSent)
		assert.True(t, store.IsNotFound(err), "notification status: %v", err)
		_, err = s.MakeCurrent(ctx, "nope")
		assert.True(t, store.IsNotFound(err), "make current: %v", err)
	})

	t.Run("MakeCurrent", func(t *testing.T) {
		s := factory(t)
		Seed(t, s, Deployment("d1", "c1", "shop", 0))
		Seed(t, s, Deployment("other", "c2", "shop", 1))
		_, err := s.CurrentDeployment(ctx, "c1")
		assert.True(t, store.IsNotFound(err), "nothing is current until made so: %v", err)

		for _, id := range []circle.DeploymentID{"d1", "other"} {
			current, err := s.MakeCurrent(ctx, id)
			require.NoError(t, err)
			assert.True(t, current)
		}

		// a newer deployment being recorded changes nothing
		Seed(t, s, Deployment("d2", "c1", "shop", 2))
		current, err := s.CurrentDeployment(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, circle.DeploymentID("d1"), current.ID)

		ok, err := s.MakeCurrent(ctx, "d2")
		require.NoError(t, err)
		assert.True(t, ok)
		d1, err := s.GetDeployment(ctx, "d1")
		require.NoError(t, err)
		assert.False(t, d1.Current)
		assert.True(t, d1.Superseded)
		current, err = s.CurrentDeployment(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, circle.DeploymentID("d2"), current.ID)
		assert.False(t, current.Superseded)

		other, err := s.CurrentDeployment(ctx, "c2")
		require.NoError(t, err)
		assert.Equal(t, circle.DeploymentID("other"), other.ID)

	})

	t.Run("LiveDefaultDeployments", func(t *testing.T) {
		s := factory(t)
		live, err := s.LiveDefaultDeployments(ctx, "main")
		require.NoError(t, err)
		assert.Empty(t, live)

		def := func(id circle.DeploymentID, ns string, n int) circle.Deployment {
			d := Deployment(id, "main", ns, n)
			d.DefaultCircle = true
			return d
		}
		SeedCurrent(t, s, def("current", "a", 0))
		SeedCurrent(t, s, Deployment("other", "beta", "b", 1))

		// in progress
		SeedExecution(t, s, Seed(t, s, def("deploying", "b", 2)), circle.TypeDeployment)
		// failed, so it pins nothing
		failed := SeedExecution(t, s, Seed(t, s, def("failed", "c", 3)), circle.TypeDeployment)
		require.NoError(t, s.TransitionExecution(ctx, failed.ID, circle.From(circle.StatusDeployFailed), circle.StatusDeployFailed, "boom", Epoch))
		// no execution at all
		Seed(t, s, def("bare", "d", 4))

		live, err = s.LiveDefaultDeployments(ctx, "main")
		require.NoError(t, err)
		assert.Equal(t, []circle.DeploymentID{"deploying", "current"}, deploymentIDs(live))

		require.NoError(t, s.Retire(ctx, "current"))
		live, err = s.LiveDefaultDeployments(ctx, "main")
		require.NoError(t, err)
		assert.Equal(t, []circle.DeploymentID{"deploying"}, deploymentIDs(live))
	})

	t.Run("MakeCurrentOutOfOrder", func(t *testing.T) {
		s := factory(t)
		SeedCurrent(t, s, Deployment("live", "c1", "shop", 0))
		Seed(t, s, Deployment("older", "c1", "shop", 1))
		Seed(t, s, Deployment("newer", "c1", "shop", 2))
		Seed(t, s, Deployment("newest", "c1", "shop", 3))

		ok, err := s.MakeCurrent(ctx, "newer")
		require.NoError(t, err)
		assert.True(t, ok)

		states := map[circle.DeploymentID][2]bool{}
		for _, id := range []circle.DeploymentID{"live", "older", "newer", "newest"} {
			d, err := s.GetDeployment(ctx, id)
			require.NoError(t, err)
			states[id] = [2]bool{d.Current, d.Superseded}
		}
		assert.Equal(t, map[circle.DeploymentID][2]bool{
			"live":   {false, true},
			"older":  {false, true},
			"newer":  {true, false},
			"newest": {false, false},
		}, states)

		// a superseded deployment stays that way
		ok, err = s.MakeCurrent(ctx, "older")
		require.NoError(t, err)
		assert.False(t, ok)
		current, err := s.CurrentDeployment(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, circle.DeploymentID("newer"), current.ID)

		ok, err = s.MakeCurrent(ctx, "newest")
		require.NoError(t, err)
		assert.True(t, ok)
		current, err = s.CurrentDeployment(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, circle.DeploymentID("newest"), current.ID)
	})

	t.Run("CreateDuplicateDeployment", func(t *testing.T) {
		s := factory(t)
		d := SeedCurrent(t, s, Deployment("d1", "c1", "shop", 0))
		err := s.CreateDeployment(ctx, d)
		assert.True(t, store.IsAlreadyExists(err), "%v", err)

		// the failed write left the original current
		got, err := s.GetDeployment(ctx, "d1")
		require.NoError(t, err)
		assert.True(t, got.Current)
	})

	t.Run("ActiveDeployments", func(t *testing.T) {
		s := factory(t)
		for i, id := range []circle.DeploymentID{"b", "a", "c", "elsewhere"} {
			ns := "shop"
			if id == "elsewhere" {
				ns = "other"
			}
			SeedCurrent(t, s, Deployment(id, circle.CircleID("c-"+id), ns, i))
			require.NoError(t, s.MarkHealthy(ctx, id))
		}
		SeedCurrent(t, s, Deployment("unhealthy", "c-u", "shop", 10))
		Seed(t, s, Deployment("requested", "c-r", "shop", 11))
		require.NoError(t, s.MarkHealthy(ctx, "requested"))
		require.NoError(t, s.SetRoutable(ctx, "c", false))

		active, err := s.ActiveDeployments(ctx, "shop")
		require.NoError(t, err)
		assert.Equal(t, []circle.DeploymentID{"b", "a"}, deploymentIDs(active))
		for _, d := range active {
			assert.True(t, d.Active())
			assert.Len(t, d.Components, 1)
		}

		require.NoError(t, s.Retire(ctx, "b"))
		active, err = s.ActiveDeployments(ctx, "shop")
		require.NoError(t, err)
		assert.Equal(t, []circle.DeploymentID{"a"}, deploymentIDs(active))

		retired, err := s.GetDeployment(ctx, "b")
		require.NoError(t, err)
		assert.False(t, retired.Current)
		assert.False(t, retired.Healthy)
		assert.False(t, retired.Routable)
	})

	t.Run("MarkRouted", func(t *testing.T) {
		s := factory(t)
		Seed(t, s, Deployment("a", "ca", "shop", 0))
		Seed(t, s, Deployment("b", "cb", "shop", 1))
		Seed(t, s, Deployment("x", "cx", "other", 2))

		require.NoError(t, s.MarkRouted(ctx, "other", []circle.DeploymentID{"x"}))
		require.NoError(t, s.MarkRouted(ctx, "shop", []circle.DeploymentID{"a", "b"}))
		require.NoError(t, s.MarkRouted(ctx, "shop", []circle.DeploymentID{"b"}))

		routed := map[circle.DeploymentID]bool{}
		for _, id := range []circle.DeploymentID{"a", "b", "x"} {
			d, err := s.GetDeployment(ctx, id)
			require.NoError(t, err)
			routed[id] = d.Routed
		}
		assert.Equal(t, map[circle.DeploymentID]bool{"a": false, "b": true, "x": true}, routed)

		require.NoError(t, s.MarkRouted(ctx, "shop", nil))
		b, err := s.GetDeployment(ctx, "b")
		require.NoError(t, err)
		assert.False(t, b.Routed)
	})

	t.Run("SetComponentsRunning", func(t *testing.T) {
		s := factory(t)
		Seed(t, s, Deployment("d1", "c1", "shop", 0))
		require.NoError(t, s.SetComponentsRunning(ctx, "d1", true))
		d, err := s.GetDeployment(ctx, "d1")
		require.NoError(t, err)
		assert.True(t, d.Components[0].Running)

		require.NoError(t, s.SetComponentsRunning(ctx, "d1", false))
		d, err = s.GetDeployment(ctx, "d1")
		require.NoError(t, err)
		assert.False(t, d.Components[0].Running)
	})

	t.Run("TransitionExecution", func(t *testing.T) {
		s := factory(t)
		d := Seed(t, s, Deployment("d1", "c1", "shop", 0))
		e := SeedExecution(t, s, d, circle.TypeDeployment)
		at := Epoch.Add(time.Minute)

		require.NoError(t, s.TransitionExecution(ctx, e.ID, circle.From(circle.StatusDeploying), circle.StatusDeploying, "", at))
		got, err := s.GetExecution(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, circle.StatusDeploying, got.Status)
		assert.Nil(t, got.FinishedAt)
		require.NotNil(t, got.Deployment)
		assert.Equal(t, d.ID, got.Deployment.ID)

		// a second attempt from CREATED finds it has moved on
		err = s.TransitionExecution(ctx, e.ID, circle.From(circle.StatusDeploying), circle.StatusDeploying, "", at)
		assert.True(t, store.IsStale(err), "%v", err)

		require.NoError(t, s.TransitionExecution(ctx, e.ID, circle.From(circle.StatusDeployFailed), circle.StatusDeployFailed, "boom", at))
		got, err = s.GetExecution(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, circle.StatusDeployFailed, got.Status)
		assert.Equal(t, "boom", got.Error)
		require.NotNil(t, got.FinishedAt)
		assert.True(t, at.Equal(*got.FinishedAt))

		err = s.TransitionExecution(ctx, "nope", circle.From(circle.StatusDeploying), circle.StatusDeploying, "", at)
		assert.True(t, store.IsNotFound(err), "%v", err)
	})

	t.Run("NotificationStatus", func(t *testing.T) {
		s := factory(t)
		d := Seed(t, s, Deployment("d1", "c1", "shop", 0))
		e := SeedExecution(t, s, d, circle.TypeDeployment)
		claimed, err := s.ClaimNotification(ctx, e.ID)
		require.NoError(t, err)
		assert.True(t, claimed)
		claimed, err = s.ClaimNotification(ctx, e.ID)
		require.NoError(t, err)
		assert.False(t, claimed, "only one caller claims a callback")

		require.NoError(t, s.SetNotificationStatus(ctx, e.ID, circle.NotificationError))
		got, err := s.GetExecution(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, circle.NotificationError, got.NotificationStatus)

		_, err = s.ClaimNotification(ctx, "nope")
		assert.True(t, store.IsNotFound(err), "%v", err)
	})

	t.Run("TimeoutCandidates", func(t *testing.T) {
		s := factory(t)
		stalled := SeedExecution(t, s, Seed(t, s, Deployment("stalled", "c1", "shop", 0)), circle.TypeDeployment)

		healthyUnrouted := Seed(t, s, Deployment("unrouted", "c2", "shop", 1))
		require.NoError(t, s.MarkHealthy(ctx, healthyUnrouted.ID))
		unrouted := SeedExecution(t, s, healthyUnrouted, circle.TypeDeployment)

		done := Seed(t, s, Deployment("done", "c3", "shop", 2))
		require.NoError(t, s.MarkHealthy(ctx, done.ID))
		require.NoError(t, s.MarkRouted(ctx, "shop", []circle.DeploymentID{done.ID}))
		SeedExecution(t, s, done, circle.TypeDeployment)

		notified := SeedExecution(t, s, Seed(t, s, Deployment("notified", "c4", "shop", 3)), circle.TypeDeployment)
		require.NoError(t, s.SetNotificationStatus(ctx, notified.ID, circle.NotificationSent))

		superseded := Seed(t, s, Deployment("old", "c5", "shop", 4))
		SeedExecution(t, s, superseded, circle.TypeDeployment)
		newer := SeedExecution(t, s, SeedCurrent(t, s, Deployment("new", "c5", "shop", 5)), circle.TypeDeployment)

		sending := SeedExecution(t, s, Seed(t, s, Deployment("sending", "c6", "shop", 6)), circle.TypeDeployment)
		claimed, err := s.ClaimNotification(ctx, sending.ID)
		require.NoError(t, err)
		require.True(t, claimed)

		candidates, err := s.TimeoutCandidates(ctx)
		require.NoError(t, err)
		assert.Equal(t, []circle.ExecutionID{stalled.ID, unrouted.ID, newer.ID}, executionIDs(candidates))
		for _, c := range candidates {
			require.NotNil(t, c.Deployment)
			assert.Equal(t, c.DeploymentID, c.Deployment.ID)
		}

		at := Epoch.Add(time.Hour)
		require.NoError(t, s.TimeOutExecution(ctx, stalled.ID, "timed out", at))
		got, err := s.GetExecution(ctx, stalled.ID)
		require.NoError(t, err)
		assert.Equal(t, circle.StatusTimedOut, got.Status)
		assert.Equal(t, "timed out", got.Error)
		require.NotNil(t, got.FinishedAt)

		// no longer a candidate, so a second attempt is refused
		err = s.TimeOutExecution(ctx, stalled.ID, "timed out", at)
		assert.True(t, store.IsStale(err), "%v", err)
		err = s.TimeOutExecution(ctx, notified.ID, "timed out", at)
		assert.True(t, store.IsStale(err), "%v", err)
		err = s.TimeOutExecution(ctx, sending.ID, "timed out", at)
		assert.True(t, store.IsStale(err), "%v", err)

		candidates, err = s.TimeoutCandidates(ctx)
		require.NoError(t, err)
		assert.Equal(t, []circle.ExecutionID{unrouted.ID, newer.ID}, executionIDs(candidates))
	})

	t.Run("PendingNotifications", func(t *testing.T) {
		s := factory(t)
		d := Seed(t, s, Deployment("d1", "c1", "shop", 0))
		deployed := SeedExecution(t, s, d, circle.TypeDeployment)
		for _, to := range []circle.Status{circle.StatusDeploying, circle.StatusDeployed} {
			require.NoError(t, s.TransitionExecution(ctx, deployed.ID, circle.From(to), to, "", Epoch))
		}
		SeedExecution(t, s, d, circle.TypeDeployment)
		SeedExecution(t, s, d, circle.TypeUndeployment)

		pending, err := s.PendingNotifications(ctx, []circle.DeploymentID{"d1", "unknown"})
		require.NoError(t, err)
		assert.Equal(t, []circle.ExecutionID{deployed.ID}, executionIDs(pending))

		require.NoError(t, s.SetNotificationStatus(ctx, deployed.ID, circle.NotificationSent))
		pending, err = s.PendingNotifications(ctx, []circle.DeploymentID{"d1"})
		require.NoError(t, err)
		assert.Empty(t, pending)

		pending, err = s.PendingNotifications(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("ListExecutions", func(t *testing.T) {
		s := factory(t)
		var ids []circle.ExecutionID
		for i, id := range []circle.DeploymentID{"d0", "d1", "d2", "d3", "d4"} {
			ids = append(ids, SeedExecution(t, s, Seed(t, s, Deployment(id, "c1", "shop", i)), circle.TypeDeployment).ID)
		}
		_, err := s.MakeCurrent(ctx, "d4")
		require.NoError(t, err)

		page, err := s.ListExecutions(ctx, store.ExecutionQuery{PageRequest: circle.PageRequest{Page: 0, Size: 2}})
		require.NoError(t, err)
		assert.Equal(t, circle.Page{Page: 0, Size: 2, Total: 5, Last: false}, page.Page)
		assert.Equal(t, []circle.ExecutionID{ids[4], ids[3]}, executionIDs(page.Content))
		require.NotNil(t, page.Content[0].Deployment)
		assert.Equal(t, circle.DeploymentID("d4"), page.Content[0].Deployment.ID)

		page, err = s.ListExecutions(ctx, store.ExecutionQuery{PageRequest: circle.PageRequest{Page: 2, Size: 2}})
		require.NoError(t, err)
		assert.True(t, page.Last)
		assert.Equal(t, []circle.ExecutionID{ids[0]}, executionIDs(page.Content))

		current := true
		page, err = s.ListExecutions(ctx, store.ExecutionQuery{Current: &current})
		require.NoError(t, err)
		assert.Equal(t, 1, page.Total)
		assert.Equal(t, []circle.ExecutionID{ids[4]}, executionIDs(page.Content))

		current = false
		page, err = s.ListExecutions(ctx, store.ExecutionQuery{Current: &current})
		require.NoError(t, err)
		assert.Equal(t, 4, page.Total)
		assert.Equal(t, circle.DefaultPageSize, page.Size)

		page, err = s.ListExecutions(ctx, store.ExecutionQuery{PageRequest: circle.PageRequest{Page: 9}})
		require.NoError(t, err)
		assert.NotNil(t, page.Content)
		assert.Empty(t, page.Content)
	})

	t.Run("Modules", func(t *testing.T) {
		s := factory(t)
		m := circle.Module{
			ID:         "mod",
			Name:       "shop",
			Components: []circle.ModuleComponent{{ID: "a", Name: "api", LatencyThreshold: 10}},
			CreatedAt:  Epoch,
		}
		require.NoError(t, s.CreateModule(ctx, m))
		err := s.CreateModule(ctx, m)
		assert.True(t, store.IsAlreadyExists(err), "%v", err)

		require.NoError(t, s.AddModuleComponents(ctx, "mod", []circle.ModuleComponent{
			{ID: "b", Name: "web"},
			{ID: "a", Name: "renamed"},
		}))
		got, err := s.GetModule(ctx, "mod")
		require.NoError(t, err)
		assert.Equal(t, "shop", got.Name)
		assert.True(t, Epoch.Equal(got.CreatedAt))
		assert.Equal(t, []circle.ModuleComponent{
			{ID: "a", Name: "api", LatencyThreshold: 10},
			{ID: "b", Name: "web"},
		}, got.Components)
	})

	t.Run("Circles", func(t *testing.T) {
		s := factory(t)
		for i, c := range []circle.Circle{
			{ID: "main", Name: "Main", Default: true, WorkspaceID: "w1"},
			{ID: "beta", Name: "Beta testers", WorkspaceID: "w1"},
			{ID: "promo", Name: "50% off", WorkspaceID: "w2"},
		} {
			c.CreatedAt = Epoch.Add(time.Duration(i) * time.Second)
			require.NoError(t, s.UpsertCircle(ctx, c))
		}
		require.NoError(t, s.UpsertCircle(ctx, circle.Circle{ID: "beta", Name: "Beta", WorkspaceID: "w1", CreatedAt: Epoch.Add(time.Hour)}))
		require.NoError(t, s.CreateDeployment(ctx, Deployment("d1", "beta", "shop", 0)))
		requested, err := s.GetCircle(ctx, "beta")
		require.NoError(t, err)
		assert.False(t, requested.Active, "not active until a deployment is current")
		_, err = s.MakeCurrent(ctx, "d1")
		require.NoError(t, err)

		beta, err := s.GetCircle(ctx, "beta")
		require.NoError(t, err)
		assert.Equal(t, "Beta", beta.Name)
		assert.True(t, beta.Active)
		assert.True(t, Epoch.Add(time.Second).Equal(beta.CreatedAt), "upsert keeps the creation time")

		page, err := s.ListCircles(ctx, store.CircleQuery{})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		assert.Equal(t, []circle.CircleID{"promo", "beta", "main"}, circleIDs(page.Content))

		active := true
		page, err = s.ListCircles(ctx, store.CircleQuery{Active: &active})
		require.NoError(t, err)
		assert.Equal(t, []circle.CircleID{"beta"}, circleIDs(page.Content))

		active = false
		page, err = s.ListCircles(ctx, store.CircleQuery{Active: &active, WorkspaceID: "w1"})
		require.NoError(t, err)
		assert.Equal(t, []circle.CircleID{"main"}, circleIDs(page.Content))

		page, err = s.ListCircles(ctx, store.CircleQuery{Name: "BET"})
		require.NoError(t, err)
		assert.Equal(t, []circle.CircleID{"beta"}, circleIDs(page.Content))

		page, err = s.ListCircles(ctx, store.CircleQuery{Name: "0%"})
		require.NoError(t, err)
		assert.Equal(t, []circle.CircleID{"promo"}, circleIDs(page.Content))

		page, err = s.ListCircles(ctx, store.CircleQuery{Name: "%"})
		require.NoError(t, err)
		assert.Equal(t, []circle.CircleID{"promo"}, circleIDs(page.Content))

		page, err = s.ListCircles(ctx, store.CircleQuery{PageRequest: circle.PageRequest{Page: 1, Size: 2}})
		require.NoError(t, err)
		assert.True(t, page.Last)
		assert.Equal(t, []circle.CircleID{"main"}, circleIDs(page.Content))
	})

	t.Run("TransactionRollsBack", func(t *testing.T) {
		s := factory(t)
		SeedCurrent(t, s, Deployment("d1", "c1", "shop", 0))
		boom := errors.New("boom")

		err := s.Transaction(ctx, func(tx store.Store) error {
			require.NoError(t, tx.MarkHealthy(ctx, "d1"))
			return tx.Transaction(ctx, func(nested store.Store) error {
				require.NoError(t, nested.CreateDeployment(ctx, Deployment("d2", "c1", "shop", 1)))
				_, err := nested.MakeCurrent(ctx, "d2")
				require.NoError(t, err)
				return boom
			})
		})
		assert.Equal(t, boom, err)

		d1, err := s.GetDeployment(ctx, "d1")
		require.NoError(t, err)
		assert.True(t, d1.Current)
		assert.False(t, d1.Healthy)
		_, err = s.GetDeployment(ctx, "d2")
		assert.True(t, store.IsNotFound(err))
	})

	t.Run("TransactionCommits", func(t *testing.T) {
		s := factory(t)
		Seed(t, s, Deployment("d1", "c1", "shop", 0))
		require.NoError(t, s.Transaction(ctx, func(tx store.Store) error {
			if err := tx.MarkHealthy(ctx, "d1"); err != nil {
				return err
			}
			return tx.MarkRouted(ctx, "shop", []circle.DeploymentID{"d1"})
		}))
		d1, err := s.GetDeployment(ctx, "d1")
		require.NoError(t, err)
		assert.True(t, d1.Healthy)
		assert.True(t, d1.Routed)
	})
}

func deploymentIDs(ds []circle.Deployment) []circle.DeploymentID {
	var ids []circle.DeploymentID
	for _, d := range ds {
		ids = append(ids, d.ID)
	}
	return ids
}

func executionIDs(es []circle.Execution) []circle.ExecutionID {
	var ids []circle.ExecutionID
	for _, e := range es {
		ids = append(ids, e.ID)
	}
	return ids
}

func circleIDs(cs []circle.Circle) []circle.CircleID {
	var ids []circle.CircleID
	for _, c := range cs {
		ids = append(ids, c.ID)
	}
	return ids
}
