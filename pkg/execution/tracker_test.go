package execution

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/circles/pkg/circle"
	"github.com/fluxcd/circles/pkg/store"
	"github.com/fluxcd/circles/pkg/store/sqlstore"
	"github.com/fluxcd/circles/pkg/store/storetest"
)

var ctx = context.Background()

func setup(t *testing.T) (*Tracker, store.Store) {
	s := sqlstore.OpenTestDB(t)
	tracker := NewTracker(s, log.NewNopLogger())
	tracker.now = func() time.Time { return storetest.Epoch.Add(time.Minute) }
	return tracker, s
}

// seed records a running deployment of the circle with a DEPLOYING
// execution created n seconds after the epoch.
func seed(t *testing.T, s store.Store, id circle.DeploymentID, circleID circle.CircleID, n int) circle.Execution {
	d := storetest.Seed(t, s, storetest.Deployment(id, circleID, "shop", n))
	require.NoError(t, s.SetComponentsRunning(ctx, d.ID, true))
	e := storetest.SeedExecution(t, s, d, circle.TypeDeployment)
	require.NoError(t, s.TransitionExecution(ctx, e.ID, circle.From(circle.StatusDeploying), circle.StatusDeploying, "", d.CreatedAt))
	return e
}

func get(t *testing.T, s store.Store, id circle.ExecutionID) circle.Execution {
	e, err := s.GetExecution(ctx, id)
	require.NoError(t, err)
	return e
}

func TestTransition(t *testing.T) {
	tracker, s := setup(t)
	d := storetest.Seed(t, s, storetest.Deployment("d1", "c1", "shop", 0))
	e := storetest.SeedExecution(t, s, d, circle.TypeUndeployment)

	require.NoError(t, tracker.Transition(ctx, e.ID, circle.StatusUndeploying, ""))
	err := tracker.Transition(ctx, e.ID, circle.StatusDeploying, "")
	assert.True(t, store.IsStale(err), "%v", err)

	require.NoError(t, tracker.Transition(ctx, e.ID, circle.StatusUndeployed, ""))
	got := get(t, s, e.ID)
	assert.Equal(t, circle.StatusUndeployed, got.Status)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, storetest.Epoch.Add(time.Minute).Equal(*got.FinishedAt))

	// nothing leaves a terminal status
	for _, to := range []circle.Status{circle.StatusUndeploying, circle.StatusUndeployFailed, circle.StatusDeployFailed} {
		err := tracker.Transition(ctx, e.ID, to, "")
		assert.True(t, store.IsStale(err), "%s: %v", to, err)
	}

	err = tracker.Transition(ctx, e.ID, circle.StatusTimedOut, "")
	assert.Error(t, err)
	assert.False(t, store.IsStale(err))
}

func TestUpdateNotificationStatus(t *testing.T) {
	tracker, s := setup(t)
	e := seed(t, s, "d1", "c1", 0)
	for code, want := range map[int]circle.NotificationStatus{
		204: circle.NotificationSent,
		500: circle.NotificationError,
		0:   circle.NotificationError,
		200: circle.NotificationSent,
	} {
		require.NoError(t, tracker.UpdateNotificationStatus(ctx, e.ID, code))
		assert.Equal(t, want, get(t, s, e.ID).NotificationStatus, "status %d", code)
	}
}

func TestClaimNotification(t *testing.T) {
	tracker, s := setup(t)
	e := seed(t, s, "d1", "c1", 0)

	claimed, err := tracker.ClaimNotification(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, circle.NotificationSending, get(t, s, e.ID).NotificationStatus)

	claimed, err = tracker.ClaimNotification(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	// a callback being sent is not timed out from under its sender
	timedOut, err := tracker.Sweep(ctx, storetest.Epoch.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, timedOut)
	assert.Equal(t, circle.StatusDeploying, get(t, s, e.ID).Status)

	require.NoError(t, tracker.UpdateNotificationStatus(ctx, e.ID, 200))
	claimed, err = tracker.ClaimNotification(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	_, err = tracker.ClaimNotification(ctx, "nope")
	assert.True(t, store.IsNotFound(err))
}

func TestSweepTimesOut(t *testing.T) {
	tracker, s := setup(t)
	e := seed(t, s, "d1", "c1", 0)

	// not yet past the 60s deadline
	timedOut, err := tracker.Sweep(ctx, storetest.Epoch.Add(60*time.Second))
	require.NoError(t, err)
	assert.Empty(t, timedOut)
	assert.Equal(t, circle.StatusDeploying, get(t, s, e.ID).Status)

	now := storetest.Epoch.Add(61 * time.Second)
	timedOut, err = tracker.Sweep(ctx, now)
	require.NoError(t, err)
	require.Len(t, timedOut, 1)
	assert.Equal(t, e.ID, timedOut[0].ID)
	assert.Equal(t, circle.StatusTimedOut, timedOut[0].Status)
	require.NotNil(t, timedOut[0].Deployment)

	got := get(t, s, e.ID)
	assert.Equal(t, circle.StatusTimedOut, got.Status)
	assert.Equal(t, circle.NotificationNotSent, got.NotificationStatus)
	assert.Contains(t, got.Error, ErrHealthTimeout.Error())
	require.NotNil(t, got.FinishedAt)
	assert.True(t, now.Equal(*got.FinishedAt))
	for _, c := range got.Deployment.Components {
		assert.False(t, c.Running)
	}

	// a second sweep has nothing to do
	timedOut, err = tracker.Sweep(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, timedOut)
	assert.Equal(t, got, get(t, s, e.ID))

	// a late health confirmation cannot bring it back
	err = tracker.Transition(ctx, e.ID, circle.StatusDeployed, "")
	assert.True(t, store.IsStale(err))
}

func TestSweepLeavesOthersAlone(t *testing.T) {
	tracker, s := setup(t)

	notified := seed(t, s, "notified", "c1", 0)
	require.NoError(t, s.SetNotificationStatus(ctx, notified.ID, circle.NotificationError))

	done := seed(t, s, "done", "c2", 0)
	require.NoError(t, s.MarkHealthy(ctx, done.DeploymentID))
	require.NoError(t, s.MarkRouted(ctx, "shop", []circle.DeploymentID{done.DeploymentID}))

	superseded := seed(t, s, "old", "c3", 0)
	storetest.SeedCurrent(t, s, storetest.Deployment("new", "c3", "shop", 1000))

	before := map[circle.ExecutionID]circle.Execution{}
	for _, e := range []circle.Execution{notified, done, superseded} {
		before[e.ID] = get(t, s, e.ID)
	}

	timedOut, err := tracker.Sweep(ctx, storetest.Epoch.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, timedOut)
	for id, e := range before {
		after := get(t, s, id)
		assert.Equal(t, e, after)
		for _, c := range after.Deployment.Components {
			assert.True(t, c.Running, "components of %s", e.DeploymentID)
		}
	}
}

func TestConcurrentSweeps(t *testing.T) {
	tracker, s := setup(t)
	for i, id := range []circle.DeploymentID{"a", "b", "c"} {
		seed(t, s, id, circle.CircleID("c-"+id), i)
	}

	var (
		mu    sync.Mutex
		total []circle.ExecutionID
		wg    sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			timedOut, err := tracker.Sweep(ctx, storetest.Epoch.Add(time.Hour))
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, e := range timedOut {
				total = append(total, e.ID)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, total, 3)
}

func TestMarkDeployed(t *testing.T) {
	tracker, s := setup(t)
	e := seed(t, s, "d1", "c1", 0)
	require.NoError(t, s.SetComponentsRunning(ctx, "d1", false))
	assert.False(t, get(t, s, e.ID).Deployment.Current)

	current, err := tracker.MarkDeployed(ctx, e)
	require.NoError(t, err)
	assert.True(t, current)
	got := get(t, s, e.ID)
	assert.Equal(t, circle.StatusDeployed, got.Status)
	assert.True(t, got.Deployment.Current)
	assert.True(t, got.Deployment.Healthy)
	assert.True(t, got.Deployment.Routable)
	assert.True(t, got.Deployment.Components[0].Running)

	// already DEPLOYED, so nothing more is written
	require.NoError(t, s.SetRoutable(ctx, "d1", false))
	_, err = tracker.MarkDeployed(ctx, e)
	assert.True(t, store.IsStale(err))
	assert.False(t, get(t, s, e.ID).Deployment.Routable)
}

func TestMarkDeployedSupersedesPrevious(t *testing.T) {
	tracker, s := setup(t)
	v1 := seed(t, s, "v1", "c1", 0)
	_, err := tracker.MarkDeployed(ctx, v1)
	require.NoError(t, err)

	// v1 stays current while v2 is on its way
	v2 := seed(t, s, "v2", "c1", 10)
	assert.True(t, get(t, s, v1.ID).Deployment.Current)
	assert.False(t, get(t, s, v2.ID).Deployment.Current)

	current, err := tracker.MarkDeployed(ctx, v2)
	require.NoError(t, err)
	assert.True(t, current)

	old := get(t, s, v1.ID).Deployment
	assert.False(t, old.Current)
	assert.True(t, old.Superseded)
	assert.True(t, get(t, s, v2.ID).Deployment.Current)

	c, err := s.CurrentDeployment(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, circle.DeploymentID("v2"), c.ID)
}

func TestMarkDeployedAfterNewerCompleted(t *testing.T) {
	tracker, s := setup(t)
	older := seed(t, s, "older", "c1", 0)
	newer := seed(t, s, "newer", "c1", 10)

	_, err := tracker.MarkDeployed(ctx, newer)
	require.NoError(t, err)
	assert.True(t, get(t, s, older.ID).Deployment.Superseded)

	current, err := tracker.MarkDeployed(ctx, older)
	require.NoError(t, err)
	assert.False(t, current)
	assert.Equal(t, circle.StatusDeployed, get(t, s, older.ID).Status)
	assert.False(t, get(t, s, older.ID).Deployment.Current)
	assert.True(t, get(t, s, newer.ID).Deployment.Current)
}

func TestMarkDeployedAfterTimeout(t *testing.T) {
	tracker, s := setup(t)
	e := seed(t, s, "d1", "c1", 0)
	_, err := tracker.Sweep(ctx, storetest.Epoch.Add(time.Hour))
	require.NoError(t, err)

	_, err = tracker.MarkDeployed(ctx, e)
	assert.True(t, store.IsStale(err))
	got := get(t, s, e.ID)
	assert.Equal(t, circle.StatusTimedOut, got.Status)
	assert.False(t, got.Deployment.Healthy)
	assert.False(t, got.Deployment.Current)
}

func TestMarkUndeployed(t *testing.T) {
	tracker, s := setup(t)
	d := storetest.SeedCurrent(t, s, storetest.Deployment("d1", "c1", "shop", 0))
	require.NoError(t, s.MarkHealthy(ctx, d.ID))
	require.NoError(t, s.SetComponentsRunning(ctx, d.ID, true))
	e := storetest.SeedExecution(t, s, d, circle.TypeUndeployment)
	require.NoError(t, tracker.Transition(ctx, e.ID, circle.StatusUndeploying, ""))

	require.NoError(t, tracker.MarkUndeployed(ctx, e))
	got := get(t, s, e.ID)
	assert.Equal(t, circle.StatusUndeployed, got.Status)
	assert.False(t, got.Deployment.Current)
	assert.True(t, got.Deployment.Superseded)
	assert.False(t, got.Deployment.Healthy)
	assert.False(t, got.Deployment.Components[0].Running)
}
