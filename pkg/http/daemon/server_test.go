package daemon

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/circles/pkg/api/v1"
	"github.com/fluxcd/circles/pkg/circle"
	fluxerr "github.com/fluxcd/circles/pkg/errors"
	transport "github.com/fluxcd/circles/pkg/http"
	"github.com/fluxcd/circles/pkg/http/client"
)

// mockServer implements api.Server with a func field per method;
// methods whose func is nil return zero values.
type mockServer struct {
	CreateDeploymentFunc   func(v1.CreateDeploymentRequest) (v1.CreateDeploymentResponse, error)
	GetDeploymentFunc      func(circle.DeploymentID) (circle.Deployment, error)
	UndeployDeploymentFunc func(circle.DeploymentID) (circle.Execution, error)
	ListExecutionsFunc     func(v1.ListExecutionsOptions) (circle.ExecutionPage, error)
	GetExecutionFunc       func(circle.ExecutionID) (circle.Execution, error)
	ListCirclesFunc        func(v1.ListCirclesOptions) (circle.CirclePage, error)
	ReconcileGroupFunc     func(string) error
	SweepFunc              func() (v1.SweepResult, error)
}

func (m *mockServer) Ping(context.Context) error { return nil }

func (m *mockServer) Version(context.Context) (string, error) { return "v1.2.3", nil }

func (m *mockServer) CreateDeployment(_ context.Context, req v1.CreateDeploymentRequest) (v1.CreateDeploymentResponse, error) {
	return m.CreateDeploymentFunc(req)
}

func (m *mockServer) GetDeployment(_ context.Context, id circle.DeploymentID) (circle.Deployment, error) {
	return m.GetDeploymentFunc(id)
}

func (m *mockServer) UndeployDeployment(_ context.Context, id circle.DeploymentID) (circle.Execution, error) {
	return m.UndeployDeploymentFunc(id)
}

func (m *mockServer) ListExecutions(_ context.Context, opts v1.ListExecutionsOptions) (circle.ExecutionPage, error) {
	return m.ListExecutionsFunc(opts)
}

func (m *mockServer) GetExecution(_ context.Context, id circle.ExecutionID) (circle.Execution, error) {
	return m.GetExecutionFunc(id)
}

func (m *mockServer) ListCircles(_ context.Context, opts v1.ListCirclesOptions) (circle.CirclePage, error) {
	return m.ListCirclesFunc(opts)
}

func (m *mockServer) ReconcileGroup(_ context.Context, namespace string) error {
	return m.ReconcileGroupFunc(namespace)
}

func (m *mockServer) Sweep(context.Context) (v1.SweepResult, error) {
	return m.SweepFunc()
}

func setup(t *testing.T, m *mockServer) (*client.Client, *httptest.Server) {
	srv := httptest.NewServer(NewHandler(m, NewRouter()))
	t.Cleanup(srv.Close)
	return client.New(http.DefaultClient, transport.NewAPIRouter(), srv.URL), srv
}

func request() v1.CreateDeploymentRequest {
	return v1.CreateDeploymentRequest{
		AuthorID:      "author",
		CircleID:      "c1",
		Namespace:     "shop",
		CallbackURL:   "http://callbacks.example.com/",
		DefaultCircle: true,
		Components: []v1.ComponentRequest{{
			ComponentID: "comp", ModuleID: "mod", Name: "svc", ImageURL: "svc", ImageTag: "v1",
		}},
	}
}

func TestPingVersion(t *testing.T) {
	c, _ := setup(t, &mockServer{})
	require.NoError(t, c.Ping(context.Background()))
	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1.2.3", v)
}

func TestCreateDeployment(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var got v1.CreateDeploymentRequest
	c, srv := setup(t, &mockServer{
		CreateDeploymentFunc: func(req v1.CreateDeploymentRequest) (v1.CreateDeploymentResponse, error) {
			got = req
			d := req.Deployment()
			d.ID = "d1"
			d.CreatedAt = created
			return v1.CreateDeploymentResponse{
				Deployment: d,
				Execution:  circle.NewExecution(d, circle.TypeDeployment, created),
			}, nil
		},
	})

	res, err := c.CreateDeployment(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, request(), got)
	assert.Equal(t, circle.DeploymentID("d1"), res.Deployment.ID)
	assert.True(t, res.Deployment.CreatedAt.Equal(created))
	assert.Equal(t, circle.StatusCreated, res.Execution.Status)
	assert.Equal(t, circle.DeploymentID("d1"), res.Execution.DeploymentID)

	resp, err := http.Post(srv.URL+"/v1/deployments", "application/json", bytes.NewBufferString(`{"circleId": "c1"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestCreateDeploymentInvalid(t *testing.T) {
	called := false
	c, _ := setup(t, &mockServer{
		CreateDeploymentFunc: func(v1.CreateDeploymentRequest) (v1.CreateDeploymentResponse, error) {
			called = true
			return v1.CreateDeploymentResponse{}, nil
		},
	})
	req := request()
	req.Components = nil
	_, err := c.CreateDeployment(context.Background(), req)
	require.Error(t, err)
	assert.True(t, v1.IsValidationError(err))
	assert.False(t, called)
}

func TestErrorTypesSurvive(t *testing.T) {
	for name, tc := range map[string]struct {
		err   *fluxerr.Error
		check func(error) bool
	}{
		"missing":  {&fluxerr.Error{Type: fluxerr.Missing, Err: errors.New("no such deployment")}, fluxerr.IsMissing},
		"conflict": {&fluxerr.Error{Type: fluxerr.Conflict, Err: errors.New("wrong namespace")}, fluxerr.IsConflict},
		"user":     {&fluxerr.Error{Type: fluxerr.User, Err: errors.New("not current")}, fluxerr.IsUser},
	} {
		t.Run(name, func(t *testing.T) {
			c, _ := setup(t, &mockServer{
				GetDeploymentFunc: func(circle.DeploymentID) (circle.Deployment, error) {
					return circle.Deployment{}, tc.err
				},
			})
			_, err := c.GetDeployment(context.Background(), "d1")
			require.Error(t, err)
			assert.True(t, tc.check(err))
			assert.Equal(t, tc.err.Err.Error(), errors.Cause(err).(*fluxerr.Error).Err.Error())
		})
	}
}

func TestStatusCodes(t *testing.T) {
	_, srv := setup(t, &mockServer{
		GetDeploymentFunc: func(circle.DeploymentID) (circle.Deployment, error) {
			return circle.Deployment{}, &fluxerr.Error{Type: fluxerr.Conflict, Err: errors.New("conflict")}
		},
		GetExecutionFunc: func(circle.ExecutionID) (circle.Execution, error) {
			return circle.Execution{}, errors.New("database on fire")
		},
	})
	for path, code := range map[string]int{
		"/v1/deployments/d1": http.StatusConflict,
		"/v1/executions/e1":  http.StatusInternalServerError,
		"/v1/nonesuch":       http.StatusNotFound,
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, code, resp.StatusCode, path)
	}
}

func TestUndeploy(t *testing.T) {
	var got circle.DeploymentID
	c, _ := setup(t, &mockServer{
		UndeployDeploymentFunc: func(id circle.DeploymentID) (circle.Execution, error) {
			got = id
			return circle.Execution{ID: "e2", DeploymentID: id, Type: circle.TypeUndeployment}, nil
		},
	})
	e, err := c.UndeployDeployment(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, circle.DeploymentID("d1"), got)
	assert.Equal(t, circle.ExecutionID("e2"), e.ID)
}

func TestListOptions(t *testing.T) {
	var execOpts v1.ListExecutionsOptions
	var circleOpts v1.ListCirclesOptions
	c, srv := setup(t, &mockServer{
		ListExecutionsFunc: func(opts v1.ListExecutionsOptions) (circle.ExecutionPage, error) {
			execOpts = opts
			return circle.ExecutionPage{
				Page:    circle.Page{Page: opts.Page, Size: 5, Total: 1, Last: true},
				Content: []circle.Execution{{ID: "e1"}},
			}, nil
		},
		ListCirclesFunc: func(opts v1.ListCirclesOptions) (circle.CirclePage, error) {
			circleOpts = opts
			return circle.CirclePage{Content: []circle.Circle{}}, nil
		},
	})

	current := true
	page, err := c.ListExecutions(context.Background(), v1.ListExecutionsOptions{
		PageRequest: circle.PageRequest{Page: 2, Size: 5},
		Current:     &current,
	})
	require.NoError(t, err)
	assert.Equal(t, circle.PageRequest{Page: 2, Size: 5}, execOpts.PageRequest)
	require.NotNil(t, execOpts.Current)
	assert.True(t, *execOpts.Current)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, []circle.Execution{{ID: "e1"}}, page.Content)

	_, err = c.ListExecutions(context.Background(), v1.ListExecutionsOptions{})
	require.NoError(t, err)
	assert.Nil(t, execOpts.Current)

	inactive := false
	_, err = c.ListCircles(context.Background(), v1.ListCirclesOptions{Name: "beta", Active: &inactive, WorkspaceID: "ws"})
	require.NoError(t, err)
	assert.Equal(t, "beta", circleOpts.Name)
	assert.Equal(t, "ws", circleOpts.WorkspaceID)
	require.NotNil(t, circleOpts.Active)
	assert.False(t, *circleOpts.Active)

	resp, err := http.Get(srv.URL + "/v1/executions?page=two")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReconcileAndSweep(t *testing.T) {
	var group string
	c, _ := setup(t, &mockServer{
		ReconcileGroupFunc: func(namespace string) error {
			group = namespace
			return nil
		},
		SweepFunc: func() (v1.SweepResult, error) {
			return v1.SweepResult{TimedOut: []circle.ExecutionID{"e1", "e2"}}, nil
		},
	})
	require.NoError(t, c.ReconcileGroup(context.Background(), "shop"))
	assert.Equal(t, "shop", group)

	res, err := c.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []circle.ExecutionID{"e1", "e2"}, res.TimedOut)
}
