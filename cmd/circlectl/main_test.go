package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/fluxcd/circles/pkg/api/v1"
	"github.com/fluxcd/circles/pkg/circle"
	fluxerr "github.com/fluxcd/circles/pkg/errors"
	daemonhttp "github.com/fluxcd/circles/pkg/http/daemon"
)

type fakeServer struct {
	created       []v1.CreateDeploymentRequest
	undeployed    []circle.DeploymentID
	executionOpts []v1.ListExecutionsOptions
	circleOpts    []v1.ListCirclesOptions
	reconciled    []string
	timedOut      []circle.ExecutionID
}

func (f *fakeServer) Ping(context.Context) error { return nil }

func (f *fakeServer) Version(context.Context) (string, error) { return "v0.0.1", nil }

func (f *fakeServer) CreateDeployment(_ context.Context, req v1.CreateDeploymentRequest) (v1.CreateDeploymentResponse, error) {
	f.created = append(f.created, req)
	d := req.Deployment()
	d.ID = "d1"
	ex := circle.NewExecution(d, circle.TypeDeployment, time.Now())
	ex.ID = "e1"
	return v1.CreateDeploymentResponse{Deployment: d, Execution: ex}, nil
}

func (f *fakeServer) GetDeployment(_ context.Context, id circle.DeploymentID) (circle.Deployment, error) {
	if id != "d1" {
		return circle.Deployment{}, &fluxerr.Error{Type: fluxerr.Missing, Err: errors.New("deployment not found")}
	}
	return circle.Deployment{ID: id, CircleID: "c1", Namespace: "shop"}, nil
}

func (f *fakeServer) UndeployDeployment(_ context.Context, id circle.DeploymentID) (circle.Execution, error) {
	f.undeployed = append(f.undeployed, id)
	return circle.Execution{ID: "e2", DeploymentID: id, Type: circle.TypeUndeployment, Status: circle.StatusCreated}, nil
}

func (f *fakeServer) ListExecutions(_ context.Context, opts v1.ListExecutionsOptions) (circle.ExecutionPage, error) {
	f.executionOpts = append(f.executionOpts, opts)
	return circle.ExecutionPage{
		Page: circle.Page{Page: opts.Page, Size: opts.Size, Total: 3, Last: false},
		Content: []circle.Execution{{
			ID: "e1", DeploymentID: "d1", Type: circle.TypeDeployment, IncomingCircleID: "c1",
			Status: circle.StatusDeployed, NotificationStatus: circle.NotificationSent,
			CreatedAt: time.Now().Add(-time.Minute),
		}},
	}, nil
}

func (f *fakeServer) GetExecution(_ context.Context, id circle.ExecutionID) (circle.Execution, error) {
	return circle.Execution{ID: id, DeploymentID: "d1", Status: circle.StatusDeploying}, nil
}

func (f *fakeServer) ListCircles(_ context.Context, opts v1.ListCirclesOptions) (circle.CirclePage, error) {
	f.circleOpts = append(f.circleOpts, opts)
	return circle.CirclePage{
		Page:    circle.Page{Page: 0, Size: 20, Total: 1, Last: true},
		Content: []circle.Circle{{ID: "c1", Name: "beta", Default: false, Active: true}},
	}, nil
}

func (f *fakeServer) ReconcileGroup(_ context.Context, namespace string) error {
	f.reconciled = append(f.reconciled, namespace)
	return nil
}

func (f *fakeServer) Sweep(context.Context) (v1.SweepResult, error) {
	return v1.SweepResult{TimedOut: f.timedOut}, nil
}

func setup(t *testing.T) (*fakeServer, string) {
	f := &fakeServer{}
	srv := httptest.NewServer(daemonhttp.NewHandler(f, daemonhttp.NewRouter()))
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func execute(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	cmd := newRoot().Command()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	if url != "" {
		args = append(args, "--url", url)
	}
	cmd.SetArgs(args)
	_, err := cmd.ExecuteC()
	return out.String(), err
}

const requestYAML = `
authorId: author
circleId: c1
namespace: shop
callbackUrl: http://callbacks.example.com/
defaultCircle: true
components:
- componentId: comp
  moduleId: mod
  name: svc
  imageUrl: quay.io/acme/svc
  imageTag: v1
`

func writeRequest(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "request.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)

	_, err = execute(t, "", "version", "extra")
	assert.Equal(t, errorWantedNoArgs, err)
}

func TestDeploy(t *testing.T) {
	f, url := setup(t)
	out, err := execute(t, url, "deploy", "-f", writeRequest(t, requestYAML))
	require.NoError(t, err)
	assert.Contains(t, out, "Deployment d1 to circle c1 accepted; execution e1 is CREATED")

	require.Len(t, f.created, 1)
	assert.Equal(t, "shop", f.created[0].Namespace)
	assert.Equal(t, "quay.io/acme/svc", f.created[0].Components[0].ImageURL)
}

func TestDeployStdinYAMLOutput(t *testing.T) {
	_, url := setup(t)
	cmd := newRoot().Command()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(requestYAML))
	cmd.SetArgs([]string{"deploy", "-f", "-", "-o", "yaml", "--url", url})
	require.NoError(t, cmd.Execute())

	var resp v1.CreateDeploymentResponse
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, circle.DeploymentID("d1"), resp.Deployment.ID)
	assert.Equal(t, circle.StatusCreated, resp.Execution.Status)
}

func TestDeployInvalid(t *testing.T) {
	f, url := setup(t)
	_, err := execute(t, url, "deploy", "-f", writeRequest(t, "circleId: c1\n"))
	require.Error(t, err)
	assert.True(t, v1.IsValidationError(err))
	assert.Empty(t, f.created)

	_, err = execute(t, url, "deploy")
	assert.IsType(t, usageError{}, err)
}

func TestUndeploy(t *testing.T) {
	f, url := setup(t)
	out, err := execute(t, url, "undeploy", "d1")
	require.NoError(t, err)
	assert.Equal(t, []circle.DeploymentID{"d1"}, f.undeployed)
	assert.Contains(t, out, "execution e2 is CREATED")

	_, err = execute(t, url, "undeploy")
	assert.IsType(t, usageError{}, err)
}

func TestGetDeployment(t *testing.T) {
	_, url := setup(t)
	out, err := execute(t, url, "get-deployment", "d1", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"namespace": "shop"`)

	_, err = execute(t, url, "get-deployment", "nope")
	require.Error(t, err)
	assert.True(t, fluxerr.IsMissing(err))
}

func TestListExecutions(t *testing.T) {
	f, url := setup(t)
	out, err := execute(t, url, "list-executions", "--current", "--page", "1", "--size", "1")
	require.NoError(t, err)

	require.Len(t, f.executionOpts, 1)
	opts := f.executionOpts[0]
	require.NotNil(t, opts.Current)
	assert.True(t, *opts.Current)
	assert.Equal(t, circle.PageRequest{Page: 1, Size: 1}, opts.PageRequest)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "EXECUTION"))
	assert.Equal(t, []string{"e1", "DEPLOYMENT", "d1", "c1", "DEPLOYED", "SENT", "1m0s"}, strings.Fields(lines[1]))
	assert.Equal(t, "(3 results in total; use --page=2 for more)", lines[2])

	_, err = execute(t, url, "list-executions", "--current", "--not-current")
	assert.IsType(t, usageError{}, err)
}

func TestListCircles(t *testing.T) {
	f, url := setup(t)
	out, err := execute(t, url, "circles", "--active", "--name", "beta", "--workspace", "ws")
	require.NoError(t, err)

	require.Len(t, f.circleOpts, 1)
	opts := f.circleOpts[0]
	assert.Equal(t, "beta", opts.Name)
	assert.Equal(t, "ws", opts.WorkspaceID)
	require.NotNil(t, opts.Active)
	assert.True(t, *opts.Active)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"c1", "beta", "-", "false", "true"}, strings.Fields(lines[1]))
}

func TestReconcileAndSweep(t *testing.T) {
	f, url := setup(t)
	_, err := execute(t, url, "reconcile", "shop")
	require.NoError(t, err)
	assert.Equal(t, []string{"shop"}, f.reconciled)

	out, err := execute(t, url, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "No executions timed out")

	f.timedOut = []circle.ExecutionID{"e1", "e2"}
	out, err = execute(t, url, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "Timed out 2 execution(s):\n  e1\n  e2\n")
}

func TestURLFromEnv(t *testing.T) {
	f, url := setup(t)
	t.Setenv(EnvVariableURL, url)
	_, err := execute(t, "", "reconcile", "shop")
	require.NoError(t, err)
	assert.Equal(t, []string{"shop"}, f.reconciled)
}
