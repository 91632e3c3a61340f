package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/fluxcd/circles/pkg/api"
	"github.com/fluxcd/circles/pkg/api/v1"
	"github.com/fluxcd/circles/pkg/circle"
	fluxerr "github.com/fluxcd/circles/pkg/errors"
	transport "github.com/fluxcd/circles/pkg/http"
)

type Client struct {
	client   *http.Client
	router   *mux.Router
	endpoint string
}

var _ api.Server = &Client{}

func New(c *http.Client, router *mux.Router, endpoint string) *Client {
	return &Client{
		client:   c,
		router:   router,
		endpoint: endpoint,
	}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.Get(ctx, nil, transport.Ping)
}

func (c *Client) Version(ctx context.Context) (string, error) {
	var v string
	err := c.Get(ctx, &v, transport.Version)
	return v, err
}

// CreateDeployment validates the request before sending it, so an
// invalid request fails the same way it would at the daemon.
func (c *Client) CreateDeployment(ctx context.Context, req v1.CreateDeploymentRequest) (v1.CreateDeploymentResponse, error) {
	var res v1.CreateDeploymentResponse
	if err := req.Validate(); err != nil {
		return res, err
	}
	err := c.methodWithResp(ctx, "POST", &res, transport.CreateDeployment, req)
	return res, err
}

func (c *Client) GetDeployment(ctx context.Context, id circle.DeploymentID) (circle.Deployment, error) {
	var res circle.Deployment
	err := c.Get(ctx, &res, transport.GetDeployment, "id", string(id))
	return res, err
}

func (c *Client) UndeployDeployment(ctx context.Context, id circle.DeploymentID) (circle.Execution, error) {
	var res circle.Execution
	err := c.methodWithResp(ctx, "POST", &res, transport.UndeployDeployment, nil, "id", string(id))
	return res, err
}

func (c *Client) ListExecutions(ctx context.Context, opts v1.ListExecutionsOptions) (circle.ExecutionPage, error) {
	var res circle.ExecutionPage
	params := append(pageParams(opts.PageRequest), "current", optionalBool(opts.Current))
	err := c.Get(ctx, &res, transport.ListExecutions, params...)
	return res, err
}

func (c *Client) GetExecution(ctx context.Context, id circle.ExecutionID) (circle.Execution, error) {
	var res circle.Execution
	err := c.Get(ctx, &res, transport.GetExecution, "id", string(id))
	return res, err
}

func (c *Client) ListCircles(ctx context.Context, opts v1.ListCirclesOptions) (circle.CirclePage, error) {
	var res circle.CirclePage
	params := append(pageParams(opts.PageRequest),
		"name", opts.Name,
		"active", optionalBool(opts.Active),
		"workspace", opts.WorkspaceID)
	err := c.Get(ctx, &res, transport.ListCircles, params...)
	return res, err
}

func (c *Client) ReconcileGroup(ctx context.Context, namespace string) error {
	return c.Post(ctx, transport.ReconcileGroup, "namespace", namespace)
}

func (c *Client) Sweep(ctx context.Context) (v1.SweepResult, error) {
	var res v1.SweepResult
	err := c.methodWithResp(ctx, "POST", &res, transport.Sweep, nil)
	return res, err
}

func pageParams(p circle.PageRequest) []string {
	var params []string
	if p.Page > 0 {
		params = append(params, "page", strconv.Itoa(p.Page))
	}
	if p.Size > 0 {
		params = append(params, "size", strconv.Itoa(p.Size))
	}
	return params
}

func optionalBool(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}

// --- Request helpers

// Post is a simple query-param only post request
func (c *Client) Post(ctx context.Context, route string, queryParams ...string) error {
	return c.methodWithResp(ctx, "POST", nil, route, nil, queryParams...)
}

// methodWithResp is the full enchilada, it handles body and query-param
// encoding, as well as decoding the response into the provided destination.
// Note, the response will only be decoded into the dest if the len is > 0.
func (c *Client) methodWithResp(ctx context.Context, method string, dest interface{}, route string, body interface{}, queryParams ...string) error {
	u, err := transport.MakeURL(c.endpoint, c.router, route, queryParams...)
	if err != nil {
		return errors.Wrap(err, "constructing URL")
	}

	var bodyBytes []byte
	if body != nil {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(bodyBytes))
	if err != nil {
		return errors.Wrapf(err, "constructing request %s", u)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.executeRequest(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "decoding response from server")
	}
	if len(respBytes) <= 0 || dest == nil {
		return nil
	}
	if err := json.Unmarshal(respBytes, dest); err != nil {
		return errors.Wrap(err, "decoding response from server")
	}
	return nil
}

// Get executes a get request against the daemon. it unmarshals the response into dest, if not nil.
func (c *Client) Get(ctx context.Context, dest interface{}, route string, queryParams ...string) error {
	u, err := transport.MakeURL(c.endpoint, c.router, route, queryParams...)
	if err != nil {
		return errors.Wrap(err, "constructing URL")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return errors.Wrapf(err, "constructing request %s", u)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.executeRequest(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return errors.Wrap(err, "decoding response from server")
		}
	}
	return nil
}

func (c *Client) executeRequest(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "executing HTTP request")
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent, http.StatusAccepted:
		return resp, nil
	default:
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, "reading response body of error")
		}
		// Use the content type to discriminate between `fluxerr.Error`,
		// and the previous "any old error"
		if strings.HasPrefix(resp.Header.Get(http.CanonicalHeaderKey("Content-Type")), "application/json") {
			var niceError fluxerr.Error
			if err := json.Unmarshal(body, &niceError); err != nil {
				return nil, errors.Wrap(err, "decoding response body of error")
			}
			// just in case it's JSON but not one of our own errors
			if niceError.Err != nil {
				return nil, &niceError
			}
		}
		return nil, errors.New(resp.Status + " " + string(body))
	}
}
