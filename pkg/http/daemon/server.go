package daemon

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/weaveworks/common/middleware"

	"github.com/fluxcd/circles/pkg/api"
	"github.com/fluxcd/circles/pkg/api/v1"
	"github.com/fluxcd/circles/pkg/circle"
	transport "github.com/fluxcd/circles/pkg/http"
	fluxmetrics "github.com/fluxcd/circles/pkg/metrics"
)

var (
	requestDuration = stdprometheus.NewHistogramVec(stdprometheus.HistogramOpts{
		Namespace: "circles",
		Name:      "request_duration_seconds",
		Help:      "Time (in seconds) spent serving HTTP requests.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{fluxmetrics.LabelMethod, fluxmetrics.LabelRoute, "status_code", "ws"})
)

func init() {
	stdprometheus.MustRegister(requestDuration)
}

// An API server for the daemon
func NewRouter() *mux.Router {
	r := transport.NewAPIRouter()

	// We assume every request that doesn't match a route is a client
	// calling an old or hitherto unsupported API.
	r.NewRoute().Name("NotFound").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transport.WriteError(w, r, http.StatusNotFound, transport.MakeAPINotFound(r.URL.Path))
	})

	return r
}

func NewHandler(s api.Server, r *mux.Router) http.Handler {
	handle := HTTPServer{s}

	r.Get(transport.Ping).HandlerFunc(handle.Ping)
	r.Get(transport.Version).HandlerFunc(handle.Version)

	r.Get(transport.CreateDeployment).HandlerFunc(handle.CreateDeployment)
	r.Get(transport.GetDeployment).HandlerFunc(handle.GetDeployment)
	r.Get(transport.UndeployDeployment).HandlerFunc(handle.UndeployDeployment)
	r.Get(transport.ListExecutions).HandlerFunc(handle.ListExecutions)
	r.Get(transport.GetExecution).HandlerFunc(handle.GetExecution)
	r.Get(transport.ListCircles).HandlerFunc(handle.ListCircles)
	r.Get(transport.ReconcileGroup).HandlerFunc(handle.ReconcileGroup)
	r.Get(transport.Sweep).HandlerFunc(handle.Sweep)

	return middleware.Instrument{
		RouteMatcher: r,
		Duration:     requestDuration,
	}.Wrap(r)
}

type HTTPServer struct {
	server api.Server
}

func (s HTTPServer) Ping(w http.ResponseWriter, r *http.Request) {
	if err := s.server.Ping(r.Context()); err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s HTTPServer) Version(w http.ResponseWriter, r *http.Request) {
	version, err := s.server.Version(r.Context())
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, version)
}

func (s HTTPServer) CreateDeployment(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		transport.WriteError(w, r, http.StatusBadRequest, transport.MakeBadRequest(err))
		return
	}
	if err := v1.ValidateCreateDeployment(body); err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	var req v1.CreateDeploymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		transport.WriteError(w, r, http.StatusBadRequest, transport.MakeBadRequest(err))
		return
	}

	res, err := s.server.CreateDeployment(r.Context(), req)
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponseCode(w, r, http.StatusAccepted, res)
}

func (s HTTPServer) GetDeployment(w http.ResponseWriter, r *http.Request) {
	id := circle.DeploymentID(mux.Vars(r)["id"])
	d, err := s.server.GetDeployment(r.Context(), id)
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, d)
}

func (s HTTPServer) UndeployDeployment(w http.ResponseWriter, r *http.Request) {
	id := circle.DeploymentID(mux.Vars(r)["id"])
	e, err := s.server.UndeployDeployment(r.Context(), id)
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponseCode(w, r, http.StatusAccepted, e)
}

func (s HTTPServer) ListExecutions(w http.ResponseWriter, r *http.Request) {
	var opts v1.ListExecutionsOptions
	var err error
	query := r.URL.Query()
	if opts.PageRequest, err = pageRequest(query.Get("page"), query.Get("size")); err != nil {
		transport.WriteError(w, r, http.StatusBadRequest, transport.MakeBadRequest(err))
		return
	}
	if opts.Current, err = optionalBool("current", query.Get("current")); err != nil {
		transport.WriteError(w, r, http.StatusBadRequest, transport.MakeBadRequest(err))
		return
	}

	page, err := s.server.ListExecutions(r.Context(), opts)
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, page)
}

func (s HTTPServer) GetExecution(w http.ResponseWriter, r *http.Request) {
	id := circle.ExecutionID(mux.Vars(r)["id"])
	e, err := s.server.GetExecution(r.Context(), id)
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, e)
}

func (s HTTPServer) ListCircles(w http.ResponseWriter, r *http.Request) {
	var err error
	query := r.URL.Query()
	opts := v1.ListCirclesOptions{
		Name:        query.Get("name"),
		WorkspaceID: query.Get("workspace"),
	}
	if opts.PageRequest, err = pageRequest(query.Get("page"), query.Get("size")); err != nil {
		transport.WriteError(w, r, http.StatusBadRequest, transport.MakeBadRequest(err))
		return
	}
	if opts.Active, err = optionalBool("active", query.Get("active")); err != nil {
		transport.WriteError(w, r, http.StatusBadRequest, transport.MakeBadRequest(err))
		return
	}

	page, err := s.server.ListCircles(r.Context(), opts)
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, page)
}

func (s HTTPServer) ReconcileGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.server.ReconcileGroup(r.Context(), mux.Vars(r)["namespace"]); err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s HTTPServer) Sweep(w http.ResponseWriter, r *http.Request) {
	res, err := s.server.Sweep(r.Context())
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, res)
}

func pageRequest(page, size string) (circle.PageRequest, error) {
	var req circle.PageRequest
	var err error
	if page != "" {
		if req.Page, err = strconv.Atoi(page); err != nil {
			return req, errors.Wrapf(err, "parsing page %q", page)
		}
	}
	if size != "" {
		if req.Size, err = strconv.Atoi(size); err != nil {
			return req, errors.Wrapf(err, "parsing size %q", size)
		}
	}
	return req, nil
}

func optionalBool(name, value string) (*bool, error) {
	if value == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s %q", name, value)
	}
	return &b, nil
}
