package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"

	"github.com/ghodss/yaml"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	fluxerr "github.com/fluxcd/circles/pkg/errors"
)

func NewAPIRouter() *mux.Router {
	r := mux.NewRouter()

	r.NewRoute().Name(Ping).Methods("GET").Path("/v1/ping")
	r.NewRoute().Name(Version).Methods("GET").Path("/v1/version")

	r.NewRoute().Name(CreateDeployment).Methods("POST").Path("/v1/deployments")
	r.NewRoute().Name(GetDeployment).Methods("GET").Path("/v1/deployments/{id}")
	r.NewRoute().Name(UndeployDeployment).Methods("POST").Path("/v1/deployments/{id}/undeploy")
	r.NewRoute().Name(ListExecutions).Methods("GET").Path("/v1/executions")
	r.NewRoute().Name(GetExecution).Methods("GET").Path("/v1/executions/{id}")
	r.NewRoute().Name(ListCircles).Methods("GET").Path("/v1/circles")
	r.NewRoute().Name(ReconcileGroup).Methods("POST").Path("/v1/groups/{namespace}/reconcile")
	r.NewRoute().Name(Sweep).Methods("POST").Path("/v1/sweep")

	return r
}

// MakeURL builds the URL of a named route under endpoint. urlParams
// are name, value pairs: those named in the route's path fill it in,
// the rest become the query.
func MakeURL(endpoint string, router *mux.Router, routeName string, urlParams ...string) (*url.URL, error) {
	if len(urlParams)%2 != 0 {
		panic("urlParams must be even!")
	}

	endpointURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing endpoint %s", endpoint)
	}
	route := router.Get(routeName)
	if route == nil {
		return nil, errors.New("no route with name " + routeName)
	}
	vars, err := route.GetVarNames()
	if err != nil {
		return nil, errors.Wrapf(err, "retrieving route variables %s", routeName)
	}
	isVar := map[string]bool{}
	for _, name := range vars {
		isVar[name] = true
	}

	var pathParams []string
	v := url.Values{}
	for i := 0; i < len(urlParams); i += 2 {
		if isVar[urlParams[i]] {
			pathParams = append(pathParams, urlParams[i], urlParams[i+1])
			continue
		}
		if urlParams[i+1] == "" {
			continue
		}
		v.Add(urlParams[i], urlParams[i+1])
	}
	routeURL, err := route.URLPath(pathParams...)
	if err != nil {
		return nil, errors.Wrapf(err, "retrieving route path %s", routeName)
	}

	endpointURL.Path = path.Join(endpointURL.Path, routeURL.Path)
	endpointURL.RawQuery = v.Encode()
	return endpointURL, nil
}

// WriteError writes the error as JSON to clients that ask for it,
// and as text to everyone else. Clients asking only for text get the
// error's help, if it has any.
func WriteError(w http.ResponseWriter, r *http.Request, code int, err error) {
	var accepted string
	if r.Header.Get("Accept") != "" {
		accepted = negotiate(r, ContentTypeJSON, ContentTypeText)
	}
	switch accepted {
	case ContentTypeJSON:
		body, encodeErr := json.Marshal(err)
		if encodeErr != nil {
			msg := fmt.Sprintf("Error encoding error response: %s\n\nOriginal error: %s", encodeErr, err)
			writeBody(w, ContentTypeText, http.StatusInternalServerError, []byte(msg))
			return
		}
		writeBody(w, ContentTypeJSON, code, body)
	case ContentTypeText:
		msg := err.Error()
		if ferr, ok := err.(*fluxerr.Error); ok && ferr.Help != "" {
			msg = ferr.Help
		}
		writeBody(w, ContentTypeText, code, []byte(msg))
	default:
		writeBody(w, ContentTypeText, code, []byte(err.Error()))
	}
}

func JSONResponse(w http.ResponseWriter, r *http.Request, result interface{}) {
	JSONResponseCode(w, r, http.StatusOK, result)
}

// JSONResponseCode writes the result with the status code given. The
// result is JSON unless the client prefers YAML.
func JSONResponseCode(w http.ResponseWriter, r *http.Request, code int, result interface{}) {
	contentType := negotiate(r, ContentTypeJSON, ContentTypeYAML)
	var body []byte
	var err error
	if contentType == ContentTypeYAML {
		body, err = yaml.Marshal(result)
	} else {
		contentType = ContentTypeJSON
		body, err = json.Marshal(result)
	}
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	writeBody(w, contentType, code, body)
}

func writeBody(w http.ResponseWriter, contentType string, code int, body []byte) {
	w.Header().Set("Content-Type", contentType+"; charset=utf-8")
	w.WriteHeader(code)
	w.Write(body)
}

func ErrorResponse(w http.ResponseWriter, r *http.Request, apiError error) {
	var outErr *fluxerr.Error
	var code int
	var ok bool

	err := errors.Cause(apiError)
	if outErr, ok = err.(*fluxerr.Error); !ok {
		outErr = fluxerr.CoverAllError(apiError)
	}
	switch outErr.Type {
	case fluxerr.Missing:
		code = http.StatusNotFound
	case fluxerr.User:
		code = http.StatusUnprocessableEntity
	case fluxerr.Conflict:
		code = http.StatusConflict
	case fluxerr.Server:
		code = http.StatusInternalServerError
	default:
		code = http.StatusInternalServerError
	}
	WriteError(w, r, code, outErr)
}
