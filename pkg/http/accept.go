package http

import (
	"net/http"
	"strings"

	"github.com/golang/gddo/httputil/header"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypeYAML = "application/yaml"
	ContentTypeText = "text/plain"
)

// negotiate returns the offer rated highest by the request's Accept
// header; offers of equal quality are preferred in the order given.
// An offer is rated by the most specific media range including it.
// Without an Accept header the first offer is returned. If nothing
// offered is acceptable, the result is empty.
func negotiate(r *http.Request, offers ...string) string {
	specs := header.ParseAccept(r.Header, "Accept")
	if len(specs) == 0 {
		return offers[0]
	}
	var best string
	var bestQ float64
	for _, offer := range offers {
		matched, q := -1, 0.0
		for _, spec := range specs {
			if s := specificity(spec.Value, offer); s > matched {
				matched, q = s, spec.Q
			}
		}
		if q > bestQ {
			best, bestQ = offer, q
		}
	}
	return best
}

// specificity says how closely the media range, which may be a
// wildcard like `*/*` or `application/*`, names the content type: 2
// for exactly, 0 or 1 for a wildcard, and -1 if it does not include it.
func specificity(mediaRange, contentType string) int {
	switch {
	case mediaRange == contentType:
		return 2
	case mediaRange == "*/*":
		return 0
	case strings.HasSuffix(mediaRange, "/*") && strings.HasPrefix(contentType, strings.TrimSuffix(mediaRange, "*")):
		return 1
	}
	return -1
}
