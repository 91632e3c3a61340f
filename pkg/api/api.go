package api

import "github.com/fluxcd/circles/pkg/api/v1"

// Server is what the daemon must satisfy to serve a connecting
// circlectl, or any other client of the HTTP API.
type Server interface {
	v1.Server
}
