package http

import (
	"errors"

	fluxerr "github.com/fluxcd/circles/pkg/errors"
)

func MakeAPINotFound(path string) *fluxerr.Error {
	return &fluxerr.Error{
		Type: fluxerr.Missing,
		Help: `The API endpoint requested is not supported by this server.

This indicates that your client (probably circlectl) is either out of
date, or faulty. The path requested was:

    ` + path + `
`,
		Err: errors.New("API endpoint not found"),
	}
}

func MakeBadRequest(err error) *fluxerr.Error {
	return &fluxerr.Error{
		Type: fluxerr.User,
		Help: `The request could not be read:

    ` + err.Error() + `
`,
		Err: err,
	}
}
