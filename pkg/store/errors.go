package store

import (
	"fmt"

	"github.com/pkg/errors"

	fluxerr "github.com/fluxcd/circles/pkg/errors"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	// ErrStaleTransition means a compare-and-set on an execution's
	// status found it in an unexpected status.
	ErrStaleTransition = errors.New("execution is not in an expected status")
)

func NotFoundError(kind, id string) *fluxerr.Error {
	return &fluxerr.Error{
		Type: fluxerr.Missing,
		Err:  errors.Wrapf(ErrNotFound, "%s %s", kind, id),
		Help: fmt.Sprintf("The %s %q does not exist.\n", kind, id),
	}
}

func AlreadyExistsError(kind, id string) *fluxerr.Error {
	return &fluxerr.Error{
		Type: fluxerr.Conflict,
		Err:  errors.Wrapf(ErrAlreadyExists, "%s %s", kind, id),
		Help: fmt.Sprintf("A %s with id %q already exists.\n", kind, id),
	}
}

// PersistenceError wraps a failure of the database itself. The
// operation it interrupted has been rolled back.
func PersistenceError(err error) *fluxerr.Error {
	return &fluxerr.Error{
		Type: fluxerr.Server,
		Err:  err,
		Help: `A database operation failed: ` + err.Error() + `

Nothing was recorded. This is usually transient; try again, and check
the daemon's connection to its database if it persists.
`,
	}
}

func IsNotFound(err error) bool {
	return errors.Cause(err) == ErrNotFound
}

func IsAlreadyExists(err error) bool {
	return errors.Cause(err) == ErrAlreadyExists
}

func IsStale(err error) bool {
	return errors.Cause(err) == ErrStaleTransition
}
