package manifest

import (
	"fmt"

	"github.com/pkg/errors"

	fluxerr "github.com/fluxcd/circles/pkg/errors"
)

var (
	ErrNoDefaultCircle       = errors.New("no circle is marked default")
	ErrMultipleDefaultCircle = errors.New("more than one circle is marked default")
	ErrNoComponents          = errors.New("circle has no components")
	ErrDuplicateCircle       = errors.New("circle appears more than once")
)

// InvalidInputError is returned when the circles given cannot be
// turned into a consistent set of routing manifests.
func InvalidInputError(circleID string, err error) *fluxerr.Error {
	if circleID != "" {
		err = errors.Wrapf(err, "circle %s", circleID)
	}
	return &fluxerr.Error{
		Type: fluxerr.User,
		Err:  err,
		Help: fmt.Sprintf(`Invalid routing input: %s

Every circle group needs exactly one default circle, and every circle
in it must have at least one component.
`, err),
	}
}

// IsInvalidInput reports whether err came from validating the
// builder's input.
func IsInvalidInput(err error) bool {
	switch errors.Cause(err) {
	case ErrNoDefaultCircle, ErrMultipleDefaultCircle, ErrNoComponents, ErrDuplicateCircle:
		return true
	}
	return false
}
