package kubernetes

import (
	"fmt"

	fluxerr "github.com/fluxcd/circles/pkg/errors"
)

func UnsupportedKindError(kind string) *fluxerr.Error {
	return &fluxerr.Error{
		Type: fluxerr.User,
		Err:  fmt.Errorf("applying resource kind %q not supported", kind),
		Help: `Only Deployments, Services, VirtualServices and DestinationRules
can be applied to the cluster.
`,
	}
}

func NamespaceNotAllowedError(namespace string) *fluxerr.Error {
	return &fluxerr.Error{
		Type: fluxerr.User,
		Err:  fmt.Errorf("namespace %q is not allowed", namespace),
		Help: fmt.Sprintf(`Namespace %q is excluded from management

The daemon was started with a namespace allow or deny list that does
not permit this namespace. Deploy to another namespace, or change the
--allow-namespace / --deny-namespace flags.
`, namespace),
	}
}
