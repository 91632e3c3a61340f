package cluster

import (
	"github.com/ryanuber/go-glob"
)

// NamespaceFilter decides which namespaces a gateway may manage,
// using glob patterns:
//  - if the namespace matches any Deny pattern, it is not allowed
//  - otherwise, if there are no Allow patterns, it is allowed
//  - otherwise, it is allowed only if it matches an Allow pattern.
type NamespaceFilter struct {
	Allow []string
	Deny  []string
}

func (f NamespaceFilter) Allows(namespace string) bool {
	for _, ex := range f.Deny {
		if glob.Glob(ex, namespace) {
			return false
		}
	}
	if len(f.Allow) == 0 {
		return true
	}
	for _, in := range f.Allow {
		if glob.Glob(in, namespace) {
			return true
		}
	}
	return false
}
