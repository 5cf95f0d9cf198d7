// Package extagent lets the agent absorb the plugins of foreign
// instrumentation frameworks.
//
// This file contains the closed set of foreign framework identities.
package extagent

import (
	"fmt"
	"slices"
)

// Identity names a foreign framework. It is also the key of the framework's
// module path in Config.
type Identity string

const (
	SkyWalking Identity = "SKY_WALKING"
)

var identities = []Identity{SkyWalking}

// Identities returns every known identity.
func Identities() []Identity {
	return slices.Clone(identities)
}

// ParseIdentity validates s against the known identities.
func ParseIdentity(s string) (Identity, error) {
	id := Identity(s)
	if !slices.Contains(identities, id) {
		return "", fmt.Errorf("extagent: unknown identity %q", s)
	}
	return id, nil
}

// String returns the string representation of Identity
func (i Identity) String() string {
	return string(i)
}
