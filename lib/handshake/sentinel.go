// Package handshake captures the internal registry of a foreign agent while
// cancelling that agent's own bootstrap before it installs itself.
//
// This file contains the sentinel error that carries the cancellation.
package handshake

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Sentinel is the cancellation signal raised from inside a foreign
// bootstrap. It never represents a fault; the handshake that raised it
// recognizes it by Token.
type Sentinel struct {
	Token string
}

func (s *Sentinel) Error() string {
	return "handshake: bootstrap interrupted (token " + s.Token + ")"
}

// Is matches another sentinel with the same token, so errors.Is keeps
// walking past sentinels raised by other handshakes.
func (s *Sentinel) Is(target error) bool {
	t, ok := target.(*Sentinel)
	return ok && t.Token == s.Token
}

// IsSentinel reports whether err carries a handshake sentinel with the given
// token anywhere in its chain.
func IsSentinel(err error, token string) bool {
	return errors.Is(err, &Sentinel{Token: token})
}

// newToken returns a compact uuid v7 string.
func newToken() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}
