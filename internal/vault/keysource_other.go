//go:build !windows && !darwin

package vault

import (
	"github.com/zalando/go-keyring"
)

// platformKeySource asks the desktop secret-service daemon for the envelope
// password. When no daemon answers, callers fall back to the legacy keys.
type platformKeySource struct {
	dataRoot string
}

// NewPlatformKeySource returns the key source for the running platform.
func NewPlatformKeySource(dataRoot string) KeySource {
	return &platformKeySource{dataRoot: dataRoot}
}

func (s *platformKeySource) GCMKey() ([]byte, error) {
	return nil, ErrKeyUnavailable
}

func (s *platformKeySource) KeychainPassword() (string, error) {
	return "", ErrKeyUnavailable
}

func (s *platformKeySource) BusPassword() (string, error) {
	for _, pair := range keychainPairs {
		password, err := keyring.Get(pair[0], pair[1])
		if err == nil && password != "" {
			return password, nil
		}
	}
	return "", ErrKeyUnavailable
}
