//go:build darwin

package vault

import (
	"github.com/zalando/go-keyring"
)

// platformKeySource reads the envelope password from the login keychain.
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
	for _, pair := range keychainPairs {
		password, err := keyring.Get(pair[0], pair[1])
		if err == nil && password != "" {
			return password, nil
		}
	}
	return "", ErrKeyUnavailable
}

func (s *platformKeySource) BusPassword() (string, error) {
	return "", ErrKeyUnavailable
}
