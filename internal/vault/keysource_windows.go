//go:build windows

package vault

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

const dpapiKeyPrefix = "DPAPI"

// platformKeySource unwraps the per-install key from the Local State
// sidecar next to the target's user data via the user-credential API.
type platformKeySource struct {
	dataRoot string
}

// NewPlatformKeySource returns the key source for the running platform.
func NewPlatformKeySource(dataRoot string) KeySource {
	return &platformKeySource{dataRoot: dataRoot}
}

func (s *platformKeySource) GCMKey() ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(s.dataRoot, "Local State"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	var state struct {
		OSCrypt struct {
			EncryptedKey string `json:"encrypted_key"`
		} `json:"os_crypt"`
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("%w: parse Local State: %v", ErrKeyUnavailable, err)
	}
	wrapped, err := base64.StdEncoding.DecodeString(state.OSCrypt.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: decode encrypted_key: %v", ErrKeyUnavailable, err)
	}
	if !strings.HasPrefix(string(wrapped), dpapiKeyPrefix) {
		return nil, fmt.Errorf("%w: encrypted_key has no DPAPI prefix", ErrKeyUnavailable)
	}
	return dpapiUnprotect(wrapped[len(dpapiKeyPrefix):])
}

func dpapiUnprotect(data []byte) ([]byte, error) {
	in := windows.DataBlob{Size: uint32(len(data)), Data: &data[0]}
	var out windows.DataBlob
	if err := windows.CryptUnprotectData(&in, nil, nil, 0, nil, 0, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	defer windows.LocalFree(windows.Handle(unsafe.Pointer(out.Data)))
	key := make([]byte, out.Size)
	copy(key, unsafe.Slice(out.Data, out.Size))
	return key, nil
}

func (s *platformKeySource) KeychainPassword() (string, error) {
	return "", ErrKeyUnavailable
}

func (s *platformKeySource) BusPassword() (string, error) {
	return "", ErrKeyUnavailable
}
