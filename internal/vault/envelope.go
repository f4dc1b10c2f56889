// Package vault rewrites the vault family's encrypted session store. The
// host application protects its sessions with one of three envelope schemes
// depending on platform; this package reproduces all three so the rewritten
// cell stays readable by the host.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Scheme identifies one envelope construction.
type Scheme int

const (
	// SchemeGCM: "v10" prefix, 12-byte nonce, AES-256-GCM. The key is a
	// per-install random key wrapped by the OS user-credential API and
	// stored in the Local State sidecar.
	SchemeGCM Scheme = iota + 1
	// SchemeCBCKeychain: "v10" prefix, AES-128-CBC, PKCS7, all-space IV.
	// Key derived from the OS keychain password, PBKDF2-HMAC-SHA1 with
	// 1003 iterations.
	SchemeCBCKeychain
	// SchemeCBCBus: "v11" prefix, same CBC construction, key derived from
	// the secret-service password with a single PBKDF2 iteration.
	SchemeCBCBus
	// SchemeCBCLegacy: "v10" on hosts without a secret service; one of
	// two fixed well-known passwords, tried in order.
	SchemeCBCLegacy
)

func (s Scheme) String() string {
	switch s {
	case SchemeGCM:
		return "gcm"
	case SchemeCBCKeychain:
		return "cbc-keychain"
	case SchemeCBCBus:
		return "cbc-bus"
	case SchemeCBCLegacy:
		return "cbc-legacy"
	default:
		return fmt.Sprintf("scheme(%d)", int(s))
	}
}

const (
	prefixV10 = "v10"
	prefixV11 = "v11"

	gcmNonceSize = 12

	cbcKeyLen  = 16
	cbcSalt    = "saltysalt"
	cbcSpaceIV = "                "

	keychainIterations = 1003
	busIterations      = 1
)

var (
	// ErrKeyUnavailable reports that no platform key material could be
	// obtained. Not retryable.
	ErrKeyUnavailable = errors.New("platform crypto key unavailable")
	// ErrMalformedVault reports an existing cell that cannot be decoded
	// with any applicable scheme. The cell is left untouched.
	ErrMalformedVault = errors.New("vault cell is malformed")
	// ErrTargetLocked reports a live host-application process holding the
	// state database.
	ErrTargetLocked = errors.New("target application is running")
)

// deriveCBCKey turns an envelope password into the 16-byte CBC key.
func deriveCBCKey(password string, iterations int) []byte {
	return pbkdf2.Key([]byte(password), []byte(cbcSalt), iterations, cbcKeyLen, sha1.New)
}

func encryptGCM(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(prefixV10)+gcmNonceSize+len(plaintext)+gcm.Overhead())
	out = append(out, prefixV10...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

func decryptGCM(key, cell []byte) ([]byte, error) {
	if len(cell) < len(prefixV10)+gcmNonceSize {
		return nil, ErrMalformedVault
	}
	body := cell[len(prefixV10):]
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, body[:gcmNonceSize], body[gcmNonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedVault, err)
	}
	return plain, nil
}

func encryptCBC(key, plaintext []byte, prefix string) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(prefix)+len(padded))
	copy(out, prefix)
	cipher.NewCBCEncrypter(block, []byte(cbcSpaceIV)).CryptBlocks(out[len(prefix):], padded)
	return out, nil
}

func decryptCBC(key, cell []byte, prefix string) ([]byte, error) {
	body := cell[len(prefix):]
	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return nil, ErrMalformedVault
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, []byte(cbcSpaceIV)).CryptBlocks(plain, body)
	return pkcs7Unpad(plain, aes.BlockSize)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrMalformedVault
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize || pad > len(data) {
		return nil, ErrMalformedVault
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, ErrMalformedVault
		}
	}
	return data[:len(data)-pad], nil
}
