package vault

import (
	"bytes"
	"fmt"
	"runtime"
)

// Codec encrypts and decrypts vault cells, selecting the envelope scheme
// from the cell's version prefix and the platform.
type Codec struct {
	source KeySource
	// platform follows runtime.GOOS; tests pin it to exercise every
	// scheme on one machine.
	platform string
}

func NewCodec(source KeySource) *Codec {
	return &Codec{source: source, platform: runtime.GOOS}
}

// DecryptCell decrypts one raw ciphertext cell and reports which scheme
// produced it, so re-encryption can prefer the same scheme.
func (c *Codec) DecryptCell(cell []byte) ([]byte, Scheme, error) {
	switch {
	case bytes.HasPrefix(cell, []byte(prefixV11)):
		password, err := c.source.BusPassword()
		if err != nil {
			return nil, 0, err
		}
		plain, err := decryptCBC(deriveCBCKey(password, busIterations), cell, prefixV11)
		if err != nil {
			return nil, 0, err
		}
		return plain, SchemeCBCBus, nil

	case bytes.HasPrefix(cell, []byte(prefixV10)):
		return c.decryptV10(cell)

	default:
		return nil, 0, fmt.Errorf("%w: unknown version prefix", ErrMalformedVault)
	}
}

func (c *Codec) decryptV10(cell []byte) ([]byte, Scheme, error) {
	switch c.platform {
	case "windows":
		key, err := c.source.GCMKey()
		if err != nil {
			return nil, 0, err
		}
		plain, err := decryptGCM(key, cell)
		if err != nil {
			return nil, 0, err
		}
		return plain, SchemeGCM, nil

	case "darwin":
		password, err := c.source.KeychainPassword()
		if err != nil {
			return nil, 0, err
		}
		plain, err := decryptCBC(deriveCBCKey(password, keychainIterations), cell, prefixV10)
		if err != nil {
			return nil, 0, err
		}
		return plain, SchemeCBCKeychain, nil

	default:
		// Hosts without a secret service wrote v10 cells with one of two
		// fixed legacy keys. If neither decrypts, the cell is reported as
		// malformed rather than silently treated as empty: overwriting it
		// could drop other credentials sharing the vault.
		for _, key := range legacyKeys() {
			plain, err := decryptCBC(key, cell, prefixV10)
			if err == nil {
				return plain, SchemeCBCLegacy, nil
			}
		}
		return nil, 0, fmt.Errorf("%w: no legacy key decrypts cell", ErrMalformedVault)
	}
}

// EncryptCell encrypts plaintext under the given scheme. A zero scheme
// selects the platform default. Nonces are fresh on every call.
func (c *Codec) EncryptCell(plain []byte, scheme Scheme) ([]byte, error) {
	if scheme == 0 {
		scheme = c.defaultScheme()
	}
	switch scheme {
	case SchemeGCM:
		key, err := c.source.GCMKey()
		if err != nil {
			return nil, err
		}
		return encryptGCM(key, plain)
	case SchemeCBCKeychain:
		password, err := c.source.KeychainPassword()
		if err != nil {
			return nil, err
		}
		return encryptCBC(deriveCBCKey(password, keychainIterations), plain, prefixV10)
	case SchemeCBCBus:
		password, err := c.source.BusPassword()
		if err != nil {
			return nil, err
		}
		return encryptCBC(deriveCBCKey(password, busIterations), plain, prefixV11)
	case SchemeCBCLegacy:
		return encryptCBC(legacyKeys()[0], plain, prefixV10)
	default:
		return nil, fmt.Errorf("unsupported scheme %v", scheme)
	}
}

func (c *Codec) defaultScheme() Scheme {
	switch c.platform {
	case "windows":
		return SchemeGCM
	case "darwin":
		return SchemeCBCKeychain
	default:
		if _, err := c.source.BusPassword(); err == nil {
			return SchemeCBCBus
		}
		return SchemeCBCLegacy
	}
}
