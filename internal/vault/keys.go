package vault

// KeySource supplies the platform key material behind each envelope scheme.
// Exactly one accessor is expected to work per platform; the others return
// ErrKeyUnavailable. Tests substitute a fixed source.
type KeySource interface {
	// GCMKey returns the unwrapped per-install AES-256 key (scheme GCM).
	GCMKey() ([]byte, error)
	// KeychainPassword returns the OS keychain envelope password
	// (scheme CBCKeychain).
	KeychainPassword() (string, error)
	// BusPassword returns the secret-service envelope password
	// (scheme CBCBus).
	BusPassword() (string, error)
}

// Known keychain service/account pairs the vault family registers its
// envelope password under, tried in order.
var keychainPairs = [][2]string{
	{"Code Safe Storage", "Code"},
	{"Code - Insiders Safe Storage", "Code - Insiders"},
	{"VSCodium Safe Storage", "VSCodium"},
	{"Cursor Safe Storage", "Cursor"},
}

// Legacy fixed passwords used on hosts without a reachable secret service.
// Both derive their key with a single PBKDF2 iteration.
var legacyPasswords = []string{"peanuts", ""}

// legacyKeys returns the two hard-coded fallback CBC keys in trial order.
func legacyKeys() [][]byte {
	keys := make([][]byte, 0, len(legacyPasswords))
	for _, password := range legacyPasswords {
		keys = append(keys, deriveCBCKey(password, busIterations))
	}
	return keys
}

// FixedKeySource returns every accessor from in-memory values; used by tests
// and by the capture tooling when key material is already known.
type FixedKeySource struct {
	GCM      []byte
	Keychain string
	Bus      string
}

func (s FixedKeySource) GCMKey() ([]byte, error) {
	if len(s.GCM) == 0 {
		return nil, ErrKeyUnavailable
	}
	return s.GCM, nil
}

func (s FixedKeySource) KeychainPassword() (string, error) {
	if s.Keychain == "" {
		return "", ErrKeyUnavailable
	}
	return s.Keychain, nil
}

func (s FixedKeySource) BusPassword() (string, error) {
	if s.Bus == "" {
		return "", ErrKeyUnavailable
	}
	return s.Bus, nil
}
