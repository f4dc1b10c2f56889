package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"agent-switcher/internal/kvstore"
)

const (
	// SessionsCellKey is the ItemTable key the host extension stores its
	// encrypted session array under.
	SessionsCellKey = `secret://{"extensionId":"augment.vscode-augment","key":"augment.sessions"}`

	// accountMarkerKey is a plaintext cell the host also reads to decide
	// which account it believes is signed in.
	accountMarkerKey = "augment.loggedInAccount"

	// ScopeMarker tags the session entry owned by this provider.
	ScopeMarker = "augment.login"
)

// StateDBPath locates the state database under a target data root.
func StateDBPath(dataRoot string) string {
	return filepath.Join(dataRoot, "User", "globalStorage", "state.vscdb")
}

// Injector rewrites the vault family's session store in place.
type Injector struct {
	Codec *Codec

	// IsRunning reports a live host process for the data root. When set
	// and a process is found, injection fails with ErrTargetLocked
	// because the host holds its database open for writing.
	IsRunning func(dataRoot string) (int32, bool)
}

// Inject decrypts the existing session cell (an absent cell starts from an
// empty array), upserts the session for login, re-encrypts with the scheme
// the record already used, and updates the plaintext account marker.
func (inj *Injector) Inject(dataRoot, login, accessToken, userID string) error {
	if inj.IsRunning != nil {
		if pid, running := inj.IsRunning(dataRoot); running {
			return fmt.Errorf("%w (pid %d), close it and retry", ErrTargetLocked, pid)
		}
	}

	dbPath := StateDBPath(dataRoot)
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("target state database: %w", err)
	}
	db, err := kvstore.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	var sessions []Session
	var scheme Scheme
	raw, ok, err := db.Get(SessionsCellKey)
	if err != nil {
		return err
	}
	if ok {
		cell, err := kvstore.DecodeBuffer(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedVault, err)
		}
		sessions, scheme, err = inj.Codec.DecryptSessions(cell)
		if err != nil {
			return err
		}
	}

	sessions = UpsertSession(sessions, ScopeMarker, login, accessToken, userID)

	cell, err := inj.Codec.EncryptSessions(sessions, scheme)
	if err != nil {
		return err
	}
	if err := db.Put(SessionsCellKey, kvstore.EncodeBuffer(cell)); err != nil {
		return err
	}

	marker, _ := json.Marshal(map[string]string{"login": login, "userId": userID})
	return db.Put(accountMarkerKey, marker)
}
