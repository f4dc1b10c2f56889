package vault

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Session mirrors one entry of the host's JSON session array.
type Session struct {
	ID          string         `json:"id"`
	Scopes      []string       `json:"scopes"`
	AccessToken string         `json:"accessToken"`
	Account     SessionAccount `json:"account"`
}

type SessionAccount struct {
	Label string `json:"label"`
	ID    string `json:"id"`
}

// DecryptSessions decodes a raw vault cell into the session array it holds.
func (c *Codec) DecryptSessions(cell []byte) ([]Session, Scheme, error) {
	plain, scheme, err := c.DecryptCell(cell)
	if err != nil {
		return nil, 0, err
	}
	var sessions []Session
	if err := json.Unmarshal(plain, &sessions); err != nil {
		return nil, 0, fmt.Errorf("%w: session array: %v", ErrMalformedVault, err)
	}
	return sessions, scheme, nil
}

// EncryptSessions re-encrypts a session array, preferring the scheme the
// existing record used so the host keeps decrypting its own store.
func (c *Codec) EncryptSessions(sessions []Session, preferred Scheme) ([]byte, error) {
	if sessions == nil {
		sessions = []Session{}
	}
	plain, err := json.Marshal(sessions)
	if err != nil {
		return nil, err
	}
	return c.EncryptCell(plain, preferred)
}

// UpsertSession replaces the first session whose scope set contains
// scopeMarker, or appends a new one. The returned session always carries a
// fresh id.
func UpsertSession(sessions []Session, scopeMarker, label, accessToken, userID string) []Session {
	next := Session{
		ID:          uuid.NewString(),
		Scopes:      []string{scopeMarker},
		AccessToken: accessToken,
		Account:     SessionAccount{Label: label, ID: userID},
	}

	out := make([]Session, len(sessions))
	copy(out, sessions)
	for i, session := range out {
		if containsScope(session.Scopes, scopeMarker) {
			next.Scopes = session.Scopes
			out[i] = next
			return out
		}
	}
	return append(out, next)
}

func containsScope(scopes []string, marker string) bool {
	for _, scope := range scopes {
		if scope == marker {
			return true
		}
	}
	return false
}
