// Package account persists credential sets per provider: a summary index
// plus one detail file per account, both JSON, both replaced atomically.
package account

import (
	"errors"
	"time"

	"agent-switcher/internal/authflow"
)

// ErrNotFound reports an unresolvable account id.
var ErrNotFound = errors.New("account not found")

// OriginalFingerprintID is the captured-baseline fingerprint every account
// falls back to.
const OriginalFingerprintID = "original"

// Account is the detail record: the summary fields plus the full token
// bundle.
type Account struct {
	ID       string               `json:"id"`
	Provider string               `json:"provider"`
	Login    string               `json:"login"`
	Token    authflow.TokenBundle `json:"token"`

	FingerprintID string `json:"fingerprintId,omitempty"`

	Quota      *authflow.Quota `json:"quota,omitempty"`
	QuotaError *QuotaError     `json:"quotaError,omitempty"`

	Disabled       bool      `json:"disabled,omitempty"`
	DisabledReason string    `json:"disabledReason,omitempty"`
	DisabledAt     time.Time `json:"disabledAt,omitempty"`

	ProtectedModels []string `json:"protectedModels,omitempty"`
	Tags            []string `json:"tags,omitempty"`

	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt,omitempty"`
}

// QuotaError records the most recent failed quota fetch.
type QuotaError struct {
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Summary is the index entry for one account.
type Summary struct {
	ID            string    `json:"id"`
	Login         string    `json:"login"`
	Email         string    `json:"email,omitempty"`
	FingerprintID string    `json:"fingerprintId,omitempty"`
	Disabled      bool      `json:"disabled,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	LastUsedAt    time.Time `json:"lastUsedAt,omitempty"`
}

func (a Account) summary() Summary {
	return Summary{
		ID:            a.ID,
		Login:         a.Login,
		Email:         a.Token.Email,
		FingerprintID: a.FingerprintID,
		Disabled:      a.Disabled,
		Tags:          a.Tags,
		CreatedAt:     a.CreatedAt,
		LastUsedAt:    a.LastUsedAt,
	}
}

// indexFile is the on-disk shape of the per-provider index.
type indexFile struct {
	Version          int       `json:"version"`
	Accounts         []Summary `json:"accounts"`
	CurrentAccountID string    `json:"current_account_id,omitempty"`
}
