// Package authflow implements the per-provider token lifecycle: exchange,
// refresh, expiry checking, and quota fetch. Five providers share one
// contract with different wire details.
package authflow

import (
	"errors"
	"fmt"
	"time"
)

// ExpiryMargin is the safety window subtracted from a token's nominal
// lifetime. Injection and relaunch take multiple seconds; a token that
// expires mid-switch must already count as expired here.
const ExpiryMargin = 300 * time.Second

// TokenBundle is one account's live credential set.
type TokenBundle struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	IDToken      string    `json:"idToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt,omitempty"`

	// AccountID is the provider-scoped auxiliary id (organization or
	// account id) extracted from token claims where available.
	AccountID string `json:"accountId,omitempty"`
	Email     string `json:"email,omitempty"`

	// TenantURL is carried only by providers with per-tenant API hosts.
	TenantURL string `json:"tenantUrl,omitempty"`
}

// IsExpired reports whether the access token should be treated as expired
// at now, applying ExpiryMargin. Tokens without any expiry information are
// treated as non-expiring.
func (b TokenBundle) IsExpired(now time.Time) bool {
	expiry := b.ExpiresAt
	if expiry.IsZero() {
		expiry = claimExpiry(b.AccessToken)
	}
	if expiry.IsZero() {
		return false
	}
	return !now.Add(ExpiryMargin).Before(expiry)
}

// Normalize fills AccountID and Email from token claims where the provider
// uses self-describing tokens. Existing claim-derived values win over stale
// stored ones.
func (b TokenBundle) Normalize() TokenBundle {
	if claims := parseJWTClaims(b.AccessToken); claims != nil {
		if id := extractAccountID(claims); id != "" {
			b.AccountID = id
		}
		if email := extractEmail(claims); email != "" {
			b.Email = email
		}
	}
	if claims := parseJWTClaims(b.IDToken); claims != nil {
		if b.AccountID == "" {
			b.AccountID = extractAccountID(claims)
		}
		if b.Email == "" {
			b.Email = extractEmail(claims)
		}
	}
	return b
}

// OAuthError carries the provider's rejection of an exchange or refresh,
// including the raw body for diagnostics.
type OAuthError struct {
	Provider   string
	StatusCode int
	Code       string
	Body       string
	Err        error
}

func (e *OAuthError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s oauth request failed (%d %s): %s", e.Provider, e.StatusCode, e.Code, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s oauth request failed: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s oauth request failed (%d): %s", e.Provider, e.StatusCode, e.Body)
}

func (e *OAuthError) Unwrap() error { return e.Err }

var (
	// ErrRefreshFailed marks a provider rejecting the refresh token,
	// which almost always means revocation. Callers must surface this as
	// requiring re-authentication, not retry.
	ErrRefreshFailed = errors.New("refresh token rejected")

	// ErrNoRefreshToken marks an expired bundle that cannot be renewed
	// because the provider issued no refresh token.
	ErrNoRefreshToken = errors.New("token expired and no refresh token available")

	// ErrQuotaUnsupported marks providers without a queryable quota API.
	ErrQuotaUnsupported = errors.New("provider has no quota endpoint")
)

// Quota is a point-in-time usage snapshot persisted on the account.
type Quota struct {
	Plan      string        `json:"plan,omitempty"`
	Windows   []QuotaWindow `json:"windows,omitempty"`
	FetchedAt time.Time     `json:"fetchedAt"`
}

type QuotaWindow struct {
	Label       string  `json:"label"`
	UsedPercent float64 `json:"usedPercent"`
	ResetAt     int64   `json:"resetAt,omitempty"`
}
