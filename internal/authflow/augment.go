package authflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// augmentProvider imports a long-lived tenant token directly; there is no
// token endpoint and no refresh. An expired token means re-login.
type augmentProvider struct{}

func newAugmentProvider() *augmentProvider { return &augmentProvider{} }

func (p *augmentProvider) Name() string { return "augment" }

// Exchange parses a pasted session export: either a bare token or a JSON
// object {"accessToken": ..., "tenantURL": ...}.
func (p *augmentProvider) Exchange(ctx context.Context, code string) (TokenBundle, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return TokenBundle{}, &OAuthError{Provider: p.Name(), Err: fmt.Errorf("empty token")}
	}
	if strings.HasPrefix(code, "{") {
		var payload struct {
			AccessToken string `json:"accessToken"`
			TenantURL   string `json:"tenantURL"`
		}
		if err := json.Unmarshal([]byte(code), &payload); err != nil {
			return TokenBundle{}, &OAuthError{Provider: p.Name(), Err: fmt.Errorf("invalid session export: %w", err)}
		}
		if payload.AccessToken == "" {
			return TokenBundle{}, &OAuthError{Provider: p.Name(), Err: fmt.Errorf("session export missing accessToken")}
		}
		return TokenBundle{AccessToken: payload.AccessToken, TenantURL: payload.TenantURL}.Normalize(), nil
	}
	return TokenBundle{AccessToken: code}.Normalize(), nil
}

func (p *augmentProvider) Refresh(ctx context.Context, refreshToken string) (TokenBundle, error) {
	return TokenBundle{}, ErrNoRefreshToken
}

func (p *augmentProvider) FetchQuota(ctx context.Context, bundle TokenBundle) (Quota, error) {
	return Quota{}, ErrQuotaUnsupported
}
