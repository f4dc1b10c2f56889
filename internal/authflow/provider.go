package authflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/oauth2"
)

// Provider is the lifecycle contract every supported provider implements.
type Provider interface {
	Name() string

	// Exchange trades an authorization code (or, for import-style
	// providers, a pasted token) for a token bundle.
	Exchange(ctx context.Context, code string) (TokenBundle, error)

	// Refresh renews a bundle from its refresh token. Rejection wraps
	// ErrRefreshFailed.
	Refresh(ctx context.Context, refreshToken string) (TokenBundle, error)

	// FetchQuota returns a usage snapshot, or ErrQuotaUnsupported.
	FetchQuota(ctx context.Context, bundle TokenBundle) (Quota, error)
}

// DeviceFlowProvider is implemented by providers that authenticate through
// device-code polling rather than a redirect.
type DeviceFlowProvider interface {
	Provider
	BeginDeviceFlow(ctx context.Context) (*oauth2.DeviceAuthResponse, error)
	// PollDeviceFlow blocks until approval, the code expires, or ctx is
	// cancelled. Cancellation is checked between polls, never mid-request.
	PollDeviceFlow(ctx context.Context, auth *oauth2.DeviceAuthResponse) (TokenBundle, error)
}

// EnsureFresh returns bundle unchanged while it is still inside its safety
// margin, otherwise refreshes it. A bundle with no access token at all (a
// captured credential holds only the refresh token) always refreshes. The
// second result reports whether the bundle rotated and must be persisted by
// the caller.
func EnsureFresh(ctx context.Context, p Provider, bundle TokenBundle) (TokenBundle, bool, error) {
	if bundle.AccessToken != "" && !bundle.IsExpired(time.Now()) {
		return bundle, false, nil
	}
	if bundle.RefreshToken == "" {
		return bundle, false, ErrNoRefreshToken
	}
	fresh, err := p.Refresh(ctx, bundle.RefreshToken)
	if err != nil {
		return bundle, false, err
	}
	if fresh.TenantURL == "" {
		fresh.TenantURL = bundle.TenantURL
	}
	return fresh, true, nil
}

var providers = map[string]Provider{}

func register(p Provider) {
	providers[p.Name()] = p
}

func init() {
	register(newCodexProvider())
	register(newCursorProvider())
	register(newWindsurfProvider())
	register(newCopilotProvider())
	register(newAugmentProvider())
}

// Lookup resolves a provider by name.
func Lookup(name string) (Provider, error) {
	p, ok := providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return p, nil
}

// Names lists the registered providers in stable order.
func Names() []string {
	out := make([]string, 0, len(providers))
	for name := range providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// wrapOAuthError converts x/oauth2 and transport failures into the typed
// OAuthError the rest of the system reports.
func wrapOAuthError(provider string, err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		status := 0
		if retrieve.Response != nil {
			status = retrieve.Response.StatusCode
		}
		return &OAuthError{
			Provider:   provider,
			StatusCode: status,
			Code:       retrieve.ErrorCode,
			Body:       string(retrieve.Body),
			Err:        err,
		}
	}
	return &OAuthError{Provider: provider, Err: err}
}

// wrapRefreshError marks provider-side refresh rejections (HTTP 4xx) as
// ErrRefreshFailed while leaving transport errors retryable.
func wrapRefreshError(provider string, err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) && retrieve.Response != nil &&
		retrieve.Response.StatusCode >= 400 && retrieve.Response.StatusCode < 500 {
		return fmt.Errorf("%w: %v", ErrRefreshFailed, wrapOAuthError(provider, err))
	}
	return wrapOAuthError(provider, err)
}

func bundleFromToken(token *oauth2.Token) TokenBundle {
	bundle := TokenBundle{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if id, ok := token.Extra("id_token").(string); ok {
		bundle.IDToken = id
	}
	return bundle.Normalize()
}
