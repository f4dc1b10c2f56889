package authflow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func testCodexProvider(tokenURL, usageURL string) *codexProvider {
	p := newCodexProvider()
	p.cfg.Endpoint = oauth2.Endpoint{TokenURL: tokenURL}
	p.usageURL = usageURL
	return p
}

func TestRefreshRotatesBundle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.Form.Get("refresh_token"); got != "RT-old" {
			t.Errorf("refresh_token = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"AT-new","refresh_token":"RT-new","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	p := testCodexProvider(server.URL, "")
	bundle, err := p.Refresh(context.Background(), "RT-old")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if bundle.AccessToken != "AT-new" || bundle.RefreshToken != "RT-new" {
		t.Fatalf("bundle = %+v", bundle)
	}
	if bundle.ExpiresAt.Before(time.Now().Add(30 * time.Minute)) {
		t.Fatalf("expiry not set from expires_in: %v", bundle.ExpiresAt)
	}
}

func TestRefreshKeepsOldRefreshTokenWhenOmitted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"AT-new","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	p := testCodexProvider(server.URL, "")
	bundle, err := p.Refresh(context.Background(), "RT-old")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if bundle.RefreshToken != "RT-old" {
		t.Fatalf("refresh token = %q, want RT-old", bundle.RefreshToken)
	}
}

func TestRefreshRejectionIsRefreshFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"revoked"}`))
	}))
	defer server.Close()

	p := testCodexProvider(server.URL, "")
	_, err := p.Refresh(context.Background(), "RT-revoked")
	if !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed, got %v", err)
	}
}

func TestExchangeErrorCarriesProviderBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"access_denied"}`))
	}))
	defer server.Close()

	p := testCodexProvider(server.URL, "")
	_, err := p.Exchange(context.Background(), "bad-code")

	var oauthErr *OAuthError
	if !errors.As(err, &oauthErr) {
		t.Fatalf("expected OAuthError, got %v", err)
	}
	if oauthErr.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d", oauthErr.StatusCode)
	}
	if oauthErr.Code != "access_denied" {
		t.Errorf("code = %q", oauthErr.Code)
	}
}

func TestEnsureFreshNoopWhileValid(t *testing.T) {
	p := newAugmentProvider()
	bundle := TokenBundle{AccessToken: "opaque"}

	out, rotated, err := EnsureFresh(context.Background(), p, bundle)
	if err != nil || rotated {
		t.Fatalf("err=%v rotated=%v", err, rotated)
	}
	if out.AccessToken != "opaque" {
		t.Fatalf("bundle changed: %+v", out)
	}
}

func TestEnsureFreshWithoutRefreshToken(t *testing.T) {
	p := newAugmentProvider()
	bundle := TokenBundle{AccessToken: "opaque", ExpiresAt: time.Now().Add(-time.Minute)}

	_, _, err := EnsureFresh(context.Background(), p, bundle)
	if !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", err)
	}
}

func TestEnsureFreshRefreshesExpired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"AT-fresh","refresh_token":"RT-fresh","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	p := testCodexProvider(server.URL, "")
	stale := TokenBundle{
		AccessToken:  "AT-stale",
		RefreshToken: "RT-stale",
		ExpiresAt:    time.Now().Add(-time.Minute),
		TenantURL:    "https://t0.example.com",
	}

	fresh, rotated, err := EnsureFresh(context.Background(), p, stale)
	if err != nil {
		t.Fatalf("ensure fresh: %v", err)
	}
	if !rotated {
		t.Fatal("expected rotation")
	}
	if fresh.AccessToken != "AT-fresh" {
		t.Fatalf("bundle = %+v", fresh)
	}
	if fresh.TenantURL != "https://t0.example.com" {
		t.Fatal("tenant URL dropped during refresh")
	}
}

func TestEnsureFreshRefreshesCapturedBundle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"AT-minted","refresh_token":"RT-next","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	p := testCodexProvider(server.URL, "")
	// A captured credential carries only the refresh token; it must never
	// pass through as a usable bundle.
	captured := TokenBundle{RefreshToken: "RT-captured"}

	fresh, rotated, err := EnsureFresh(context.Background(), p, captured)
	if err != nil {
		t.Fatalf("ensure fresh: %v", err)
	}
	if !rotated {
		t.Fatal("captured bundle was not rotated")
	}
	if fresh.AccessToken != "AT-minted" {
		t.Fatalf("bundle = %+v", fresh)
	}
}

func TestDeviceFlowPollCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"authorization_pending"}`))
	}))
	defer server.Close()

	p := newCopilotProvider()
	p.cfg.Endpoint = oauth2.Endpoint{TokenURL: server.URL, DeviceAuthURL: server.URL}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.PollDeviceFlow(ctx, &oauth2.DeviceAuthResponse{
			DeviceCode: "DC",
			Expiry:     time.Now().Add(time.Hour),
			Interval:   1,
		})
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("poll did not stop after cancellation")
	}
}

func TestCodexQuotaNormalize(t *testing.T) {
	body := []byte(`{
		"plan_type": "plus",
		"rate_limit": {
			"primary_window": {"limit_window_seconds": 10800, "used_percent": 41.5, "reset_at": 1700000000},
			"secondary_window": {"limit_window_seconds": 86400, "used_percent": 120, "reset_at": 1700086400}
		}
	}`)

	quota, err := normalizeCodexUsage(body)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if quota.Plan != "plus" {
		t.Errorf("plan = %q", quota.Plan)
	}
	if len(quota.Windows) != 2 {
		t.Fatalf("windows = %+v", quota.Windows)
	}
	if quota.Windows[0].Label != "3h" || quota.Windows[0].UsedPercent != 41.5 {
		t.Errorf("primary window = %+v", quota.Windows[0])
	}
	if quota.Windows[1].Label != "Day" || quota.Windows[1].UsedPercent != 100 {
		t.Errorf("secondary window = %+v", quota.Windows[1])
	}
}

func TestAugmentExchangeParsesSessionExport(t *testing.T) {
	p := newAugmentProvider()

	bundle, err := p.Exchange(context.Background(), `{"accessToken":"tok","tenantURL":"https://d1.api.augmentcode.com"}`)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if bundle.AccessToken != "tok" || bundle.TenantURL != "https://d1.api.augmentcode.com" {
		t.Fatalf("bundle = %+v", bundle)
	}

	bare, err := p.Exchange(context.Background(), "  raw-token  ")
	if err != nil {
		t.Fatalf("exchange bare: %v", err)
	}
	if bare.AccessToken != "raw-token" {
		t.Fatalf("bare bundle = %+v", bare)
	}

	if _, err := p.Exchange(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestLookupAndNames(t *testing.T) {
	names := Names()
	want := []string{"augment", "codex", "copilot", "cursor", "windsurf"}
	if len(names) != len(want) {
		t.Fatalf("names = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
	if _, err := Lookup("cursor"); err != nil {
		t.Fatalf("lookup cursor: %v", err)
	}
	if _, err := Lookup("nope"); err == nil {
		t.Fatal("expected unknown provider error")
	}
}
