package authflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	codexTokenURL  = "https://auth.openai.com/oauth/token"
	codexAuthURL   = "https://auth.openai.com/oauth/authorize"
	codexClientID  = "app_EMoamEEZ73f0CkXaXp7hrann"
	codexUsageURL  = "https://chatgpt.com/backend-api/wham/usage"
	codexUserAgent = "agent-switcher"
)

// codexProvider speaks the auth.openai.com authorization-code flow. Access
// and id tokens are JWTs carrying the ChatGPT account id and email.
type codexProvider struct {
	cfg      *oauth2.Config
	usageURL string
	client   *http.Client
}

func newCodexProvider() *codexProvider {
	return &codexProvider{
		cfg: &oauth2.Config{
			ClientID: codexClientID,
			Endpoint: oauth2.Endpoint{
				AuthURL:  codexAuthURL,
				TokenURL: codexTokenURL,
			},
			Scopes: []string{"openid", "profile", "email", "offline_access"},
		},
		usageURL: codexUsageURL,
		client:   &http.Client{Timeout: 12 * time.Second},
	}
}

func (p *codexProvider) Name() string { return "codex" }

func (p *codexProvider) Exchange(ctx context.Context, code string) (TokenBundle, error) {
	token, err := p.cfg.Exchange(p.httpContext(ctx), code)
	if err != nil {
		return TokenBundle{}, wrapOAuthError(p.Name(), err)
	}
	return bundleFromToken(token), nil
}

func (p *codexProvider) Refresh(ctx context.Context, refreshToken string) (TokenBundle, error) {
	source := p.cfg.TokenSource(p.httpContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return TokenBundle{}, wrapRefreshError(p.Name(), err)
	}
	bundle := bundleFromToken(token)
	if bundle.RefreshToken == "" {
		bundle.RefreshToken = refreshToken
	}
	return bundle, nil
}

func (p *codexProvider) FetchQuota(ctx context.Context, bundle TokenBundle) (Quota, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.usageURL, nil)
	if err != nil {
		return Quota{}, err
	}
	req.Header.Set("Authorization", "Bearer "+bundle.AccessToken)
	req.Header.Set("User-Agent", codexUserAgent)
	req.Header.Set("Accept", "application/json")
	if bundle.AccountID != "" {
		req.Header.Set("ChatGPT-Account-Id", bundle.AccountID)
	}

	res, err := p.client.Do(req)
	if err != nil {
		return Quota{}, err
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(res.Body, 2*1024*1024))
	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(res.StatusCode)
		}
		return Quota{}, fmt.Errorf("usage request failed (%d): %s", res.StatusCode, msg)
	}
	return normalizeCodexUsage(body)
}

func (p *codexProvider) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

func normalizeCodexUsage(body []byte) (Quota, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return Quota{}, fmt.Errorf("failed to parse usage response: %w", err)
	}

	quota := Quota{FetchedAt: time.Now().UTC()}
	quota.Plan, _ = payload["plan_type"].(string)

	rateLimit, ok := payload["rate_limit"].(map[string]any)
	if !ok {
		return quota, nil
	}
	for _, key := range []string{"primary_window", "secondary_window"} {
		window, ok := rateLimit[key].(map[string]any)
		if !ok {
			continue
		}
		hours := toInt64(window["limit_window_seconds"]) / 3600
		label := fmt.Sprintf("%dh", hours)
		if hours >= 24 {
			label = "Day"
		} else if hours <= 0 {
			label = "3h"
		}
		quota.Windows = append(quota.Windows, QuotaWindow{
			Label:       label,
			UsedPercent: clampPercent(toFloat(window["used_percent"])),
			ResetAt:     toInt64(window["reset_at"]),
		})
	}
	return quota, nil
}

func clampPercent(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}
