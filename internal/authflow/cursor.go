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
	cursorTokenURL = "https://api2.cursor.sh/oauth/token"
	cursorAuthURL  = "https://cursor.com/oauth/authorize"
	cursorClientID = "client_cursor_desktop"
	cursorUsageURL = "https://api2.cursor.sh/auth/usage"
)

// cursorProvider uses an authorization-code exchange with PKCE. Its access
// token is a JWT whose sub claim is the provider user id.
type cursorProvider struct {
	cfg      *oauth2.Config
	usageURL string
	client   *http.Client
}

func newCursorProvider() *cursorProvider {
	return &cursorProvider{
		cfg: &oauth2.Config{
			ClientID: cursorClientID,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cursorAuthURL,
				TokenURL: cursorTokenURL,
			},
			Scopes: []string{"openid", "profile", "email", "offline_access"},
		},
		usageURL: cursorUsageURL,
		client:   &http.Client{Timeout: 12 * time.Second},
	}
}

func (p *cursorProvider) Name() string { return "cursor" }

// Exchange accepts "code:verifier" pairs so the caller can carry the PKCE
// verifier it generated when opening the authorize URL.
func (p *cursorProvider) Exchange(ctx context.Context, code string) (TokenBundle, error) {
	var opts []oauth2.AuthCodeOption
	if idx := strings.IndexByte(code, ':'); idx > 0 {
		opts = append(opts, oauth2.VerifierOption(code[idx+1:]))
		code = code[:idx]
	}
	token, err := p.cfg.Exchange(p.httpContext(ctx), code, opts...)
	if err != nil {
		return TokenBundle{}, wrapOAuthError(p.Name(), err)
	}
	return bundleFromToken(token), nil
}

func (p *cursorProvider) Refresh(ctx context.Context, refreshToken string) (TokenBundle, error) {
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

func (p *cursorProvider) FetchQuota(ctx context.Context, bundle TokenBundle) (Quota, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.usageURL, nil)
	if err != nil {
		return Quota{}, err
	}
	req.Header.Set("Authorization", "Bearer "+bundle.AccessToken)
	req.Header.Set("Accept", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return Quota{}, err
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(res.Body, 1024*1024))
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return Quota{}, fmt.Errorf("usage request failed (%d): %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Plan     string `json:"membershipType"`
		Premium  struct {
			Used  float64 `json:"numRequests"`
			Limit float64 `json:"maxRequestUsage"`
		} `json:"gpt-4"`
		ResetAt int64 `json:"startOfMonth,omitempty"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Quota{}, fmt.Errorf("failed to parse usage response: %w", err)
	}

	quota := Quota{Plan: payload.Plan, FetchedAt: time.Now().UTC()}
	if payload.Premium.Limit > 0 {
		quota.Windows = append(quota.Windows, QuotaWindow{
			Label:       "Month",
			UsedPercent: clampPercent(100 * payload.Premium.Used / payload.Premium.Limit),
			ResetAt:     payload.ResetAt,
		})
	}
	return quota, nil
}

func (p *cursorProvider) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}
