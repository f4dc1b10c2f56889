package authflow

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	copilotDeviceAuthURL = "https://github.com/login/device/code"
	copilotTokenURL      = "https://github.com/login/oauth/access_token"
	copilotClientID      = "Iv1.b507a08c87ecfe98"
)

// copilotProvider authenticates through the GitHub device-code flow. The
// resulting token is long-lived and opaque; GitHub rotates it through the
// same token endpoint.
type copilotProvider struct {
	cfg    *oauth2.Config
	client *http.Client
}

func newCopilotProvider() *copilotProvider {
	return &copilotProvider{
		cfg: &oauth2.Config{
			ClientID: copilotClientID,
			Endpoint: oauth2.Endpoint{
				DeviceAuthURL: copilotDeviceAuthURL,
				TokenURL:      copilotTokenURL,
			},
			Scopes: []string{"read:user"},
		},
		client: &http.Client{Timeout: 12 * time.Second},
	}
}

func (p *copilotProvider) Name() string { return "copilot" }

// Exchange treats code as an already-approved device code and performs one
// final token request for it.
func (p *copilotProvider) Exchange(ctx context.Context, code string) (TokenBundle, error) {
	return p.PollDeviceFlow(ctx, &oauth2.DeviceAuthResponse{
		DeviceCode: code,
		Expiry:     time.Now().Add(time.Minute),
		Interval:   1,
	})
}

func (p *copilotProvider) Refresh(ctx context.Context, refreshToken string) (TokenBundle, error) {
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

func (p *copilotProvider) FetchQuota(ctx context.Context, bundle TokenBundle) (Quota, error) {
	return Quota{}, ErrQuotaUnsupported
}

func (p *copilotProvider) BeginDeviceFlow(ctx context.Context) (*oauth2.DeviceAuthResponse, error) {
	auth, err := p.cfg.DeviceAuth(p.httpContext(ctx))
	if err != nil {
		return nil, wrapOAuthError(p.Name(), err)
	}
	return auth, nil
}

// PollDeviceFlow polls the token endpoint until the user approves the code,
// the code expires, or ctx is cancelled. x/oauth2 sleeps between polls and
// checks ctx there, so cancellation never aborts an in-flight request.
func (p *copilotProvider) PollDeviceFlow(ctx context.Context, auth *oauth2.DeviceAuthResponse) (TokenBundle, error) {
	token, err := p.cfg.DeviceAccessToken(p.httpContext(ctx), auth)
	if err != nil {
		if ctx.Err() != nil {
			return TokenBundle{}, ctx.Err()
		}
		return TokenBundle{}, wrapOAuthError(p.Name(), err)
	}
	return bundleFromToken(token), nil
}

func (p *copilotProvider) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}
