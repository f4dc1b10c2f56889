package authflow

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

const (
	windsurfTokenURL = "https://securetoken.windsurf.com/v1/token"
	windsurfAuthURL  = "https://windsurf.com/oauth/authorize"
	windsurfClientID = "windsurf-editor"
)

// windsurfProvider issues opaque access tokens; expiry comes only from the
// token response, never from claims.
type windsurfProvider struct {
	cfg *oauth2.Config
}

func newWindsurfProvider() *windsurfProvider {
	return &windsurfProvider{
		cfg: &oauth2.Config{
			ClientID: windsurfClientID,
			Endpoint: oauth2.Endpoint{
				AuthURL:  windsurfAuthURL,
				TokenURL: windsurfTokenURL,
			},
		},
	}
}

func (p *windsurfProvider) Name() string { return "windsurf" }

func (p *windsurfProvider) Exchange(ctx context.Context, code string) (TokenBundle, error) {
	token, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return TokenBundle{}, wrapOAuthError(p.Name(), err)
	}
	bundle := bundleFromToken(token)
	if bundle.ExpiresAt.IsZero() {
		// The securetoken endpoint always scopes tokens to an hour when
		// it omits expires_in.
		bundle.ExpiresAt = time.Now().Add(time.Hour)
	}
	return bundle, nil
}

func (p *windsurfProvider) Refresh(ctx context.Context, refreshToken string) (TokenBundle, error) {
	source := p.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return TokenBundle{}, wrapRefreshError(p.Name(), err)
	}
	bundle := bundleFromToken(token)
	if bundle.RefreshToken == "" {
		bundle.RefreshToken = refreshToken
	}
	if bundle.ExpiresAt.IsZero() {
		bundle.ExpiresAt = time.Now().Add(time.Hour)
	}
	return bundle, nil
}

func (p *windsurfProvider) FetchQuota(ctx context.Context, bundle TokenBundle) (Quota, error) {
	return Quota{}, ErrQuotaUnsupported
}
