package auth

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenProvider supplies a bearer token for outbound platform calls.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// M2MTokenProvider holds a machine-to-machine access token and refreshes it
// when it expires. The token is fetched once and reused across submissions.
type M2MTokenProvider struct {
	source oauth2.TokenSource
}

func NewM2MTokenProvider(tokenURL, clientID, clientSecret, audience string) (*M2MTokenProvider, error) {
	if tokenURL == "" || clientID == "" {
		return nil, fmt.Errorf("m2m auth configuration incomplete")
	}

	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	if audience != "" {
		cfg.EndpointParams = url.Values{"audience": {audience}}
	}

	// TokenSource caches the token and refreshes it on expiry.
	return &M2MTokenProvider{source: cfg.TokenSource(context.Background())}, nil
}

func (p *M2MTokenProvider) Token(_ context.Context) (string, error) {
	tok, err := p.source.Token()
	if err != nil {
		return "", fmt.Errorf("fetching m2m token: %w", err)
	}
	return tok.AccessToken, nil
}

// StaticTokenProvider returns a fixed token. Used in tests and local runs.
type StaticTokenProvider string

func (p StaticTokenProvider) Token(_ context.Context) (string, error) {
	return string(p), nil
}
