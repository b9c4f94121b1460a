package twitter

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

const defaultTokenURL = "https://api.twitter.com/2/oauth2/token"

// TokenRefresher exchanges refresh tokens at the OAuth2 token endpoint
type TokenRefresher struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// RefresherOption configures a TokenRefresher
type RefresherOption func(*TokenRefresher)

// WithTokenURL sets a custom token endpoint
func WithTokenURL(tokenURL string) RefresherOption {
	return func(r *TokenRefresher) {
		if tokenURL != "" {
			r.config.Endpoint.TokenURL = tokenURL
		}
	}
}

// WithRefresherHTTPClient sets the HTTP client used for token requests
func WithRefresherHTTPClient(httpClient *http.Client) RefresherOption {
	return func(r *TokenRefresher) {
		r.httpClient = httpClient
	}
}

// NewTokenRefresher creates a refresher for a confidential client. Without a
// client secret the client id is sent in the form body (public client).
func NewTokenRefresher(clientID, clientSecret string, opts ...RefresherOption) *TokenRefresher {
	authStyle := oauth2.AuthStyleInHeader
	if clientSecret == "" {
		authStyle = oauth2.AuthStyleInParams
	}

	r := &TokenRefresher{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  defaultTokenURL,
				AuthStyle: authStyle,
			},
		},
		httpClient: &http.Client{Timeout: defaultTimeout},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Refresh performs one refresh_token grant. Rejections are returned as
// *oauth2.RetrieveError.
func (r *TokenRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}

	tok, err := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	return tok, nil
}
