package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// RecurseCenterConfig configures the recurse_center OAuth method, loaded
// from the [oauth.recurse_center] config section.
type RecurseCenterConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserinfoURL  string
	RedirectURL  string
}

// RecurseCenter implements OAuthCLIMethod against the Recurse Center's
// standard OAuth2 authorization-code flow. Per spec.md §4.8 and the
// original implementation's oauth::recurse_center module, it performs
// exactly one userinfo lookup per login and never persists the access
// token beyond that single exchange.
type RecurseCenter struct {
	oauth       oauth2.Config
	userinfoURL string
	httpClient  *http.Client
}

var _ OAuthCLIMethod = (*RecurseCenter)(nil)

// NewRecurseCenter builds the adapter from configuration.
func NewRecurseCenter(cfg RecurseCenterConfig) *RecurseCenter {
	return &RecurseCenter{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		userinfoURL: cfg.UserinfoURL,
		httpClient:  http.DefaultClient,
	}
}

func (a *RecurseCenter) Name() string { return "recurse_center" }

// RequestURL returns the URL the client should open in a browser. The
// state parameter is not correlated server-side beyond this one login
// attempt, since teleterm's server holds no session across the CLI
// redirect dance other than the still-open connection awaiting the
// OauthCliResponse frame.
func (a *RecurseCenter) RequestURL(_ context.Context) (string, error) {
	if a.oauth.ClientID == "" {
		return "", fail("recurse_center", fmt.Errorf("oauth.recurse_center is not configured"))
	}
	return a.oauth.AuthCodeURL("teleterm", oauth2.AccessTypeOnline), nil
}

// Exchange trades an authorization code for an access token and looks up
// the authenticated user's canonical display name.
func (a *RecurseCenter) Exchange(ctx context.Context, code string) (string, error) {
	token, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fail("recurse_center", fmt.Errorf("token exchange failed"))
	}

	client := a.oauth.Client(ctx, token)
	resp, err := client.Get(a.userinfoURL)
	if err != nil {
		return "", fail("recurse_center", fmt.Errorf("userinfo request failed"))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fail("recurse_center", fmt.Errorf("userinfo returned status %d", resp.StatusCode))
	}

	var userinfo struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userinfo); err != nil {
		return "", fail("recurse_center", fmt.Errorf("userinfo response was not valid JSON"))
	}
	if userinfo.Name == "" {
		return "", fail("recurse_center", fmt.Errorf("userinfo response had no name"))
	}
	return userinfo.Name, nil
}
