package oauth

import (
	"cmp"
	"context"
	"net/http"
	"strings"

	"github.com/pscheid92/integrations/internal/domain"
	"golang.org/x/oauth2"
)

const (
	webflowAuthURL  = "https://webflow.com/oauth/authorize"
	webflowTokenURL = "https://api.webflow.com/oauth/access_token"
	webflowAPIURL   = "https://api.webflow.com"
)

type WebflowConfig struct {
	ClientID     string
	ClientSecret string
	Scopes       []string

	AuthURL  string
	TokenURL string
	APIURL   string

	HTTPClient *http.Client
}

type Webflow struct {
	client
	apiURL string
}

func NewWebflow(cfg WebflowConfig) *Webflow {
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cmp.Or(cfg.AuthURL, webflowAuthURL),
			TokenURL:  cmp.Or(cfg.TokenURL, webflowTokenURL),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	return &Webflow{
		client: newClient(domain.ProviderWebflow, oauthCfg, cfg.HTTPClient),
		apiURL: cmp.Or(cfg.APIURL, webflowAPIURL),
	}
}

func (w *Webflow) Name() domain.Provider { return domain.ProviderWebflow }

func (w *Webflow) StateRequired() bool { return true }

func (w *Webflow) AuthorizationURL(redirectURI, state string) string {
	return w.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
}

func (w *Webflow) Exchange(ctx context.Context, code, redirectURI string) (*domain.TokenGrant, error) {
	return w.exchange(ctx, code, redirectURI)
}

func (w *Webflow) CallbackParams() map[string]string { return nil }

func (w *Webflow) Verify(ctx context.Context, accessToken string) (*domain.Account, error) {
	var resp struct {
		ID        string `json:"id"`
		Email     string `json:"email"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}
	if err := w.getJSON(ctx, endpointURL(w.apiURL, "/v2/token/authorized_by"), accessToken, &resp); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(resp.FirstName + " " + resp.LastName)
	return &domain.Account{ID: resp.ID, Name: cmp.Or(name, resp.Email)}, nil
}

// ParseScopes splits a comma or space separated scope list.
func ParseScopes(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' })
}
