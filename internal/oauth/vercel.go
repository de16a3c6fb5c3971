package oauth

import (
	"cmp"
	"context"
	"net/http"
	"net/url"

	"github.com/pscheid92/integrations/internal/domain"
	"golang.org/x/oauth2"
)

const (
	vercelInstallURL = "https://vercel.com/integrations"
	vercelTokenURL   = "https://api.vercel.com/v2/oauth/access_token"
	vercelAPIURL     = "https://api.vercel.com"
	vercelNextHost   = "vercel.com"
)

type VercelConfig struct {
	ClientID        string
	ClientSecret    string
	IntegrationSlug string

	// Endpoint overrides; empty means the public Vercel endpoints.
	InstallURL string
	TokenURL   string
	APIURL     string

	HTTPClient *http.Client
}

// Vercel installs a marketplace integration. Installs started from the Vercel
// dashboard carry no state, so state is only checked when present.
type Vercel struct {
	client
	installURL string
	slug       string
	apiURL     string
}

func NewVercel(cfg VercelConfig) *Vercel {
	installURL := cmp.Or(cfg.InstallURL, vercelInstallURL)
	tokenURL := cmp.Or(cfg.TokenURL, vercelTokenURL)

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   installURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	return &Vercel{
		client:     newClient(domain.ProviderVercel, oauthCfg, cfg.HTTPClient),
		installURL: installURL,
		slug:       cfg.IntegrationSlug,
		apiURL:     cmp.Or(cfg.APIURL, vercelAPIURL),
	}
}

func (v *Vercel) Name() domain.Provider { return domain.ProviderVercel }

func (v *Vercel) StateRequired() bool { return false }

func (v *Vercel) AuthorizationURL(redirectURI, state string) string {
	q := url.Values{}
	q.Set("state", state)
	q.Set("redirect_uri", redirectURI)
	return endpointURL(v.installURL, url.PathEscape(v.slug)+"/new") + "?" + q.Encode()
}

func (v *Vercel) Exchange(ctx context.Context, code, redirectURI string) (*domain.TokenGrant, error) {
	return v.exchange(ctx, code, redirectURI, "team_id", "installation_id", "user_id")
}

func (v *Vercel) CallbackParams() map[string]string {
	return map[string]string{
		"teamId":          "team_id",
		"configurationId": "configuration_id",
	}
}

func (v *Vercel) Verify(ctx context.Context, accessToken string) (*domain.Account, error) {
	var resp struct {
		User struct {
			ID       string `json:"id"`
			Username string `json:"username"`
			Name     string `json:"name"`
		} `json:"user"`
	}
	if err := v.getJSON(ctx, endpointURL(v.apiURL, "/v2/user"), accessToken, &resp); err != nil {
		return nil, err
	}

	return &domain.Account{
		ID:   resp.User.ID,
		Name: cmp.Or(resp.User.Name, resp.User.Username),
	}, nil
}

// NextURL returns the dashboard URL Vercel asked to continue to after install.
// Anything not on https://vercel.com is ignored.
func (v *Vercel) NextURL(query url.Values) (string, bool) {
	next := query.Get("next")
	if next == "" {
		return "", false
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "https" || u.Host != vercelNextHost || u.User != nil {
		return "", false
	}
	return u.String(), true
}
