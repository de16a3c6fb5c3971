package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pscheid92/integrations/internal/domain"
	"github.com/pscheid92/integrations/internal/oauth"
)

// Error codes placed on the error redirect. Provider-reported errors use the
// provider's own code after sanitizing.
const (
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeInvalidState   = "invalid_state"
	ErrCodeUnauthorized   = "unauthorized"
	ErrCodeCallbackFailed = "callback_failed"
	ErrCodeProviderError  = "provider_error"

	OutcomeSuccess = "success"
)

const (
	maxErrorCodeLen    = 64
	maxDescriptionLen  = 200
	descInvalidRequest = "The authorization response is missing required parameters."
	descInvalidState   = "The authorization request could not be verified. Please try again."
	descUnauthorized   = "You must be signed in to connect an integration."
	descProviderError  = "The provider did not grant access."

	descUnknownProvider = "This integration is not available."
)

// OAuthProvider is the provider surface the callback needs.
type OAuthProvider interface {
	Name() domain.Provider
	StateRequired() bool
	Exchange(ctx context.Context, code, redirectURI string) (*domain.TokenGrant, error)
	CallbackParams() map[string]string
}

// nextURLProvider is implemented by providers that may ask for a specific
// post-install destination.
type nextURLProvider interface {
	NextURL(query url.Values) (string, bool)
}

// StateGuard rejects a state value that has already been used.
type StateGuard interface {
	Consume(ctx context.Context, state string) (bool, error)
}

type CallbackRequest struct {
	Query       url.Values
	StateCookie string
	Header      http.Header
}

// CallbackResult tells the HTTP layer where to send the browser. The state
// cookie is single-use and is cleared on every outcome.
type CallbackResult struct {
	RedirectURL      string
	Outcome          string
	ClearStateCookie bool
}

type CallbackConfig struct {
	SuccessURL  string
	ErrorURL    string
	RedirectURI string
}

type CallbackController struct {
	provider OAuthProvider
	store    *TokenStore
	sessions domain.SessionProvider
	guard    StateGuard
	cfg      CallbackConfig
	metrics  Recorder
}

// NewCallbackController builds the controller for one provider. guard may be
// nil, in which case state is checked against the cookie only.
func NewCallbackController(provider OAuthProvider, store *TokenStore, sessions domain.SessionProvider, guard StateGuard, cfg CallbackConfig, metrics Recorder) *CallbackController {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &CallbackController{
		provider: provider,
		store:    store,
		sessions: sessions,
		guard:    guard,
		cfg:      cfg,
		metrics:  metrics,
	}
}

// Handle runs the callback pipeline. Each step either passes or ends the flow
// with an error redirect; nothing after a failed step runs.
func (c *CallbackController) Handle(ctx context.Context, req CallbackRequest) CallbackResult {
	name := c.provider.Name()
	q := req.Query
	code := q.Get("code")
	state := q.Get("state")

	if providerErr := q.Get("error"); providerErr != "" {
		errCode := sanitizeErrorCode(providerErr)
		slog.WarnContext(ctx, "Provider returned an authorization error", "provider", name, "error_code", errCode)
		return c.failure(errCode, sanitizeDescription(q.Get("error_description")))
	}

	if code == "" || (state == "" && c.provider.StateRequired()) {
		slog.WarnContext(ctx, "OAuth callback missing parameters",
			"provider", name,
			"has_code", code != "",
			"has_state", state != "",
		)
		return c.failure(ErrCodeInvalidRequest, descInvalidRequest)
	}

	if state != "" {
		if !oauth.ValidateState(state, req.StateCookie) {
			slog.WarnContext(ctx, "OAuth state mismatch", "provider", name, "has_cookie", req.StateCookie != "")
			return c.failure(ErrCodeInvalidState, descInvalidState)
		}
		if c.guard != nil {
			fresh, err := c.guard.Consume(ctx, state)
			if err != nil {
				slog.ErrorContext(ctx, "OAuth state guard unavailable", "provider", name, "error", err)
				return c.failure(ErrCodeInvalidState, descInvalidState)
			}
			if !fresh {
				slog.WarnContext(ctx, "OAuth state replayed", "provider", name)
				return c.failure(ErrCodeInvalidState, descInvalidState)
			}
		}
	}

	session, err := c.sessions.Session(ctx, req.Header)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to read session", "provider", name, "error", err)
		return c.failure(ErrCodeUnauthorized, descUnauthorized)
	}
	if session == nil {
		return c.failure(ErrCodeUnauthorized, descUnauthorized)
	}

	grant, err := c.provider.Exchange(ctx, code, c.cfg.RedirectURI)
	if err != nil {
		slog.ErrorContext(ctx, "OAuth token exchange failed", "provider", name, "user_id", session.UserID, "error", err)
		return c.failure(ErrCodeCallbackFailed, c.failedDescription())
	}

	// The grant is already spent upstream, so a client disconnect must not
	// abort the write.
	persistCtx := context.WithoutCancel(ctx)
	if _, err := c.store.SaveGrant(persistCtx, session.UserID, grant, c.callbackMetadata(q)); err != nil {
		slog.ErrorContext(ctx, "Failed to persist OAuth grant", "provider", name, "user_id", session.UserID, "error", err)
		return c.failure(ErrCodeCallbackFailed, c.failedDescription())
	}

	c.metrics.RecordCallback(name, OutcomeSuccess)
	slog.InfoContext(ctx, "Integration connected", "provider", name, "user_id", session.UserID)

	if np, ok := c.provider.(nextURLProvider); ok {
		if next, ok := np.NextURL(q); ok {
			return CallbackResult{RedirectURL: next, Outcome: OutcomeSuccess, ClearStateCookie: true}
		}
	}
	return CallbackResult{
		RedirectURL:      withQuery(c.cfg.SuccessURL, url.Values{"provider": {name.String()}}),
		Outcome:          OutcomeSuccess,
		ClearStateCookie: true,
	}
}

func (c *CallbackController) failure(code, description string) CallbackResult {
	c.metrics.RecordCallback(c.provider.Name(), metricOutcome(code))
	params := url.Values{
		"error":    {code},
		"provider": {c.provider.Name().String()},
	}
	if description != "" {
		params.Set("error_description", description)
	}
	return CallbackResult{
		RedirectURL:      withQuery(c.cfg.ErrorURL, params),
		Outcome:          code,
		ClearStateCookie: true,
	}
}

// UnknownProviderResult is the callback outcome for a provider that is not
// configured. The requested name is not echoed back.
func UnknownProviderResult(errorURL string) CallbackResult {
	return CallbackResult{
		RedirectURL: withQuery(errorURL, url.Values{
			"error":             {ErrCodeInvalidRequest},
			"error_description": {descUnknownProvider},
		}),
		Outcome:          ErrCodeInvalidRequest,
		ClearStateCookie: true,
	}
}

func (c *CallbackController) failedDescription() string {
	return fmt.Sprintf("Failed to connect %s. Please try again.", displayName(c.provider.Name()))
}

func (c *CallbackController) callbackMetadata(q url.Values) map[string]string {
	params := c.provider.CallbackParams()
	if len(params) == 0 {
		return nil
	}
	meta := make(map[string]string, len(params))
	for param, key := range params {
		if v := q.Get(param); v != "" {
			meta[key] = v
		}
	}
	return meta
}

// metricOutcome folds provider-supplied codes into one label value.
func metricOutcome(code string) string {
	switch code {
	case ErrCodeInvalidRequest, ErrCodeInvalidState, ErrCodeUnauthorized, ErrCodeCallbackFailed:
		return code
	default:
		return ErrCodeProviderError
	}
}

func withQuery(base string, params url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?" + params.Encode()
	}
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func displayName(p domain.Provider) string {
	s := p.String()
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// sanitizeErrorCode keeps provider codes that look like OAuth error codes and
// replaces anything else with a generic one.
func sanitizeErrorCode(code string) string {
	if code == "" || len(code) > maxErrorCodeLen {
		return ErrCodeProviderError
	}
	for _, r := range code {
		ok := r == '_' || r == '-' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return ErrCodeProviderError
		}
	}
	return code
}

func sanitizeDescription(desc string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, desc)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned == "" {
		return descProviderError
	}
	if utf8.RuneCountInString(cleaned) > maxDescriptionLen {
		cleaned = string([]rune(cleaned)[:maxDescriptionLen])
	}
	return cleaned
}
