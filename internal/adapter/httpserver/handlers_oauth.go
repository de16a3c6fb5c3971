package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/integrations/internal/app"
	"github.com/pscheid92/integrations/internal/oauth"
	"github.com/pscheid92/integrations/internal/platform/apperrors"
)

const (
	stateCookieName = "oauth_state"
	stateCookiePath = "/integrations"
)

func (s *Server) registerOAuthRoutes(rateLimiter echo.MiddlewareFunc) {
	s.echo.GET("/integrations/:provider/connect", s.handleConnect, rateLimiter)
	s.echo.GET("/integrations/:provider/callback", s.handleCallback, rateLimiter)
}

// handleConnect starts an authorization: it mints the state, pins it in a
// short-lived cookie and sends the browser to the provider.
func (s *Server) handleConnect(c echo.Context) error {
	name, integ, err := s.integration(c)
	if err != nil {
		return err
	}

	state, err := oauth.GenerateState()
	if err != nil {
		return apperrors.InternalError("failed to start authorization", err)
	}
	c.SetCookie(s.stateCookie(state, int(s.config.StateCookieMaxAge.Seconds())))

	slog.InfoContext(c.Request().Context(), "Authorization started", "provider", name)

	authURL := integ.Provider.AuthorizationURL(s.config.CallbackURL(name.String()), state)
	return c.Redirect(http.StatusTemporaryRedirect, authURL)
}

// handleCallback always answers with a redirect; the controller decides where.
func (s *Server) handleCallback(c echo.Context) error {
	result := s.callbackResult(c)
	if result.ClearStateCookie {
		c.SetCookie(s.stateCookie("", -1))
	}

	return c.Redirect(http.StatusTemporaryRedirect, result.RedirectURL)
}

func (s *Server) callbackResult(c echo.Context) app.CallbackResult {
	_, integ, err := s.integration(c)
	if err != nil {
		slog.WarnContext(c.Request().Context(), "Callback for unknown provider")
		return app.UnknownProviderResult(s.config.ErrorURL)
	}

	var stateCookie string
	if cookie, err := c.Cookie(stateCookieName); err == nil {
		stateCookie = cookie.Value
	}

	return integ.Callback.Handle(c.Request().Context(), app.CallbackRequest{
		Query:       c.QueryParams(),
		StateCookie: stateCookie,
		Header:      c.Request().Header,
	})
}

func (s *Server) stateCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     stateCookieName,
		Value:    value,
		Path:     stateCookiePath,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
}
