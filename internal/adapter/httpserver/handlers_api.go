package httpserver

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/integrations/internal/domain"
	"github.com/pscheid92/integrations/internal/oauth"
	"github.com/pscheid92/integrations/internal/platform/apperrors"
)

func (s *Server) registerAPIRoutes(csrfMiddleware, rateLimiter echo.MiddlewareFunc) {
	g := s.echo.Group("/api/integrations/:provider", s.requireAuth, rateLimiter, csrfMiddleware)
	g.GET("", s.handleGetStatus)
	g.PUT("/token", s.handleSaveToken)
	g.DELETE("/token", s.handleRevokeToken)
	g.POST("/verify", s.handleVerify)
}

type saveTokenRequest struct {
	Token string `json:"token" validate:"required,max=4096"`
}

type statusResponse struct {
	Provider  domain.Provider `json:"provider"`
	Connected bool            `json:"connected"`
}

type verifyResponse struct {
	Provider domain.Provider `json:"provider"`
	Account  *domain.Account `json:"account"`
}

func (s *Server) handleGetStatus(c echo.Context) error {
	name, integ, err := s.integration(c)
	if err != nil {
		return err
	}

	connected, err := integ.Tokens.HasToken(c.Request().Context(), currentUser(c))
	if err != nil {
		return tokenError(err)
	}
	return c.JSON(http.StatusOK, statusResponse{Provider: name, Connected: connected})
}

func (s *Server) handleSaveToken(c echo.Context) error {
	_, integ, err := s.integration(c)
	if err != nil {
		return err
	}

	var req saveTokenRequest
	if err := (&echo.DefaultBinder{}).BindBody(c, &req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if err := s.validate.Struct(req); err != nil {
		return validationError(err)
	}

	if err := integ.Tokens.SaveToken(c.Request().Context(), currentUser(c), req.Token); err != nil {
		return tokenError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleRevokeToken(c echo.Context) error {
	_, integ, err := s.integration(c)
	if err != nil {
		return err
	}

	if err := integ.Tokens.RevokeToken(c.Request().Context(), currentUser(c)); err != nil {
		return tokenError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleVerify decrypts the stored token and asks the provider who owns it.
func (s *Server) handleVerify(c echo.Context) error {
	name, integ, err := s.integration(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	token, err := integ.Tokens.GetToken(ctx, currentUser(c))
	if err != nil {
		return tokenError(err)
	}

	account, err := integ.Provider.Verify(ctx, token)
	if err != nil {
		return providerError(err)
	}
	return c.JSON(http.StatusOK, verifyResponse{Provider: name, Account: account})
}

// tokenError maps token store failures; messages are fixed strings.
func tokenError(err error) error {
	switch {
	case errors.Is(err, domain.ErrTokenEmpty):
		return apperrors.ValidationError("token is required").WithCause(err)
	case errors.Is(err, domain.ErrTokenTooShort):
		return apperrors.ValidationError("token is too short").WithCause(err)
	case errors.Is(err, domain.ErrTokenNotFound):
		return apperrors.NotFoundError("no token stored for this provider").WithCause(err)
	case errors.Is(err, domain.ErrDecryptionFailed):
		return apperrors.InternalError("stored token could not be read", err)
	default:
		return apperrors.InternalError("token storage failed", err)
	}
}

func providerError(err error) error {
	if errors.Is(err, oauth.ErrProviderUnavailable) {
		return apperrors.UnavailableError("provider temporarily unavailable", err)
	}
	return apperrors.ExternalError("provider verification failed", err)
}

func validationError(err error) error {
	result := apperrors.ValidationError("invalid request")
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			result = result.WithField(fe.Field(), fe.Tag())
		}
	}
	return result
}
