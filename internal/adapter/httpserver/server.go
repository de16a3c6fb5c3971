package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/integrations/internal/adapter/metrics"
	"github.com/pscheid92/integrations/internal/app"
	"github.com/pscheid92/integrations/internal/domain"
	"github.com/pscheid92/integrations/internal/platform/apperrors"
	"github.com/pscheid92/integrations/internal/platform/config"
)

// tokenService is the per-provider token store.
type tokenService interface {
	SaveToken(ctx context.Context, userID uuid.UUID, rawToken string) error
	GetToken(ctx context.Context, userID uuid.UUID) (string, error)
	HasToken(ctx context.Context, userID uuid.UUID) (bool, error)
	RevokeToken(ctx context.Context, userID uuid.UUID) error
}

type callbackHandler interface {
	Handle(ctx context.Context, req app.CallbackRequest) app.CallbackResult
}

// providerClient is the part of a provider the HTTP layer calls directly.
type providerClient interface {
	AuthorizationURL(redirectURI, state string) string
	Verify(ctx context.Context, accessToken string) (*domain.Account, error)
}

// Integration bundles everything served under /integrations/:provider and
// /api/integrations/:provider.
type Integration struct {
	Provider providerClient
	Tokens   tokenService
	Callback callbackHandler
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	integrations map[domain.Provider]Integration
	sessions     domain.SessionProvider

	registry     *prometheus.Registry
	httpMetrics  *metrics.HTTPMetrics
	errors       *apperrors.Middleware
	validate     *validator.Validate
	healthChecks []HealthCheck

	clock     clockwork.Clock
	startTime time.Time
}

func NewServer(cfg *config.Config, integrations map[domain.Provider]Integration, sessions domain.SessionProvider, registry *prometheus.Registry, healthChecks []HealthCheck) *Server {
	srv := newServer(cfg, integrations, sessions, registry, clockwork.NewRealClock())
	srv.healthChecks = healthChecks
	srv.registerRoutes()
	return srv
}

func newServer(cfg *config.Config, integrations map[domain.Provider]Integration, sessions domain.SessionProvider, registry *prometheus.Registry, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	return &Server{
		echo:         e,
		config:       cfg,
		integrations: integrations,
		sessions:     sessions,
		registry:     registry,
		httpMetrics:  metrics.NewHTTPMetrics(registry),
		errors:       apperrors.NewMiddleware(registry),
		validate:     newValidator(),
		clock:        clock,
		startTime:    clock.Now(),
	}
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// integration resolves the :provider path parameter.
func (s *Server) integration(c echo.Context) (domain.Provider, Integration, error) {
	name := domain.Provider(c.Param("provider"))
	integ, ok := s.integrations[name]
	if !ok {
		return "", Integration{}, apperrors.NotFoundError("unknown provider")
	}
	return name, integ, nil
}

// newValidator reports field errors under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
