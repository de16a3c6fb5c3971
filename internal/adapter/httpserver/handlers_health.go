package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/integrations/internal/domain"
	"github.com/pscheid92/integrations/internal/platform/version"
)

const readinessProbeTimeout = 5 * time.Second

const (
	checkPassed = "ok"
	checkFailed = "failed"
)

// HealthCheck is a named dependency probe run by /health/ready.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type livenessResponse struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime"`
}

type readinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Providers []domain.Provider `json:"providers"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleLiveness(c echo.Context) error {
	return writeHealthJSON(c, http.StatusOK, livenessResponse{
		Status: "ok",
		Uptime: s.clock.Since(s.startTime).Seconds(),
	})
}

// handleReadiness runs every check concurrently under one deadline. Check
// errors are logged; the body only says which checks failed.
func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessProbeTimeout)
	defer cancel()

	checks := s.runHealthChecks(ctx)

	providers := slices.Sorted(maps.Keys(s.integrations))
	if providers == nil {
		providers = []domain.Provider{}
	}

	resp := readinessResponse{Status: "ready", Checks: checks, Providers: providers}
	status := http.StatusOK
	if slices.Contains(slices.Collect(maps.Values(checks)), checkFailed) {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	return writeHealthJSON(c, status, resp)
}

func (s *Server) runHealthChecks(ctx context.Context) map[string]string {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]string, len(s.healthChecks))
	)
	for _, hc := range s.healthChecks {
		wg.Go(func() {
			result := checkPassed
			if err := hc.Check(ctx); err != nil {
				slog.WarnContext(ctx, "Readiness check failed", "check", hc.Name, "error", err)
				result = checkFailed
			}
			mu.Lock()
			results[hc.Name] = result
			mu.Unlock()
		})
	}
	wg.Wait()
	return results
}

func (s *Server) handleVersion(c echo.Context) error {
	return writeHealthJSON(c, http.StatusOK, version.Get())
}

func writeHealthJSON(c echo.Context, status int, body any) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to write %s response: %w", c.Path(), err)
	}
	return nil
}
