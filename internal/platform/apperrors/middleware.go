package apperrors

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Middleware renders structured errors returned by handlers as JSON and counts
// them by type.
type Middleware struct {
	errorsTotal *prometheus.CounterVec
}

func NewMiddleware(reg prometheus.Registerer) *Middleware {
	m := &Middleware{
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "integrations",
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "Total HTTP errors by error type.",
		}, []string{"type"}),
	}
	reg.MustRegister(m.errorsTotal)
	return m
}

func (m *Middleware) Handler() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			// Framework errors (CSRF, rate limit, routing) keep their status
			// and go through echo's error handler.
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				m.errorsTotal.WithLabelValues(string(FromStatus(httpErr.Code))).Inc()
				return err
			}

			structured := AsStructuredError(err)
			m.errorsTotal.WithLabelValues(string(structured.Type)).Inc()
			logError(c, structured)

			if c.Response().Committed {
				return nil
			}
			if err := c.JSON(structured.HTTPStatus(), structured.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *Error) {
	ctx := c.Request().Context()
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Path(),
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}
	if userID := c.Get("userID"); userID != nil {
		attrs = append(attrs, "user_id", userID)
	}
	if err.Cause != nil {
		attrs = append(attrs, "cause", err.Cause)
	}

	switch err.Type {
	case TypeValidation, TypeNotFound, TypeUnauthorized:
		slog.InfoContext(ctx, "Request rejected", attrs...)
	case TypeConflict, TypeRateLimited:
		slog.WarnContext(ctx, "Request refused", attrs...)
	default:
		slog.ErrorContext(ctx, "Request failed", attrs...)
	}
}
