package httpserver

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pscheid92/integrations/internal/platform/apperrors"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// Limits per identifier.
const (
	oauthRatePerSecond = 1
	oauthBurst         = 10
	apiRatePerSecond   = 5
	apiBurst           = 20
)

// newRateLimiter keys on the signed-in user when requireAuth ran earlier in the
// chain, and on the client IP otherwise.
func newRateLimiter(ratePerSecond float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: rateLimitIdentifier,
		Store:               store,
		ErrorHandler: func(c echo.Context, err error) error {
			return rejectRequest(c, apperrors.ValidationError("unable to identify client"))
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return rejectRequest(c, apperrors.RateLimitedError("rate limit exceeded"))
		},
	})
}

// rejectRequest writes the response itself. The limiter hands the handler's
// return value to c.Error and returns nil, so nothing downstream renders it.
func rejectRequest(c echo.Context, err *apperrors.Error) error {
	return c.JSON(err.HTTPStatus(), err.ToResponse())
}

func rateLimitIdentifier(c echo.Context) (string, error) {
	if userID, ok := c.Get(contextKeyUserID).(uuid.UUID); ok {
		return "user:" + userID.String(), nil
	}
	return "ip:" + c.RealIP(), nil
}
